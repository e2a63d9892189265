package bundle

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/vbook-dev/vbook/internal/project"
)

// ArchiveName is the file written into the project directory by Build.
const ArchiveName = "plugin.zip"

// Build validates p and writes plugin.zip containing plugin.json, icon.png
// and every file under src/. It returns the archive path.
func Build(p *project.Project) (string, error) {
	if err := p.ValidateForBundle(); err != nil {
		return "", err
	}
	outputPath := filepath.Join(p.Dir, ArchiveName)
	tmpPath := outputPath + ".tmp"
	if err := writeArchive(p, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("finalise %s: %w", ArchiveName, err)
	}
	return outputPath, nil
}

func writeArchive(p *project.Project, outputPath string) (retErr error) {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputPath, err)
	}
	defer func() {
		if err := out.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("close %s: %w", outputPath, err)
		}
	}()

	zw := zip.NewWriter(out)
	if err := addFile(zw, p.DescriptorPath(), project.DescriptorFile); err != nil {
		return err
	}
	if err := addFile(zw, p.IconPath(), project.IconFile); err != nil {
		return err
	}
	err = filepath.WalkDir(p.SourceDirPath(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.Dir, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel))
	})
	if err != nil {
		return fmt.Errorf("add %s directory: %w", project.SourceDir, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish %s: %w", ArchiveName, err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return errors.New(name + " is not a regular file")
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header for %s: %w", name, err)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
