// Package project locates and validates vbook extension projects on disk.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	DescriptorFile = "plugin.json"
	IconFile       = "icon.png"
	SourceDir      = "src"
	ScriptExt      = ".js"
)

// ErrNotProject is returned when no plugin.json can be found for a path.
var ErrNotProject = errors.New("not a vbook extension project")

type Metadata struct {
	Name        string `json:"name"`
	Author      string `json:"author"`
	Version     int    `json:"version"`
	Source      string `json:"source"`
	Regexp      string `json:"regexp"`
	Description string `json:"description"`
	Locale      string `json:"locale"`
	Tag         string `json:"tag"`
	Type        string `json:"type"`
}

// Scripts maps each extension entry point to its file under src/.
type Scripts struct {
	Home   string `json:"home"`
	Genre  string `json:"genre"`
	Detail string `json:"detail"`
	Search string `json:"search"`
	Page   string `json:"page"`
	Toc    string `json:"toc"`
	Chap   string `json:"chap"`
}

// Descriptor is the parsed plugin.json.
type Descriptor struct {
	Metadata Metadata `json:"metadata"`
	Script   Scripts  `json:"script"`
}

// Validate checks the metadata fields required to publish an extension.
func (d Descriptor) Validate() error {
	switch {
	case strings.TrimSpace(d.Metadata.Name) == "":
		return errors.New("metadata.name is required")
	case strings.TrimSpace(d.Metadata.Author) == "":
		return errors.New("metadata.author is required")
	case strings.TrimSpace(d.Metadata.Source) == "":
		return errors.New("metadata.source is required")
	case d.Metadata.Version <= 0:
		return errors.New("metadata.version must be greater than 0")
	}
	return nil
}

// Project is an extension directory with a parsed descriptor.
type Project struct {
	Dir        string
	Descriptor Descriptor
}

// Name is the project directory's base name. The runtime app addresses
// project files relative to the parent directory, so it prefixes every root.
func (p *Project) Name() string {
	return filepath.Base(p.Dir)
}

// Identity keys per-project state.
func (p *Project) Identity() string {
	return p.Dir
}

// SourceRoot is the root value sent to the runtime app, always slash
// separated.
func (p *Project) SourceRoot() string {
	return p.Name() + "/" + SourceDir
}

// SourceDirPath is the absolute path of src/.
func (p *Project) SourceDirPath() string {
	return filepath.Join(p.Dir, SourceDir)
}

// IconPath is the absolute path of icon.png.
func (p *Project) IconPath() string {
	return filepath.Join(p.Dir, IconFile)
}

// DescriptorPath is the absolute path of plugin.json.
func (p *Project) DescriptorPath() string {
	return filepath.Join(p.Dir, DescriptorFile)
}

// Scripts lists the .js files directly under src/, sorted by name.
func (p *Project) Scripts() ([]string, error) {
	entries, err := os.ReadDir(p.SourceDirPath())
	if err != nil {
		return nil, fmt.Errorf("read %s directory: %w", SourceDir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ScriptExt {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ValidateForBundle checks everything install and build need on top of a
// parseable descriptor: valid metadata, icon.png and at least one script.
func (p *Project) ValidateForBundle() error {
	if err := p.Descriptor.Validate(); err != nil {
		return fmt.Errorf("invalid %s: %w", DescriptorFile, err)
	}
	if err := requireFile(p.IconPath(), IconFile); err != nil {
		return err
	}
	info, err := os.Stat(p.SourceDirPath())
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("required directory %q not found", SourceDir)
	}
	if err != nil {
		return fmt.Errorf("check directory %q: %w", SourceDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q should be a directory, not a file", SourceDir)
	}
	scripts, err := p.Scripts()
	if err != nil {
		return err
	}
	if len(scripts) == 0 {
		return fmt.Errorf("%s directory must contain at least one JavaScript (%s) file", SourceDir, ScriptExt)
	}
	return nil
}

// Load parses plugin.json in dir. The descriptor must carry both the
// metadata and script sections.
func Load(dir string) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrNotProject, abs)
	}
	if err != nil {
		return nil, fmt.Errorf("check project path %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotProject, abs)
	}

	descriptorPath := filepath.Join(abs, DescriptorFile)
	if err := requireFile(descriptorPath, DescriptorFile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotProject, err)
	}
	data, err := os.ReadFile(descriptorPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", DescriptorFile, err)
	}
	descriptor, err := parseDescriptor(data)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", DescriptorFile, err)
	}
	return &Project{Dir: abs, Descriptor: descriptor}, nil
}

// FindRoot walks up from scriptPath to the nearest directory holding
// plugin.json.
func FindRoot(scriptPath string) (string, error) {
	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		return "", fmt.Errorf("resolve script path %q: %w", scriptPath, err)
	}
	dir := abs
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, DescriptorFile)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: %s not found above %s", ErrNotProject, DescriptorFile, abs)
		}
		dir = parent
	}
}

// LoadForScript finds and loads the project owning scriptPath.
func LoadForScript(scriptPath string) (*Project, error) {
	root, err := FindRoot(scriptPath)
	if err != nil {
		return nil, err
	}
	return Load(root)
}

func parseDescriptor(data []byte) (Descriptor, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return Descriptor{}, fmt.Errorf("not valid JSON: %w", err)
	}
	for _, name := range []string{"metadata", "script"} {
		if _, ok := sections[name]; !ok {
			return Descriptor{}, fmt.Errorf("missing required %q section", name)
		}
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("decode sections: %w", err)
	}
	return d, nil
}

func requireFile(path, name string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("required file %q not found", name)
	}
	if err != nil {
		return fmt.Errorf("check file %q: %w", name, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%q should be a file, not a directory", name)
	}
	return nil
}
