package filebridge

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	errPathNullByte  = errors.New("path contains null byte")
	errPathTraversal = errors.New("path contains traversal sequence")
	errPathAbsolute  = errors.New("path must be relative")
	errPathEscapes   = errors.New("path escapes the project directory")
)

// ResolvePath joins baseDir, root and file, rejecting null bytes, ".."
// segments and absolute components. root and file are taken literally: they
// arrive already query-decoded, so a '%' is part of the file name.
// The result is always inside baseDir.
func ResolvePath(baseDir, root, file string) (string, error) {
	cleanRoot, err := canonicaliseParam(root)
	if err != nil {
		return "", err
	}
	cleanFile, err := canonicaliseParam(file)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(baseDir, cleanRoot, cleanFile)
	rel, err := filepath.Rel(baseDir, joined)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errPathEscapes
	}
	return joined, nil
}

func canonicaliseParam(raw string) (string, error) {
	if strings.ContainsRune(raw, 0) {
		return "", errPathNullByte
	}

	slashed := strings.ReplaceAll(raw, `\`, "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(raw) || filepath.VolumeName(raw) != "" {
		return "", errPathAbsolute
	}
	if containsTraversal(slashed) {
		return "", errPathTraversal
	}
	return filepath.FromSlash(slashed), nil
}

func containsTraversal(p string) bool {
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}
