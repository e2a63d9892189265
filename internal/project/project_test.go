package project

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validDescriptor = `{
  "metadata": {"name": "Demo", "author": "dev", "version": 3, "source": "https://demo.example"},
  "script": {"detail": "detail.js", "toc": "toc.js"}
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newProjectDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "demo")
	writeFile(t, filepath.Join(dir, DescriptorFile), validDescriptor)
	writeFile(t, filepath.Join(dir, IconFile), "png")
	writeFile(t, filepath.Join(dir, SourceDir, "toc.js"), "function execute() {}")
	writeFile(t, filepath.Join(dir, SourceDir, "detail.js"), "function execute() {}")
	writeFile(t, filepath.Join(dir, SourceDir, "notes.txt"), "ignored")
	return dir
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := newProjectDir(t)
	p, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got, want := p.Name(), "demo"; got != want {
		t.Fatalf("Name() = %q, want %q", got, want)
	}
	if got, want := p.SourceRoot(), "demo/src"; got != want {
		t.Fatalf("SourceRoot() = %q, want %q", got, want)
	}
	if got, want := p.Descriptor.Metadata.Version, 3; got != want {
		t.Fatalf("metadata version = %d, want %d", got, want)
	}
	if got, want := p.Descriptor.Script.Toc, "toc.js"; got != want {
		t.Fatalf("script toc = %q, want %q", got, want)
	}
	if err := p.ValidateForBundle(); err != nil {
		t.Fatalf("ValidateForBundle returned error: %v", err)
	}

	scripts, err := p.Scripts()
	if err != nil {
		t.Fatalf("Scripts returned error: %v", err)
	}
	if got := strings.Join(scripts, ","); got != "detail.js,toc.js" {
		t.Fatalf("Scripts() = %q, want %q", got, "detail.js,toc.js")
	}
}

func TestLoadRejectsDirectoryWithoutDescriptor(t *testing.T) {
	t.Parallel()

	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrNotProject) {
		t.Fatalf("expected ErrNotProject, got %v", err)
	}
}

func TestLoadRejectsBadDescriptor(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":         "{",
		"missing script":   `{"metadata": {}}`,
		"missing sections": `{}`,
	}
	for name, content := range cases {
		content := content
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, DescriptorFile), content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), DescriptorFile) {
				t.Fatalf("expected error to name %s, got %v", DescriptorFile, err)
			}
		})
	}
}

func TestFindRootWalksUp(t *testing.T) {
	t.Parallel()

	dir := newProjectDir(t)
	script := filepath.Join(dir, SourceDir, "toc.js")

	root, err := FindRoot(script)
	if err != nil {
		t.Fatalf("FindRoot returned error: %v", err)
	}
	if root != dir {
		t.Fatalf("FindRoot() = %q, want %q", root, dir)
	}

	p, err := LoadForScript(script)
	if err != nil {
		t.Fatalf("LoadForScript returned error: %v", err)
	}
	if p.Dir != dir {
		t.Fatalf("LoadForScript dir = %q, want %q", p.Dir, dir)
	}
}

func TestFindRootWithoutDescriptor(t *testing.T) {
	t.Parallel()

	script := filepath.Join(t.TempDir(), "orphan.js")
	writeFile(t, script, "")
	if _, err := FindRoot(script); !errors.Is(err, ErrNotProject) {
		t.Fatalf("expected ErrNotProject, got %v", err)
	}
}

func TestValidateForBundle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(t *testing.T, dir string)
		wantErr string
	}{
		{
			name: "missing icon",
			mutate: func(t *testing.T, dir string) {
				if err := os.Remove(filepath.Join(dir, IconFile)); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: `required file "icon.png" not found`,
		},
		{
			name: "missing src",
			mutate: func(t *testing.T, dir string) {
				if err := os.RemoveAll(filepath.Join(dir, SourceDir)); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: `required directory "src" not found`,
		},
		{
			name: "no scripts",
			mutate: func(t *testing.T, dir string) {
				for _, name := range []string{"toc.js", "detail.js"} {
					if err := os.Remove(filepath.Join(dir, SourceDir, name)); err != nil {
						t.Fatal(err)
					}
				}
			},
			wantErr: "at least one JavaScript",
		},
		{
			name: "zero version",
			mutate: func(t *testing.T, dir string) {
				writeFile(t, filepath.Join(dir, DescriptorFile), `{"metadata": {"name": "a", "author": "b", "source": "c"}, "script": {}}`)
			},
			wantErr: "metadata.version must be greater than 0",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := newProjectDir(t)
			tc.mutate(t, dir)
			p, err := Load(dir)
			if err != nil {
				t.Fatalf("Load returned error: %v", err)
			}
			err = p.ValidateForBundle()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("ValidateForBundle() error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestDescriptorValidate(t *testing.T) {
	t.Parallel()

	d := Descriptor{Metadata: Metadata{Name: "a", Author: "b", Source: "c", Version: 1}}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	d.Metadata.Author = " "
	if err := d.Validate(); err == nil || !strings.Contains(err.Error(), "metadata.author") {
		t.Fatalf("expected author error, got %v", err)
	}
}
