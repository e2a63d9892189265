package paths

import (
	"path/filepath"
	"testing"
)

func TestStateBaseDirPrefersXDGStateHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_STATE_HOME", tmp)

	got, err := StateBaseDir()
	if err != nil {
		t.Fatalf("StateBaseDir returned error: %v", err)
	}
	if want := filepath.Join(tmp, "vbook"); got != want {
		t.Fatalf("StateBaseDir() = %q, want %q", got, want)
	}

	db, err := StateDBPath()
	if err != nil {
		t.Fatalf("StateDBPath returned error: %v", err)
	}
	if want := filepath.Join(tmp, "vbook", "state.db"); db != want {
		t.Fatalf("StateDBPath() = %q, want %q", db, want)
	}
}

func TestConfigPathPrefersXDGConfigHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	got, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath returned error: %v", err)
	}
	if want := filepath.Join(tmp, "vbook", "config.yaml"); got != want {
		t.Fatalf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestStateBaseDirFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	got, err := StateBaseDir()
	if err != nil {
		t.Fatalf("StateBaseDir returned error: %v", err)
	}
	if want := filepath.Join(home, ".local", "state", "vbook"); got != want {
		t.Fatalf("StateBaseDir() = %q, want %q", got, want)
	}
}

func TestStateBaseDirUsesRuntimeDirWithoutHome(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", "")
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	got, err := StateBaseDir()
	if err != nil {
		t.Fatalf("StateBaseDir returned error: %v", err)
	}
	if want := filepath.Join(runtimeDir, "vbook"); got != want {
		t.Fatalf("StateBaseDir() = %q, want %q", got, want)
	}
}
