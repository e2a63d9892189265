package session

import (
	"errors"
	"testing"
)

func TestGuardRejectsSecondRunForSameProject(t *testing.T) {
	t.Parallel()

	var g Guard
	release, err := g.Acquire("/work/a", "run_1")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if _, err := g.Acquire("/work/a", "run_2"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := g.Acquire("/work/b", "run_3"); err != nil {
		t.Fatalf("other project should be admitted: %v", err)
	}

	release()
	release()
	if _, ok := g.Active("/work/a"); ok {
		t.Fatal("expected /work/a to be released")
	}
	if _, err := g.Acquire("/work/a", "run_4"); err != nil {
		t.Fatalf("Acquire after release returned error: %v", err)
	}
}

func TestNewIDFallsBackWhenTypeIDFails(t *testing.T) {
	orig := generateTypeID
	t.Cleanup(func() { generateTypeID = orig })
	generateTypeID = func(string) (string, error) { return "", errors.New("boom") }

	id := newRunID()
	if len(id) <= len("run-") || id[:4] != "run-" {
		t.Fatalf("unexpected fallback id %q", id)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	if got := StateAwaitingResponse.String(); got != "awaiting_response" {
		t.Fatalf("String() = %q", got)
	}
	if !StateAborted.Terminal() || StateDecoding.Terminal() {
		t.Fatal("unexpected Terminal results")
	}
}
