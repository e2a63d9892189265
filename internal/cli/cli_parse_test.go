package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
)

func newParserForTest(t *testing.T, c *CLI) *kong.Kong {
	t.Helper()

	parser, err := kong.New(
		c,
		kong.Name("vbook"),
		kong.Vars{"version": "test"},
	)
	if err != nil {
		t.Fatalf("create parser: %v", err)
	}
	return parser
}

func TestTestCommandKeepsCommasInParams(t *testing.T) {
	c := &CLI{}
	parser := newParserForTest(t, c)

	if _, err := parser.Parse([]string{"test", "src/toc.js", "--params", "a, b", "--app-url", "192.168.1.7", "--timeout", "5s"}); err != nil {
		t.Fatalf("parse test returned error: %v", err)
	}
	if got := c.Test.Params; !got.Set || got.Value != "a, b" {
		t.Fatalf("expected params to stay unsplit, got %+v", got)
	}
	if got, want := c.Test.AppURL, "192.168.1.7"; got != want {
		t.Fatalf("unexpected app url: got %q want %q", got, want)
	}
	if got, want := c.Test.Timeout, 5*time.Second; got != want {
		t.Fatalf("unexpected timeout: got %s want %s", got, want)
	}
}

func TestTestCommandWithoutParamsReusesLastInput(t *testing.T) {
	c := &CLI{}
	parser := newParserForTest(t, c)

	if _, err := parser.Parse([]string{"test", "src/toc.js"}); err != nil {
		t.Fatalf("parse test returned error: %v", err)
	}
	if c.Test.Params.Set {
		t.Fatalf("expected params to be unset, got %+v", c.Test.Params)
	}
}

func TestTestCommandEmptyParamsIsAnInput(t *testing.T) {
	c := &CLI{}
	parser := newParserForTest(t, c)

	if _, err := parser.Parse([]string{"test", "src/toc.js", "--params", ""}); err != nil {
		t.Fatalf("parse test returned error: %v", err)
	}
	if !c.Test.Params.Set || c.Test.Params.Value != "" {
		t.Fatalf("expected empty params to be set, got %+v", c.Test.Params)
	}
}

func TestTestCommandRejectsRepeatedParams(t *testing.T) {
	c := &CLI{}
	parser := newParserForTest(t, c)

	_, err := parser.Parse([]string{"test", "src/toc.js", "--params", "a", "--params", "b"})
	if err == nil {
		t.Fatal("expected repeated --params to be rejected")
	}
	if !strings.Contains(err.Error(), "more than once") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTestCommandRequiresScript(t *testing.T) {
	c := &CLI{}
	parser := newParserForTest(t, c)

	_, err := parser.Parse([]string{"test"})
	if err == nil {
		t.Fatal("expected parse error for missing script")
	}
	if !strings.Contains(err.Error(), "<script>") {
		t.Fatalf("expected missing script parse error, got %v", err)
	}
}

func TestInstallAndBuildDefaultToCurrentDirectory(t *testing.T) {
	c := &CLI{}
	parser := newParserForTest(t, c)

	if _, err := parser.Parse([]string{"install"}); err != nil {
		t.Fatalf("parse install returned error: %v", err)
	}
	if got := c.Install.Path; got != "." {
		t.Fatalf("expected install path '.', got %q", got)
	}

	c = &CLI{}
	parser = newParserForTest(t, c)
	if _, err := parser.Parse([]string{"build"}); err != nil {
		t.Fatalf("parse build returned error: %v", err)
	}
	if got := c.Build.Path; got != "." {
		t.Fatalf("expected build path '.', got %q", got)
	}
}
