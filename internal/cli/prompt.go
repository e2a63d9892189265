package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/vbook-dev/vbook/internal/session"
)

// isInteractive reports whether r is a terminal the operator can answer
// prompts on.
func isInteractive(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok || f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// newTargetPrompt asks for the runtime app address on out and reads one line
// from in per attempt.
func newTargetPrompt(in io.Reader, out io.Writer) session.PromptFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, previous error) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if previous != nil {
			if _, err := fmt.Fprintf(out, "%v\n", previous); err != nil {
				return "", err
			}
		}
		if _, err := io.WriteString(out, "Runtime app address (e.g. 192.168.1.7 or 192.168.1.7:8080): "); err != nil {
			return "", err
		}
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
