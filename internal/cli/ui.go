package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"golang.org/x/term"

	"github.com/vbook-dev/vbook/internal/session"
)

const (
	sgrTitle = "1;36"
	sgrIcon  = "1;33"
	sgrField = "38;5;252"
	sgrDim   = "38;5;246"
	sgrPass  = "1;32"
	sgrWarn  = "1;33"
	sgrFail  = "1;31"
)

// painter wraps text in SGR sequences when color output is on.
type painter bool

func (p painter) paint(code, s string) string {
	if !p {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

type bannerField struct {
	Key   string
	Value string
}

// renderBanner is printed to a terminal before a run starts.
func renderBanner(title string, fields []bannerField, color bool) string {
	p := painter(color)
	var out strings.Builder
	fmt.Fprintf(&out, "\n%s %s\n", p.paint(sgrIcon, "📖"), p.paint(sgrTitle, title))
	writeFields(&out, p, sgrField, fields)
	out.WriteByte('\n')
	return out.String()
}

// writeFields writes indented "key: value" lines, skipping blank ones.
func writeFields(out *strings.Builder, p painter, code string, fields []bannerField) {
	for _, f := range fields {
		key, value := strings.TrimSpace(f.Key), strings.TrimSpace(f.Value)
		if key == "" || value == "" {
			continue
		}
		out.WriteString("   ")
		out.WriteString(p.paint(code, key+": "+value))
		out.WriteByte('\n')
	}
}

// renderReport formats a finished run for the terminal. Empty log and
// exception sections are omitted.
func renderReport(report *session.Report, color bool) string {
	p := painter(color)
	resp := report.Response
	elapsed := report.Elapsed.Round(time.Millisecond)

	var out strings.Builder
	if report.Succeeded() {
		out.WriteString(p.paint(sgrPass, fmt.Sprintf("✓ %s succeeded (status %d) in %s", report.Script, resp.Status, elapsed)))
	} else {
		out.WriteString(p.paint(sgrFail, fmt.Sprintf("✗ %s failed (status %d) in %s", report.Script, resp.Status, elapsed)))
	}
	out.WriteByte('\n')
	writeFields(&out, p, sgrDim, []bannerField{
		{Key: "run", Value: report.RunID},
		{Key: "app", Value: report.Target.String()},
		{Key: "callback", Value: report.Callback},
	})

	writeSection(&out, p, "result", resp.PrettyResult(), sgrTitle)
	writeSection(&out, p, "log", resp.Log, sgrWarn)
	writeSection(&out, p, "exception", resp.Exception, sgrFail)
	return out.String()
}

func writeSection(out *strings.Builder, p painter, title, body, code string) {
	body = strings.TrimRight(body, "\n")
	if strings.TrimSpace(body) == "" {
		return
	}
	out.WriteByte('\n')
	out.WriteString(p.paint(code, title+":"))
	out.WriteByte('\n')
	out.WriteString(body)
	out.WriteByte('\n')
}

var checkGlyphs = map[checkStatus]struct{ glyph, code string }{
	statusPass: {"✓", sgrPass},
	statusWarn: {"!", sgrWarn},
	statusFail: {"✗", sgrFail},
}

// renderDoctorReport lists each check followed by a pass/warn/fail tally.
func renderDoctorReport(target string, checks []doctorCheck, color bool) string {
	p := painter(color)
	var out strings.Builder
	out.WriteString(p.paint(sgrTitle, fmt.Sprintf("doctor report (%s)", target)))
	out.WriteByte('\n')

	counts := map[checkStatus]int{}
	for _, check := range checks {
		counts[check.Status]++
		g := checkGlyphs[check.Status]
		status := p.paint(g.code, fmt.Sprintf("%s [%s]", g.glyph, check.Status))
		fmt.Fprintf(&out, "%s %s: %s\n", status, check.Name, check.Message)
	}

	summary := fmt.Sprintf("summary: %d pass, %d warn, %d fail", counts[statusPass], counts[statusWarn], counts[statusFail])
	out.WriteString(p.paint(sgrDim, summary))
	out.WriteByte('\n')
	return out.String()
}

func shouldShowBanner(stderr *os.File) bool {
	return stderr != nil && term.IsTerminal(int(stderr.Fd()))
}

func shouldUseANSI(f *os.File) bool {
	if noColorRequested() {
		return false
	}
	if forceColorRequested() {
		return true
	}
	return f != nil && term.IsTerminal(int(f.Fd()))
}

func applyPolishedLoggerStyles(logger *log.Logger, color bool) {
	if logger == nil || !color {
		return
	}

	styles := log.DefaultStyles()
	styles.Key = styles.Key.Bold(true).Foreground(lipgloss.Color("75"))
	styles.Separator = styles.Separator.Foreground(lipgloss.Color("240"))
	styles.Levels[log.DebugLevel] = styles.Levels[log.DebugLevel].Bold(true).Foreground(lipgloss.Color("45"))
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].Bold(true).Foreground(lipgloss.Color("48"))
	styles.Levels[log.WarnLevel] = styles.Levels[log.WarnLevel].Bold(true).Foreground(lipgloss.Color("214"))
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].Bold(true).Foreground(lipgloss.Color("203"))
	logger.SetStyles(styles)
}

func effectiveLogLevel(rawLevel string) string {
	if level := strings.TrimSpace(strings.ToLower(rawLevel)); level != "" {
		return level
	}
	return "info"
}

// noColorRequested follows no-color.org and the CLICOLOR convention.
func noColorRequested() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}
	return strings.TrimSpace(os.Getenv("CLICOLOR")) == "0"
}

func forceColorRequested() bool {
	value := strings.TrimSpace(os.Getenv("CLICOLOR_FORCE"))
	if value == "" {
		return false
	}
	parsed, err := strconv.Atoi(value)
	return err != nil || parsed != 0
}
