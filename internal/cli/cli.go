package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/vbook-dev/vbook/internal/bundle"
	"github.com/vbook-dev/vbook/internal/endpoint"
	"github.com/vbook-dev/vbook/internal/localaddr"
	"github.com/vbook-dev/vbook/internal/paths"
	"github.com/vbook-dev/vbook/internal/project"
	"github.com/vbook-dev/vbook/internal/remoteexec"
	"github.com/vbook-dev/vbook/internal/runtimeconfig"
	"github.com/vbook-dev/vbook/internal/session"
	"github.com/vbook-dev/vbook/internal/statestore"
	"github.com/vbook-dev/vbook/internal/wire"
)

type runtimeContext struct {
	CWD        string
	Stdout     *os.File
	Stderr     *os.File
	Stdin      io.Reader
	Config     runtimeconfig.Config
	ConfigPath string
}

type CLI struct {
	Version kong.VersionFlag `help:"Print version and exit"`

	Test    TestCommand    `cmd:"" help:"Run a script on the runtime app and print its result"`
	Install InstallCommand `cmd:"" help:"Install the extension on the runtime app in debug mode"`
	Build   BuildCommand   `cmd:"" help:"Package the extension into plugin.zip"`
	Doctor  DoctorCommand  `cmd:"" help:"Check the project, runtime app address and callback interfaces"`
	Config  ConfigCommand  `cmd:"" help:"Runtime configuration commands"`
}

type TestCommand struct {
	Script   string         `arg:"" help:"Script file to run, e.g. src/toc.js"`
	Params   optionalString `help:"Script input; comma separated values become one argument list. Reuses the last input when omitted."`
	AppURL   string         `name:"app-url" help:"Runtime app address (ip, ip:port or http://host:port); remembered per project"`
	Timeout  time.Duration  `help:"How long to wait for the runtime app (defaults to timeout_seconds from config)"`
	LogLevel string         `help:"Log level (debug|info|warn|error)"`
	StateDB  string         `name:"state-db" help:"Path of the state database"`
	JSON     bool           `help:"Print the result as JSON"`
}

// optionalString is a flag value that records whether it was given at all.
// An empty --params "" is a real input, distinct from an omitted flag.
type optionalString struct {
	Value string
	Set   bool
}

func (o *optionalString) Decode(ctx *kong.DecodeContext) error {
	if o.Set {
		return fmt.Errorf("--%s given more than once", ctx.Value.Name)
	}
	var value string
	if err := ctx.Scan.PopValueInto("value", &value); err != nil {
		return err
	}
	o.Value, o.Set = value, true
	return nil
}

type InstallCommand struct {
	Path     string        `arg:"" optional:"" default:"." help:"Project directory or any file inside it"`
	AppURL   string        `name:"app-url" help:"Runtime app address (ip, ip:port or http://host:port); remembered per project"`
	Timeout  time.Duration `help:"How long to wait for the runtime app (defaults to timeout_seconds from config)"`
	LogLevel string        `help:"Log level (debug|info|warn|error)"`
	StateDB  string        `name:"state-db" help:"Path of the state database"`
}

type BuildCommand struct {
	Path string `arg:"" optional:"" default:"." help:"Project directory or any file inside it"`
}

type exitCodeError struct {
	code int
	msg  string
}

func (e exitCodeError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("command failed with exit code %d", e.code)
}

func (e exitCodeError) ExitCode() int {
	return e.code
}

type hasExitCode interface {
	ExitCode() int
}

// Exit code for a runtime app that never answered, matching timeout(1).
const exitCodeTimeout = 124

var (
	openStateStore = func(ctx context.Context, path string) (statestore.Store, error) {
		return statestore.OpenSQLite(ctx, path)
	}
	newRuntimeClient = func(logger *log.Logger) session.Client {
		return remoteexec.New(logger)
	}
	newAddressResolver = func(cfg runtimeconfig.Config, logger *log.Logger) session.AddressResolver {
		r := localaddr.New(logger)
		r.PrefixOctets = cfg.Resolver.PrefixOctets
		r.Weights = localaddr.Weights{Private: cfg.Resolver.PrivateWeight, Prefix: cfg.Resolver.PrefixWeight}
		return r
	}
	newBridgeFactory = func(cfg runtimeconfig.Config, logger *log.Logger) session.BridgeFactory {
		return session.FileBridge(cfg.Bridge.MaxConns, logger)
	}
)

func Run(args []string, version string) error {
	cfg, cfgPath, err := runtimeconfig.Load()
	if err != nil {
		return err
	}

	runtimeCtx := &runtimeContext{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Stdin:      os.Stdin,
		Config:     cfg,
		ConfigPath: cfgPath,
	}

	cli := CLI{}
	parser, err := newParser(&cli, version)
	if err != nil {
		return err
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	runtimeCtx.CWD = cwd

	return ctx.Run(runtimeCtx)
}

func newParser(cli *CLI, version string) (*kong.Kong, error) {
	return kong.New(
		cli,
		kong.Name("vbook"),
		kong.Description("Develop, test and package vbook extensions against a running vbook app"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
}

func ExitCode(err error) int {
	var codeErr hasExitCode
	if errors.As(err, &codeErr) {
		return codeErr.ExitCode()
	}
	if errors.Is(err, remoteexec.ErrTimeout) {
		return exitCodeTimeout
	}
	return 1
}

func (c *TestCommand) Run(ctx *runtimeContext) error {
	logger, err := newLogger(firstNonEmpty(c.LogLevel, ctx.Config.LogLevel), "test")
	if err != nil {
		return err
	}
	color := shouldUseANSI(ctx.Stderr)
	applyPolishedLoggerStyles(logger, color)

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(runCtx, ctx, c.StateDB)
	if err != nil {
		return err
	}
	defer store.Close()

	orch, err := newOrchestrator(ctx, store, c.Timeout, logger)
	if err != nil {
		return err
	}

	req := session.TestRequest{
		ScriptPath: resolvePath(ctx.CWD, c.Script),
		Target:     c.AppURL,
	}
	if c.Params.Set {
		input := c.Params.Value
		req.Input = &input
	}

	if shouldShowBanner(ctx.Stderr) && !c.JSON {
		app := "not set"
		if p, err := project.LoadForScript(req.ScriptPath); err == nil {
			if raw, source := knownTarget(runCtx, store, ctx.Config, p.Identity(), c.AppURL); raw != "" {
				app = describeTarget(raw, source)
			}
		}
		_, _ = io.WriteString(ctx.Stderr, renderBanner("vbook test", []bannerField{
			{Key: "script", Value: req.ScriptPath},
			{Key: "app", Value: app},
			{Key: "log level", Value: effectiveLogLevel(firstNonEmpty(c.LogLevel, ctx.Config.LogLevel))},
		}, color))
	}

	report, err := orch.Test(runCtx, req)
	if err != nil {
		var decodeErr *wire.DecodeError
		if errors.As(err, &decodeErr) && decodeErr.Raw != "" {
			_, _ = fmt.Fprintf(ctx.Stdout, "raw response:\n%s\n", decodeErr.Raw)
		}
		return err
	}

	if c.JSON {
		if err := writeReportJSON(ctx.Stdout, report); err != nil {
			return err
		}
	} else if _, err := io.WriteString(ctx.Stdout, renderReport(report, shouldUseANSI(ctx.Stdout))); err != nil {
		return err
	}

	if !report.Succeeded() {
		return exitCodeError{code: 1, msg: fmt.Sprintf("script %s failed with status %d", report.Script, report.Response.Status)}
	}
	return nil
}

func (c *InstallCommand) Run(ctx *runtimeContext) error {
	logger, err := newLogger(firstNonEmpty(c.LogLevel, ctx.Config.LogLevel), "install")
	if err != nil {
		return err
	}
	applyPolishedLoggerStyles(logger, shouldUseANSI(ctx.Stderr))

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(runCtx, ctx, c.StateDB)
	if err != nil {
		return err
	}
	defer store.Close()

	orch, err := newOrchestrator(ctx, store, c.Timeout, logger)
	if err != nil {
		return err
	}
	target, err := orch.Install(runCtx, resolvePath(ctx.CWD, c.Path), c.AppURL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(ctx.Stdout, "installed on %s\n", target.String())
	return err
}

func (c *BuildCommand) Run(ctx *runtimeContext) error {
	p, err := project.LoadForScript(resolvePath(ctx.CWD, c.Path))
	if err != nil {
		return err
	}
	out, err := bundle.Build(p)
	if err != nil {
		return fmt.Errorf("build %s: %w", p.Name(), err)
	}
	_, err = fmt.Fprintf(ctx.Stdout, "built %s\n", out)
	return err
}

func newOrchestrator(ctx *runtimeContext, store statestore.Store, timeout time.Duration, logger *log.Logger) (*session.Orchestrator, error) {
	if timeout <= 0 {
		timeout = ctx.Config.Timeout()
	}
	cfg := session.Config{
		Store:         store,
		Client:        newRuntimeClient(logger.With("subsystem", "remoteexec")),
		Resolver:      newAddressResolver(ctx.Config, logger.With("subsystem", "localaddr")),
		NewBridge:     newBridgeFactory(ctx.Config, logger),
		Timeout:       timeout,
		DefaultTarget: ctx.Config.AppURL,
		Logger:        logger.With("subsystem", "session"),
	}
	if isInteractive(ctx.Stdin) {
		cfg.Prompt = newTargetPrompt(ctx.Stdin, ctx.Stderr)
	}
	return session.New(cfg)
}

func openStore(runCtx context.Context, ctx *runtimeContext, flagPath string) (statestore.Store, error) {
	path := firstNonEmpty(flagPath, ctx.Config.StateDB)
	if path == "" {
		var err error
		path, err = paths.StateDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve state database path: %w", err)
		}
	}
	return openStateStore(runCtx, path)
}

// knownTarget returns the runtime app address a run would use without
// prompting, and where it came from. Precedence matches the session:
// override, then the remembered address, then config.
func knownTarget(ctx context.Context, store statestore.Store, cfg runtimeconfig.Config, projectID, override string) (raw, source string) {
	if v := strings.TrimSpace(override); v != "" {
		return v, "--app-url"
	}
	if store != nil && projectID != "" {
		if v, ok, err := store.Get(ctx, projectID, statestore.TargetKey); err == nil && ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), "remembered"
		}
	}
	if v := strings.TrimSpace(cfg.AppURL); v != "" {
		return v, "config"
	}
	return "", ""
}

func describeTarget(raw, source string) string {
	if target, err := endpoint.Parse(raw); err == nil {
		raw = target.String()
	}
	return fmt.Sprintf("%s (%s)", raw, source)
}

func writeReportJSON(w io.Writer, report *session.Report) error {
	payload := map[string]any{
		"run_id":     report.RunID,
		"script":     report.Script,
		"target":     report.Target.String(),
		"callback":   report.Callback,
		"status":     report.Response.Status,
		"result":     report.Response.Result,
		"log":        report.Response.Log,
		"exception":  report.Response.Exception,
		"elapsed_ms": report.Elapsed.Milliseconds(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func resolvePath(base, p string) string {
	if p == "" {
		return base
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func newLogger(rawLevel, component string) (*log.Logger, error) {
	levelName := strings.TrimSpace(strings.ToLower(rawLevel))
	if levelName == "" {
		levelName = "info"
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", rawLevel, err)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:     level,
		Formatter: log.TextFormatter,
	})
	return logger.With("component", component), nil
}
