// Package session drives one script run end to end: it resolves the runtime
// app and callback addresses, serves project files through the bridge while
// the request is in flight, and decodes the reply.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/vbook-dev/vbook/internal/bundle"
	"github.com/vbook-dev/vbook/internal/endpoint"
	"github.com/vbook-dev/vbook/internal/filebridge"
	"github.com/vbook-dev/vbook/internal/localaddr"
	"github.com/vbook-dev/vbook/internal/project"
	"github.com/vbook-dev/vbook/internal/remoteexec"
	"github.com/vbook-dev/vbook/internal/statestore"
	"github.com/vbook-dev/vbook/internal/wire"
)

// DefaultTimeout bounds one exchange with the runtime app.
const DefaultTimeout = 60 * time.Second

// Bridge serves project files to the runtime app for the lifetime of a run.
type Bridge interface {
	Listen() error
	Serve() error
	Stop() error
}

// BridgeFactory creates the bridge for projectDir listening on port.
type BridgeFactory func(projectDir string, port int) (Bridge, error)

// Client is the runtime app transport.
type Client interface {
	Exchange(ctx context.Context, target endpoint.Target, request []byte, hooks remoteexec.Hooks) ([]byte, error)
	Install(ctx context.Context, target endpoint.Target, plugin any) error
}

// AddressResolver picks the local callback address for a target host.
type AddressResolver interface {
	Resolve(targetHost string) (localaddr.Candidate, error)
}

// PromptFunc asks the operator for a runtime app address. previous is the
// validation error of the last answer, nil on the first call.
type PromptFunc func(ctx context.Context, previous error) (string, error)

// ErrNoTarget is returned when no runtime app address is known and none can
// be prompted for.
var ErrNoTarget = errors.New("no runtime app address configured (pass --app-url)")

const maxPromptAttempts = 3

type Config struct {
	Store     statestore.Store
	Client    Client
	Resolver  AddressResolver
	NewBridge BridgeFactory
	Guard     *Guard
	Timeout   time.Duration
	// DefaultTarget is used when a project has no remembered address.
	DefaultTarget string
	Prompt        PromptFunc
	OnState       func(runID string, state State)
	Logger        *log.Logger
}

// Orchestrator runs test and install sessions.
type Orchestrator struct {
	store         statestore.Store
	client        Client
	resolver      AddressResolver
	newBridge     BridgeFactory
	guard         *Guard
	timeout       time.Duration
	defaultTarget string
	prompt        PromptFunc
	onState       func(runID string, state State)
	logger        *log.Logger
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("session requires a state store")
	}
	if cfg.Client == nil {
		return nil, errors.New("session requires a runtime app client")
	}
	o := &Orchestrator{
		store:         cfg.Store,
		client:        cfg.Client,
		resolver:      cfg.Resolver,
		newBridge:     cfg.NewBridge,
		guard:         cfg.Guard,
		timeout:       cfg.Timeout,
		defaultTarget: cfg.DefaultTarget,
		prompt:        cfg.Prompt,
		onState:       cfg.OnState,
		logger:        cfg.Logger,
	}
	if o.resolver == nil {
		o.resolver = localaddr.New(cfg.Logger)
	}
	if o.newBridge == nil {
		o.newBridge = FileBridge(filebridge.DefaultMaxConns, cfg.Logger)
	}
	if o.guard == nil {
		o.guard = &Guard{}
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}
	return o, nil
}

// FileBridge returns a factory producing filebridge servers bound to every
// interface.
func FileBridge(maxConns int, logger *log.Logger) BridgeFactory {
	return func(projectDir string, port int) (Bridge, error) {
		var bridgeLogger *log.Logger
		if logger != nil {
			bridgeLogger = logger.With("subsystem", "filebridge")
		}
		srv, err := filebridge.New(filebridge.Config{
			ProjectDir: projectDir,
			ListenAddr: filebridge.ListenAddr(port),
			MaxConns:   maxConns,
			Logger:     bridgeLogger,
		})
		if err != nil {
			return nil, err
		}
		return srv, nil
	}
}

// TestRequest describes one script run.
type TestRequest struct {
	ScriptPath string
	// Input is the raw operator input. Nil reuses the input remembered for
	// the script.
	Input *string
	// Target overrides and replaces the remembered runtime app address.
	Target string
}

// Report is the outcome of a run that reached the runtime app and got a
// decodable reply.
type Report struct {
	RunID    string
	Project  string
	Script   string
	Input    wire.Input
	Target   endpoint.Target
	Callback string
	Response *wire.Response
	Elapsed  time.Duration
}

// Succeeded reports whether the script ran without error.
func (r *Report) Succeeded() bool {
	return r != nil && r.Response != nil && r.Response.Succeeded()
}

type run struct {
	id     string
	logger *log.Logger
	state  State
	notify func(runID string, state State)
}

func (r *run) transition(next State) {
	r.logger.Debug("session state", "from", r.state, "to", next)
	r.state = next
	if r.notify != nil {
		r.notify(r.id, next)
	}
}

func (r *run) abort(err error) error {
	r.logger.Debug("session aborted", "state", r.state, "err", err)
	r.transition(StateAborted)
	return err
}

// Test executes the script at req.ScriptPath on the runtime app.
func (o *Orchestrator) Test(ctx context.Context, req TestRequest) (*Report, error) {
	started := time.Now()
	r := &run{id: newRunID(), notify: o.onState}
	r.logger = o.logger.With("run_id", r.id)
	r.transition(StateIdle)

	p, err := project.LoadForScript(req.ScriptPath)
	if err != nil {
		return nil, r.abort(err)
	}
	release, err := o.guard.Acquire(p.Identity(), r.id)
	if err != nil {
		return nil, r.abort(err)
	}
	defer release()

	scriptPath, err := filepath.Abs(req.ScriptPath)
	if err != nil {
		return nil, r.abort(fmt.Errorf("resolve script path: %w", err))
	}
	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, r.abort(fmt.Errorf("read script: %w", err))
	}
	scriptName := filepath.Base(scriptPath)
	input, err := o.resolveInput(ctx, p, scriptName, req.Input)
	if err != nil {
		return nil, r.abort(err)
	}

	r.transition(StateAddressResolving)
	target, err := o.resolveTarget(ctx, p, req.Target)
	if err != nil {
		return nil, r.abort(err)
	}
	bridgePort, err := target.BridgePort()
	if err != nil {
		return nil, r.abort(err)
	}
	candidate, err := o.resolver.Resolve(target.Host)
	if err != nil {
		return nil, r.abort(err)
	}
	callback := localaddr.CallbackURL(candidate.IP, bridgePort)
	r.logger.Debug("callback address resolved", "interface", candidate.Interface, "callback", callback, "score", candidate.Score)

	request, err := wire.BuildTestRequest(target.Host, wire.ExecutionRequest{
		IP:       callback,
		Root:     p.SourceRoot(),
		Language: wire.Language,
		Script:   string(source),
		Input:    input,
	})
	if err != nil {
		return nil, r.abort(err)
	}

	r.transition(StateBridgeStarting)
	raw, err := o.exchangeWithBridge(ctx, r, p.Dir, bridgePort, target, request)
	if err != nil {
		return nil, r.abort(err)
	}

	r.transition(StateDecoding)
	resp, err := wire.DecodeResponse(raw)
	if err != nil {
		return nil, r.abort(err)
	}

	report := &Report{
		RunID:    r.id,
		Project:  p.Identity(),
		Script:   scriptName,
		Input:    input,
		Target:   target,
		Callback: callback,
		Response: resp,
		Elapsed:  time.Since(started),
	}
	r.logger.Info("script finished", "script", scriptName, "status", resp.Status, "elapsed", report.Elapsed.Round(time.Millisecond))
	r.transition(StateReported)
	return report, nil
}

// exchangeWithBridge runs the bridge for exactly the lifetime of the
// exchange. The bridge is stopped once, when the connection ends or on the
// first failure before that.
func (o *Orchestrator) exchangeWithBridge(ctx context.Context, r *run, projectDir string, port int, target endpoint.Target, request []byte) ([]byte, error) {
	bridge, err := o.newBridge(projectDir, port)
	if err != nil {
		return nil, fmt.Errorf("create file bridge: %w", err)
	}
	var stopOnce sync.Once
	stopBridge := func() {
		stopOnce.Do(func() {
			if err := bridge.Stop(); err != nil {
				r.logger.Warn("file bridge stop failed", "err", err)
			}
		})
	}
	defer stopBridge()

	if err := bridge.Listen(); err != nil {
		return nil, fmt.Errorf("start file bridge: %w", err)
	}
	r.logger.Debug("file bridge listening", "port", port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(bridge.Serve)

	exCtx, cancel := context.WithTimeout(gctx, o.timeout)
	defer cancel()

	r.transition(StateRequestSent)
	raw, exErr := o.client.Exchange(exCtx, target, request, remoteexec.Hooks{
		OnWritten: func() { r.transition(StateAwaitingResponse) },
		OnClose:   stopBridge,
	})
	stopBridge()

	if serveErr := g.Wait(); serveErr != nil {
		return nil, fmt.Errorf("file bridge: %w", serveErr)
	}
	if exErr != nil {
		return nil, exErr
	}
	return raw, nil
}

// Install uploads the project owning path to the runtime app as a debug
// extension.
func (o *Orchestrator) Install(ctx context.Context, path, targetOverride string) (endpoint.Target, error) {
	r := &run{id: newInstallID(), notify: o.onState}
	r.logger = o.logger.With("run_id", r.id)
	r.transition(StateIdle)

	p, err := project.LoadForScript(path)
	if err != nil {
		return endpoint.Target{}, r.abort(err)
	}
	release, err := o.guard.Acquire(p.Identity(), r.id)
	if err != nil {
		return endpoint.Target{}, r.abort(err)
	}
	defer release()

	plugin, err := bundle.PreparePluginData(p)
	if err != nil {
		return endpoint.Target{}, r.abort(fmt.Errorf("prepare plugin data: %w", err))
	}

	r.transition(StateAddressResolving)
	target, err := o.resolveTarget(ctx, p, targetOverride)
	if err != nil {
		return endpoint.Target{}, r.abort(err)
	}

	installCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	r.transition(StateRequestSent)
	if err := o.client.Install(installCtx, target, plugin); err != nil {
		return target, r.abort(err)
	}
	r.logger.Info("extension installed", "name", plugin.Name, "target", target.String())
	r.transition(StateReported)
	return target, nil
}
