// Package remoteexec performs the single request/response exchange with the
// runtime app over a raw TCP socket.
package remoteexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vbook-dev/vbook/internal/endpoint"
	"github.com/vbook-dev/vbook/internal/wire"
)

// ErrTimeout is returned when the runtime app does not close the connection
// before the context deadline.
var ErrTimeout = errors.New("timed out waiting for runtime app response")

const readChunkSize = 4096

// TransportError wraps a socket failure talking to the runtime app.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("runtime app %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client talks to the runtime app.
type Client struct {
	Dial       func(ctx context.Context, network, addr string) (net.Conn, error)
	HTTPClient *http.Client
	Logger     *log.Logger
}

// New returns a client using the default dialer.
func New(logger *log.Logger) *Client {
	dialer := &net.Dialer{KeepAlive: 30 * time.Second}
	return &Client{
		Dial:       dialer.DialContext,
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// Hooks observe the progress of one exchange. Nil hooks are skipped.
type Hooks struct {
	// OnWritten runs once the request has been fully written.
	OnWritten func()
	// OnClose runs exactly once when the connection ends, on success and on
	// every error path.
	OnClose func()
}

// Exchange writes request to the runtime app and returns every byte received
// until the peer closes the connection.
func (c *Client) Exchange(ctx context.Context, target endpoint.Target, request []byte, hooks Hooks) ([]byte, error) {
	var closeOnce sync.Once
	finish := func() {
		closeOnce.Do(func() {
			if hooks.OnClose != nil {
				hooks.OnClose()
			}
		})
	}
	defer finish()

	addr := target.HostPort()
	dial := c.Dial
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Op: "dial", Addr: addr, Err: err}
	}
	c.debug("connected to runtime app", "addr", addr)

	var connOnce sync.Once
	closeConn := func() {
		connOnce.Do(func() { _ = conn.Close() })
	}
	defer closeConn()

	// Closing the socket is the only way to unblock a pending read.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-watchDone:
		}
	}()

	if _, err := conn.Write(request); err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Op: "write", Addr: addr, Err: err}
	}
	if hooks.OnWritten != nil {
		hooks.OnWritten()
	}

	var received []byte
	buf := make([]byte, readChunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			received = append(received, buf[:n]...)
		}
		if err == nil && n == 0 {
			c.debug("empty read from runtime app, closing connection", "addr", addr)
			closeConn()
			break
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if ctxErr := contextError(ctx); ctxErr != nil {
			return received, ctxErr
		}
		return received, &TransportError{Op: "read", Addr: addr, Err: err}
	}

	closeConn()
	finish()
	c.debug("disconnected from runtime app", "addr", addr, "bytes", len(received))
	return received, nil
}

// Install sends the plugin bundle to the runtime app's install endpoint.
func (c *Client) Install(ctx context.Context, target endpoint.Target, plugin any) error {
	payload, err := wire.EncodePayload(plugin)
	if err != nil {
		return fmt.Errorf("encode plugin data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String()+wire.InstallPath, nil)
	if err != nil {
		return fmt.Errorf("create install request: %w", err)
	}
	req.Header.Set(wire.DataHeader, payload)

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return ctxErr
		}
		return &TransportError{Op: "install", Addr: target.HostPort(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &TransportError{Op: "install read", Addr: target.HostPort(), Err: err}
	}
	c.debug("install response", "http_status", resp.StatusCode, "body_bytes", len(body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("install request failed with HTTP status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return checkInstallBody(body)
}

// checkInstallBody inspects the optional JSON reply. Bodies that are not JSON
// are treated as success.
func checkInstallBody(body []byte) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	var reply struct {
		Status    *int   `json:"status"`
		Exception string `json:"exception"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil
	}
	if reply.Status != nil && *reply.Status != 0 {
		if reply.Exception != "" {
			return fmt.Errorf("installation failed with status %d: %s", *reply.Status, reply.Exception)
		}
		return fmt.Errorf("installation failed with status %d", *reply.Status)
	}
	return nil
}

func contextError(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case ctx.Err() != nil:
		return fmt.Errorf("runtime app exchange canceled: %w", ctx.Err())
	}
	return nil
}

func (c *Client) debug(msg string, keyvals ...any) {
	if c.Logger != nil {
		c.Logger.Debug(msg, keyvals...)
	}
}
