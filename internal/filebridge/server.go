// Package filebridge serves project files to the runtime app while a script
// test is running.
package filebridge

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/net/netutil"
)

// DefaultMaxConns caps concurrent runtime app connections.
const DefaultMaxConns = 32

// Config configures a bridge server.
type Config struct {
	// ProjectDir is the project root. Files are resolved against its parent
	// because the runtime app sends roots of the form "<project>/src".
	ProjectDir string
	ListenAddr string
	MaxConns   int
	Logger     *log.Logger
}

// Server is the local file bridge HTTP server.
type Server struct {
	baseDir    string
	logger     *log.Logger
	maxConns   int
	httpServer *http.Server

	mu       sync.Mutex
	addr     string
	listener net.Listener
	stopOnce sync.Once
	stopErr  error
}

var listenTCP = func(addr string) (net.Listener, error) {
	return net.Listen("tcp4", addr)
}

// New creates a bridge server. Call Listen and Serve, or Start, to begin
// accepting connections.
func New(cfg Config) (*Server, error) {
	if cfg.ProjectDir == "" {
		return nil, errors.New("file bridge requires a project directory")
	}
	projectDir, err := filepath.Abs(cfg.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project directory %q: %w", cfg.ProjectDir, err)
	}
	addr := cfg.ListenAddr
	if addr == "" {
		addr = "0.0.0.0:0"
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}

	s := &Server{
		baseDir:  filepath.Dir(projectDir),
		logger:   cfg.Logger,
		maxConns: maxConns,
		addr:     addr,
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// ListenAddr formats the all-interfaces bind address for port.
func ListenAddr(port int) string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(port))
}

// Handler returns the file-serving handler.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleFile)
}

// Listen binds the listener. Once it returns, the runtime app can connect.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("file bridge already listening")
	}

	ln, err := listenTCP(s.addr)
	if err != nil {
		if isAddrInUse(err) {
			return fmt.Errorf("file bridge port %s is already in use: %w", s.addr, err)
		}
		return fmt.Errorf("file bridge listen on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()
	s.listener = &onceCloseListener{Listener: netutil.LimitListener(ln, s.maxConns)}
	if s.logger != nil {
		s.logger.Debug("file bridge listening", "addr", s.addr, "base_dir", s.baseDir)
	}
	return nil
}

// Serve accepts connections until Stop is called. It returns nil after a
// clean stop.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("file bridge is not listening")
	}

	err := s.httpServer.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	if s.logger != nil {
		s.logger.Error("file bridge serve failed", "error", err)
	}
	return err
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	go func() {
		_ = s.Serve()
	}()
	return nil
}

// Addr returns the listener address. Only meaningful after Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop closes the listener and any in-flight connections. Only the first
// call has an effect.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		ln := s.listener
		addr := s.addr
		s.mu.Unlock()

		s.stopErr = s.httpServer.Close()
		if ln != nil {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) && s.stopErr == nil {
				s.stopErr = err
			}
		}
		if s.logger != nil {
			s.logger.Debug("file bridge stopped", "addr", addr)
		}
	})
	return s.stopErr
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	file := query.Get("file")
	root := query.Get("root")
	if file == "" || root == "" {
		http.Error(w, "Missing required query parameters: file and root", http.StatusBadRequest)
		return
	}

	path, err := ResolvePath(s.baseDir, root, file)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rejected file request", "root", root, "file", file, "error", err)
		}
		http.Error(w, "forbidden: "+err.Error(), http.StatusForbidden)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("file read failed", "path", path, "error", err)
		}
		http.Error(w, "Error reading the file.", http.StatusInternalServerError)
		return
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Length", strconv.Itoa(len(encoded)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(encoded))

	if s.logger != nil {
		s.logger.Debug("served file", "path", path, "bytes", len(data), "remote", r.RemoteAddr)
	}
}

type onceCloseListener struct {
	net.Listener
	once sync.Once
	err  error
}

func (l *onceCloseListener) Close() error {
	l.once.Do(func() {
		l.err = l.Listener.Close()
	})
	return l.err
}
