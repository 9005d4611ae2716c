// Package natsd connects to NATS with JetStream, starting a local
// nats-server process when nothing is listening at the configured URL.
package natsd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"
)

const (
	defaultURL          = "nats://127.0.0.1:4222"
	defaultStartTimeout = 10 * time.Second
	dialTimeout         = 2 * time.Second
	pollInterval        = 100 * time.Millisecond
)

// ErrNoServer is returned when NATS is unreachable and no server binary is
// configured to start one.
var ErrNoServer = errors.New("nats server unreachable")

// Config holds configuration for the NATS connection.
type Config struct {
	URL string
	// BinPath is the nats-server binary, looked up in PATH when relative.
	// Empty disables spawning.
	BinPath      string
	StoreDir     string
	StartTimeout time.Duration
	Logger       *zap.Logger
}

// Server manages the NATS connection and, when it started one, the local
// nats-server process.
type Server struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	output    *zapio.Writer
	nc        *nats.Conn
	js        jetstream.JetStream
	isRunning bool
}

// NewServer creates a new NATS server manager
func NewServer(cfg Config) *Server {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.StoreDir == "" {
		cfg.StoreDir = "./data/nats"
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		cfg:    cfg,
		logger: logger.Named("nats"),
	}
}

// Start connects to NATS, spawning nats-server with JetStream when the URL
// is not reachable.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	host, port, err := parseNatsURL(s.cfg.URL)
	if err != nil {
		return err
	}

	if isReachable(host, port) {
		s.logger.Info("Using running NATS server", zap.String("url", s.cfg.URL))
		if err := s.connect(); err != nil {
			return err
		}
		s.isRunning = true
		return nil
	}

	if s.cfg.BinPath == "" {
		return fmt.Errorf("%w at %s and no nats-server binary configured", ErrNoServer, s.cfg.URL)
	}

	if err := s.spawn(ctx, host, port); err != nil {
		return err
	}

	if err := waitReachable(ctx, host, port, s.cfg.StartTimeout); err != nil {
		s.kill()
		return err
	}

	if err := s.connect(); err != nil {
		s.kill()
		return err
	}

	s.isRunning = true
	s.logger.Info("NATS server started with JetStream", zap.String("url", s.cfg.URL))
	return nil
}

func (s *Server) spawn(ctx context.Context, host, port string) error {
	binPath, err := exec.LookPath(s.cfg.BinPath)
	if err != nil {
		return fmt.Errorf("failed to find nats-server binary: %w", err)
	}

	storeDir, err := filepath.Abs(s.cfg.StoreDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for store dir: %w", err)
	}
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	s.output = &zapio.Writer{Log: s.logger.Named("server"), Level: zapcore.DebugLevel}

	s.cmd = exec.CommandContext(ctx, binPath,
		"-js",
		"-sd", storeDir,
		"-a", host,
		"-p", port,
	)
	s.cmd.Stdout = s.output
	s.cmd.Stderr = s.output

	if err := s.cmd.Start(); err != nil {
		s.cmd = nil
		return fmt.Errorf("failed to start NATS server: %w", err)
	}

	s.logger.Info("Spawned nats-server", zap.String("bin", binPath), zap.Int("pid", s.cmd.Process.Pid))
	return nil
}

func (s *Server) kill() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	if err := s.cmd.Process.Kill(); err != nil {
		s.logger.Warn("Failed to kill NATS process", zap.Error(err))
	}
	_ = s.cmd.Wait()
	if s.output != nil {
		_ = s.output.Close()
		s.output = nil
	}
	s.cmd = nil
}

// Stop closes the connection and stops the spawned server, if any.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}

	s.kill()
	s.js = nil
	s.isRunning = false

	s.logger.Info("NATS stopped")
	return nil
}

// IsRunning returns true if NATS server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Spawned reports whether this Server started the nats-server process.
func (s *Server) Spawned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// GetConnection returns the NATS connection
func (s *Server) GetConnection() *nats.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nc
}

// GetJetStream returns the JetStream context
func (s *Server) GetJetStream() jetstream.JetStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.js
}

func (s *Server) connect() error {
	nc, err := nats.Connect(s.cfg.URL,
		nats.Name("rodplus"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	s.nc = nc
	s.js = js
	return nil
}

func isReachable(host, port string) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func waitReachable(ctx context.Context, host, port string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if isReachable(host, port) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("nats-server did not accept connections on %s: %w", net.JoinHostPort(host, port), ctx.Err())
		case <-ticker.C:
		}
	}
}

func parseNatsURL(natsURL string) (host, port string, err error) {
	u, err := url.Parse(natsURL)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid NATS URL format: %s", natsURL)
	}

	host, port = u.Hostname(), u.Port()
	if host == "" {
		return "", "", fmt.Errorf("invalid NATS URL format: %s", natsURL)
	}
	if port == "" {
		port = "4222"
	}
	return host, port, nil
}
