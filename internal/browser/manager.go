package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/ahrdadan/rodplus/internal/element"
)

// Options configures a Manager.
type Options struct {
	// BinPath is the Chrome binary to launch. Empty lets rod pick or download one.
	BinPath string
	// RemoteURL connects to an existing CDP endpoint instead of launching.
	RemoteURL string
	Headless  bool
	NoSandbox bool
	Logger    *zap.Logger
}

// Manager owns one browser connection. It launches Chrome through the rod
// launcher, or attaches to a remote endpoint, and restarts once when the
// connection drops.
type Manager struct {
	opts      Options
	logger    *zap.Logger
	mu        sync.Mutex
	restartMu sync.Mutex
	launcher  *launcher.Launcher
	browser   *rod.Browser
	wsURL     string
	running   bool
}

// NewManager creates a manager. Nothing starts until Start or the first page.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		opts:   opts,
		logger: logger.Named("browser"),
	}
}

// Start launches or attaches to the browser.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	if m.opts.RemoteURL != "" {
		return m.connectRemote()
	}

	l := m.newLauncher()
	wsURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("failed to connect to chrome: %w", err)
	}

	m.launcher = l
	m.browser = browser
	m.wsURL = wsURL
	m.running = true

	m.logger.Info("Chrome started", zap.String("endpoint", wsURL))
	return nil
}

func (m *Manager) connectRemote() error {
	wsURL, err := launcher.ResolveURL(m.opts.RemoteURL)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", m.opts.RemoteURL, err)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	m.browser = browser
	m.wsURL = wsURL
	m.running = true

	m.logger.Info("Connected to remote browser", zap.String("endpoint", wsURL))
	return nil
}

func (m *Manager) newLauncher() *launcher.Launcher {
	l := launcher.New().Headless(m.opts.Headless)
	if m.opts.BinPath != "" {
		l = l.Bin(m.opts.BinPath)
	}
	if m.opts.NoSandbox {
		l = l.NoSandbox(true)
	}
	return l
}

// Stop closes the connection and kills a launched browser. A remote browser
// is only disconnected.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Warn("Failed to close browser", zap.Error(err))
		}
	}

	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher.Cleanup()
	}

	m.launcher = nil
	m.browser = nil
	m.wsURL = ""
	m.running = false

	m.logger.Info("Browser stopped")
	return nil
}

// IsRunning reports whether the browser is connected.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetEndpoint returns the DevTools websocket URL, "" when stopped.
func (m *Manager) GetEndpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wsURL
}

// NewPage creates a blank page, starting the browser if needed.
func (m *Manager) NewPage(ctx context.Context) (*rod.Page, error) {
	if err := m.ensureStarted(); err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	page, err := m.currentBrowser().Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		if !isConnectionError(err) {
			return nil, fmt.Errorf("failed to create new page: %w", err)
		}

		m.logger.Warn("Browser connection lost, restarting", zap.Error(err))
		if restartErr := m.restart(); restartErr != nil {
			return nil, fmt.Errorf("failed to restart browser after connection error: %w", restartErr)
		}

		page, err = m.currentBrowser().Context(ctx).Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, fmt.Errorf("failed to create new page: %w", err)
		}
	}

	return page, nil
}

func (m *Manager) currentBrowser() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

// OpenPage creates a page, applies options, and navigates to the URL. The
// returned cleanup must run after the page is closed.
func (m *Manager) OpenPage(ctx context.Context, url string, opts PageOptions) (*rod.Page, func(), error) {
	if opts.Proxy != "" {
		if m.opts.RemoteURL != "" {
			return nil, noopCleanup, fmt.Errorf("proxy is not supported on remote browsers")
		}
		return m.openPageWithProxy(ctx, url, opts)
	}

	page, err := m.NewPage(ctx)
	if err != nil {
		return nil, noopCleanup, err
	}

	if err := preparePage(page, url, opts); err != nil {
		page.Close()
		return nil, noopCleanup, err
	}
	return page, noopCleanup, nil
}

// openPageWithProxy runs the page in a dedicated browser since the proxy is
// a launch flag.
func (m *Manager) openPageWithProxy(ctx context.Context, url string, opts PageOptions) (*rod.Page, func(), error) {
	l := m.newLauncher().Proxy(opts.Proxy)

	wsURL, err := l.Launch()
	if err != nil {
		return nil, noopCleanup, fmt.Errorf("failed to launch chrome with proxy: %w", err)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, noopCleanup, fmt.Errorf("failed to connect to chrome with proxy: %w", err)
	}

	cleanup := func() {
		if err := browser.Close(); err != nil {
			m.logger.Warn("Failed to close proxy browser", zap.Error(err))
		}
		l.Kill()
		l.Cleanup()
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		cleanup()
		return nil, noopCleanup, fmt.Errorf("failed to create new page: %w", err)
	}

	if err := preparePage(page, url, opts); err != nil {
		page.Close()
		cleanup()
		return nil, noopCleanup, err
	}
	return page, cleanup, nil
}

func (m *Manager) ensureStarted() error {
	if m.IsRunning() {
		return nil
	}

	m.restartMu.Lock()
	defer m.restartMu.Unlock()

	if m.IsRunning() {
		return nil
	}
	return m.Start()
}

func (m *Manager) restart() error {
	m.restartMu.Lock()
	defer m.restartMu.Unlock()

	if err := m.Stop(); err != nil {
		m.logger.Warn("Failed to stop browser before restart", zap.Error(err))
	}
	return m.Start()
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "eof")
}

// InspectElement snapshots the element matched by target.
func (m *Manager) InspectElement(ctx context.Context, target Target) (*ElementInfo, error) {
	var info *ElementInfo
	err := m.withElement(ctx, target, func(el *element.Element) error {
		var err error
		info, err = Snapshot(el)
		return err
	})
	return info, err
}

// TraverseElement walks query from the element matched by target.
func (m *Manager) TraverseElement(ctx context.Context, target Target, query TraverseQuery) ([]ElementInfo, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	var infos []ElementInfo
	err := m.withElement(ctx, target, func(el *element.Element) error {
		sel, err := query.Apply(el)
		if err != nil {
			return err
		}
		infos, err = SnapshotAll(sel)
		return err
	})
	return infos, err
}

// RunSteps applies steps to the element matched by target.
func (m *Manager) RunSteps(ctx context.Context, target Target, steps []Step, progress ProgressFunc) (*RunResult, error) {
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}

	var result *RunResult
	err := m.withElement(ctx, target, func(el *element.Element) error {
		var err error
		result, err = Run(ctx, el, steps, progress)
		return err
	})
	return result, err
}

func (m *Manager) withElement(ctx context.Context, target Target, fn func(*element.Element) error) error {
	if err := target.Validate(); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, target.Options.Timeout)
	defer cancel()

	page, cleanup, err := m.OpenPage(ctx, target.URL, target.Options)
	if err != nil {
		return err
	}
	defer cleanup()
	defer page.Close()

	el, err := target.find(page, m.elementOptions(target.Options)...)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", target.Selector, err)
	}
	return fn(el)
}

func (m *Manager) elementOptions(opts PageOptions) []element.Option {
	eopts := []element.Option{element.WithLogger(m.logger)}
	if opts.SyntheticEvents {
		eopts = append(eopts, element.WithSyntheticEvents())
	}
	return eopts
}
