package browser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/ahrdadan/rodplus/internal/element"
)

// PageOptions represents options for page operations
type PageOptions struct {
	Timeout     time.Duration     `json:"timeout"`
	WaitForLoad bool              `json:"wait_for_load"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Cookies     []CookieParam     `json:"cookies,omitempty"`
	Proxy       string            `json:"proxy,omitempty"`
	// SyntheticEvents makes element actions dispatch DOM events by script.
	SyntheticEvents bool `json:"synthetic_events,omitempty"`
}

// DefaultPageOptions returns default page options
func DefaultPageOptions() PageOptions {
	return PageOptions{
		Timeout:     30 * time.Second,
		WaitForLoad: true,
	}
}

// CookieParam represents cookie parameters sent in requests.
type CookieParam struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	URL      string `json:"url,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
}

// Target locates one element: the first match of Selector on the page at URL.
type Target struct {
	URL      string `json:"url"`
	Selector string `json:"selector"`
	// XPath treats Selector as an xpath expression instead of CSS.
	XPath   bool        `json:"xpath,omitempty"`
	Options PageOptions `json:"options"`
}

// Validate checks the target has a usable URL and a selector.
func (t Target) Validate() error {
	if t.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(t.URL)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("invalid url %q", t.URL)
	}
	if t.Selector == "" {
		return fmt.Errorf("selector is required")
	}
	return nil
}

func (t Target) find(page *rod.Page, opts ...element.Option) (*element.Element, error) {
	if t.XPath {
		return element.FindX(page, t.Selector, opts...)
	}
	return element.Find(page, t.Selector, opts...)
}

type pageOpener interface {
	OpenPage(ctx context.Context, url string, opts PageOptions) (*rod.Page, func(), error)
}

var _ pageOpener = (*Manager)(nil)

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// preparePage applies options, navigates and optionally waits for load.
func preparePage(page *rod.Page, targetURL string, opts PageOptions) error {
	if err := applyPageOptions(page, targetURL, opts); err != nil {
		return err
	}
	if err := page.Navigate(targetURL); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", targetURL, err)
	}
	if opts.WaitForLoad {
		if err := page.WaitLoad(); err != nil {
			return fmt.Errorf("failed to wait for page load: %w", err)
		}
	}
	return nil
}

func applyPageOptions(page *rod.Page, targetURL string, opts PageOptions) error {
	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			return fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	if len(opts.Headers) > 0 {
		if _, err := page.SetExtraHeaders(headerPairs(opts.Headers)); err != nil {
			return fmt.Errorf("failed to set headers: %w", err)
		}
	}

	if len(opts.Cookies) > 0 {
		if err := page.SetCookies(toCookieParams(targetURL, opts.Cookies)); err != nil {
			return fmt.Errorf("failed to set cookies: %w", err)
		}
	}

	return nil
}

func headerPairs(headers map[string]string) []string {
	pairs := make([]string, 0, len(headers)*2)
	for key, value := range headers {
		pairs = append(pairs, key, value)
	}
	return pairs
}

// toCookieParams scopes cookies without a URL or domain to the target page.
func toCookieParams(targetURL string, cookies []CookieParam) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	parsedURL, _ := url.Parse(targetURL)

	for _, cookie := range cookies {
		param := &proto.NetworkCookieParam{
			Name:     cookie.Name,
			Value:    cookie.Value,
			URL:      cookie.URL,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HTTPOnly: cookie.HTTPOnly,
		}

		if cookie.Expires > 0 {
			param.Expires = proto.TimeSinceEpoch(cookie.Expires)
		}

		if param.URL == "" && param.Domain == "" && parsedURL != nil {
			param.URL = parsedURL.String()
		}

		params = append(params, param)
	}

	return params
}

func noopCleanup() {}
