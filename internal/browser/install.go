package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/launcher"
)

// InstallChrome downloads a Chromium build for the current OS/arch and
// returns the binary path. A zero revision uses rod's pinned default.
func InstallChrome(ctx context.Context, revision int) (string, error) {
	downloader := launcher.NewBrowser()
	downloader.Context = ctx
	if revision > 0 {
		downloader.Revision = revision
	}

	path, err := downloader.Get()
	if err != nil {
		return "", fmt.Errorf("failed to download chrome: %w", err)
	}
	return path, nil
}
