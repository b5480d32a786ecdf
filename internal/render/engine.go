package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/okibe/mailgram/internal/logger"
)

const (
	// how long the page gets to lay itself out before printing
	settleBudget = 60 * time.Second
	// how long the export itself may take on top of that
	exportBudget = 60 * time.Second
)

var chromiumCandidates = []string{
	"chromium",
	"chromium-browser",
	"google-chrome-stable",
	"google-chrome",
}

// Engine turns a local HTML file into paged PDF bytes. A positive
// settle budget gives the page virtual time to lay itself out before
// printing; zero prints immediately.
type Engine interface {
	ExportPDF(ctx context.Context, htmlPath string, settle time.Duration) ([]byte, error)
}

// ChromiumEngine shells out to a headless browser for printing. The
// browser is pointed at a dead loopback proxy, so remote resources
// referenced by a message can never be fetched during rendering.
type ChromiumEngine struct {
	binary string
}

// NewChromiumEngine resolves the browser binary. An explicit name wins;
// otherwise the usual distribution names are tried in order. A missing
// binary is only a warning here, every export will fail with a clear error.
func NewChromiumEngine(binary string) *ChromiumEngine {
	log := logger.GetLogger()

	if binary != "" {
		resolved, err := exec.LookPath(binary)
		if err != nil {
			log.Warnw("configured render engine binary not found",
				"binary", binary,
				"error", err)
			resolved = binary
		}
		return &ChromiumEngine{binary: resolved}
	}

	for _, candidate := range chromiumCandidates {
		if resolved, err := exec.LookPath(candidate); err == nil {
			return &ChromiumEngine{binary: resolved}
		}
	}

	log.Warnw("no chromium binary found in PATH, document rendering will fail")

	return &ChromiumEngine{}
}

func (e *ChromiumEngine) ExportPDF(ctx context.Context, htmlPath string, settle time.Duration) ([]byte, error) {
	if e.binary == "" {
		return nil, errors.New("no render engine binary available")
	}

	deadline := exportBudget + settle
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	outPath := htmlPath + ".pdf"
	defer os.Remove(outPath)

	args := []string{
		"--headless",
		"--disable-gpu",
		"--no-sandbox",
		"--no-first-run",
		"--hide-scrollbars",
		"--mute-audio",
		"--proxy-server=127.0.0.1:9",
		"--run-all-compositor-stages-before-draw",
		"--no-pdf-header-footer",
		"--print-to-pdf=" + outPath,
	}
	if settle > 0 {
		args = append(args, fmt.Sprintf("--virtual-time-budget=%d", int(settle/time.Millisecond)))
	}
	args = append(args, "file://"+htmlPath)

	cmd := exec.CommandContext(ctx, e.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("render engine timed out after %s", deadline)
		}
		return nil, fmt.Errorf("render engine: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	pdf, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read rendered pdf: %w", err)
	}

	return pdf, nil
}
