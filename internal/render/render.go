package render

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/okibe/mailgram/internal/email"
	"github.com/okibe/mailgram/internal/logger"
)

// Result is a finished render. Degraded marks the text-only rendition
// produced after the styled document failed.
type Result struct {
	PDF      []byte
	Degraded bool
}

type Renderer struct {
	engine Engine
	log    logger.Logger
}

func NewRenderer(engine Engine) *Renderer {
	return &Renderer{
		engine: engine,
		log:    logger.GetLogger(),
	}
}

// TryRender produces a PDF for the message: first the styled document
// with embedded images, then a text-only rendition when that fails.
// The text-only document has nothing to settle, so it prints without
// the virtual-time budget. When both fail the returned error is the
// styled attempt's, since that is the one worth debugging.
func (r *Renderer) TryRender(ctx context.Context, msg *email.ParsedEmail) (Result, error) {
	pdf, primaryErr := r.export(ctx, composeHTML(msg), settleBudget)
	if primaryErr == nil {
		return Result{PDF: pdf}, nil
	}

	r.log.Warnw("styled render failed, falling back to text-only",
		"subject", msg.Subject,
		"error", primaryErr)

	pdf, fallbackErr := r.export(ctx, composeFallbackHTML(msg), 0)
	if fallbackErr != nil {
		r.log.Errorw("text-only render failed as well",
			"subject", msg.Subject,
			"error", fallbackErr)
		return Result{}, fmt.Errorf("render document: %w", primaryErr)
	}

	return Result{PDF: pdf, Degraded: true}, nil
}

func (r *Renderer) export(ctx context.Context, html string, settle time.Duration) ([]byte, error) {
	f, err := os.CreateTemp("", "mailgram-*.html")
	if err != nil {
		return nil, fmt.Errorf("create temp document: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.WriteString(html); err != nil {
		f.Close()
		return nil, fmt.Errorf("write temp document: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	return r.engine.ExportPDF(ctx, f.Name(), settle)
}
