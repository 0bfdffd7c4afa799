package export

import (
	"context"
	"fmt"
	"io"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Renderer rasterises PDF markup into a paginated document.
type Renderer interface {
	RenderPDF(ctx context.Context, markup string) ([]byte, error)
}

// RodRenderer prints markup to PDF with a headless Chromium driven by rod.
// Either ControlURL points at a running browser or one is launched per call.
type RodRenderer struct {
	ControlURL string
	Bin        string
	NoSandbox  bool
	Logger     *zap.Logger
}

func (r *RodRenderer) RenderPDF(ctx context.Context, markup string) ([]byte, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	controlURL := r.ControlURL
	if controlURL == "" {
		l := launcher.New().Context(ctx).Headless(true)
		if r.Bin != "" {
			l = l.Bin(r.Bin)
		}
		if r.NoSandbox {
			l = l.NoSandbox(true)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		defer l.Cleanup()
		defer l.Kill()
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if err := page.SetDocumentContent(markup); err != nil {
		return nil, fmt.Errorf("load book markup: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground: true,
	})
	if err != nil {
		return nil, fmt.Errorf("print to PDF: %w", err)
	}

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read PDF stream: %w", err)
	}

	logger.Debug("rendered PDF", zap.Int("bytes", len(data)))
	return data, nil
}
