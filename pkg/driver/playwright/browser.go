package playwright

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
)

// Options configures the browser.
type Options struct {
	Headless          bool
	SlowMo            time.Duration
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	// ExecutablePath overrides the bundled Chromium
	// (PLAYWRIGHT_EXECUTABLE_PATH when empty).
	ExecutablePath string
}

// Browser owns one playwright instance and one Chromium process. Every
// session gets its own browser context, so sessions share no cookies or
// storage.
type Browser struct {
	opts Options

	once    sync.Once
	initErr error
	pw      *pw.Playwright
	browser pw.Browser
}

// NewBrowser prepares a browser; Chromium starts on the first session.
func NewBrowser(opts Options) *Browser {
	return &Browser{opts: opts}
}

func (b *Browser) start() error {
	b.once.Do(func() {
		inst, err := pw.Run()
		if err != nil {
			b.initErr = fmt.Errorf("failed to start playwright: %w", err)
			return
		}
		launch := pw.BrowserTypeLaunchOptions{Headless: pw.Bool(b.opts.Headless)}
		if b.opts.SlowMo > 0 {
			launch.SlowMo = pw.Float(float64(b.opts.SlowMo.Milliseconds()))
		}
		exe := b.opts.ExecutablePath
		if exe == "" {
			exe = os.Getenv("PLAYWRIGHT_EXECUTABLE_PATH")
		}
		if exe != "" {
			launch.ExecutablePath = pw.String(exe)
		}
		browser, err := inst.Chromium.Launch(launch)
		if err != nil {
			_ = inst.Stop()
			b.initErr = fmt.Errorf("failed to launch browser: %w", err)
			return
		}
		logger.Info("chromium launched (headless=%v)", b.opts.Headless)
		b.pw, b.browser = inst, browser
	})
	return b.initErr
}

// NewSession opens a fresh context and page. The returned func closes it.
func (b *Browser) NewSession(ctx context.Context) (core.PageDriver, func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := b.start(); err != nil {
		return nil, nil, core.ErrDriver.WithMessage("browser unavailable").WithCause(err)
	}
	var copts pw.BrowserNewContextOptions
	if b.opts.ViewportWidth > 0 && b.opts.ViewportHeight > 0 {
		copts.Viewport = &pw.Size{Width: b.opts.ViewportWidth, Height: b.opts.ViewportHeight}
	}
	bctx, err := b.browser.NewContext(copts)
	if err != nil {
		return nil, nil, core.ErrDriver.WithMessage("failed to create browser context").WithCause(err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, nil, core.ErrDriver.WithMessage("failed to open page").WithCause(err)
	}
	return NewDriver(page, b.opts.NavigationTimeout), func() error { return bctx.Close() }, nil
}

// Factory returns NewSession as a core.SessionFactory.
func (b *Browser) Factory() core.SessionFactory {
	return b.NewSession
}

// Close shuts the browser and playwright down.
func (b *Browser) Close() error {
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	if serr := b.pw.Stop(); err == nil {
		err = serr
	}
	return err
}
