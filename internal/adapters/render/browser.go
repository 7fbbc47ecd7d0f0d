package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/PabloGalante/mermaidbot/internal/observability"
)

type BrowserConfig struct {
	MermaidJSURL string
	Bin          string // Chrome binary; empty lets rod find or download one
	ControlURL   string // attach to a running Chrome instead of launching
}

// BrowserEngine runs mermaid.js inside one headless Chrome page. The page is
// created on first use and shared; calls are serialized on it.
type BrowserEngine struct {
	cfg    BrowserConfig
	logger *slog.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func NewBrowserEngine(cfg BrowserConfig, logger *slog.Logger) *BrowserEngine {
	if logger == nil {
		logger = observability.Logger()
	}
	return &BrowserEngine{cfg: cfg, logger: logger}
}

const loadMermaidJS = `(url) => new Promise((resolve, reject) => {
	if (window.mermaid) { resolve(true); return; }
	const s = document.createElement('script');
	s.src = url;
	s.onload = () => resolve(true);
	s.onerror = () => reject(new Error('failed to load ' + url));
	document.head.appendChild(s);
})`

const initMermaidJS = `() => {
	mermaid.initialize({
		startOnLoad: false,
		theme: 'neutral',
		securityLevel: 'loose',
		flowchart: { htmlLabels: true, curve: 'basis', useMaxWidth: true },
	});
	return true;
}`

const parseJS = `async (src) => {
	try {
		await mermaid.parse(src);
		return '';
	} catch (e) {
		return String((e && e.message) || e);
	}
}`

const renderJS = `async (id, src) => {
	try {
		const { svg } = await mermaid.render(id, src);
		return JSON.stringify({ svg: svg });
	} catch (e) {
		const leftover = document.getElementById('d' + id);
		if (leftover) leftover.remove();
		return JSON.stringify({ error: String((e && e.message) || e) });
	}
}`

// Parse reports the mermaid.parse error message, if any.
func (b *BrowserEngine) Parse(ctx context.Context, source string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page, err := b.ensurePage(ctx)
	if err != nil {
		return err
	}
	res, err := page.Context(ctx).Evaluate(rod.Eval(parseJS, source).ByPromise())
	if err != nil {
		return fmt.Errorf("mermaid.parse: %w", err)
	}
	if msg := res.Value.Str(); msg != "" {
		return errors.New(msg)
	}
	return nil
}

func (b *BrowserEngine) Render(ctx context.Context, id, source string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	page, err := b.ensurePage(ctx)
	if err != nil {
		return "", err
	}
	res, err := page.Context(ctx).Evaluate(rod.Eval(renderJS, id, source).ByPromise())
	if err != nil {
		return "", fmt.Errorf("mermaid.render: %w", err)
	}

	out := res.Value.Str()
	var decoded struct {
		SVG   string `json:"svg"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		return "", fmt.Errorf("mermaid.render returned %q: %w", out, err)
	}
	if decoded.Error != "" {
		return "", errors.New(decoded.Error)
	}
	return decoded.SVG, nil
}

// Close releases the page. A Chrome started by the engine is shut down; an
// attached one is left running.
func (b *BrowserEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	switch {
	case b.launcher != nil:
		err = b.browser.Close()
		b.launcher.Kill()
		b.launcher.Cleanup()
	case b.page != nil:
		err = b.page.Close()
	}
	b.browser, b.page, b.launcher = nil, nil, nil
	return err
}

// ensurePage must be called with mu held. A failed start is retried on the
// next call.
func (b *BrowserEngine) ensurePage(ctx context.Context) (*rod.Page, error) {
	if b.page != nil {
		return b.page, nil
	}

	controlURL := b.cfg.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Headless(true)
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launching chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connecting to chrome: %w", err)
	}

	abort := func(format string, err error) (*rod.Page, error) {
		if l != nil {
			_ = browser.Close()
			l.Kill()
		}
		return nil, fmt.Errorf(format, err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return abort("opening page: %w", err)
	}
	if _, err := page.Context(ctx).Evaluate(rod.Eval(loadMermaidJS, b.cfg.MermaidJSURL).ByPromise()); err != nil {
		return abort("loading mermaid.js: %w", err)
	}
	if _, err := page.Context(ctx).Evaluate(rod.Eval(initMermaidJS)); err != nil {
		return abort("initializing mermaid: %w", err)
	}

	b.logger.Info("mermaid browser engine ready", "control_url", controlURL, "mermaid_js", b.cfg.MermaidJSURL)
	b.launcher, b.browser, b.page = l, browser, page
	return page, nil
}
