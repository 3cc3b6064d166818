// Package browser provides headless Chrome integration via Rod, hardened
// for scraping a bot-hostile listing source.
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// Config defines browser configuration.
type Config struct {
	Headless          bool              `json:"headless" yaml:"headless"`
	PageTimeout       time.Duration     `json:"page_timeout" yaml:"page_timeout"`
	UserAgents        []string          `json:"user_agents,omitempty" yaml:"user_agents,omitempty"`
	ExtraHeaders      map[string]string `json:"extra_headers,omitempty" yaml:"extra_headers,omitempty"`
	ViewportWidth     int               `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int               `json:"viewport_height" yaml:"viewport_height"`
	RecycleAfter      int               `json:"recycle_after" yaml:"recycle_after"`
	BlockImages       bool              `json:"block_images" yaml:"block_images"`
	ScrollPages       bool              `json:"scroll_pages" yaml:"scroll_pages"`
	IgnoreHTTPSErrors bool              `json:"ignore_https_errors" yaml:"ignore_https_errors"`
}

// DefaultConfig returns default browser configuration.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		PageTimeout:       30 * time.Second,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		RecycleAfter:      50,
		BlockImages:       true,
		ScrollPages:       true,
		IgnoreHTTPSErrors: true,
	}
}

// defaultUserAgents is rotated per navigation when the config provides none.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
}

// defaultExtraHeaders accompany every navigation when the config
// provides none. The language header keeps the served variant stable.
var defaultExtraHeaders = map[string]string{
	"Accept-Language":           "en-US,en;q=0.9,he;q=0.8",
	"Upgrade-Insecure-Requests": "1",
}

// PageResult is one rendered page.
type PageResult struct {
	URL         string
	FinalURL    string
	StatusCode  int
	HTML        string
	Title       string
	ElapsedTime time.Duration
}

// Session wraps a single Rod browser. The pipeline runs one session at a
// time; the session relaunches its browser after RecycleAfter navigations
// to shed accumulated fingerprinting state.
type Session struct {
	cfg Config

	mu        sync.Mutex
	browser   *rod.Browser
	pageCount int
	rng       *rand.Rand
}

// New launches a browser session.
func New(cfg Config) (*Session, error) {
	b, err := launch(cfg)
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:     cfg,
		browser: b,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func launch(cfg Config) (*rod.Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("no-first-run").
		Set("no-default-browser-check")

	if cfg.IgnoreHTTPSErrors {
		l = l.Set("ignore-certificate-errors", "true")
	}
	if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(url)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return b, nil
}

// Fetch navigates to a URL on a fresh stealth page and returns the rendered
// document. The page is always closed before returning.
func (s *Session) Fetch(ctx context.Context, pageURL string) (*PageResult, error) {
	s.mu.Lock()
	if s.cfg.RecycleAfter > 0 && s.pageCount >= s.cfg.RecycleAfter {
		if err := s.relaunchLocked(); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.pageCount++
	b := s.browser
	userAgent := s.pickUserAgentLocked()
	s.mu.Unlock()

	start := time.Now()

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  s.cfg.ViewportWidth,
		Height: s.cfg.ViewportHeight,
	})
	_ = proto.NetworkSetUserAgentOverride{UserAgent: userAgent}.Call(page)

	headers := s.cfg.ExtraHeaders
	if len(headers) == 0 {
		headers = defaultExtraHeaders
	}
	networkHeaders := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		networkHeaders[k] = gson.New(v)
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders}.Call(page)

	// Capture the main document's status code from the network events;
	// the hijack router below never sees response codes.
	var statusCode int32
	go page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type == proto.NetworkResourceTypeDocument {
			atomic.StoreInt32(&statusCode, int32(e.Response.Status))
			return true
		}
		return false
	})()

	router := page.HijackRequests()
	err = router.Add("*", "", func(h *rod.Hijack) {
		switch h.Request.Type() {
		case proto.NetworkResourceTypeFont,
			proto.NetworkResourceTypeStylesheet,
			proto.NetworkResourceTypeMedia,
			proto.NetworkResourceTypeManifest:
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		case proto.NetworkResourceTypeImage:
			if s.cfg.BlockImages {
				h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			} else {
				h.ContinueRequest(&proto.FetchContinueRequest{})
			}
		default:
			h.ContinueRequest(&proto.FetchContinueRequest{})
		}
	})
	if err == nil {
		go router.Run()
		defer router.Stop()
	}

	if err := page.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", pageURL, err)
	}

	s.dismissConsent(page)

	if s.cfg.ScrollPages {
		s.autoScroll(ctx, page)
	}

	result := &PageResult{
		URL:        pageURL,
		FinalURL:   pageURL,
		StatusCode: int(atomic.LoadInt32(&statusCode)),
	}

	if info, err := page.Info(); err == nil && info != nil {
		result.FinalURL = info.URL
	}
	if html, err := page.HTML(); err == nil {
		result.HTML = html
	}
	if el, err := page.Timeout(2 * time.Second).Element("title"); err == nil && el != nil {
		if title, err := el.Text(); err == nil {
			result.Title = title
		}
	}

	result.ElapsedTime = time.Since(start)
	return result, nil
}

// consentSelectors are tried in order after every page load. The source
// shows a consent banner on fresh sessions that hides the result list.
var consentSelectors = []string{
	"#onetrust-accept-btn-handler",
	"button#accept-cookies",
	"[data-testid='cookie-accept']",
	"button[aria-label*='accept']",
	".cookie-consent button",
}

func (s *Session) dismissConsent(page *rod.Page) {
	for _, sel := range consentSelectors {
		el, err := page.Timeout(500 * time.Millisecond).Element(sel)
		if err != nil || el == nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			time.Sleep(200 * time.Millisecond)
			return
		}
	}
}

// Scroll pacing. The feed grows as cards attach, so the height is
// re-read after every step; the step budget keeps a page that never
// stops growing from wedging the fetch.
const (
	scrollStepMin  = 300
	scrollStepMax  = 700
	maxScrollSteps = 30
)

// autoScroll walks the viewport down the feed in uneven steps so lazily
// rendered cards attach before the HTML is captured.
func (s *Session) autoScroll(ctx context.Context, page *rod.Page) {
	height := pageHeight(page)
	position := 0
	for steps := 0; steps < maxScrollSteps && position < height; steps++ {
		position += s.randInt(scrollStepMin, scrollStepMax)
		if _, err := page.Eval("y => window.scrollTo(0, y)", position); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(s.randInt(100, 300)) * time.Millisecond):
		}
		height = pageHeight(page)
	}
}

func pageHeight(page *rod.Page) int {
	obj, err := page.Eval("() => document.body.scrollHeight")
	if err != nil || obj == nil {
		return 0
	}
	return obj.Value.Int()
}

func (s *Session) randInt(min, max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + s.rng.Intn(max-min+1)
}

func (s *Session) pickUserAgentLocked() string {
	agents := s.cfg.UserAgents
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return agents[s.rng.Intn(len(agents))]
}

// relaunchLocked replaces the browser process. Callers hold s.mu.
func (s *Session) relaunchLocked() error {
	if s.browser != nil {
		_ = s.browser.Close()
	}
	b, err := launch(s.cfg)
	if err != nil {
		return fmt.Errorf("failed to relaunch browser: %w", err)
	}
	s.browser = b
	s.pageCount = 0
	return nil
}

// PageCount returns how many pages the current browser process served.
func (s *Session) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageCount
}

// Close shuts the browser down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	return err
}
