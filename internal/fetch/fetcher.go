package fetch

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/motorscan/motorscan/internal/browser"
	"github.com/motorscan/motorscan/internal/errors"
	"github.com/motorscan/motorscan/internal/logger"
	"github.com/motorscan/motorscan/internal/metrics"
	"github.com/motorscan/motorscan/internal/ratelimit"
)

// Config controls how result pages are located and fetched.
type Config struct {
	BaseURL     string            `json:"base_url" yaml:"base_url"`
	SearchPath  string            `json:"search_path" yaml:"search_path"`
	PageParam   string            `json:"page_param" yaml:"page_param"`
	Query       map[string]string `json:"query,omitempty" yaml:"query,omitempty"` // extra search filters, e.g. manufacturer
	PageTimeout time.Duration     `json:"page_timeout" yaml:"page_timeout"`
}

// DefaultConfig returns the fetch configuration for the default source.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://www.yad2.co.il",
		SearchPath:  "/vehicles/cars",
		PageParam:   "page",
		PageTimeout: 30 * time.Second,
	}
}

// Navigator is the browser surface the fetcher needs.
type Navigator interface {
	Fetch(ctx context.Context, url string) (*browser.PageResult, error)
	Close() error
}

// BrowserFetcher fetches result pages through a headless browser,
// pacing requests through the source limiter and retrying transient
// failures with backoff.
type BrowserFetcher struct {
	cfg       Config
	nav       Navigator
	limiter   *ratelimit.SourceLimiter
	retrier   *errors.Retrier
	extractor *Extractor
	log       *logger.Logger
	metrics   *metrics.Collector
}

// NewBrowserFetcher wires a browser session into a page fetcher.
func NewBrowserFetcher(cfg Config, nav Navigator, limiter *ratelimit.SourceLimiter, retrier *errors.Retrier, log *logger.Logger, collector *metrics.Collector) (*BrowserFetcher, error) {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	if cfg.PageParam == "" {
		cfg.PageParam = "page"
	}
	extractor, err := NewExtractor(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if limiter == nil {
		limiter = ratelimit.NewDefaultSourceLimiter()
	}
	if retrier == nil {
		retrier = errors.NewDefaultRetrier()
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if collector == nil {
		collector = metrics.Global()
	}
	return &BrowserFetcher{
		cfg:       cfg,
		nav:       nav,
		limiter:   limiter,
		retrier:   retrier,
		extractor: extractor,
		log:       log.WithComponent("fetch"),
		metrics:   collector,
	}, nil
}

// FetchPage fetches result page number and extracts its fragments. A
// page that fetches but does not parse is refetched once; a second
// extraction failure comes back as a parse error so the caller can skip
// the page.
func (f *BrowserFetcher) FetchPage(ctx context.Context, number int) (*Page, error) {
	pageURL := f.PageURL(number)

	result, err := f.navigate(ctx, number, pageURL)
	if err != nil {
		return nil, err
	}

	extraction, exErr := f.extractor.Extract(result.HTML, number)
	if exErr != nil {
		f.log.WithPage(number).WithError(exErr).Warn("extraction failed, refetching page")
		result, err = f.navigate(ctx, number, pageURL)
		if err != nil {
			return nil, err
		}
		extraction, exErr = f.extractor.Extract(result.HTML, number)
		if exErr != nil {
			f.metrics.RecordError(errors.ParseError.String())
			return nil, errors.NewParseError(pageURL, "extract_listings", exErr)
		}
	}

	f.metrics.RecordPageFetched()
	f.log.FetchEvent(number, pageURL, result.StatusCode, result.ElapsedTime)

	return &Page{
		Number:      number,
		URL:         pageURL,
		Fragments:   extraction.Fragments,
		HasNext:     extraction.HasNext,
		StatusCode:  result.StatusCode,
		ElapsedTime: result.ElapsedTime,
	}, nil
}

// Close releases the browser session.
func (f *BrowserFetcher) Close() error {
	return f.nav.Close()
}

// PageURL returns the absolute search URL for a result page.
func (f *BrowserFetcher) PageURL(number int) string {
	u := *f.extractor.baseURL
	u.Path = f.cfg.SearchPath
	q := url.Values{}
	for k, v := range f.cfg.Query {
		q.Set(k, v)
	}
	q.Set(f.cfg.PageParam, strconv.Itoa(number))
	u.RawQuery = q.Encode()
	return u.String()
}

// navigate runs the paced browser round trip under the retrier.
func (f *BrowserFetcher) navigate(ctx context.Context, number int, pageURL string) (*browser.PageResult, error) {
	result, rr := errors.DoWithResult(ctx, f.retrier, "fetch_page", pageURL, func(ctx context.Context) (*browser.PageResult, error) {
		return f.fetchOnce(ctx, pageURL)
	})
	for i := 1; i < rr.Attempts; i++ {
		f.metrics.RecordRetry()
	}
	if !rr.Success {
		f.metrics.RecordError(errors.GetErrorKind(rr.LastError).String())
		f.log.ErrorEvent(rr.LastError, pageURL, "fetch_page")
		return nil, rr.LastError
	}
	if rr.Attempts > 1 {
		f.log.WithPage(number).WithField("attempts", rr.Attempts).Info("page fetched after retry")
	}
	return result, nil
}

// fetchOnce performs a single paced round trip and categorizes the
// outcome so the retrier can tell transient failures from fatal ones.
func (f *BrowserFetcher) fetchOnce(ctx context.Context, pageURL string) (*browser.PageResult, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, errors.Categorize(err, pageURL)
	}
	defer f.limiter.MarkDone()

	fetchCtx, cancel := context.WithTimeout(ctx, f.cfg.PageTimeout)
	defer cancel()

	f.metrics.RecordRequest()
	start := time.Now()
	result, err := f.nav.Fetch(fetchCtx, pageURL)
	f.metrics.RecordResponseTime(time.Since(start))
	if err != nil {
		f.limiter.RecordError()
		return nil, errors.Categorize(err, pageURL)
	}

	f.metrics.RecordStatusCode(result.StatusCode)
	f.metrics.RecordBytes(int64(len(result.HTML)))

	if blockErr := detectBlock(pageURL, result); blockErr != nil {
		f.limiter.RecordError()
		return nil, blockErr
	}
	if result.StatusCode >= 400 {
		f.limiter.RecordError()
		return nil, errors.CategorizeHTTPStatus(result.StatusCode, pageURL)
	}

	f.limiter.RecordSuccess()
	return result, nil
}

// Block markers. Bot mitigation either rewrites the page title, bounces
// the browser to a challenge URL, or injects a captcha widget into an
// otherwise 200 response.
var (
	blockedTitleMarkers = []string{"captcha", "access denied", "request blocked"}
	blockedURLMarkers   = []string{"captcha", "/login", "/validate", "blocked"}
)

// blockSelectors match challenge widgets injected into the DOM.
const blockSelectors = `iframe[src*="captcha"], div.g-recaptcha, div#captcha, div[class*="captcha"]`

func detectBlock(pageURL string, result *browser.PageResult) error {
	title := strings.ToLower(result.Title)
	for _, marker := range blockedTitleMarkers {
		if strings.Contains(title, marker) {
			return errors.NewBlockedError(pageURL, "title contains "+strconv.Quote(marker))
		}
	}

	final := strings.ToLower(result.FinalURL)
	if final != "" && final != strings.ToLower(pageURL) {
		for _, marker := range blockedURLMarkers {
			if strings.Contains(final, marker) {
				return errors.NewBlockedError(pageURL, "redirected to challenge URL")
			}
		}
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.HTML)); err == nil {
		if doc.Find(blockSelectors).Length() > 0 {
			return errors.NewBlockedError(pageURL, "captcha widget present")
		}
	}
	return nil
}
