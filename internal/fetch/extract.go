package fetch

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/motorscan/motorscan/internal/normalize"
)

// Result-page selectors. Promoted cards carry the premium class and
// duplicate organic cards further down the feed, so they are excluded.
const (
	cardSelector     = ".feeditem"
	premiumClass     = ".feeditem-premium"
	linkSelector     = `a[href*="/item/"]`
	titleSelector    = ".title"
	priceSelector    = ".price"
	detailSelector   = ".data"
	subtitleSelector = ".subtitle"
	pageLinkSelector = "a[data-page]"
)

// itemIDPattern pulls the source identifier out of an item URL.
var itemIDPattern = regexp.MustCompile(`/item/([a-f0-9]+)`)

// Extraction is the content of one parsed result page.
type Extraction struct {
	Fragments []*normalize.RawFragment
	HasNext   bool
}

// Extractor parses listing fragments out of result-page HTML.
type Extractor struct {
	baseURL *url.URL
}

// NewExtractor creates an extractor that resolves relative links against
// baseURL.
func NewExtractor(baseURL string) (*Extractor, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	return &Extractor{baseURL: u}, nil
}

// Extract parses a result page. An Extraction with no fragments and no
// error means the feed rendered empty: the crawl walked past the last
// page. An error means the document is not a result page at all, which
// usually indicates a partial render.
func (e *Extractor) Extract(html string, current int) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	cards := doc.Find(cardSelector).Not(premiumClass)
	if cards.Length() == 0 && !looksLikeResultPage(doc) {
		return nil, fmt.Errorf("no listing feed in document")
	}

	ex := &Extraction{
		Fragments: make([]*normalize.RawFragment, 0, cards.Length()),
		HasNext:   hasNextPage(doc, current),
	}
	cards.Each(func(_ int, card *goquery.Selection) {
		ex.Fragments = append(ex.Fragments, e.extractCard(card))
	})
	return ex, nil
}

// extractCard reads one listing card. Cards missing a usable item link
// come back with an empty SourceID and are rejected downstream during
// normalization rather than silently dropped here.
func (e *Extractor) extractCard(card *goquery.Selection) *normalize.RawFragment {
	frag := &normalize.RawFragment{}

	link := card.Find(linkSelector).First()
	if href, ok := link.Attr("href"); ok {
		frag.URL = e.absoluteURL(href)
		if m := itemIDPattern.FindStringSubmatch(href); m != nil {
			frag.SourceID = m[1]
		}
	}

	frag.Title = normalize.CollapseWhitespace(card.Find(titleSelector).First().Text())
	frag.PriceText = normalize.CollapseWhitespace(card.Find(priceSelector).First().Text())
	frag.Subtitle = normalize.CollapseWhitespace(card.Find(subtitleSelector).First().Text())

	card.Find(detailSelector).Each(func(_ int, sel *goquery.Selection) {
		if text := normalize.CollapseWhitespace(sel.Text()); text != "" {
			frag.Details = append(frag.Details, text)
		}
	})

	if src, ok := card.Find("img").First().Attr("src"); ok && src != "" {
		frag.ThumbnailURL = e.absoluteURL(src)
	}
	return frag
}

func (e *Extractor) absoluteURL(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return e.baseURL.ResolveReference(u).String()
}

// looksLikeResultPage reports whether the document carries result-page
// scaffolding. A feed with zero organic cards is a legitimate end of
// the listings; a document without any scaffolding is not a result
// page.
func looksLikeResultPage(doc *goquery.Document) bool {
	if doc.Find(cardSelector).Length() > 0 {
		return true
	}
	return doc.Find(".feed_list, #feed, "+pageLinkSelector).Length() > 0
}

// hasNextPage reports whether the page links to a page past the current
// one, through numbered pagination or a next link.
func hasNextPage(doc *goquery.Document, current int) bool {
	next := false
	doc.Find(pageLinkSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw, ok := sel.Attr("data-page")
		if !ok {
			return true
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && n > current {
			next = true
			return false
		}
		return true
	})
	if next {
		return true
	}
	doc.Find("a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if isNextLabel(sel.Text()) {
			next = true
			return false
		}
		return true
	})
	return next
}

func isNextLabel(text string) bool {
	t := strings.ToLower(normalize.CollapseWhitespace(text))
	return t == "next" || strings.Contains(t, "הבא")
}
