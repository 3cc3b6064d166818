// Package normalize turns raw listing fragments into validated, canonical
// listings ready for persistence.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/motorscan/motorscan/internal/errors"
)

// RawFragment is one listing card as extracted from a result page, all
// fields still in source form.
type RawFragment struct {
	SourceID     string            // identifier extracted from the item URL
	URL          string            // absolute listing URL
	Title        string
	Subtitle     string            // location line under the title
	Description  string
	PriceText    string            // e.g. "52,000 ₪"
	Details      []string          // detail tokens: year, mileage, hand, fuel, gearbox
	ThumbnailURL string
	Attributes   map[string]string // labeled extras that have no dedicated slot
}

// Listing is a normalized fragment. String enums are closed vocabularies;
// unrecognized source values are preserved in Attributes instead of being
// forced into an enum or dropped.
type Listing struct {
	Source         string            `json:"source"`
	SourceID       string            `json:"source_id"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Brand          string            `json:"brand"`
	Model          string            `json:"model"`
	Price          int64             `json:"price"`
	IsNegotiable   bool              `json:"is_negotiable"`
	Year           int               `json:"year"`
	Mileage        int               `json:"mileage,omitempty"`
	Hand           int               `json:"hand,omitempty"`
	EngineVolume   int               `json:"engine_volume,omitempty"`
	Horsepower     int               `json:"horsepower,omitempty"`
	Doors          int               `json:"doors,omitempty"`
	Seats          int               `json:"seats,omitempty"`
	FuelType       string            `json:"fuel_type,omitempty"`
	Transmission   string            `json:"transmission,omitempty"`
	BodyType       string            `json:"body_type,omitempty"`
	Color          string            `json:"color,omitempty"`
	City           string            `json:"city,omitempty"`
	Neighborhood   string            `json:"neighborhood,omitempty"`
	IsImported     bool              `json:"is_imported"`
	IsAccidentFree bool              `json:"is_accident_free"`
	Status         string            `json:"status"`
	SourceURL      string            `json:"source_url,omitempty"`
	ThumbnailURL   string            `json:"thumbnail_url,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	ContentHash    string            `json:"content_hash"`
}

// Listing statuses.
const (
	StatusActive   = "active"
	StatusPending  = "pending"
	StatusSold     = "sold"
	StatusInactive = "inactive"
	StatusExpired  = "expired"
)

// MinYear bounds the plausible manufacturing year range from below.
const MinYear = 1900

// Normalizer validates and canonicalizes raw fragments for one source.
type Normalizer struct {
	source string
	now    func() time.Time
}

// New creates a Normalizer for the named source.
func New(source string) *Normalizer {
	return &Normalizer{
		source: source,
		now:    time.Now,
	}
}

// Normalize converts a raw fragment into a Listing. A validation error means
// the fragment must be skipped and counted, not that the page failed.
func (n *Normalizer) Normalize(raw *RawFragment) (*Listing, error) {
	if raw == nil {
		return nil, errors.NewValidationError("fragment", "nil fragment")
	}

	sourceID := strings.TrimSpace(raw.SourceID)
	if sourceID == "" {
		return nil, errors.NewValidationError("source_id", "missing source id")
	}

	title := CollapseWhitespace(raw.Title)
	if title == "" {
		return nil, errors.NewValidationError("title", "missing title")
	}

	brand, model := SplitBrandModel(title)
	if brand == "" || model == "" {
		return nil, errors.NewValidationError("title", "cannot derive brand and model from "+strconv.Quote(title))
	}

	price, err := ParsePrice(raw.PriceText)
	if err != nil {
		return nil, err
	}

	l := &Listing{
		Source:         n.source,
		SourceID:       sourceID,
		Title:          title,
		Description:    CollapseWhitespace(raw.Description),
		Brand:          brand,
		Model:          model,
		Price:          price,
		IsNegotiable:   isNegotiable(raw.PriceText),
		IsAccidentFree: true,
		Status:         StatusActive,
		SourceURL:      strings.TrimSpace(raw.URL),
		ThumbnailURL:   strings.TrimSpace(raw.ThumbnailURL),
		Attributes:     make(map[string]string),
	}

	for key, value := range raw.Attributes {
		l.Attributes[key] = CollapseWhitespace(value)
	}

	n.applyLocation(l, raw.Subtitle)

	for _, detail := range raw.Details {
		n.applyDetail(l, CollapseWhitespace(detail))
	}

	// Year may also hide in the title ("Mazda 3 2019")
	if l.Year == 0 {
		if year, ok := findYear(title); ok {
			l.Year = year
		}
	}
	if err := n.validateYear(l.Year); err != nil {
		return nil, err
	}

	l.ContentHash = Hash(l)
	return l, nil
}

// applyDetail routes one detail token into its listing field.
func (n *Normalizer) applyDetail(l *Listing, detail string) {
	if detail == "" {
		return
	}

	switch {
	case strings.Contains(detail, "שנת"):
		if year, ok := findYear(detail); ok {
			l.Year = year
		}

	case strings.Contains(detail, "ק\"מ") || strings.Contains(strings.ToLower(detail), "km"):
		if mileage, err := ParseMileage(detail); err == nil {
			l.Mileage = mileage
		} else {
			l.Attributes["mileage"] = detail
		}

	// "יד" must match as a whole word: "ידנית" (manual gearbox) contains
	// it as a substring.
	case containsToken(detail, "יד"):
		if hand, ok := parseHand(detail); ok {
			l.Hand = hand
		} else {
			l.Attributes["hand"] = detail
		}

	case strings.Contains(detail, "סמ\"ק") || strings.Contains(strings.ToLower(detail), "cc"):
		if cc, ok := firstNumber(detail); ok {
			l.EngineVolume = cc
		}

	case strings.Contains(detail, "כ\"ס") || strings.Contains(strings.ToLower(detail), "hp"):
		if hp, ok := firstNumber(detail); ok {
			l.Horsepower = hp
		}

	case strings.Contains(detail, "דלתות") || strings.Contains(strings.ToLower(detail), "doors"):
		if doors, ok := firstNumber(detail); ok {
			l.Doors = doors
		}

	case strings.Contains(detail, "מושבים") || strings.Contains(strings.ToLower(detail), "seats"):
		if seats, ok := firstNumber(detail); ok {
			l.Seats = seats
		}

	case strings.Contains(detail, "יבוא"):
		l.IsImported = true

	case strings.Contains(detail, "תאונ"):
		l.IsAccidentFree = false

	default:
		if canon, ok := MapTransmission(detail); ok {
			l.Transmission = canon
			return
		}
		if canon, ok := MapFuelType(detail); ok {
			l.FuelType = canon
			return
		}
		if canon, ok := MapBodyType(detail); ok {
			l.BodyType = canon
			return
		}
		if canon, ok := MapColor(detail); ok {
			l.Color = canon
			return
		}
		if canon, ok := MapStatus(detail); ok {
			l.Status = canon
			return
		}
		// Unrecognized token: keep it rather than dropping it
		l.Attributes["detail_"+strconv.Itoa(len(l.Attributes))] = detail
	}
}

// applyLocation splits the subtitle into city and neighborhood.
func (n *Normalizer) applyLocation(l *Listing, subtitle string) {
	location := CollapseWhitespace(subtitle)
	if location == "" {
		return
	}

	parts := strings.SplitN(location, ",", 2)
	l.City = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		l.Neighborhood = strings.TrimSpace(parts[1])
	}
}

// validateYear enforces the plausible range [1900, current year + 1].
func (n *Normalizer) validateYear(year int) error {
	maxYear := n.now().Year() + 1
	if year == 0 {
		return errors.NewValidationError("year", "missing year")
	}
	if year < MinYear || year > maxYear {
		return errors.NewValidationError("year", "out of range: "+strconv.Itoa(year))
	}
	return nil
}

// CollapseWhitespace trims a string and collapses internal whitespace runs
// to single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SplitBrandModel derives brand and model from a listing title: the first
// token is the brand, the next one or two tokens are the model. A trailing
// 4-digit year token is not part of the model.
func SplitBrandModel(title string) (brand, model string) {
	tokens := strings.Fields(title)
	if len(tokens) < 2 {
		return "", ""
	}

	brand = tokens[0]
	rest := tokens[1:]

	modelTokens := make([]string, 0, 2)
	for _, tok := range rest {
		if _, isYear := parseYearToken(tok); isYear {
			break
		}
		modelTokens = append(modelTokens, tok)
		if len(modelTokens) == 2 {
			break
		}
	}
	if len(modelTokens) == 0 {
		return "", ""
	}

	return brand, strings.Join(modelTokens, " ")
}

var priceCleaner = strings.NewReplacer("₪", "", ",", "", "ILS", "", "NIS", "", "גמיש", "", " ", "")

// ParsePrice parses a locale-formatted price, stripping the currency symbol
// and thousands separators. Non-numeric or negative values are rejected.
func ParsePrice(s string) (int64, error) {
	cleaned := strings.TrimSpace(priceCleaner.Replace(s))
	if cleaned == "" {
		return 0, errors.NewValidationError("price", "missing price")
	}

	value, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, errors.NewValidationError("price", "not numeric: "+strconv.Quote(s))
	}
	if value < 0 {
		return 0, errors.NewValidationError("price", "negative: "+strconv.Quote(s))
	}

	return value, nil
}

var mileageCleaner = strings.NewReplacer("ק\"מ", "", "km", "", "KM", "", ",", "", " ", "")

// ParseMileage parses a locale-formatted mileage value in kilometers.
func ParseMileage(s string) (int, error) {
	cleaned := strings.TrimSpace(mileageCleaner.Replace(s))
	if cleaned == "" {
		return 0, errors.NewValidationError("mileage", "missing mileage")
	}

	value, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, errors.NewValidationError("mileage", "not numeric: "+strconv.Quote(s))
	}
	if value < 0 {
		return 0, errors.NewValidationError("mileage", "negative: "+strconv.Quote(s))
	}

	return value, nil
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// findYear scans text for the first plausible 4-digit year.
func findYear(s string) (int, bool) {
	match := yearPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return year, true
}

// parseYearToken reports whether a single token is a 4-digit year.
func parseYearToken(tok string) (int, bool) {
	if len(tok) != 4 {
		return 0, false
	}
	year, err := strconv.Atoi(tok)
	if err != nil || year < MinYear || year > 2100 {
		return 0, false
	}
	return year, true
}

// Hebrew ordinal hands used by the source instead of digits.
var handWords = map[string]int{
	"ראשונה": 1,
	"שנייה":  2,
	"שניה":   2,
	"שלישית": 3,
	"רביעית": 4,
	"חמישית": 5,
}

// parseHand extracts the previous-owner count from a "יד" detail token.
func parseHand(s string) (int, bool) {
	for word, hand := range handWords {
		if strings.Contains(s, word) {
			return hand, true
		}
	}
	if n, ok := firstNumber(s); ok && n > 0 && n < 20 {
		return n, true
	}
	return 0, false
}

// containsToken reports whether the text contains word as a whole
// whitespace-delimited token.
func containsToken(s, word string) bool {
	for _, tok := range strings.Fields(s) {
		if tok == word {
			return true
		}
	}
	return false
}

var numberPattern = regexp.MustCompile(`\d[\d,]*`)

// firstNumber extracts the first integer in the text, ignoring separators.
func firstNumber(s string) (int, bool) {
	match := numberPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	match = strings.ReplaceAll(match, ",", "")
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

// isNegotiable reports whether the price text carries a negotiable marker.
func isNegotiable(priceText string) bool {
	return strings.Contains(priceText, "גמיש") ||
		strings.Contains(strings.ToLower(priceText), "negotiable")
}

// NormalizeName produces the lookup key for brand and model names: lower
// case, punctuation stripped, whitespace runs collapsed to underscores.
func NormalizeName(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), "_")
}
