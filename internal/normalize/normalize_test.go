package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/motorscan/motorscan/internal/errors"
)

// ===== Text Helper Tests =====

func TestCollapseWhitespace(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"   ", ""},
		{"Mazda 3", "Mazda 3"},
		{"  Mazda   3  ", "Mazda 3"},
		{"Mazda\t3\n2019", "Mazda 3 2019"},
	}

	for _, tt := range tests {
		if got := CollapseWhitespace(tt.input); got != tt.want {
			t.Errorf("CollapseWhitespace(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Mazda", "mazda"},
		{" BMW ", "bmw"},
		{"Alfa Romeo", "alfa_romeo"},
		{"Mercedes-Benz", "mercedes_benz"},
		{"CX-5", "cx_5"},
		{"Corolla  Hybrid!", "corolla_hybrid"},
		{"מאזדה", "מאזדה"},
	}

	for _, tt := range tests {
		if got := NormalizeName(tt.input); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSplitBrandModel(t *testing.T) {
	tests := []struct {
		title     string
		wantBrand string
		wantModel string
	}{
		{"Mazda 3", "Mazda", "3"},
		{"Mazda 3 2019", "Mazda", "3"},
		{"Toyota Corolla Hybrid 2020", "Toyota", "Corolla Hybrid"},
		{"Toyota Corolla Hybrid Premium", "Toyota", "Corolla Hybrid"},
		{"מאזדה 3 2019", "מאזדה", "3"},
		{"Kia", "", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		brand, model := SplitBrandModel(tt.title)
		if brand != tt.wantBrand || model != tt.wantModel {
			t.Errorf("SplitBrandModel(%q) = (%q, %q), want (%q, %q)",
				tt.title, brand, model, tt.wantBrand, tt.wantModel)
		}
	}
}

// ===== Price and Mileage Tests =====

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"52,000 ₪", 52000, false},
		{"₪ 120,500", 120500, false},
		{"1000", 1000, false},
		{"45,000 ₪ גמיש", 45000, false},
		{"0", 0, false},
		{"", 0, true},
		{"לא צוין", 0, true},
		{"-500", 0, true},
		{"12.5k", 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePrice(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePrice(%q) expected error, got %d", tt.input, got)
			} else if !errors.IsValidation(err) {
				t.Errorf("ParsePrice(%q) error should be a validation error, got %v", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePrice(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePrice(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestParseMileage(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"12,500 ק\"מ", 12500, false},
		{"85000 km", 85000, false},
		{"120,000", 120000, false},
		{"", 0, true},
		{"חדש", 0, true},
		{"-100", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseMileage(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMileage(%q) expected error, got %d", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMileage(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMileage(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

// ===== Synonym Table Tests =====

func TestMapTransmission(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"אוטומט", TransmissionAutomatic, true},
		{"תיבה אוטומטית", TransmissionAutomatic, true},
		{"ידנית", TransmissionManual, true},
		{"Automatic", TransmissionAutomatic, true},
		{"manual", TransmissionManual, true},
		{"טיפטרוניק", TransmissionTiptronic, true},
		{"רובוטית", TransmissionRobotic, true},
		{"CVT", "", false},
	}

	for _, tt := range tests {
		got, ok := MapTransmission(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("MapTransmission(%q) = (%q, %v), want (%q, %v)",
				tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestMapFuelType(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"בנזין", FuelPetrol, true},
		{"דיזל", FuelDiesel, true},
		{"היברידי", FuelHybrid, true},
		{"חשמלי", FuelElectric, true},
		{"Diesel", FuelDiesel, true},
		{"petrol", FuelPetrol, true},
		{"גפ\"מ", FuelLPG, true},
		{"מימן", "", false},
	}

	for _, tt := range tests {
		got, ok := MapFuelType(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("MapFuelType(%q) = (%q, %v), want (%q, %v)",
				tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestMapBodyType(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"סדאן", "sedan", true},
		{"האצ'בק", "hatchback", true},
		{"פנאי שטח", "suv", true},
		{"סטיישן", "station_wagon", true},
		{"SUV", "suv", true},
		{"עגלה", "", false},
	}

	for _, tt := range tests {
		got, ok := MapBodyType(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("MapBodyType(%q) = (%q, %v), want (%q, %v)",
				tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestMapColor(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"לבן", "white", true},
		{"שחור מטאלי", "black", true},
		{"כסוף", "silver", true},
		{"Grey", "gray", true},
		{"ורוד", "", false},
	}

	for _, tt := range tests {
		got, ok := MapColor(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("MapColor(%q) = (%q, %v), want (%q, %v)",
				tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"נמכר", StatusSold, true},
		{"Sold", StatusSold, true},
		{"לא פעיל", StatusInactive, true},
		{"חדש באתר", "", false},
	}

	for _, tt := range tests {
		got, ok := MapStatus(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("MapStatus(%q) = (%q, %v), want (%q, %v)",
				tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

// ===== Normalizer Tests =====

// fixedNormalizer pins the clock so year validation is deterministic.
func fixedNormalizer() *Normalizer {
	n := New("yad2")
	n.now = func() time.Time {
		return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	}
	return n
}

func sampleFragment() *RawFragment {
	return &RawFragment{
		SourceID:     "ab12cd34",
		URL:          "https://example.com/item/ab12cd34",
		Title:        "מאזדה 3 2019",
		Subtitle:     "תל אביב, פלורנטין",
		Description:  "  שמורה היטב,  טסט עד  מרץ ",
		PriceText:    "52,000 ₪",
		Details:      []string{"שנת 2019", "12,500 ק\"מ", "יד שנייה", "אוטומט", "בנזין"},
		ThumbnailURL: "https://example.com/img/ab12cd34.jpg",
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	n := fixedNormalizer()

	l, err := n.Normalize(sampleFragment())
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}

	if l.Source != "yad2" {
		t.Errorf("Source = %q, want %q", l.Source, "yad2")
	}
	if l.SourceID != "ab12cd34" {
		t.Errorf("SourceID = %q, want %q", l.SourceID, "ab12cd34")
	}
	if l.Brand != "מאזדה" {
		t.Errorf("Brand = %q, want %q", l.Brand, "מאזדה")
	}
	if l.Model != "3" {
		t.Errorf("Model = %q, want %q", l.Model, "3")
	}
	if l.Price != 52000 {
		t.Errorf("Price = %d, want 52000", l.Price)
	}
	if l.Year != 2019 {
		t.Errorf("Year = %d, want 2019", l.Year)
	}
	if l.Mileage != 12500 {
		t.Errorf("Mileage = %d, want 12500", l.Mileage)
	}
	if l.Hand != 2 {
		t.Errorf("Hand = %d, want 2", l.Hand)
	}
	if l.Transmission != TransmissionAutomatic {
		t.Errorf("Transmission = %q, want %q", l.Transmission, TransmissionAutomatic)
	}
	if l.FuelType != FuelPetrol {
		t.Errorf("FuelType = %q, want %q", l.FuelType, FuelPetrol)
	}
	if l.City != "תל אביב" {
		t.Errorf("City = %q, want %q", l.City, "תל אביב")
	}
	if l.Neighborhood != "פלורנטין" {
		t.Errorf("Neighborhood = %q, want %q", l.Neighborhood, "פלורנטין")
	}
	if l.Status != StatusActive {
		t.Errorf("Status = %q, want %q", l.Status, StatusActive)
	}
	if strings.Contains(l.Description, "  ") {
		t.Errorf("Description whitespace not collapsed: %q", l.Description)
	}
	if l.ContentHash == "" {
		t.Error("ContentHash should be set")
	}
}

func TestNormalizer_Normalize_MissingSourceID(t *testing.T) {
	n := fixedNormalizer()
	frag := sampleFragment()
	frag.SourceID = "  "

	_, err := n.Normalize(frag)
	if err == nil {
		t.Fatal("expected error for missing source id")
	}
	if !errors.IsValidation(err) {
		t.Errorf("error should be a validation error, got %v", err)
	}
}

func TestNormalizer_Normalize_MissingTitle(t *testing.T) {
	n := fixedNormalizer()
	frag := sampleFragment()
	frag.Title = ""

	if _, err := n.Normalize(frag); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestNormalizer_Normalize_BadPrice(t *testing.T) {
	n := fixedNormalizer()
	frag := sampleFragment()
	frag.PriceText = "צור קשר"

	if _, err := n.Normalize(frag); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestNormalizer_Normalize_MissingYear(t *testing.T) {
	n := fixedNormalizer()
	frag := sampleFragment()
	frag.Title = "מאזדה 3"
	frag.Details = []string{"12,500 ק\"מ"}

	if _, err := n.Normalize(frag); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestNormalizer_Normalize_YearOutOfRange(t *testing.T) {
	n := fixedNormalizer()

	tests := []struct {
		name    string
		detail  string
		wantErr bool
	}{
		{"too old", "שנת 1899", true},
		{"lower bound", "שנת 1900", false},
		{"next model year", "שנת 2026", false},
		{"too far ahead", "שנת 2027", true},
	}

	for _, tt := range tests {
		frag := sampleFragment()
		frag.Title = "מאזדה 3"
		frag.Details = []string{tt.detail}

		_, err := n.Normalize(frag)
		if tt.wantErr && !errors.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", tt.name, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
		}
	}
}

func TestNormalizer_Normalize_YearFromTitle(t *testing.T) {
	n := fixedNormalizer()
	frag := sampleFragment()
	frag.Details = []string{"אוטומט"}

	l, err := n.Normalize(frag)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if l.Year != 2019 {
		t.Errorf("Year = %d, want 2019 (from title)", l.Year)
	}
}

func TestNormalizer_Normalize_UnrecognizedDetail(t *testing.T) {
	n := fixedNormalizer()
	frag := sampleFragment()
	frag.Details = append(frag.Details, "גג נפתח")

	l, err := n.Normalize(frag)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}

	found := false
	for _, v := range l.Attributes {
		if v == "גג נפתח" {
			found = true
		}
	}
	if !found {
		t.Errorf("unrecognized detail should land in Attributes, got %v", l.Attributes)
	}
}

func TestNormalizer_Normalize_ManualGearboxNotHand(t *testing.T) {
	n := fixedNormalizer()
	frag := sampleFragment()
	frag.Details = []string{"שנת 2019", "ידנית"}

	l, err := n.Normalize(frag)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if l.Transmission != TransmissionManual {
		t.Errorf("Transmission = %q, want %q", l.Transmission, TransmissionManual)
	}
	if l.Hand != 0 {
		t.Errorf("Hand = %d, want 0", l.Hand)
	}
}

func TestNormalizer_Normalize_SoldBadge(t *testing.T) {
	n := fixedNormalizer()
	frag := sampleFragment()
	frag.Details = append(frag.Details, "נמכר")

	l, err := n.Normalize(frag)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if l.Status != StatusSold {
		t.Errorf("Status = %q, want %q", l.Status, StatusSold)
	}
}

func TestNormalizer_Normalize_NegotiablePrice(t *testing.T) {
	n := fixedNormalizer()
	frag := sampleFragment()
	frag.PriceText = "45,000 ₪ גמיש"

	l, err := n.Normalize(frag)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if l.Price != 45000 {
		t.Errorf("Price = %d, want 45000", l.Price)
	}
	if !l.IsNegotiable {
		t.Error("IsNegotiable should be true")
	}
}

func TestNormalizer_Normalize_AccidentMarker(t *testing.T) {
	n := fixedNormalizer()
	frag := sampleFragment()
	frag.Details = append(frag.Details, "לאחר תאונה")

	l, err := n.Normalize(frag)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if l.IsAccidentFree {
		t.Error("IsAccidentFree should be false after accident marker")
	}
}

// ===== Content Hash Tests =====

func TestHash_Stable(t *testing.T) {
	n := fixedNormalizer()

	l1, err := n.Normalize(sampleFragment())
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	l2, err := n.Normalize(sampleFragment())
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}

	if l1.ContentHash != l2.ContentHash {
		t.Errorf("same fragment should hash equal: %q vs %q", l1.ContentHash, l2.ContentHash)
	}
	if len(l1.ContentHash) != 64 {
		t.Errorf("ContentHash length = %d, want 64 hex chars", len(l1.ContentHash))
	}
}

func TestHash_PriceChange(t *testing.T) {
	n := fixedNormalizer()

	l1, _ := n.Normalize(sampleFragment())

	frag := sampleFragment()
	frag.PriceText = "49,000 ₪"
	l2, err := n.Normalize(frag)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}

	if l1.ContentHash == l2.ContentHash {
		t.Error("price change should change the content hash")
	}
}

func TestHash_FieldBoundaries(t *testing.T) {
	a := &Listing{City: "ab", Neighborhood: "c"}
	b := &Listing{City: "a", Neighborhood: "bc"}

	if Hash(a) == Hash(b) {
		t.Error("adjacent fields must not collide by concatenation")
	}
}

func TestHash_AttributeOrderIndependent(t *testing.T) {
	a := &Listing{Attributes: map[string]string{"k1": "v1", "k2": "v2", "k3": "v3"}}
	b := &Listing{Attributes: map[string]string{"k3": "v3", "k1": "v1", "k2": "v2"}}

	if Hash(a) != Hash(b) {
		t.Error("attribute insertion order must not affect the hash")
	}
}
