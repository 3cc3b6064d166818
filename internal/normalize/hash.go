package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Hash computes a stable digest over the mutable fields of a listing. Two
// snapshots of the same listing hash equal exactly when an upsert would be
// a no-op, so the stored hash decides created/updated/unchanged without a
// field-by-field comparison.
//
// Identity fields (source id, brand, model, year) are deliberately not
// hashed: they never change for a listing, and a change in them means a
// different listing.
func Hash(l *Listing) string {
	h := sha256.New()

	writeField(h, strconv.FormatInt(l.Price, 10))
	writeField(h, strconv.Itoa(l.Mileage))
	writeField(h, l.Status)
	writeField(h, l.Title)
	writeField(h, l.Description)
	writeField(h, l.FuelType)
	writeField(h, l.Transmission)
	writeField(h, l.BodyType)
	writeField(h, l.Color)
	writeField(h, strconv.Itoa(l.Hand))
	writeField(h, strconv.Itoa(l.EngineVolume))
	writeField(h, strconv.Itoa(l.Horsepower))
	writeField(h, strconv.Itoa(l.Doors))
	writeField(h, strconv.Itoa(l.Seats))
	writeField(h, l.City)
	writeField(h, l.Neighborhood)
	writeField(h, strconv.FormatBool(l.IsNegotiable))
	writeField(h, strconv.FormatBool(l.IsImported))
	writeField(h, strconv.FormatBool(l.IsAccidentFree))
	writeField(h, l.ThumbnailURL)

	// Map iteration order is random; sort keys for a stable digest.
	keys := make([]string, 0, len(l.Attributes))
	for k := range l.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(h, k+"="+l.Attributes[k])
	}

	return hex.EncodeToString(h.Sum(nil))
}

// writeField separates fields with a byte that cannot appear in the values,
// so adjacent fields cannot collide by concatenation.
func writeField(w io.Writer, s string) {
	io.WriteString(w, strings.TrimSpace(s))
	w.Write([]byte{0})
}
