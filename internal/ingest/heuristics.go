package ingest

import (
	"regexp"
	"strings"
)

// formKeywords are dosage-form markers used to split a combined
// "name + form" field for medicinal products. Kept as data, not constants:
// the list tracks whatever the upstream POS exports actually emit and gets
// extended when new forms show up.
var formKeywords = []string{
	"таб", "табл", "таблетки", "таблетка",
	"капс", "капсулы", "капсула",
	"мазь", "гель", "крем", "линимент", "бальзам",
	"сироп", "спрей", "капли", "настойка", "экстракт",
	"раствор", "р-р", "суспензия", "эмульсия",
	"амп", "ампулы",
	"супп", "суппозитории", "свечи",
	"порошок", "пор", "гранулы", "драже",
	"аэрозоль", "пластырь",
}

// fallbackSeparators are malformed name/form separators seen in the wild
// when no dosage-form keyword boundary exists.
var fallbackSeparators = []string{" - ", " -", "- "}

// formPlaceholder is stored when no dosage form can be derived.
const formPlaceholder = "-"

var keywordSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(formKeywords))
	for _, kw := range formKeywords {
		set[kw] = struct{}{}
	}
	return set
}()

// splitNameForm splits a medicinal product's combined name field into a
// bare name and a trailing dosage-form suffix. The keyword must match a
// whole word and must not be the leading token, so names that start with a
// form word ("Таблетки от кашля") are kept whole.
func splitNameForm(combined string) (name, form string) {
	combined = strings.TrimSpace(combined)
	if combined == "" {
		return "", formPlaceholder
	}

	tokens := strings.Fields(combined)
	for i := 1; i < len(tokens); i++ {
		if isFormKeyword(tokens[i]) {
			name = strings.Join(tokens[:i], " ")
			form = strings.Join(tokens[i:], " ")
			return name, form
		}
	}

	for _, sep := range fallbackSeparators {
		if idx := strings.Index(combined, sep); idx > 0 {
			name = strings.TrimSpace(combined[:idx])
			form = strings.TrimSpace(combined[idx+len(sep):])
			if name != "" && form != "" {
				return name, form
			}
		}
	}

	return combined, formPlaceholder
}

// isFormKeyword reports whether a token, stripped of trailing punctuation,
// is a known dosage-form marker.
func isFormKeyword(token string) bool {
	token = strings.ToLower(strings.TrimRight(token, ".,;:"))
	_, ok := keywordSet[token]
	return ok
}

// numericPattern matches a plain decimal with an optional comma or dot
// fraction, the only shape accepted for money and quantity columns.
var numericPattern = regexp.MustCompile(`^\d+([.,]\d+)?$`)

// shiftMarkers are words known to leak into the price column from upstream
// receipt annotations. Their presence confirms the field-shift defect
// rather than a merely malformed number.
var shiftMarkers = []string{"поступление", "роц", "партия", "приход"}

// shiftScanWindow bounds how many columns to the right the recovery scan
// looks for the displaced price. Empirical, like the markers themselves.
const shiftScanWindow = 3

// isNumericField reports whether the raw column content looks like a number.
func isNumericField(s string) bool {
	return numericPattern.MatchString(strings.TrimSpace(s))
}

// recoverFieldShift handles the upstream defect where free text (often
// containing the field delimiter itself) lands in the price column and
// pushes every later column to the right. It scans up to shiftScanWindow
// columns after the expected price position for the first numeric value
// and returns the offset by which subsequent columns are displaced.
// Best effort: a zero return with ok=false means the row could not be
// realigned and price parsing falls back to zero.
func recoverFieldShift(fields []string, priceIdx int) (shift int, ok bool) {
	for off := 1; off <= shiftScanWindow; off++ {
		idx := priceIdx + off
		if idx >= len(fields) {
			return 0, false
		}
		if isNumericField(fields[idx]) {
			return off, true
		}
	}
	return 0, false
}

// hasShiftMarker reports whether the contaminated price field carries one
// of the known leak markers.
func hasShiftMarker(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range shiftMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
