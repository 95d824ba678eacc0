// Package ingest parses normalized pharmacy catalog exports into product
// records. The format is positional, semicolon-delimited, 15 leading
// columns per row, produced by POS systems with known data-quality defects
// that the parser recovers from instead of failing the run.
package ingest

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/catalog"
)

// Column positions in the export layout.
const (
	colName = iota
	colManufacturer
	colCountry
	colSerial
	colPrice
	colQuantity
	colTotalPrice
	colExpiryDate
	colCategory
	colImportDate
	colInternalCode
	colWholesalePrice
	colRetailPrice
	colDistributor
	colInternalID
	columnCount
)

const (
	delimiter = ";"
	// minColumns is the threshold below which a row is counted malformed;
	// everything through the expiry column must be present.
	minColumns = colExpiryDate + 1
	// maxMoney clamps numeric fields to the storage type's range.
	maxMoney = 9_999_999.99
)

// headerMarker identifies a header line when found in the first row.
var headerMarker = "наименование"

// medicinalCategory marks rows whose name field combines product name and
// dosage form and therefore needs splitting.
var medicinalCategory = "лексредства"

// ParseStats counts per-run parse outcomes for operator visibility.
type ParseStats struct {
	TotalLines      int `json:"total_lines"`
	Parsed          int `json:"parsed"`
	Malformed       int `json:"malformed"`
	EmptyName       int `json:"empty_name"`
	Duplicates      int `json:"duplicates"`
	RecoveredPrices int `json:"recovered_prices"`
	ClampedValues   int `json:"clamped_values"`
	DefaultedDates  int `json:"defaulted_dates"`
}

// ParseResult is the output of one parse run: the ordered records plus the
// fingerprint map used as the proposed new catalog state.
type ParseResult struct {
	Records      []catalog.ProductRecord
	Fingerprints map[string]catalog.ProductRecord
	Stats        ParseStats
}

// Parser turns normalized export text into product records.
type Parser struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewParser constructs a Parser.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{
		logger: logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Parse splits text into rows and extracts one record per usable row.
// Malformed rows are skipped and counted, never fatal.
func (p *Parser) Parse(text string, pharmacyID int64) ParseResult {
	result := ParseResult{Fingerprints: make(map[string]catalog.ProductRecord)}
	seen := make(map[string]struct{})
	parsedAt := p.now()

	lines := splitLines(text)
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		result.Stats.TotalLines++

		if i == 0 && isHeaderLine(line) {
			result.Stats.TotalLines--
			continue
		}

		record, rowStats, ok := p.parseRow(line, parsedAt)
		result.Stats.Malformed += rowStats.Malformed
		result.Stats.EmptyName += rowStats.EmptyName
		result.Stats.RecoveredPrices += rowStats.RecoveredPrices
		result.Stats.ClampedValues += rowStats.ClampedValues
		result.Stats.DefaultedDates += rowStats.DefaultedDates
		if !ok {
			continue
		}

		dupKey := record.Name + "|" + record.Serial + "|" + record.ExpiryDate.Format("2006-01-02")
		if _, dup := seen[dupKey]; dup {
			result.Stats.Duplicates++
			continue
		}
		seen[dupKey] = struct{}{}

		result.Stats.Parsed++
		result.Records = append(result.Records, record)
		result.Fingerprints[record.Fingerprint] = record
	}

	if result.Stats.Malformed > 0 || result.Stats.RecoveredPrices > 0 {
		p.log().Warn("parse run finished with defects",
			slog.Int64("pharmacy_id", pharmacyID),
			slog.Int("malformed", result.Stats.Malformed),
			slog.Int("recovered_prices", result.Stats.RecoveredPrices),
			slog.Int("defaulted_dates", result.Stats.DefaultedDates))
	}
	return result
}

func (p *Parser) parseRow(line string, parsedAt time.Time) (catalog.ProductRecord, ParseStats, bool) {
	var stats ParseStats
	fields := strings.Split(line, delimiter)
	if len(fields) < minColumns {
		stats.Malformed++
		return catalog.ProductRecord{}, stats, false
	}

	name := strings.TrimSpace(fields[colName])
	if name == "" {
		stats.EmptyName++
		return catalog.ProductRecord{}, stats, false
	}

	// Columns after the price column may be displaced by the field-shift
	// defect; shift stays zero on clean rows.
	shift := 0
	if !isNumericField(fields[colPrice]) && strings.TrimSpace(fields[colPrice]) != "" {
		if off, ok := recoverFieldShift(fields, colPrice); ok {
			shift = off
			stats.RecoveredPrices++
			p.log().Warn("recovered shifted price column, row flagged for review",
				slog.String("name", name),
				slog.String("contaminated", strings.TrimSpace(fields[colPrice])),
				slog.Bool("known_marker", hasShiftMarker(fields[colPrice])),
				slog.Int("offset", off))
		}
	}

	field := func(idx int) string {
		if idx >= colPrice {
			idx += shift
		}
		if idx >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[idx])
	}

	record := catalog.ProductRecord{
		Name:         name,
		Form:         formPlaceholder,
		Manufacturer: field(colManufacturer),
		Country:      field(colCountry),
		Serial:       field(colSerial),
		Category:     field(colCategory),
		ImportDate:   field(colImportDate),
		InternalCode: field(colInternalCode),
		Distributor:  field(colDistributor),
		InternalID:   field(colInternalID),
		UpdatedAt:    parsedAt,
	}

	record.Price = p.money(field(colPrice), &stats)
	record.Quantity = p.money(field(colQuantity), &stats)
	record.TotalPrice = p.money(field(colTotalPrice), &stats)
	record.WholesalePrice = p.money(field(colWholesalePrice), &stats)
	record.RetailPrice = p.money(field(colRetailPrice), &stats)

	if expiry, ok := parseDate(field(colExpiryDate)); ok {
		record.ExpiryDate = expiry
	} else {
		record.ExpiryDate = catalog.NoExpirySentinel
		stats.DefaultedDates++
	}

	if isMedicinalCategory(record.Category) {
		record.Name, record.Form = splitNameForm(record.Name)
	}

	record.Fingerprint = catalog.RecordFingerprint(record)
	return record, stats, true
}

// money parses a numeric column, tolerating comma decimals and clamping
// magnitude to the storage range. Unparseable values become zero.
func (p *Parser) money(s string, stats *ParseStats) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0
	}
	if math.Abs(v) > maxMoney {
		stats.ClampedValues++
		p.log().Warn("numeric field clamped", slog.Float64("value", v))
		if v > 0 {
			return maxMoney
		}
		return -maxMoney
	}
	return v
}

func (p *Parser) log() *slog.Logger {
	if p != nil && p.logger != nil {
		return p.logger.With(slog.String("component", "ingest_parser"))
	}
	return slog.Default().With(slog.String("component", "ingest_parser"))
}

func isHeaderLine(line string) bool {
	return strings.Contains(strings.ToLower(line), headerMarker)
}

func isMedicinalCategory(category string) bool {
	return strings.Contains(strings.ToLower(category), medicinalCategory)
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}
