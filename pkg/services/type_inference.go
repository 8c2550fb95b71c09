package services

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/datakiln/ingest-engine/pkg/config"
	"github.com/datakiln/ingest-engine/pkg/models"
)

const (
	// categoricalMaxDistinct caps the distinct count for categorical columns.
	categoricalMaxDistinct = 1000
	// categoricalMaxRatio caps distinct/non-null for categorical columns.
	categoricalMaxRatio = 0.5
	// conversionSampleSize is how many converted values the log records.
	conversionSampleSize = 3
)

// boolVocabulary is the fixed 8-symbol vocabulary for boolean detection.
var boolVocabulary = map[string]bool{
	"true": true, "yes": true, "1": true, "y": true,
	"false": false, "no": false, "0": false, "n": false,
}

// TypeInferenceService detects and converts a textual column to its semantic
// type. Detection order: numeric, timestamp, boolean, categorical; the
// original string column is the default when no rule qualifies. Applying the
// conversion twice is idempotent: already-typed columns pass through with no
// log entry.
type TypeInferenceService interface {
	// InferAndConvert returns the (possibly new) column and a log entry when
	// the type changed, nil otherwise.
	InferAndConvert(col *models.Column) (*models.Column, *models.ConversionLogEntry)

	// InferTable converts every column of t in place and returns the
	// conversion log.
	InferTable(t *models.Table) []models.ConversionLogEntry
}

type typeInferenceService struct {
	numericThreshold   float64
	timestampThreshold float64
}

// NewTypeInferenceService creates an inferencer bound to the configured
// acceptance thresholds.
func NewTypeInferenceService(cfg config.IngestConfig) TypeInferenceService {
	return &typeInferenceService{
		numericThreshold:   cfg.NumericThreshold,
		timestampThreshold: cfg.TimestampThreshold,
	}
}

func (s *typeInferenceService) InferTable(t *models.Table) []models.ConversionLogEntry {
	var log []models.ConversionLogEntry
	for i, col := range t.Columns {
		converted, entry := s.InferAndConvert(col)
		t.Columns[i] = converted
		if entry != nil {
			log = append(log, *entry)
		}
	}
	return log
}

func (s *typeInferenceService) InferAndConvert(col *models.Column) (*models.Column, *models.ConversionLogEntry) {
	// Only untyped text columns are candidates; everything else already
	// carries a semantic type.
	if col.Type != models.DTypeString {
		return col, nil
	}

	nonNull := col.NonNullCount()
	if nonNull == 0 {
		return col, nil
	}

	if converted := s.tryNumeric(col, nonNull); converted != nil {
		return converted, logEntry(col, converted)
	}
	if converted := s.tryTimestamp(col, nonNull); converted != nil {
		return converted, logEntry(col, converted)
	}
	if converted := tryBoolean(col); converted != nil {
		return converted, logEntry(col, converted)
	}
	if converted := tryCategorical(col, nonNull); converted != nil {
		return converted, logEntry(col, converted)
	}

	return col, nil
}

func logEntry(from, to *models.Column) *models.ConversionLogEntry {
	samples := make([]string, 0, conversionSampleSize)
	for i := 0; i < to.Len() && len(samples) < conversionSampleSize; i++ {
		if !to.IsNull(i) {
			samples = append(samples, to.Render(i))
		}
	}
	return &models.ConversionLogEntry{
		Column:       to.Name,
		FromType:     from.Type,
		ToType:       to.Type,
		SampleValues: samples,
	}
}

// stripNumeric removes currency symbols, grouping separators and other
// non-numeric characters, leaving digits, sign, decimal point and exponent.
func stripNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+', r == 'e', r == 'E':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *typeInferenceService) tryNumeric(col *models.Column, nonNull int) *models.Column {
	values := col.Strings()

	ints := make([]int64, col.Len())
	floats := make([]float64, col.Len())
	valid := make([]bool, col.Len())
	allInt := true
	parsed := 0
	var min, max float64
	first := true

	for i := range values {
		if col.IsNull(i) {
			continue
		}
		stripped := stripNumeric(strings.TrimSpace(values[i]))
		if stripped == "" {
			continue
		}
		if iv, err := strconv.ParseInt(stripped, 10, 64); err == nil {
			ints[i] = iv
			floats[i] = float64(iv)
		} else if fv, err := strconv.ParseFloat(stripped, 64); err == nil {
			floats[i] = fv
			if fv != math.Trunc(fv) || fv > math.MaxInt64 || fv < math.MinInt64 {
				allInt = false
			} else {
				ints[i] = int64(fv)
			}
		} else {
			continue
		}
		valid[i] = true
		parsed++
		if first {
			min, max = floats[i], floats[i]
			first = false
		} else {
			min = math.Min(min, floats[i])
			max = math.Max(max, floats[i])
		}
	}

	if parsed == 0 || float64(parsed) < s.numericThreshold*float64(nonNull) {
		return nil
	}

	if allInt {
		return models.NewIntColumn(col.Name, integerWidth(min, max), ints, valid)
	}
	return models.NewFloatColumn(col.Name, models.WidthFloat32, floats, valid)
}

// integerWidth picks the narrowest rung of the width ladder covering
// [min, max], unsigned when min is non-negative.
func integerWidth(min, max float64) models.Width {
	if min >= 0 {
		switch {
		case max <= math.MaxUint8:
			return models.WidthUint8
		case max <= math.MaxUint16:
			return models.WidthUint16
		case max <= math.MaxUint32:
			return models.WidthUint32
		default:
			return models.WidthUint64
		}
	}
	switch {
	case min >= math.MinInt8 && max <= math.MaxInt8:
		return models.WidthInt8
	case min >= math.MinInt16 && max <= math.MaxInt16:
		return models.WidthInt16
	case min >= math.MinInt32 && max <= math.MaxInt32:
		return models.WidthInt32
	default:
		return models.WidthInt64
	}
}

func (s *typeInferenceService) tryTimestamp(col *models.Column, nonNull int) *models.Column {
	values := col.Strings()

	times := make([]time.Time, col.Len())
	valid := make([]bool, col.Len())
	parsed := 0

	for i := range values {
		if col.IsNull(i) {
			continue
		}
		ts, err := dateparse.ParseAny(strings.TrimSpace(values[i]))
		if err != nil {
			continue
		}
		times[i] = ts
		valid[i] = true
		parsed++
	}

	if parsed == 0 || float64(parsed) < s.timestampThreshold*float64(nonNull) {
		return nil
	}
	return models.NewTimestampColumn(col.Name, times, valid)
}

func tryBoolean(col *models.Column) *models.Column {
	values := col.Strings()

	distinct := make(map[string]struct{}, 2)
	for i := range values {
		if col.IsNull(i) {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(values[i]))
		if _, ok := boolVocabulary[lower]; !ok {
			return nil
		}
		distinct[lower] = struct{}{}
		if len(distinct) > 2 {
			return nil
		}
	}
	if len(distinct) == 0 {
		return nil
	}

	bools := make([]bool, col.Len())
	valid := make([]bool, col.Len())
	for i := range values {
		if col.IsNull(i) {
			continue
		}
		bools[i] = boolVocabulary[strings.ToLower(strings.TrimSpace(values[i]))]
		valid[i] = true
	}
	return models.NewBoolColumn(col.Name, bools, valid)
}

func tryCategorical(col *models.Column, nonNull int) *models.Column {
	values := col.Strings()

	distinct := make(map[string]struct{})
	for i := range values {
		if col.IsNull(i) {
			continue
		}
		distinct[values[i]] = struct{}{}
		if len(distinct) >= categoricalMaxDistinct {
			return nil
		}
	}

	ratio := float64(len(distinct)) / float64(nonNull)
	if ratio >= categoricalMaxRatio {
		return nil
	}

	valid := make([]bool, col.Len())
	copy(valid, col.Valid)
	out := make([]string, col.Len())
	copy(out, values)
	return models.NewCategoricalColumn(col.Name, out, valid)
}
