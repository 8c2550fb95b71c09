package services

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/datakiln/ingest-engine/pkg/apperrors"
	"github.com/datakiln/ingest-engine/pkg/config"
)

// mediaTypes is the fixed extension allow-list mapped to declared media types.
var mediaTypes = map[string]string{
	".csv":     "text/csv",
	".tsv":     "text/tab-separated-values",
	".txt":     "text/plain",
	".xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":     "application/vnd.ms-excel",
	".json":    "application/json",
	".jsonl":   "application/jsonlines",
	".ndjson":  "application/jsonlines",
	".parquet": "application/octet-stream",
}

// textExtensions are formats where encoding detection applies.
var textExtensions = map[string]bool{
	".csv": true, ".tsv": true, ".txt": true, ".json": true, ".jsonl": true, ".ndjson": true,
}

// delimitedExtensions are formats parsed as separated text.
var delimitedExtensions = map[string]bool{
	".csv": true, ".tsv": true, ".txt": true,
}

const (
	// encodingProbeLimit bounds how much of the file the detector reads.
	encodingProbeLimit = 10 * 1024
	// encodingConfidenceMin is the detector confidence (0-100) below which
	// the fixed fallback list is probed instead.
	encodingConfidenceMin = 70
	// separatorSampleLines is how many non-blank lines vote on a separator.
	separatorSampleLines = 10
)

// separatorCandidates in spec order. The tie rule prefers the highest
// per-line count among candidates that are consistent across all lines.
var separatorCandidates = []rune{',', ';', '\t', '|'}

// encodingFallbacks probed in order when statistical detection is not
// confident. latin-1 accepts every byte value, so the probe terminates.
var encodingFallbacks = []string{"utf-8", "latin-1", "cp1252", "iso-8859-1"}

// ValidationService performs pure pre-parse checks: extension, size,
// emptiness, encoding and separator detection. All findings are returned as
// values; nothing is logged as a side channel.
type ValidationService interface {
	// Validate returns one finding per failed check, each wrapping the
	// apperrors sentinel that triggered it; an empty slice means the input
	// passed every check.
	Validate(data []byte, name string) []error

	// DetectEncoding names the text encoding of data, or returns
	// apperrors.ErrUndetectableText.
	DetectEncoding(data []byte) (string, error)

	// DetectSeparator returns the delimiter recovered from sample text, or
	// ',' when no candidate is consistent.
	DetectSeparator(sample string) rune

	// DecodeText decodes data using the named encoding. Strict: invalid
	// input fails rather than being replaced.
	DecodeText(data []byte, encoding string) (string, error)
}

type validationService struct {
	maxFileSize int64
}

// NewValidationService creates a validator bound to the configured limits.
func NewValidationService(cfg config.IngestConfig) ValidationService {
	return &validationService{maxFileSize: cfg.MaxFileSizeBytes}
}

// MediaTypeFor returns the declared media type for a supported file name,
// looking through any trailing compression extension.
func MediaTypeFor(name string) (string, bool) {
	ext, _ := splitExtensions(name)
	mt, ok := mediaTypes[ext]
	return mt, ok
}

// SupportedExtensions lists the accepted input extensions in sorted order.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(mediaTypes))
	for ext := range mediaTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// splitExtensions separates the format extension from an optional trailing
// compression extension: "x.csv.gz" -> (".csv", ".gz").
func splitExtensions(name string) (format string, compression string) {
	lower := strings.ToLower(name)
	for _, cext := range []string{".gz", ".zst", ".xz", ".bz2"} {
		if strings.HasSuffix(lower, cext) {
			compression = cext
			lower = strings.TrimSuffix(lower, cext)
			break
		}
	}
	if i := strings.LastIndex(lower, "."); i >= 0 {
		format = lower[i:]
	}
	return format, compression
}

func (v *validationService) Validate(data []byte, name string) []error {
	var findings []error

	ext, _ := splitExtensions(name)
	if _, ok := mediaTypes[ext]; !ok {
		findings = append(findings, fmt.Errorf("%s: %w (extension %q)", name, apperrors.ErrUnsupportedFormat, ext))
		return findings
	}

	if len(data) == 0 {
		findings = append(findings, fmt.Errorf("%s: %w", name, apperrors.ErrEmptyFile))
		return findings
	}
	if int64(len(data)) > v.maxFileSize {
		findings = append(findings, fmt.Errorf("%s: %w (%d bytes, limit %d)",
			name, apperrors.ErrFileTooLarge, len(data), v.maxFileSize))
		return findings
	}

	if textExtensions[ext] {
		prefix := data
		if len(prefix) > encodingProbeLimit {
			prefix = prefix[:encodingProbeLimit]
		}
		if _, err := v.DetectEncoding(prefix); err != nil {
			findings = append(findings, fmt.Errorf("%s: %w", name, err))
		}
	}

	return findings
}

func (v *validationService) DetectEncoding(data []byte) (string, error) {
	if len(data) > encodingProbeLimit {
		data = data[:encodingProbeLimit]
	}

	detector := chardet.NewTextDetector()
	if result, err := detector.DetectBest(data); err == nil && result.Confidence >= encodingConfidenceMin {
		return strings.ToLower(result.Charset), nil
	}

	for _, enc := range encodingFallbacks {
		if _, err := v.DecodeText(data, enc); err == nil {
			return enc, nil
		}
	}
	return "", apperrors.ErrUndetectableText
}

func (v *validationService) DetectSeparator(sample string) rune {
	lines := make([]string, 0, separatorSampleLines)
	for _, line := range strings.Split(sample, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == separatorSampleLines {
			break
		}
	}

	best := ','
	bestCount := 0
	for _, cand := range separatorCandidates {
		count := consistentCount(lines, cand)
		if count > bestCount {
			best = cand
			bestCount = count
		}
	}
	return best
}

// consistentCount returns the per-line occurrence count of sep if every line
// has the same positive count, else 0.
func consistentCount(lines []string, sep rune) int {
	count := -1
	for _, line := range lines {
		n := strings.Count(line, string(sep))
		if n == 0 {
			return 0
		}
		if count == -1 {
			count = n
		} else if n != count {
			return 0
		}
	}
	if count < 0 {
		return 0
	}
	return count
}

func (v *validationService) DecodeText(data []byte, encoding string) (string, error) {
	switch normalizeEncodingName(encoding) {
	case "utf-8", "ascii":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("input is not valid UTF-8")
		}
		return string(data), nil
	case "iso-8859-1":
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode iso-8859-1: %w", err)
		}
		return string(out), nil
	case "windows-1252":
		out, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode windows-1252: %w", err)
		}
		return string(out), nil
	}

	// Arbitrary charsets reported by the statistical detector resolve
	// through the IANA/WHATWG index.
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return "", fmt.Errorf("unknown encoding %q: %w", encoding, err)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", encoding, err)
	}
	return string(out), nil
}

func normalizeEncodingName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		return "utf-8"
	case "ascii", "us-ascii":
		return "ascii"
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1":
		return "iso-8859-1"
	case "cp1252", "windows-1252":
		return "windows-1252"
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

// decodePermissive decodes with the named encoding, replacing undecodable
// bytes instead of failing. Used by the last delimited-text fallback stage.
func decodePermissive(data []byte, encoding string) string {
	switch normalizeEncodingName(encoding) {
	case "utf-8", "ascii":
		return strings.ToValidUTF8(string(data), string(utf8.RuneError))
	}
	if enc, err := htmlindex.Get(encoding); err == nil {
		if out, err := enc.NewDecoder().Bytes(data); err == nil {
			return string(out)
		}
	}
	// latin-1 maps every byte, so this never loses content.
	out, _ := charmap.ISO8859_1.NewDecoder().Bytes(data)
	return string(out)
}
