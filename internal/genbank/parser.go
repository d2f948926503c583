package genbank

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrMalformedRecord means the text has no parseable LOCUS header.
	ErrMalformedRecord = errors.New("genbank: malformed record, no LOCUS header")
	// ErrMissingSourceFeature means the first feature of the record is not "source".
	ErrMissingSourceFeature = errors.New("genbank: first feature is not source")
	// ErrDateFormat means a release date could not be normalized to YYYY-MM-DD.
	ErrDateFormat = errors.New("genbank: unparseable release date")
)

// Feature is one entry of the flat-file feature table. Coordinates are
// 1-based inclusive. Qualifiers are populated only for the "source" feature.
type Feature struct {
	Key        string
	Start      int
	Stop       int
	Qualifiers map[string]string
}

// Length is derived from the interval, never stored independently.
func (f Feature) Length() int {
	return f.Stop - f.Start
}

// Record is the structured form of one GenBank flat file.
type Record struct {
	Locus        string
	Accession    string
	Version      string
	Organism     string
	Date         string // raw LOCUS date, e.g. "15-MAR-2020"
	DateReleased string // normalized YYYY-MM-DD, empty when Date did not parse
	Length       int    // sequence length in basepairs
	Features     []Feature
}

var month = map[string]string{
	"JAN": "01", "FEB": "02", "MAR": "03", "APR": "04",
	"MAY": "05", "JUN": "06", "JUL": "07", "AUG": "08",
	"SEP": "09", "OCT": "10", "NOV": "11", "DEC": "12",
}

var locationRe = regexp.MustCompile(`[<>]?(\d+)\.\.[<>]?(\d+)`)

// Parse reads a GenBank flat file into a Record. It is a pure function: no
// I/O, deterministic for identical input. Only the header fields and the
// feature table are consumed; sequence data is skipped.
func Parse(text string) (*Record, error) {
	rec := &Record{}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	inFeatures := false
	var current *Feature
	var qualifierKey string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "LOCUS"):
			parseLocus(line, rec)

		case strings.HasPrefix(line, "ACCESSION"):
			if fields := strings.Fields(line); len(fields) > 1 {
				rec.Accession = fields[1]
			}

		case strings.HasPrefix(line, "VERSION"):
			if fields := strings.Fields(line); len(fields) > 1 {
				rec.Version = fields[1]
			}

		case strings.HasPrefix(line, "  ORGANISM"):
			rec.Organism = strings.TrimSpace(strings.TrimPrefix(line, "  ORGANISM"))

		case strings.HasPrefix(line, "FEATURES"):
			inFeatures = true

		case strings.HasPrefix(line, "ORIGIN"), strings.HasPrefix(line, "//"):
			inFeatures = false
			if current != nil {
				rec.Features = append(rec.Features, *current)
				current = nil
			}

		case inFeatures:
			if key, loc, ok := featureHeader(line); ok {
				if current != nil {
					rec.Features = append(rec.Features, *current)
				}
				start, stop := parseLocation(loc)
				current = &Feature{Key: key, Start: start, Stop: stop}
				qualifierKey = ""
				continue
			}
			if current == nil {
				continue
			}
			if current.Key != "source" {
				// Only source qualifiers are ever consumed downstream.
				continue
			}
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "/") {
				qualifierKey = addQualifier(current, trimmed)
			} else if qualifierKey != "" && current.Qualifiers != nil {
				// Continuation of a wrapped qualifier value.
				prev := current.Qualifiers[qualifierKey]
				current.Qualifiers[qualifierKey] = strings.TrimSuffix(prev+" "+trimmed, `"`)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("genbank: scan record: %w", err)
	}

	if rec.Locus == "" {
		return nil, ErrMalformedRecord
	}
	if rec.Accession == "" {
		rec.Accession = rec.Locus
	}
	if rec.Version == "" {
		rec.Version = rec.Accession
	}
	if released, err := FormatDate(rec.Date); err == nil {
		// A bad date fails the field, not the record.
		rec.DateReleased = released
	}

	return rec, nil
}

// SourceData returns the qualifier map of the record's source feature.
// Specimen metadata (host, country, collection_date) is only ever read from
// the first feature, which GenBank convention requires to be "source".
func SourceData(rec *Record) (map[string]string, error) {
	if len(rec.Features) == 0 || rec.Features[0].Key != "source" {
		return nil, ErrMissingSourceFeature
	}
	return rec.Features[0].Qualifiers, nil
}

// FormatDate converts a GenBank date like "15-MAR-2020" to "2020-03-15".
func FormatDate(date string) (string, error) {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: %q", ErrDateFormat, date)
	}
	m, ok := month[strings.ToUpper(parts[1])]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrDateFormat, date)
	}
	day := parts[0]
	if len(day) == 1 {
		day = "0" + day
	}
	if _, err := strconv.Atoi(day); err != nil {
		return "", fmt.Errorf("%w: %q", ErrDateFormat, date)
	}
	if _, err := strconv.Atoi(parts[2]); err != nil {
		return "", fmt.Errorf("%w: %q", ErrDateFormat, date)
	}
	return fmt.Sprintf("%s-%s-%s", parts[2], m, day), nil
}

// parseLocus fills locus name, sequence length and raw date from the LOCUS
// line, e.g. "LOCUS       MT123292    29903 bp    RNA   linear   VRL 15-MAR-2020".
func parseLocus(line string, rec *Record) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return
	}
	rec.Locus = fields[1]
	for i := 2; i < len(fields); i++ {
		if fields[i] == "bp" && i > 0 {
			if n, err := strconv.Atoi(fields[i-1]); err == nil {
				rec.Length = n
			}
		}
	}
	last := fields[len(fields)-1]
	if strings.Count(last, "-") == 2 {
		rec.Date = last
	}
}

// featureHeader reports whether the line opens a new feature. Feature keys
// start at column 6 of the table; qualifier and continuation lines are
// indented further.
func featureHeader(line string) (key, location string, ok bool) {
	if len(line) < 6 || !strings.HasPrefix(line, "     ") || line[5] == ' ' {
		return "", "", false
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", "", false
	}
	key = fields[0]
	if len(fields) > 1 {
		location = fields[1]
	}
	return key, location, true
}

// parseLocation extracts the outermost interval from a location string such
// as "266..21555", "<1..29903" or "complement(join(2691..4572,4918..5163))".
func parseLocation(loc string) (start, stop int) {
	if m := locationRe.FindAllStringSubmatch(loc, -1); len(m) > 0 {
		start, _ = strconv.Atoi(m[0][1])
		stop, _ = strconv.Atoi(m[len(m)-1][2])
		return start, stop
	}
	// Single-base locations like "4618".
	if n, err := strconv.Atoi(strings.Trim(loc, "<>")); err == nil {
		return n, n
	}
	return 0, 0
}

// addQualifier parses one "/key=value" line into the feature's qualifier map
// and returns the key so wrapped values can be continued. Only the outermost
// quotes are stripped; inner quotes and equals signs are preserved verbatim.
func addQualifier(f *Feature, line string) string {
	if f.Qualifiers == nil {
		f.Qualifiers = make(map[string]string)
	}
	body := strings.TrimPrefix(line, "/")
	key := body
	value := ""
	if i := strings.Index(body, "="); i >= 0 {
		key = body[:i]
		value = trimOuterQuotes(body[i+1:])
	}
	f.Qualifiers[key] = value
	return key
}

func trimOuterQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return s
}
