// Package pipeline loads and cleans the raw garments productivity data
// before it is handed to the ml package.
package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Column names the trainer relies on.
const (
	ColumnDepartment         = "department"
	ColumnIncentive          = "incentive"
	ColumnActualProductivity = "actual_productivity"
)

// Ingestion errors.
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrEmptyDataset  = errors.New("no records left after filtering")
)

// Record holds the fields of one raw row that training uses.
type Record struct {
	Department         string  `json:"department"`
	Incentive          float64 `json:"incentive"` // NaN when the cell is empty
	ActualProductivity float64 `json:"actual_productivity"`
}

// Open returns the raw bytes of source decoded to UTF-8. Source is either a
// local path or an http(s) URL; encoding is any WHATWG label ("utf-8",
// "windows-1252", "gbk", ...).
func Open(ctx context.Context, source, encoding string) (io.ReadCloser, error) {
	var body io.ReadCloser
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: unexpected status %s", source, resp.Status)
		}
		body = resp.Body
	} else {
		file, err := os.Open(source)
		if err != nil {
			return nil, err
		}
		body = file
	}

	if encoding == "" || strings.EqualFold(encoding, "utf-8") || strings.EqualFold(encoding, "utf8") {
		return body, nil
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("unknown encoding %q: %w", encoding, err)
	}
	return readCloser{
		Reader: transform.NewReader(body, enc.NewDecoder()),
		Closer: body,
	}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// Load opens source and parses it with LoadCSV.
func Load(ctx context.Context, source, encoding string) ([]Record, error) {
	r, err := Open(ctx, source, encoding)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return LoadCSV(r)
}

// LoadCSV parses a CSV with a header row. Extra columns are ignored; a
// missing department, incentive or actual_productivity column is an error.
func LoadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	cols := make([]int, 0, 3)
	for _, name := range []string{ColumnDepartment, ColumnIncentive, ColumnActualProductivity} {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		cols = append(cols, i)
	}

	var records []Record
	for line := 2; ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			continue
		}
		rec := Record{
			Department:         field(fields, cols[0]),
			Incentive:          parseNumber(field(fields, cols[1])),
			ActualProductivity: parseNumber(field(fields, cols[2])),
		}
		records = append(records, rec)
	}
	return records, nil
}

func field(fields []string, i int) string {
	if i >= len(fields) {
		return ""
	}
	return fields[i]
}

// parseNumber maps empty and pandas-style missing markers to NaN.
func parseNumber(raw string) float64 {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "na", "nan", "null", "n/a":
		return math.NaN()
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
