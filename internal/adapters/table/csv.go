// Package table loads ride batches from CSV into dataframes and writes them back.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/okian/farewatch/internal/domain/model"
)

const utf8BOM = "\ufeff"

// columnTypes pins the types of known columns; everything else stays text so
// passthrough values such as ids are exported byte-for-byte.
var columnTypes = map[string]series.Type{
	model.ColFare:      series.Float,
	model.ColDistance:  series.Float,
	model.ColDuration:  series.Float,
	model.ColTimestamp: series.String,
}

// ReadCSV parses a comma-separated stream with a header row into a frame.
// Short rows are padded with empty cells; rows longer than the header are rejected.
func ReadCSV(r io.Reader) (dataframe.DataFrame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("%w: %w", ErrRead, err)
	}
	if len(records) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("%w: missing header row", ErrRead)
	}

	header := normalizeHeader(records[0])
	rows := records[1:]
	for i, row := range rows {
		switch {
		case len(row) > len(header):
			return dataframe.DataFrame{}, fmt.Errorf("%w: line %d has %d fields, header has %d", ErrRead, i+2, len(row), len(header))
		case len(row) < len(header):
			padded := make([]string, len(header))
			copy(padded, row)
			rows[i] = padded
		}
	}

	if len(rows) == 0 {
		return emptyFrame(header), nil
	}

	all := make([][]string, 0, len(rows)+1)
	all = append(all, header)
	all = append(all, rows...)
	df := dataframe.LoadRecords(all,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(columnTypes),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("%w: %w", ErrRead, df.Err)
	}
	return df, nil
}

// WriteCSV writes df with a header row. Float cells use the shortest
// representation that reads back to the same value; missing floats are empty.
func WriteCSV(w io.Writer, df dataframe.DataFrame) error {
	if df.Err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, df.Err)
	}

	names := df.Names()
	cols := make([][]string, len(names))
	for j, name := range names {
		col := df.Col(name)
		if col.Type() != series.Float {
			cols[j] = col.Records()
			continue
		}
		vals := col.Float()
		cells := make([]string, len(vals))
		for i, v := range vals {
			if math.IsNaN(v) {
				continue
			}
			cells[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		cols[j] = cells
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(names); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	row := make([]string, len(names))
	for i := 0; i < df.Nrow(); i++ {
		for j := range cols {
			row[j] = cols[j][i]
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// normalizeHeader trims whitespace and a leading byte-order mark.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

// emptyFrame builds a zero-row frame that still carries the header, so schema
// checks behave the same for header-only uploads.
func emptyFrame(header []string) dataframe.DataFrame {
	cols := make([]series.Series, len(header))
	for i, name := range header {
		t, ok := columnTypes[name]
		if !ok {
			t = series.String
		}
		cols[i] = series.New([]string{}, t, name)
	}
	return dataframe.New(cols...)
}

// Sentinel kinds for table errors.
var (
	ErrRead  = errors.New("read csv")
	ErrWrite = errors.New("write csv")
)
