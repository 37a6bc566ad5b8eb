// Package source reads raw activity exports: CSV files, FIT files and the
// Strava activity listing.
package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/multierr"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/pkg/logger"
	"github.com/okian/stride/pkg/metrics"
)

// Option configures the readers.
type Option func(*options)

type options struct {
	logger logger.Logger
}

// WithLogger sets the logger used for skipped lines.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) options {
	o := options{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ReadCSV reads an export. Input that is not valid UTF-8 is decoded as
// Latin-1. Lines with the wrong number of fields or broken quoting are
// skipped and logged. Repeated header names become Name, Name.1 and so on.
func ReadCSV(ctx context.Context, r io.Reader, opts ...Option) (activity.RawTable, error) {
	o := newOptions(opts)

	data, err := io.ReadAll(r)
	if err != nil {
		return activity.RawTable{}, fmt.Errorf("read export: %w", err)
	}
	var in io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		in = transform.NewReader(in, charmap.ISO8859_1.NewDecoder())
	}

	cr := csv.NewReader(in)
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return activity.RawTable{}, ErrEmptyInput
	}
	if err != nil {
		return activity.RawTable{}, fmt.Errorf("read header: %w", err)
	}
	cr.FieldsPerRecord = len(header)

	raw := activity.RawTable{Columns: activity.UniqueColumns(header)}
	var skipped error
	bad := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			bad++
			skipped = multierr.Append(skipped, perr)
			continue
		}
		if err != nil {
			return activity.RawTable{}, fmt.Errorf("read export: %w", err)
		}
		raw.Rows = append(raw.Rows, rec)
	}

	if bad > 0 {
		metrics.RecordRowsDropped("malformed", bad)
		o.logger.Warn(ctx, "skipped malformed export lines",
			logger.Int("lines", bad), logger.Error(skipped))
	}
	return raw, nil
}

// ReadFile reads a .csv or .fit export from disk.
func ReadFile(ctx context.Context, path string, opts ...Option) (activity.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return activity.RawTable{}, err
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(ctx, f, opts...)
	case ".fit":
		return ReadFIT(ctx, f, opts...)
	default:
		return activity.RawTable{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Merge stacks tables under the union of their columns, in first-seen order.
func Merge(tables ...activity.RawTable) activity.RawTable {
	var out activity.RawTable
	pos := map[string]int{}
	for _, t := range tables {
		for _, c := range t.Columns {
			if _, ok := pos[c]; !ok {
				pos[c] = len(out.Columns)
				out.Columns = append(out.Columns, c)
			}
		}
	}
	for _, t := range tables {
		for _, row := range t.Rows {
			merged := make([]string, len(out.Columns))
			for i, c := range t.Columns {
				if i < len(row) {
					merged[pos[c]] = row[i]
				}
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out
}

// WriteCSV writes raw as an export-shaped CSV. Suffixed duplicate columns
// are written under their base name.
func WriteCSV(w io.Writer, raw activity.RawTable) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(raw.Columns))
	for i, c := range raw.Columns {
		header[i] = c
		if c == activity.ColDistanceDup {
			header[i] = activity.ColDistance
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(raw.Rows); err != nil {
		return err
	}
	return cw.Error()
}
