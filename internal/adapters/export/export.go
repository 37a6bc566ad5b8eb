// Package export writes derived tables as CSV, Parquet or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/load"
	"github.com/okian/stride/internal/domain/pipeline"
	"github.com/okian/stride/internal/domain/sport"
)

// Format is an output encoding.
type Format string

// Supported formats.
const (
	CSV     Format = "csv"
	Parquet Format = "parquet"
	JSON    Format = "json"
)

// ParseFormat resolves a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, Parquet, JSON:
		return f, nil
	case "":
		return CSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

type record interface {
	header() []string
	values() []string
}

// Activities writes the normalized table.
func Activities(w io.Writer, f Format, tbl activity.Table) error {
	return write(w, f, activityRecords(tbl))
}

// View writes one per-sport view.
func View(w io.Writer, f Format, v sport.View) error {
	return write(w, f, viewRecords(v))
}

// Load writes the load series.
func Load(w io.Writer, f Format, s load.Series) error {
	return write(w, f, loadRecords(s))
}

// WriteResult writes the normalized table, every view and the load series of
// res into dir and returns the paths written.
func WriteResult(dir string, f Format, res pipeline.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	emit := func(name string, fn func(io.Writer) error) (err error) {
		p := filepath.Join(dir, name+"."+string(f))
		file, err := os.Create(p)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, file.Close()) }()
		if err := fn(file); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
		paths = append(paths, p)
		return nil
	}

	if err := emit("activities", func(w io.Writer) error { return Activities(w, f, res.Table) }); err != nil {
		return paths, err
	}
	for _, v := range res.Views.Ordered() {
		name := strings.ToLower(strings.ReplaceAll(string(v.Category), " ", "_"))
		if err := emit(name, func(w io.Writer) error { return View(w, f, v) }); err != nil {
			return paths, err
		}
	}
	if err := emit("load", func(w io.Writer) error { return Load(w, f, res.Load) }); err != nil {
		return paths, err
	}
	return paths, nil
}

func write[T record](w io.Writer, f Format, rows []T) error {
	switch f {
	case CSV:
		return writeCSV(w, rows)
	case Parquet:
		return writeParquet(w, rows)
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if rows == nil {
			rows = []T{}
		}
		return enc.Encode(rows)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

func writeCSV[T record](w io.Writer, rows []T) error {
	cw := csv.NewWriter(w)
	var zero T
	if err := cw.Write(zero.header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeParquet[T record](w io.Writer, rows []T) error {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(T), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range rows {
		if err := pw.Write(r); err != nil {
			_ = pw.WriteStop()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return err
	}
	if err := fw.Close(); err != nil {
		return err
	}
	_, err = w.Write(fw.Bytes())
	return err
}
