package db

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/amirphl/strategy-lab/internal/candle"
)

const fileSource = "file"

type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatJSON    FileFormat = "json"
	FormatParquet FileFormat = "parquet"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// jsonBar is the JSON array element layout: one object per bar with a
// string date.
type jsonBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// parquetBar stores the bar open time in unix milliseconds.
type parquetBar struct {
	Timestamp int64   `parquet:"t"`
	Open      float64 `parquet:"o"`
	High      float64 `parquet:"h"`
	Low       float64 `parquet:"l"`
	Close     float64 `parquet:"c"`
	Volume    float64 `parquet:"v"`
}

// File serves the bars of a single CSV, JSON or Parquet file. The whole
// file is read on open.
type File struct {
	path    string
	format  FileFormat
	candles []candle.Candle
}

// FormatOf picks the file format from the extension.
func FormatOf(path string) (FileFormat, error) {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("%w: file extension %q", ErrUnsupportedSource, ext)
	}
}

func OpenFile(path string) (*File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	var candles []candle.Candle
	switch format {
	case FormatCSV:
		candles, err = readCSV(path)
	case FormatJSON:
		candles, err = readJSON(path)
	case FormatParquet:
		candles, err = readParquet(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	for i := range candles {
		candles[i].Source = fileSource
	}
	return &File{path: path, format: format, candles: candle.SortByTime(candles)}, nil
}

func (f *File) GetCandles(_ context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	var out []candle.Candle
	for _, c := range f.candles {
		if matches(c, symbol, timeframe, start, end) {
			out = append(out, c)
		}
	}
	return out, nil
}

// SaveCandles replaces the file contents with candles in the file's format.
func (f *File) SaveCandles(_ context.Context, candles []candle.Candle) error {
	if err := candle.ValidateAll(candles); err != nil {
		return err
	}
	if err := WriteFile(f.path, candles); err != nil {
		return err
	}
	f.candles = candle.SortByTime(candles)
	for i := range f.candles {
		f.candles[i].Source = fileSource
	}
	return nil
}

func (f *File) Close() error { return nil }

// WriteFile writes candles to path in the format its extension names.
func WriteFile(path string, candles []candle.Candle) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	switch format {
	case FormatParquet:
		bars := make([]parquetBar, len(candles))
		for i, c := range candles {
			bars[i] = parquetBar{
				Timestamp: c.Timestamp.UnixMilli(),
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
			}
		}
		return parquet.WriteFile(path, bars)
	case FormatJSON:
		bars := make([]jsonBar, len(candles))
		for i, c := range candles {
			bars[i] = jsonBar{
				Date:   c.Timestamp.UTC().Format(time.RFC3339),
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			}
		}
		data, err := json.MarshalIndent(bars, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	default:
		return writeCSV(path, candles)
	}
}

func readCSV(path string) ([]candle.Candle, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = len(csvHeader)
	r.TrimLeadingSpace = true

	var (
		out  []candle.Candle
		line int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if line == 1 && strings.EqualFold(rec[0], csvHeader[0]) {
			continue
		}

		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var vals [5]float64
		for i := range vals {
			if vals[i], err = strconv.ParseFloat(rec[i+1], 64); err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", line, csvHeader[i+1], err)
			}
		}
		out = append(out, candle.Candle{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return out, nil
}

func writeCSV(path string, candles []candle.Candle) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	w := csv.NewWriter(fh)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	format := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, c := range candles {
		row := []string{
			c.Timestamp.UTC().Format(time.RFC3339),
			format(c.Open), format(c.High), format(c.Low), format(c.Close), format(c.Volume),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func readJSON(path string) ([]candle.Candle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bars []jsonBar
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, err
	}

	out := make([]candle.Candle, len(bars))
	for i, b := range bars {
		ts, err := parseTimestamp(b.Date)
		if err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
		out[i] = candle.Candle{Timestamp: ts, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return out, nil
}

func readParquet(path string) ([]candle.Candle, error) {
	bars, err := parquet.ReadFile[parquetBar](path)
	if err != nil {
		return nil, err
	}
	out := make([]candle.Candle, len(bars))
	for i, b := range bars {
		out[i] = candle.Candle{
			Timestamp: time.UnixMilli(b.Timestamp).UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return out, nil
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

// parseTimestamp accepts RFC 3339, "YYYY-MM-DD[ hh:mm:ss]" or unix time.
// Integers above 1e12 are taken as milliseconds.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}
