// Package db supplies candle sequences to backtests from SQL databases,
// memory, or bar files.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirphl/strategy-lab/internal/candle"
)

var ErrUnsupportedSource = errors.New("unsupported candle source")

// Reader loads candles ordered by timestamp. The range is half-open
// [start, end); a zero end means no upper bound. Empty symbol or
// timeframe disables that filter.
type Reader interface {
	GetCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error)
}

type Writer interface {
	SaveCandles(ctx context.Context, candles []candle.Candle) error
}

// Storage is a Reader bound to an open backend.
type Storage interface {
	Reader
	Close() error
}

type Kind string

const (
	KindPostgres Kind = "postgres"
	KindSQLite   Kind = "sqlite"
	KindMemory   Kind = "memory"
	KindFile     Kind = "file"
)

// Source names a candle backend. DSN is used by postgres, Path by sqlite
// and file.
type Source struct {
	Kind Kind   `yaml:"kind" json:"kind"`
	Path string `yaml:"path" json:"path,omitempty"`
	DSN  string `yaml:"dsn" json:"dsn,omitempty"`
}

type Options struct {
	MaxOpenConns   int
	MaxIdleConns   int
	ConnectTimeout time.Duration
	Logger         zerolog.Logger
}

// Open connects to the backend src describes.
func Open(ctx context.Context, src Source, opts Options) (Storage, error) {
	switch Kind(strings.ToLower(string(src.Kind))) {
	case KindPostgres:
		if src.DSN == "" {
			return nil, fmt.Errorf("%w: postgres source needs a dsn", ErrUnsupportedSource)
		}
		pg, err := OpenPostgres(ctx, src.DSN, opts)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case KindSQLite:
		if src.Path == "" {
			return nil, fmt.Errorf("%w: sqlite source needs a path", ErrUnsupportedSource)
		}
		lite, err := OpenSQLite(ctx, src.Path, opts)
		if err != nil {
			return nil, err
		}
		return lite, nil
	case KindMemory:
		return NewMemory(), nil
	case KindFile:
		f, err := OpenFile(src.Path)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, src.Kind)
	}
}

// matches applies the Reader filter rules to one candle. Candles without a
// symbol or timeframe pass the corresponding filter.
func matches(c candle.Candle, symbol, timeframe string, start, end time.Time) bool {
	if symbol != "" && c.Symbol != "" && !strings.EqualFold(c.Symbol, symbol) {
		return false
	}
	if timeframe != "" && c.Timeframe != "" && c.Timeframe != timeframe {
		return false
	}
	if c.Timestamp.Before(start) {
		return false
	}
	return end.IsZero() || c.Timestamp.Before(end)
}
