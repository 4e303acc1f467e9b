// Package config
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/amirphl/strategy-lab/internal/db"
	"github.com/amirphl/strategy-lab/internal/strategy"
	"github.com/amirphl/strategy-lab/internal/tfutils"
)

/*
YAML config example:
mode: backtest
source:
  kind: sqlite
  path: data/candles.db
symbol: BTC-USDT
timeframe: 1h
from: 2023-01-01
to: 2024-01-01
sampling: volume
strategies:
  - kind: crossover
    short: 10
    long: 50
  - kind: threshold
    period: 14
    lower: 30
    upper: 70
  - kind: edge
    seed: 42
log_level: debug
*/

var ErrInvalidConfig = errors.New("invalid config")

const (
	ModeBacktest = "backtest"
	ModeServe    = "serve"

	SamplingTime   = "time"
	SamplingVolume = "volume"
)

type Config struct {
	Mode       string          `yaml:"mode"`
	Source     db.Source       `yaml:"source"`
	Symbol     string          `yaml:"symbol"`
	Timeframe  string          `yaml:"timeframe"`
	From       Date            `yaml:"from"`
	To         Date            `yaml:"to"`
	Sampling   string          `yaml:"sampling"`
	ResampleTo string          `yaml:"resample_to"`
	Strategies []strategy.Spec `yaml:"strategies"`
	Seed       *uint64         `yaml:"seed"`

	LogLevel    string `yaml:"log_level"`
	LogPretty   bool   `yaml:"log_pretty"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	OutDir      string `yaml:"out_dir"`

	DBMaxOpen        int           `yaml:"db_max_open"`
	DBMaxIdle        int           `yaml:"db_max_idle"`
	DBConnectTimeout time.Duration `yaml:"db_connect_timeout"`
}

// DBOptions returns the storage options the config describes.
func (c Config) DBOptions() db.Options {
	return db.Options{
		MaxOpenConns:   c.DBMaxOpen,
		MaxIdleConns:   c.DBMaxIdle,
		ConnectTimeout: c.DBConnectTimeout,
	}
}

// StrategySpecs returns the configured specs with the global seed applied
// to edge rules that have none of their own.
func (c Config) StrategySpecs() []strategy.Spec {
	out := make([]strategy.Spec, len(c.Strategies))
	copy(out, c.Strategies)
	if c.Seed == nil {
		return out
	}
	for i := range out {
		if strings.EqualFold(string(out[i].Kind), string(strategy.KindEdge)) && out[i].Seed == nil {
			seed := *c.Seed
			out[i].Seed = &seed
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeBacktest:
		if c.Source.Kind == "" {
			errs = append(errs, errors.New("backtest mode needs a candle source"))
		}
		if len(c.Strategies) == 0 {
			errs = append(errs, errors.New("backtest mode needs at least one strategy"))
		}
	case ModeServe:
		if c.ListenAddr == "" {
			errs = append(errs, errors.New("serve mode needs a listen address"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}

	switch c.Sampling {
	case "", SamplingTime, SamplingVolume:
	default:
		errs = append(errs, fmt.Errorf("unknown sampling %q", c.Sampling))
	}
	if c.Timeframe != "" && !tfutils.IsValidTimeframe(c.Timeframe) {
		errs = append(errs, fmt.Errorf("unsupported timeframe %q", c.Timeframe))
	}
	if c.ResampleTo != "" && !tfutils.IsValidTimeframe(c.ResampleTo) {
		errs = append(errs, fmt.Errorf("unsupported resample timeframe %q", c.ResampleTo))
	}
	if !c.From.IsZero() && !c.To.IsZero() && !c.From.Before(c.To.Time) {
		errs = append(errs, fmt.Errorf("from %s must be before to %s", c.From, c.To))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Load builds the config from args. A .env file is read first (missing is
// fine) so DB_CONN_STR and LOG_LEVEL can seed flag defaults; a -config YAML
// file then overrides anything set by flags.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("strategy-lab", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	envFile := ".env"
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, "-env-file="); ok {
			envFile = v
		} else if (a == "-env-file" || a == "--env-file") && i+1 < len(args) {
			envFile = args[i+1]
		}
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	var (
		cfg          Config
		strategyList string
		seed         int64
		spec         strategy.Spec
		configFile   string
	)
	fs.String("env-file", envFile, "Path to a .env file")
	fs.StringVar(&configFile, "config", "", "Path to YAML config file")
	fs.StringVar(&cfg.Mode, "mode", ModeBacktest, "Mode: backtest or serve")
	fs.StringVar((*string)(&cfg.Source.Kind), "source", "", "Candle source: postgres, sqlite, memory or file")
	fs.StringVar(&cfg.Source.Path, "source-path", "", "SQLite database or bar file path")
	fs.StringVar(&cfg.Source.DSN, "dsn", os.Getenv("DB_CONN_STR"), "Postgres connection string")
	fs.StringVar(&cfg.Symbol, "symbol", "", "Symbol to load")
	fs.StringVar(&cfg.Timeframe, "timeframe", "", "Candle timeframe to load")
	fs.Var(&cfg.From, "from", "Backtest start date (YYYY-MM-DD)")
	fs.Var(&cfg.To, "to", "Backtest end date (YYYY-MM-DD, exclusive)")
	fs.StringVar(&cfg.Sampling, "sampling", SamplingTime, "Sampling: time or volume")
	fs.StringVar(&cfg.ResampleTo, "resample-to", "", "Aggregate time sampled candles to this timeframe")
	fs.StringVar(&strategyList, "strategies", "crossover,threshold", "Comma-separated strategies: crossover, threshold, edge")
	fs.IntVar(&spec.Short, "short", strategy.DefaultShortPeriod, "Crossover short period")
	fs.IntVar(&spec.Long, "long", strategy.DefaultLongPeriod, "Crossover long period")
	fs.StringVar((*string)(&spec.Average), "average", string(strategy.AverageSMA), "Crossover moving average: sma or ema")
	fs.IntVar(&spec.Period, "rsi-period", strategy.DefaultRSIPeriod, "Threshold RSI period")
	fs.Float64Var(&spec.Lower, "oversold", strategy.DefaultOversold, "Threshold oversold level")
	fs.Float64Var(&spec.Upper, "overbought", strategy.DefaultOverbought, "Threshold overbought level")
	fs.Int64Var(&seed, "seed", -1, "Seed for the edge strategy, negative for random")
	fs.StringVar(&cfg.LogLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level")
	fs.BoolVar(&cfg.LogPretty, "log-pretty", false, "Human readable console logs")
	fs.StringVar(&cfg.ListenAddr, "listen", ":8080", "HTTP listen address in serve mode")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Separate Prometheus listen address")
	fs.StringVar(&cfg.OutDir, "out", "", "Directory for backtest report and trade files")
	fs.IntVar(&cfg.DBMaxOpen, "db-max-open", 10, "Max open database connections")
	fs.IntVar(&cfg.DBMaxIdle, "db-max-idle", 5, "Max idle database connections")
	fs.DurationVar(&cfg.DBConnectTimeout, "db-connect-timeout", 30*time.Second, "Database connect retry budget")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if seed >= 0 {
		s := uint64(seed)
		cfg.Seed = &s
	}
	for name := range strings.SplitSeq(strategyList, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s := spec
		s.Kind = strategy.Kind(name)
		cfg.Strategies = append(cfg.Strategies, s)
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: failed to parse config file: %w", ErrInvalidConfig, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoadConfig loads from the process arguments and exits on error.
func MustLoadConfig() Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
