package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/amirphl/strategy-lab/internal/api"
	"github.com/amirphl/strategy-lab/internal/backtest"
	"github.com/amirphl/strategy-lab/internal/config"
	"github.com/amirphl/strategy-lab/internal/db"
	"github.com/amirphl/strategy-lab/internal/logger"
	"github.com/amirphl/strategy-lab/internal/metrics"
	"github.com/amirphl/strategy-lab/internal/runner"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.MustLoadConfig()

	l, err := logger.New(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up logger")
	}
	l.Info().Str("mode", cfg.Mode).Msg("starting strategy lab")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)

	switch cfg.Mode {
	case config.ModeBacktest:
		err = runBacktest(ctx, cfg, l, m)
	case config.ModeServe:
		err = serve(ctx, cfg, l, m)
	default:
		err = fmt.Errorf("unsupported mode: %s", cfg.Mode)
	}
	if err != nil {
		l.Fatal().Err(err).Msg("strategy lab failed")
	}
	l.Info().Msg("shutdown complete")
}

func openStorage(ctx context.Context, cfg config.Config, l zerolog.Logger) (db.Storage, error) {
	opts := cfg.DBOptions()
	opts.Logger = logger.Component(l, "db")
	storage, err := db.Open(ctx, cfg.Source, opts)
	if err != nil {
		return nil, err
	}
	l.Info().Str("source", string(cfg.Source.Kind)).Msg("connected to candle source")
	return storage, nil
}

func runBacktest(ctx context.Context, cfg config.Config, l zerolog.Logger, m *metrics.Metrics) error {
	storage, err := openStorage(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer storage.Close()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer shutdown(srv, l)
	}

	r := runner.New(storage, runner.WithLogger(logger.Component(l, "runner")), runner.WithMetrics(m))
	reports, err := r.Run(ctx, runner.Request{
		Symbol:     cfg.Symbol,
		Timeframe:  cfg.Timeframe,
		From:       cfg.From.Time,
		To:         cfg.To.Time,
		Sampling:   cfg.Sampling,
		ResampleTo: cfg.ResampleTo,
		Strategies: cfg.StrategySpecs(),
	})
	if err != nil {
		return err
	}

	for _, rep := range reports {
		res := rep.Result
		fmt.Printf("%-32s %s..%s  return=%.2f%% annualized=%.2f%% sharpe=%.2f drawdown=%.2f%% win=%.2f%% trades=%d\n",
			res.Strategy, res.StartDate, res.EndDate, res.TotalReturnPct, res.AnnualizedReturnPct,
			res.SharpeRatio, res.MaxDrawdownPct, res.WinRatePct, res.TradeCount)
	}

	if cfg.OutDir != "" {
		return saveReports(cfg.OutDir, reports, l)
	}
	return nil
}

func serve(ctx context.Context, cfg config.Config, l zerolog.Logger, m *metrics.Metrics) error {
	var reader db.Reader
	if cfg.Source.Kind != "" {
		storage, err := openStorage(ctx, cfg, l)
		if err != nil {
			return err
		}
		defer storage.Close()
		reader = storage
	}

	r := runner.New(reader, runner.WithLogger(logger.Component(l, "runner")), runner.WithMetrics(m))
	router := api.NewRouter(api.NewServer(r, m, logger.Component(l, "api")))

	servers := []*http.Server{{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.MetricsAddr != "" {
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler()})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			l.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		l.Info().Msg("graceful shutdown initiated")
		for _, srv := range servers {
			shutdown(srv, l)
		}
		return nil
	})
	return g.Wait()
}

func shutdown(srv *http.Server, l zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		l.Warn().Err(err).Str("addr", srv.Addr).Msg("server shutdown")
	}
}

// saveReports writes every report as JSON plus one trade log CSV per run.
func saveReports(dir string, reports []backtest.Report, l zerolog.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "backtest_reports.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	l.Info().Str("path", path).Msg("saved reports")

	for _, rep := range reports {
		rows := [][]string{{"trade", "entry_time", "entry_price", "exit_time", "exit_price", "return", "reason"}}
		for i, t := range rep.Trades {
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				t.EntryTime.Format(time.RFC3339),
				strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
				t.ExitTime.Format(time.RFC3339),
				strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
				strconv.FormatFloat(t.Return, 'f', 6, 64),
				t.Reason,
			})
		}
		path := filepath.Join(dir, "trades_"+rep.RunID+".csv")
		if err := saveCSV(path, rows); err != nil {
			return err
		}
		l.Info().Str("path", path).Str("strategy", rep.Result.Strategy).Msg("saved trades")
	}
	return nil
}

func saveCSV(filename string, rows [][]string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return f.Close()
}
