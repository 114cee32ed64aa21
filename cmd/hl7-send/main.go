// Command hl7-send gathers outbound HL7 message files and delivers them to
// an integration engine over MLLP, once, on the recurring schedule, or as
// files appear.
//
// Usage:
//
//	hl7-send [flags] <path>... <host> <port>
//	hl7-send --config config.yaml [flags]
//
// Each path is a directory of candidate message files. Files modified more
// than an hour ago are skipped unless --test disables the freshness filter.
// With --schedule the run repeats hourly 08:00-17:00 Monday to Friday; with
// --watch the paths are watched and each new file is delivered as it
// appears. With --config the target, paths and tuning come from the
// transmitter section of the configuration file instead of the positional
// arguments; flags set explicitly still win.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/eastgenomics/hl7-epic-integration/internal/config"
	"github.com/eastgenomics/hl7-epic-integration/internal/source"
	"github.com/eastgenomics/hl7-epic-integration/internal/transmitter"
)

var errUsage = errors.New("missing arguments")

// delivery is the resolved target, candidate paths and tuning for a run.
type delivery struct {
	host   string
	port   int
	paths  []string
	cfg    transmitter.Config
	window time.Duration
}

func main() {
	configPath := pflag.StringP("config", "c", "", "YAML file supplying the transmitter target and paths")
	testMode := pflag.BoolP("test", "t", false, "disable the freshness filter on candidate files")
	scheduled := pflag.BoolP("schedule", "s", false, "run on the recurring delivery schedule")
	watch := pflag.BoolP("watch", "w", false, "watch the paths and deliver files as they appear")
	backoff := pflag.Duration("backoff", 300*time.Second, "wait before reconnecting after a broken connection")
	ackTimeout := pflag.Duration("ack-timeout", 30*time.Second, "bounded wait for an acknowledgment after each send")
	window := pflag.Duration("window", time.Hour, "freshness window for candidate files")
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	d, err := resolveDelivery(*configPath, pflag.Args(), *backoff, *ackTimeout, *window)
	if errors.Is(err, errUsage) {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <path>... <host> <port>\n", os.Args[0])
		pflag.PrintDefaults()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enum := &source.Enumerator{
		Window:   d.window,
		TestMode: *testMode,
		Logger:   logger,
	}
	engine := transmitter.New(transmitter.NewDialer(d.host, d.port), d.cfg, nil, logger)

	run := func(ctx context.Context) error {
		files, err := enum.Enumerate(d.paths)
		if err != nil {
			return err
		}
		return engine.Run(ctx, transmitter.BuildJob(files, logger))
	}

	switch {
	case *watch:
		err = runWatch(ctx, d.paths, engine, logger)
	case *scheduled:
		err = transmitter.NewScheduler(logger).Start(ctx, run)
	default:
		err = run(ctx)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		logger.Error("delivery failed", "error", err)
		os.Exit(1)
	}
}

// resolveDelivery merges the configuration file, when given, with the
// command line. Flags the user set explicitly override the file.
func resolveDelivery(configPath string, args []string, backoff, ackTimeout, window time.Duration) (*delivery, error) {
	if configPath == "" {
		return deliveryFromArgs(args, backoff, ackTimeout, window)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	d, err := deliveryFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if pflag.CommandLine.Changed("backoff") {
		d.cfg.ReconnectBackoff = backoff
	}
	if pflag.CommandLine.Changed("ack-timeout") {
		d.cfg.AckTimeout = ackTimeout
	}
	if pflag.CommandLine.Changed("window") {
		d.window = window
	}
	return d, nil
}

func deliveryFromConfig(cfg *config.Config) (*delivery, error) {
	t := cfg.Transmitter
	if t.Host == "" {
		return nil, fmt.Errorf("transmitter.host is required")
	}
	if t.Port == 0 {
		return nil, fmt.Errorf("transmitter.port is required")
	}
	if len(t.Paths) == 0 {
		return nil, fmt.Errorf("transmitter.paths is required")
	}
	return &delivery{
		host:  t.Host,
		port:  t.Port,
		paths: t.Paths,
		cfg: transmitter.Config{
			MaxAttempts:      t.MaxAttempts,
			ReconnectBackoff: t.ReconnectBackoff,
			AckTimeout:       t.AckTimeout,
		},
		window: t.FreshnessWindow,
	}, nil
}

func deliveryFromArgs(args []string, backoff, ackTimeout, window time.Duration) (*delivery, error) {
	if len(args) < 3 {
		return nil, errUsage
	}
	port, err := strconv.Atoi(args[len(args)-1])
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", args[len(args)-1], err)
	}
	return &delivery{
		host:  args[len(args)-2],
		port:  port,
		paths: args[:len(args)-2],
		cfg: transmitter.Config{
			ReconnectBackoff: backoff,
			AckTimeout:       ackTimeout,
		},
		window: window,
	}, nil
}

// runWatch delivers each file as it appears under one of the watched paths.
func runWatch(ctx context.Context, paths []string, engine *transmitter.Engine, logger *slog.Logger) error {
	w, err := source.NewWatcher(paths, logger)
	if err != nil {
		return err
	}
	events := make(chan string, 16)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(ctx, events) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case path := <-events:
				job := transmitter.BuildJob([]source.File{{Path: path}}, logger)
				if err := engine.Run(ctx, job); err != nil {
					return err
				}
			}
		}
	})
	return g.Wait()
}
