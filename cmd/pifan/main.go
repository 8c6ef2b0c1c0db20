package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/oklog/run"
	log "github.com/sirupsen/logrus"

	"pifan/internal/config"
	"pifan/internal/fancontrol"
	"pifan/internal/metrics"
	"pifan/internal/web"
)

type options struct {
	Config   string `short:"c" long:"config" description:"Path to YAML config" default:"/etc/pifan.yaml"`
	LogLevel string `short:"l" long:"log-level" description:"Override log.level"`
	Listen   string `long:"listen" description:"Override web.listen (host:port)"`
	DryRun   bool   `long:"dry-run" description:"Log duty changes instead of driving the fan"`
	Check    bool   `long:"check" description:"Validate the config and exit"`
}

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout))
}

func realMain(args []string, stdout io.Writer) int {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			return 0
		}
		return 1
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		log.Errorf("config load failed: %v", err)
		return 1
	}
	if opts.Check {
		fmt.Fprintf(stdout, "%s: ok\n", opts.Config)
		return 0
	}

	logs := setupLogging(cfg.Log)
	if err := serve(context.Background(), cfg, logs, os.Interrupt, syscall.SIGTERM); err != nil {
		log.Errorf("pifan stopped: %v", err)
		return 1
	}
	return 0
}

// loadConfig applies command line overrides on top of the file.
func loadConfig(opts options) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.Listen != "" {
		cfg.Web.Listen = opts.Listen
	}
	if opts.DryRun {
		cfg.Fan.Backend = fancontrol.BackendLog
	}
	if err := config.DefaultAndValidate(&cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func setupLogging(c config.LogConfig) *web.LogBuffer {
	if lvl, err := log.ParseLevel(c.Level); err == nil {
		log.SetLevel(lvl)
	}
	if c.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	logs := web.NewLogBuffer(c.BufferLines)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))
	return logs
}

// serve runs the control loop, the optional status server and the signal
// handler until one of them returns. A signal or ctx cancellation is a clean
// exit.
func serve(ctx context.Context, cfg config.Config, logs *web.LogBuffer, signals ...os.Signal) error {
	m := metrics.New()
	svc := fancontrol.New(cfg.FanService(), cfg.Sensor.Source(), m)

	log.WithFields(log.Fields{
		"backend":  cfg.Fan.Backend,
		"pin":      cfg.Fan.Pin,
		"freq_hz":  cfg.Fan.FrequencyHz,
		"sensor":   cfg.Sensor.Kind,
		"interval": cfg.Control.Interval,
	}).Info("pifan starting")

	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return svc.Run(ctx)
		}, func(error) {
			cancel()
		})
	}

	if cfg.Web.Listen != "" {
		status := web.NewStatus(svc)
		status.SetStatic(map[string]any{
			"sensor":       cfg.Sensor.Kind,
			"backend":      cfg.Fan.Backend,
			"pin":          cfg.Fan.Pin,
			"frequency_hz": cfg.Fan.FrequencyHz,
			"interval":     cfg.Control.Interval.String(),
			"target":       cfg.Control.Target,
			"max_speed":    cfg.Control.MaxSpeed,
			"range":        cfg.Control.Range,
		})

		access := log.WithField("component", "http").WriterLevel(log.DebugLevel)
		defer access.Close()

		srv, err := web.Listen(cfg.Web.Listen, web.Handler(status, logs, m.Handler(), access))
		if err != nil {
			return fmt.Errorf("web listen %s: %w", cfg.Web.Listen, err)
		}
		g.Add(srv.Serve, func(error) {
			srv.Shutdown()
		})
	}

	g.Add(run.SignalHandler(ctx, signals...))

	err := g.Run()
	var sig run.SignalError
	switch {
	case err == nil, ctx.Err() != nil && errors.Is(err, ctx.Err()):
		log.Info("pifan stopping")
		return nil
	case errors.As(err, &sig):
		log.Infof("pifan stopping on %v", sig.Signal)
		return nil
	}
	return err
}
