// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/datapipe/pkg/logging"
	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/config"
	"github.com/AleutianAI/datapipe/services/pipeline/dag"
	"github.com/AleutianAI/datapipe/services/pipeline/storage/badger"
	"github.com/AleutianAI/datapipe/services/pipeline/telemetry"
)

// errRunFailed is returned when a run ends in the failed state. The summary
// has already been printed.
var errRunFailed = errors.New("pipeline run failed")

type runFlags struct {
	configPath string
	params     []string
	workers    int
	badgerDir  string
	logLevel   string
	watch      bool
	debounce   time.Duration
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [NAME]",
		Short: "Build and run a pipeline",
		Long: `Build and run a pipeline.

The pipeline name comes from the argument or from the "pipeline" field of
the --config file. Flags override values from the file.`,
		Example: `  datapipe run numbers -p count=20
  datapipe run iris_split -p test_fraction=0.3 --badger-dir ./data
  datapipe run --config run.yaml --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.watch && f.configPath == "" {
				return errors.New("--watch requires --config")
			}
			load := func(ctx context.Context) (*config.RunConfig, error) {
				return f.resolve(ctx, args)
			}
			cfg, err := load(cmd.Context())
			if err != nil {
				return err
			}
			if !f.watch {
				return a.runOnce(cmd.Context(), cfg)
			}

			if err := a.runOnce(cmd.Context(), cfg); err != nil && !errors.Is(err, errRunFailed) {
				return err
			}
			return watchFile(cmd.Context(), f.configPath, f.debounce, func() {
				cfg, err := load(cmd.Context())
				if err != nil {
					a.printer().Error(fmt.Sprintf("reload %s: %v", f.configPath, err))
					return
				}
				if err := a.runOnce(cmd.Context(), cfg); err != nil && !errors.Is(err, errRunFailed) {
					a.printer().Error(err.Error())
				}
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "YAML run file")
	flags.StringArrayVarP(&f.params, "param", "p", nil, "pipeline parameter as key=value (repeatable)")
	flags.IntVarP(&f.workers, "workers", "w", 0, "maximum concurrent nodes (0 = one per CPU)")
	flags.StringVar(&f.badgerDir, "badger-dir", "", "persist datasets in this badger directory")
	flags.StringVar(&f.logLevel, "log-level", "", "debug, info, warn, or error")
	flags.BoolVar(&f.watch, "watch", false, "re-run whenever the --config file changes")
	flags.DurationVar(&f.debounce, "debounce", 250*time.Millisecond, "quiet period before a --watch re-run")
	return cmd
}

// resolve merges the config file, the positional name, and flags.
func (f *runFlags) resolve(ctx context.Context, args []string) (*config.RunConfig, error) {
	cfg := config.DefaultRunConfig()
	if f.configPath != "" {
		loaded, err := config.Load(ctx, f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if len(args) == 1 {
		cfg.Pipeline = args[0]
	}
	params, err := parseParams(f.params)
	if err != nil {
		return nil, err
	}
	cfg.Params = cfg.Params.Merge(params)
	if f.workers != 0 {
		cfg.Workers = f.workers
	}
	if f.badgerDir != "" {
		cfg.Badger = f.badgerDir
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if cfg.Pipeline == "" {
		return nil, errors.New("no pipeline named: pass NAME or set pipeline in --config")
	}
	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// runOnce sets up logging, telemetry, and storage for cfg, then runs it.
func (a *app) runOnce(ctx context.Context, cfg *config.RunConfig) error {
	logger, err := newLogger(cfg.Log, a.errOut)
	if err != nil {
		return err
	}
	defer logger.Close()
	ctx = logging.WithContext(ctx, logger.With(slog.String("pipeline", cfg.Pipeline)))

	tcfg := telemetry.DefaultConfig()
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	if cfg.Telemetry.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	tcfg.Writer = a.errOut
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logging.FromContext(ctx).Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	cat, closeCatalog, err := a.openCatalog(cfg, logger.Slog())
	if err != nil {
		return err
	}
	defer closeCatalog()

	pipeline, err := a.registry.Build(ctx, cfg.Pipeline, cat, cfg.Params)
	if err != nil {
		return err
	}

	var opts []dag.Option
	if cfg.Workers > 0 {
		opts = append(opts, dag.WithWorkers(cfg.Workers))
	}
	res, err := pipeline.Execute(ctx, opts...)
	if res == nil {
		return err
	}
	renderRun(a.printer(), res)
	if res.Status == dag.RunFailed {
		return errRunFailed
	}
	return nil
}

func (a *app) openCatalog(cfg *config.RunConfig, logger *slog.Logger) (*catalog.Catalog, func(), error) {
	if cfg.Badger == "" {
		return a.memoryCatalog(), func() {}, nil
	}
	bcfg := badger.DefaultConfig(cfg.Badger)
	bcfg.Logger = logger
	db, err := badger.Open(bcfg)
	if err != nil {
		return nil, nil, err
	}
	return a.badgerCatalog(db), func() {
		if err := db.Close(); err != nil {
			logger.Warn("close badger", slog.String("error", err.Error()))
		}
	}, nil
}

func newLogger(cfg config.LogConfig, out io.Writer) (*logging.Logger, error) {
	level := logging.LevelInfo
	if cfg.Level != "" {
		var err error
		if level, err = logging.ParseLevel(cfg.Level); err != nil {
			return nil, err
		}
	}
	format := logging.FormatAuto
	if cfg.Format != "" {
		var err error
		if format, err = logging.ParseFormat(cfg.Format); err != nil {
			return nil, err
		}
	}
	return logging.New(logging.Config{
		Level:   level,
		Format:  format,
		LogDir:  cfg.Dir,
		Service: "datapipe",
		Output:  out,
	})
}

// parseParams converts key=value pairs. Values are decoded as YAML scalars
// or flow collections, so "0.3" is a float and "[a, b]" a list.
func parseParams(raw []string) (config.Params, error) {
	params := make(config.Params, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q must be key=value", kv)
		}
		var v any
		if err := yaml.Unmarshal([]byte(value), &v); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", key, err)
		}
		params[key] = v
	}
	return params, nil
}
