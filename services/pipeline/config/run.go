// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
)

const (
	// MaxYAMLFileSize is the maximum allowed run file size (1MB).
	MaxYAMLFileSize = 1024 * 1024
)

// ErrFileTooLarge is returned when a run file exceeds MaxYAMLFileSize.
var ErrFileTooLarge = errors.New("config file too large")

var tracer = otel.Tracer("datapipe.config")

// LogConfig configures console and file logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=auto text json"`
	Dir    string `yaml:"dir"`
}

// TelemetryConfig selects OpenTelemetry exporters.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	MetricsAddr    string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// RunConfig describes one pipeline run.
type RunConfig struct {
	// Pipeline is the registered pipeline name.
	Pipeline string `yaml:"pipeline" validate:"required,identifier"`

	// Workers bounds concurrent nodes. Zero means one per CPU.
	Workers int `yaml:"workers" validate:"gte=0,lte=1024"`

	// Badger, when set, persists catalog entries in this directory.
	Badger string `yaml:"badger_dir"`

	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Params are passed to the pipeline factory.
	Params Params `yaml:"params"`
}

// DefaultRunConfig returns the defaults applied before a file is decoded.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Log: LogConfig{Level: "info", Format: "auto"},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
		},
		Params: Params{},
	}
}

// Load reads, decodes, and validates a YAML run file.
//
// Outputs:
//
//	*RunConfig - The run configuration with defaults applied.
//	error      - ErrFileTooLarge, ErrInvalidConfig, or an I/O error.
func Load(ctx context.Context, path string) (*RunConfig, error) {
	_, span := tracer.Start(ctx, "config.Load",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), MaxYAMLFileSize)
	}
	span.SetAttributes(attribute.Int64("file_size", info.Size()))

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates run configuration from YAML bytes.
func Parse(data []byte) (*RunConfig, error) {
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, len(data), MaxYAMLFileSize)
	}
	cfg := DefaultRunConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unmarshaling YAML: %w", ErrInvalidConfig, err)
	}
	if cfg.Params == nil {
		cfg.Params = Params{}
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
