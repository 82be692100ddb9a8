// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

var (
	tracer = otel.Tracer("datapipe.dag")
	meter  = otel.Meter("datapipe.dag")
)

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers bounds the number of nodes executing at once. Values below one
// are ignored. The default is runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// Executor runs a Pipeline on a bounded worker pool.
//
// Description:
//
//	A single coordinator goroutine owns all run state. It hands ready nodes
//	to workers over a channel; each worker loads the node's inputs, calls
//	Transform, saves the outputs, and only then reports back. Dependents are
//	released on that report, so a reader always sees its writer's complete
//	output. On the first failure, or when ctx ends, nothing new is
//	dispatched and nodes already running are allowed to finish.
//
// Thread Safety:
//
//	Safe for concurrent use, but one Executor runs at most one pipeline run
//	at a time. Run returns ErrAlreadyRunning otherwise.
type Executor struct {
	pipeline *Pipeline
	logger   *slog.Logger
	workers  int
	running  atomic.Bool

	// Metrics (initialized lazily)
	metricsOnce     sync.Once
	nodeLatency     metric.Float64Histogram
	nodeSuccesses   metric.Int64Counter
	nodeFailures    metric.Int64Counter
	activeNodes     metric.Int64UpDownCounter
	pipelineLatency metric.Float64Histogram
	runsTotal       metric.Int64Counter
}

// NewExecutor creates an executor for p.
//
// Inputs:
//
//	p      - The pipeline to execute. Must not be nil.
//	logger - Logger for execution logs. If nil, uses slog.Default().
//	opts   - Optional settings.
//
// Outputs:
//
//	*Executor - The configured executor.
//	error     - ErrInvalidInput if p is nil.
func NewExecutor(p *Pipeline, logger *slog.Logger, opts ...Option) (*Executor, error) {
	if p == nil {
		return nil, ErrInvalidInput
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		pipeline: p,
		logger:   logger,
		workers:  runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Workers returns the worker pool size.
func (e *Executor) Workers() int { return e.workers }

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues execution.
func (e *Executor) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		e.nodeLatency, err = meter.Float64Histogram("datapipe_node_duration_seconds",
			metric.WithDescription("Time spent executing each pipeline node"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_latency: "+err.Error())
		}

		e.nodeSuccesses, err = meter.Int64Counter("datapipe_node_success_total",
			metric.WithDescription("Number of successful node executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_successes: "+err.Error())
		}

		e.nodeFailures, err = meter.Int64Counter("datapipe_node_failure_total",
			metric.WithDescription("Number of failed node executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_failures: "+err.Error())
		}

		e.activeNodes, err = meter.Int64UpDownCounter("datapipe_active_nodes",
			metric.WithDescription("Number of currently executing nodes"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_nodes: "+err.Error())
		}

		e.pipelineLatency, err = meter.Float64Histogram("datapipe_pipeline_duration_seconds",
			metric.WithDescription("Total pipeline run time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "pipeline_latency: "+err.Error())
		}

		e.runsTotal, err = meter.Int64Counter("datapipe_runs_total",
			metric.WithDescription("Number of pipeline runs by status"),
		)
		if err != nil {
			initErrors = append(initErrors, "runs_total: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some pipeline metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

type outcome struct {
	idx      int
	err      error
	duration time.Duration
}

// Run executes the pipeline once.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//
// Outputs:
//
//	*RunResult - The run outcome. Always non-nil once the run started.
//	error      - RunResult.Err() for failed runs; ErrNilContext or
//	             ErrAlreadyRunning if the run could not start. A cancelled
//	             run is not an error: check RunResult.Cancelled.
func (e *Executor) Run(ctx context.Context) (*RunResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	e.initMetrics()
	p := e.pipeline

	res := &RunResult{
		RunID:         uuid.NewString(),
		Pipeline:      p.name,
		Status:        RunPending,
		StartedAt:     time.Now(),
		NodeDurations: make(map[string]time.Duration, len(p.steps)),
	}

	ctx, span := tracer.Start(ctx, "dag.Pipeline.Run",
		trace.WithAttributes(
			attribute.String("dag.pipeline", p.name),
			attribute.String("dag.run_id", res.RunID),
			attribute.Int("dag.node_count", len(p.steps)),
		),
	)
	defer span.End()

	logger := e.logger.With(slog.String("pipeline", p.name), slog.String("run_id", res.RunID))
	logger.Info("pipeline started", slog.Int("nodes", len(p.steps)), slog.Int("workers", e.workers))

	res.Status = RunRunning
	e.coordinate(ctx, logger, res)
	res.Duration = time.Since(res.StartedAt)

	switch {
	case res.Cause == validation.Cancelled:
		res.Status = RunCancelled
	case len(res.Failures) > 0:
		res.Status = RunFailed
	default:
		res.Status = RunSucceeded
	}

	attrs := metric.WithAttributes(
		attribute.String("pipeline", p.name),
		attribute.String("status", string(res.Status)),
	)
	if e.pipelineLatency != nil {
		e.pipelineLatency.Record(ctx, res.Duration.Seconds(), attrs)
	}
	if e.runsTotal != nil {
		e.runsTotal.Add(ctx, 1, attrs)
	}

	if res.Succeeded() {
		span.SetStatus(codes.Ok, "")
		logger.Info("pipeline completed",
			slog.Duration("duration", res.Duration),
			slog.Int("nodes_executed", len(res.Completed)),
		)
		return res, nil
	}

	err := res.Err()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if res.Cancelled() {
		logger.Warn("pipeline cancelled",
			slog.Int("nodes_executed", len(res.Completed)),
			slog.Any("not_run", res.NotRun),
		)
		return res, nil
	}
	logger.Error("pipeline failed",
		slog.String("cause", string(res.Cause)),
		slog.Int("failed_nodes", len(res.Failures)),
		slog.Any("not_run", res.NotRun),
		slog.String("error", err.Error()),
	)
	return res, err
}

// coordinate is the scheduling loop. It is the only goroutine that reads or
// writes res and the in-degree table.
func (e *Executor) coordinate(ctx context.Context, logger *slog.Logger, res *RunResult) {
	p := e.pipeline
	n := len(p.steps)

	indeg := make([]int, n)
	dispatched := make([]bool, n)
	var ready []int
	for _, i := range p.order {
		indeg[i] = len(p.steps[i].deps)
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	workers := min(e.workers, n)
	jobs := make(chan int)
	done := make(chan outcome)
	// Nodes see the run's values and span but not its cancellation, so a
	// cancelled run still lets running nodes finish.
	nodeCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				done <- e.runStep(nodeCtx, logger, res.RunID, idx)
			}
		}()
	}

	stopped := false
	stop := func(kind validation.Kind) {
		if !stopped {
			stopped = true
			res.Cause = kind
		}
	}

	cancelled := ctx.Done()
	inflight := 0
	for {
		if !stopped && ctx.Err() != nil {
			res.cancelErr = ctx.Err()
			stop(validation.Cancelled)
			logger.Warn("run cancelled, draining running nodes", slog.Int("running", inflight))
		}
		if stopped {
			cancelled = nil
		}

		var next chan<- int
		var head int
		if !stopped && len(ready) > 0 {
			next, head = jobs, ready[0]
		}
		if next == nil && inflight == 0 {
			break
		}

		select {
		case next <- head:
			ready = ready[1:]
			dispatched[head] = true
			inflight++
		case o := <-done:
			inflight--
			st := p.steps[o.idx]
			res.NodeDurations[st.id] = o.duration
			if o.err != nil {
				res.Failures = append(res.Failures, NodeFailure{NodeID: st.id, Err: o.err})
				kind := validation.NodeExecutionFailure
				if errors.Is(o.err, validation.InspectionFailure) {
					kind = validation.InspectionFailure
				}
				stop(kind)
				continue
			}
			res.Completed = append(res.Completed, st.id)
			for _, d := range st.dependents {
				indeg[d]--
				if indeg[d] == 0 {
					ready = append(ready, d)
				}
			}
		case <-cancelled:
			// Handled at the top of the loop.
		}
	}

	close(jobs)
	wg.Wait()

	for _, i := range p.order {
		if !dispatched[i] {
			res.NotRun = append(res.NotRun, p.steps[i].id)
		}
	}
}

// runStep executes one node with observability and returns its outcome.
func (e *Executor) runStep(ctx context.Context, logger *slog.Logger, runID string, idx int) outcome {
	st := e.pipeline.steps[idx]

	ctx, span := tracer.Start(ctx, "dag.Node "+st.id,
		trace.WithAttributes(
			attribute.String("dag.node", st.id),
			attribute.String("dag.node_type", st.desc.TypeID),
			attribute.String("dag.run_id", runID),
		),
	)
	defer span.End()

	if e.activeNodes != nil {
		e.activeNodes.Add(ctx, 1)
		defer e.activeNodes.Add(ctx, -1)
	}

	logger = logger.With(slog.String("node", st.id))
	logger.Debug("node starting")

	start := time.Now()
	err := e.execute(ctx, st)
	duration := time.Since(start)

	attrs := metric.WithAttributes(attribute.String("node", st.id))
	if e.nodeLatency != nil {
		e.nodeLatency.Record(ctx, duration.Seconds(), attrs)
	}

	if err != nil {
		if e.nodeFailures != nil {
			e.nodeFailures.Add(ctx, 1, attrs)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("node failed",
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return outcome{idx: idx, err: NewNodeError(st.id, err), duration: duration}
	}

	if e.nodeSuccesses != nil {
		e.nodeSuccesses.Add(ctx, 1, attrs)
	}
	span.SetStatus(codes.Ok, "")
	logger.Debug("node completed", slog.Duration("duration", duration))
	return outcome{idx: idx, duration: duration}
}

// execute loads inputs, transforms, validates, and saves outputs.
func (e *Executor) execute(ctx context.Context, st *step) error {
	cat := e.pipeline.catalog

	in := make(Inputs, len(st.inputs))
	for _, pt := range st.inputs {
		entry, err := cat.Resolve(pt.key)
		if err != nil {
			return catalog.IOError(pt.key, "resolve", err)
		}
		data, err := entry.Load(ctx)
		if err != nil {
			return catalog.IOError(pt.key, "load", err)
		}
		in[pt.slot] = data
	}

	out, err := transform(ctx, st.node, in)
	if err != nil {
		kind := validation.NodeExecutionFailure
		if errors.Is(err, validation.InspectionFailure) {
			kind = validation.InspectionFailure
		}
		return &validation.Error{Binding: st.id, Kind: kind, Message: "transform failed", Cause: err}
	}

	if st.desc.Output.IsNoData() {
		return nil
	}
	for slot := range out {
		if _, ok := st.desc.Output.Slot(slot); !ok {
			return validation.BindingError(validation.NodeExecutionFailure, st.id,
				"produced undeclared output slot %q", slot)
		}
	}
	for _, pt := range st.outputs {
		data, ok := out[pt.slot]
		if !ok {
			return validation.BindingError(validation.NodeExecutionFailure, st.id,
				"did not produce output slot %q", pt.slot)
		}
		entry, err := cat.Resolve(pt.key)
		if err != nil {
			return catalog.IOError(pt.key, "resolve", err)
		}
		if err := entry.Save(ctx, data); err != nil {
			if errors.Is(err, validation.TypeMismatch) {
				return &validation.Error{Binding: st.id, Kind: validation.NodeExecutionFailure,
					Message: fmt.Sprintf("output slot %q has the wrong type", pt.slot), Cause: err}
			}
			return catalog.IOError(pt.key, "save", err)
		}
	}
	return nil
}

// transform calls node.Transform, converting a panic into an error.
func transform(ctx context.Context, node Node, in Inputs) (out Outputs, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNodePanic, r)
		}
	}()
	return node.Transform(ctx, in)
}
