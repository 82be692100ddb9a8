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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

func TestRun_LinearPipeline(t *testing.T) {
	f := testFactory(t)
	cat := catalog.New()
	entries := intEntries(cat, "raw", "doubled")

	p, err := NewBuilder("linear", cat, f).Add(
		Bind("emit", f.MustDescribe("emit", []int{1, 2, 3})).Output("raw"),
		Bind("double", f.MustDescribe("double", nil)).Input("raw").Output("doubled"),
	).Build(context.Background())
	require.NoError(t, err)

	res, err := p.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunSucceeded, res.Status)
	assert.True(t, res.Succeeded())
	assert.Empty(t, res.Cause)
	assert.Equal(t, []string{"emit", "double"}, res.Completed)
	assert.Empty(t, res.NotRun)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "linear", res.Pipeline)
	assert.Len(t, res.NodeDurations, 2)
	assert.Equal(t, []int{2, 4, 6}, entries["doubled"].Items())
	assert.NoError(t, res.Err())
}

func TestRun_ReaderSeesCompleteWriterOutput(t *testing.T) {
	f := testFactory(t)
	cat := catalog.New()
	shared := catalog.NewMemory[int]("shared", -1)
	cat.MustRegister(shared)

	writer := registerFunc(t, f, "slow_writer", NoData(), Single[int](), sleepThen(30*time.Millisecond, 7, 8, 9))

	var seen []int
	reader := registerFunc(t, f, "reader", Single[int](), NoData(),
		func(_ context.Context, in Inputs) (Outputs, error) {
			items, err := SingleInput[int](in)
			seen = items
			return nil, err
		})

	p, err := NewBuilder("hb", cat, f).Add(
		Bind("reader", reader).Input("shared"),
		Bind("writer", writer).Output("shared"),
	).Build(context.Background())
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), WithWorkers(4))
	require.NoError(t, err)
	assert.Equal(t, []int{7, 8, 9}, seen)
}

func TestRun_IndependentBranchesRunConcurrently(t *testing.T) {
	const delay = 150 * time.Millisecond

	f := testFactory(t)
	cat := catalog.New()
	intEntries(cat, "left", "right")

	// Each branch waits for the other to arrive, which only succeeds when
	// both run at the same time.
	var arrived sync.WaitGroup
	arrived.Add(2)
	branch := func(context.Context, Inputs) (Outputs, error) {
		arrived.Done()
		waited := make(chan struct{})
		go func() { arrived.Wait(); close(waited) }()
		select {
		case <-waited:
		case <-time.After(2 * time.Second):
			return nil, errBoom
		}
		time.Sleep(delay)
		return SingleOutput([]int{1}), nil
	}
	desc := registerFunc(t, f, "branch", NoData(), Single[int](), branch)

	p, err := NewBuilder("parallel", cat, f).Add(
		Bind("left", desc).Output("left"),
		Bind("right", desc).Output("right"),
	).Build(context.Background())
	require.NoError(t, err)

	res, err := p.Execute(context.Background(), WithWorkers(2))
	require.NoError(t, err)
	assert.Less(t, res.Duration, 2*delay-delay/4)
}

func TestRun_FailureStopsDispatchAndKeepsPartialResults(t *testing.T) {
	f := testFactory(t)
	cat := catalog.New()

	failing := registerFunc(t, f, "fail", Single[int](), Single[int](),
		func(context.Context, Inputs) (Outputs, error) { return nil, errBoom })
	var calls counter
	watched := registerFunc(t, f, "watched", Single[int](), Single[int](),
		calls.wrap(func(context.Context, Inputs) (Outputs, error) { return SingleOutput([]int{0}), nil }))

	p, err := diamond(t, f, cat, failing, watched).Build(context.Background())
	require.NoError(t, err)

	res, err := p.Execute(context.Background(), WithWorkers(1))

	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, validation.NodeExecutionFailure)
	assert.Equal(t, RunFailed, res.Status)
	assert.Equal(t, validation.NodeExecutionFailure, res.Cause)
	assert.Equal(t, []string{"A"}, res.Completed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "B", res.Failures[0].NodeID)
	assert.Equal(t, []string{"C", "D"}, res.NotRun)
	assert.Zero(t, calls.n.Load())

	a, err := cat.Resolve("a")
	require.NoError(t, err)
	items, err := catalog.LoadAs[int](context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, items)

	nodeErr, ok := res.Failure("B")
	require.True(t, ok)
	var ne *NodeError
	require.ErrorAs(t, nodeErr, &ne)
	assert.Equal(t, "B", ne.NodeID)
}

func TestRun_RunningNodesFinishAfterFailure(t *testing.T) {
	f := testFactory(t)
	cat := catalog.New()
	entries := intEntries(cat, "slow", "fast")

	slow := registerFunc(t, f, "slow", NoData(), Single[int](), sleepThen(50*time.Millisecond, 5))
	fast := registerFunc(t, f, "fast", NoData(), Single[int](),
		func(context.Context, Inputs) (Outputs, error) { return nil, errBoom })

	p, err := NewBuilder("drain", cat, f).Add(
		Bind("slow", slow).Output("slow"),
		Bind("fast", fast).Output("fast"),
	).Build(context.Background())
	require.NoError(t, err)

	res, err := p.Execute(context.Background(), WithWorkers(2))
	require.Error(t, err)
	assert.Equal(t, []string{"slow"}, res.Completed)
	assert.Equal(t, []int{5}, entries["slow"].Items())
}

func TestRun_NoDataShapes(t *testing.T) {
	f := testFactory(t)
	cat := catalog.New()
	intEntries(cat, "mid")

	var gotInputs Inputs
	source := registerFunc(t, f, "probe_source", NoData(), Single[int](),
		func(_ context.Context, in Inputs) (Outputs, error) {
			gotInputs = in
			return SingleOutput([]int{1}), nil
		})
	sink := registerFunc(t, f, "noisy_sink", Single[int](), NoData(),
		func(context.Context, Inputs) (Outputs, error) {
			return Outputs{"ignored": []string{"x"}}, nil
		})

	p, err := NewBuilder("nodata", cat, f).Add(
		Bind("src", source).Output("mid"),
		Bind("sink", sink).Input("mid"),
	).Build(context.Background())
	require.NoError(t, err)

	res, err := p.Execute(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, gotInputs)
	assert.Empty(t, gotInputs)
	assert.Equal(t, []string{"src", "sink"}, res.Completed)
}

func TestRun_OutputContractViolations(t *testing.T) {
	tests := []struct {
		name string
		fn   NodeFunc
	}{
		{"missing slot", func(context.Context, Inputs) (Outputs, error) { return Outputs{}, nil }},
		{"extra slot", func(context.Context, Inputs) (Outputs, error) {
			return Outputs{SingleSlot: []int{1}, "extra": []int{2}}, nil
		}},
		{"wrong element type", func(context.Context, Inputs) (Outputs, error) {
			return SingleOutput([]string{"x"}), nil
		}},
		{"panic", func(context.Context, Inputs) (Outputs, error) { panic("kaboom") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFactory()
			cat := catalog.New()
			intEntries(cat, "out")
			desc := registerFunc(t, f, "subject", NoData(), Single[int](), tt.fn)

			p, err := NewBuilder("contract", cat, f).Add(Bind("n", desc).Output("out")).Build(context.Background())
			require.NoError(t, err)

			res, err := p.Execute(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, validation.NodeExecutionFailure)
			assert.Equal(t, RunFailed, res.Status)
		})
	}
}

func TestRun_PanicIsRecovered(t *testing.T) {
	f := NewFactory()
	cat := catalog.New()
	intEntries(cat, "out")
	desc := registerFunc(t, f, "panicky", NoData(), Single[int](),
		func(context.Context, Inputs) (Outputs, error) { panic("kaboom") })

	p, err := NewBuilder("panic", cat, f).Add(Bind("n", desc).Output("out")).Build(context.Background())
	require.NoError(t, err)

	_, err = p.Execute(context.Background())
	assert.ErrorIs(t, err, ErrNodePanic)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRun_InspectionFailureFromStorage(t *testing.T) {
	f := testFactory(t)
	cat := catalog.New()
	cat.MustRegister(failingEntry{key: "broken"})
	intEntries(cat, "out")

	p, err := NewBuilder("io", cat, f).Add(
		Bind("double", f.MustDescribe("double", nil)).Input("broken").Output("out"),
	).Build(context.Background())
	require.NoError(t, err)

	res, err := p.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, validation.InspectionFailure)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, validation.InspectionFailure, res.Cause)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := testFactory(t)
	cat := catalog.New()
	intEntries(cat, "raw")

	p, err := NewBuilder("cancel", cat, f).Add(
		Bind("emit", f.MustDescribe("emit", []int{1})).Output("raw"),
	).Build(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Execute(ctx)
	require.NoError(t, err)
	assert.True(t, res.Cancelled())
	assert.Equal(t, RunCancelled, res.Status)
	assert.Equal(t, validation.Cancelled, res.Cause)
	assert.Equal(t, []string{"emit"}, res.NotRun)
	assert.ErrorIs(t, res.Err(), validation.Cancelled)
	assert.ErrorIs(t, res.Err(), context.Canceled)
}

func TestRun_CancelMidRunDrainsRunningNodes(t *testing.T) {
	f := testFactory(t)
	cat := catalog.New()
	entries := intEntries(cat, "first", "second")

	started := make(chan struct{})
	release := make(chan struct{})
	gate := registerFunc(t, f, "gate", NoData(), Single[int](),
		func(ctx context.Context, _ Inputs) (Outputs, error) {
			close(started)
			<-release
			// The node context is detached from run cancellation.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return SingleOutput([]int{1}), nil
		})

	p, err := NewBuilder("drain_cancel", cat, f).Add(
		Bind("gate", gate).Output("first"),
		Bind("after", f.MustDescribe("double", nil)).Input("first").Output("second"),
	).Build(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	res, err := p.Execute(ctx)
	require.NoError(t, err)
	assert.True(t, res.Cancelled())
	assert.Equal(t, []string{"gate"}, res.Completed)
	assert.Equal(t, []string{"after"}, res.NotRun)
	assert.Equal(t, []int{1}, entries["first"].Items())
	assert.Empty(t, entries["second"].Items())
}

func TestRun_DeadlineBinding(t *testing.T) {
	f := testFactory(t)
	cat := catalog.New()
	intEntries(cat, "out")
	slow := registerFunc(t, f, "sleepy", NoData(), Single[int](), sleepThen(time.Second, 1))

	p, err := NewBuilder("deadline", cat, f).Add(
		Bind("n", slow).Output("out").Timeout(20*time.Millisecond),
	).Build(context.Background())
	require.NoError(t, err)

	_, err = p.Execute(context.Background())
	assert.ErrorIs(t, err, ErrNodeTimeout)
}

func TestExecutor_RejectsConcurrentRun(t *testing.T) {
	f := testFactory(t)
	cat := catalog.New()
	intEntries(cat, "out")

	started := make(chan struct{})
	release := make(chan struct{})
	desc := registerFunc(t, f, "blocker", NoData(), Single[int](),
		func(context.Context, Inputs) (Outputs, error) {
			close(started)
			<-release
			return SingleOutput([]int{1}), nil
		})
	p, err := NewBuilder("busy", cat, f).Add(Bind("n", desc).Output("out")).Build(context.Background())
	require.NoError(t, err)

	exec, err := NewExecutor(p, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := exec.Run(context.Background())
		done <- err
	}()
	<-started

	_, err = exec.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestNewExecutor_Validation(t *testing.T) {
	_, err := NewExecutor(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	f := testFactory(t)
	cat := catalog.New()
	intEntries(cat, "out")
	p, err := NewBuilder("p", cat, f).Add(Bind("n", f.MustDescribe("emit", nil)).Output("out")).Build(context.Background())
	require.NoError(t, err)

	exec, err := NewExecutor(p, nil, WithWorkers(3), WithWorkers(0))
	require.NoError(t, err)
	assert.Equal(t, 3, exec.Workers())

	//nolint:staticcheck // nil context is the case under test
	_, err = exec.Run(nil)
	assert.ErrorIs(t, err, ErrNilContext)
}

type failingEntry struct{ key string }

func (e failingEntry) Key() string { return e.key }

func (e failingEntry) ElementType() catalog.TypeTag { return catalog.TypeOf[int]() }

func (e failingEntry) Load(context.Context) (any, error) { return nil, errBoom }

func (e failingEntry) Save(context.Context, any) error { return errBoom }
