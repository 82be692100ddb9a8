// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/config"
	"github.com/AleutianAI/datapipe/services/pipeline/dag"
	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

// constFactory builds a one-node pipeline writing params["values"] to "out".
func constFactory(ctx context.Context, cat *catalog.Catalog, params config.Params) (*dag.Pipeline, error) {
	f := dag.NewFactory()
	f.MustRegister(dag.NodeType{
		ID:     "emit",
		Input:  dag.NoData(),
		Output: dag.Single[int](),
		New: func(env dag.Env) (dag.Node, error) {
			items, _ := env.Params.([]int)
			return dag.NodeFunc(func(context.Context, dag.Inputs) (dag.Outputs, error) {
				return dag.SingleOutput(items), nil
			}), nil
		},
	})
	values, _ := params["values"].([]int)
	return dag.NewBuilder("const", cat, f).Add(
		dag.Bind("emit", f.MustDescribe("emit", values)).Output("out"),
	).Build(ctx)
}

func names(seq func(func(Registration) bool)) []string {
	var out []string
	for reg := range seq {
		out = append(out, reg.Name)
	}
	return out
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("iris", constFactory, "iris split", "demo", "tabular"))

	reg, err := r.Lookup("iris")
	require.NoError(t, err)
	assert.Equal(t, "iris", reg.Name)
	assert.Equal(t, "iris split", reg.Description)
	assert.Equal(t, []string{"demo", "tabular"}, reg.Tags)

	reg.Tags[0] = "mutated"
	again, _ := r.Lookup("iris")
	assert.Equal(t, "demo", again.Tags[0])

	f, err := r.Get("iris")
	require.NoError(t, err)
	assert.NotNil(t, f)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Errors(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("a", constFactory, ""))

	err := r.Register("a", constFactory, "")
	assert.ErrorIs(t, err, validation.DuplicateName)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, validation.UnknownPipeline)
	assert.ErrorContains(t, err, `no pipeline named "missing"`)

	assert.ErrorIs(t, r.Register("", constFactory, ""), ErrInvalidRegistration)
	assert.ErrorIs(t, r.Register("b", nil, ""), ErrInvalidRegistration)

	assert.Panics(t, func() { r.MustRegister("a", constFactory, "") })
}

func TestRegistry_Seal(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("a", constFactory, ""))
	r.Seal()
	assert.True(t, r.Sealed())
	assert.ErrorIs(t, r.Register("b", constFactory, ""), ErrSealed)

	_, err := r.Get("a")
	assert.NoError(t, err)
}

func TestRegistry_ListSortedAndFiltered(t *testing.T) {
	r := New()
	r.MustRegister("zeta", constFactory, "", "demo")
	r.MustRegister("alpha", constFactory, "", "tabular")
	r.MustRegister("mid", constFactory, "", "demo", "tabular")
	r.MustRegister("plain", constFactory, "")

	tests := []struct {
		name   string
		filter TagFilter
		want   []string
	}{
		{"all", nil, []string{"alpha", "mid", "plain", "zeta"}},
		{"has tag", HasTag("demo"), []string{"mid", "zeta"}},
		{"any tag", AnyTag("tabular", "nope"), []string{"alpha", "mid"}},
		{"no match", HasTag("nope"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(r.List(tt.filter)))
		})
	}
	assert.Equal(t, []string{"alpha", "mid", "plain", "zeta"}, r.Names())
}

func TestRegistry_ListIsRestartableAndLazy(t *testing.T) {
	r := New()
	r.MustRegister("a", constFactory, "")
	seq := r.List(nil)

	assert.Equal(t, []string{"a"}, names(seq))
	r.MustRegister("b", constFactory, "")
	assert.Equal(t, []string{"a", "b"}, names(seq))

	var first []string
	for reg := range seq {
		first = append(first, reg.Name)
		break
	}
	assert.Equal(t, []string{"a"}, first)
}

func TestRegistry_Build(t *testing.T) {
	r := New()
	r.MustRegister("const", constFactory, "")
	r.MustRegister("broken", func(context.Context, *catalog.Catalog, config.Params) (*dag.Pipeline, error) {
		return nil, errors.New("nope")
	}, "")

	cat := catalog.New()
	out := catalog.NewMemory[int]("out")
	cat.MustRegister(out)

	p, err := r.Build(context.Background(), "const", cat, config.Params{"values": []int{4, 5}})
	require.NoError(t, err)
	_, err = p.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, out.Items())

	_, err = r.Build(context.Background(), "broken", cat, nil)
	assert.ErrorContains(t, err, `build pipeline "broken": nope`)

	_, err = r.Build(context.Background(), "ghost", cat, nil)
	assert.ErrorIs(t, err, validation.UnknownPipeline)

	//nolint:staticcheck // nil context is the case under test
	_, err = r.Build(nil, "const", cat, nil)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestRegistry_BuildPropagatesWiringErrors(t *testing.T) {
	r := New()
	r.MustRegister("const", constFactory, "")

	_, err := r.Build(context.Background(), "const", catalog.New(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, validation.UnknownKey)
}

func TestRegistry_LookupMetrics(t *testing.T) {
	r := New()
	r.MustRegister("a", constFactory, "")
	hits := testutil.ToFloat64(lookups.WithLabelValues("hit"))
	misses := testutil.ToFloat64(lookups.WithLabelValues("miss"))

	_, _ = r.Lookup("a")
	_, _ = r.Lookup("b")
	_, _ = r.Lookup("c")

	assert.Equal(t, hits+1, testutil.ToFloat64(lookups.WithLabelValues("hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(lookups.WithLabelValues("miss")))
}

func TestRegistry_ConcurrentRegisterAndList(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Register(fmt.Sprintf("p%02d", i), constFactory, ""))
		}()
		go func() {
			defer wg.Done()
			for range r.List(nil) {
			}
		}()
	}
	wg.Wait()
	got := r.Names()
	assert.Len(t, got, 50)
	assert.True(t, slices.IsSorted(got))
}

func TestDefaultRegistry(t *testing.T) {
	name := "default-test-pipeline"
	require.NoError(t, Register(name, constFactory, "", "test-only"))
	assert.Panics(t, func() { MustRegister(name, constFactory, "") })

	f, err := Get(name)
	require.NoError(t, err)
	assert.NotNil(t, f)
	assert.Equal(t, []string{name}, names(List(HasTag("test-only"))))

	_, err = Build(context.Background(), name, catalog.New(), nil)
	assert.ErrorIs(t, err, validation.UnknownKey)
}
