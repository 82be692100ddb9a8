// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/config"
	"github.com/AleutianAI/datapipe/services/pipeline/dag"
	"github.com/AleutianAI/datapipe/services/pipeline/demo"
	"github.com/AleutianAI/datapipe/services/pipeline/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, mutate func(*Config)) *gin.Engine {
	t.Helper()
	reg := registry.New()
	require.NoError(t, demo.Register(reg))
	reg.MustRegister("broken", func(context.Context, *catalog.Catalog, config.Params) (*dag.Pipeline, error) {
		return nil, errors.New("factory exploded")
	}, "always fails")

	cfg := Config{Registry: reg, Catalog: demo.MemoryCatalog}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s.Router()
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Registry: registry.New(), Catalog: catalog.New, RunsPerSecond: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestHealth(t *testing.T) {
	w := do(t, newTestServer(t, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestListPipelines(t *testing.T) {
	router := newTestServer(t, nil)

	tests := []struct {
		path string
		want []string
	}{
		{"/v1/pipelines", []string{"broken", demo.IrisPipeline, demo.NumbersPipeline}},
		{"/v1/pipelines?tag=numeric", []string{demo.NumbersPipeline}},
		{"/v1/pipelines?tag=numeric&tag=tabular", []string{demo.IrisPipeline, demo.NumbersPipeline}},
		{"/v1/pipelines?tag=nothing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(t, router, http.MethodGet, tt.path, "")
			require.Equal(t, http.StatusOK, w.Code)
			var got []string
			for _, p := range decode[[]PipelineSummary](t, w) {
				got = append(got, p.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDescribePipeline(t *testing.T) {
	router := newTestServer(t, nil)

	w := do(t, router, http.MethodGet, "/v1/pipelines/"+demo.NumbersPipeline, "")
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[PipelineView](t, w)
	assert.Equal(t, []string{"range", "square", "negate", "add"}, view.Order)
	assert.Len(t, view.Edges, 4)
	require.Len(t, view.Nodes, 4)
	assert.Equal(t, "record{left:[]int, right:[]int}", view.Nodes[3].Input)
	assert.ElementsMatch(t, []string{"square", "negate"}, view.Nodes[3].DependsOn)

	w = do(t, router, http.MethodGet, "/v1/pipelines/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decode[ErrorResponse](t, w)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "UnknownPipeline", resp.Errors[0].Kind)
}

func TestSubmitRun(t *testing.T) {
	router := newTestServer(t, nil)

	w := do(t, router, http.MethodPost, "/v1/pipelines/"+demo.NumbersPipeline+"/runs", `{"params":{"count":3},"workers":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	run := decode[RunView](t, w)
	assert.Equal(t, "succeeded", run.Status)
	assert.Len(t, run.Completed, 4)
	assert.NotEmpty(t, run.RunID)

	w = do(t, router, http.MethodGet, "/v1/runs/"+run.RunID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, run.RunID, decode[RunView](t, w).RunID)

	w = do(t, router, http.MethodGet, "/v1/runs/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitRun_NoBody(t *testing.T) {
	w := do(t, newTestServer(t, nil), http.MethodPost, "/v1/pipelines/"+demo.IrisPipeline+"/runs", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "succeeded", decode[RunView](t, w).Status)
}

func TestSubmitRun_Errors(t *testing.T) {
	router := newTestServer(t, nil)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		want   string
	}{
		{"unknown pipeline", "/v1/pipelines/ghost/runs", "", http.StatusNotFound, "ghost"},
		{"bad json", "/v1/pipelines/numbers/runs", "{", http.StatusBadRequest, ""},
		{"workers out of range", "/v1/pipelines/numbers/runs", `{"workers":5000}`, http.StatusBadRequest, "Workers"},
		{"unknown param", "/v1/pipelines/numbers/runs", `{"params":{"size":3}}`, http.StatusBadRequest, "size"},
		{"factory error", "/v1/pipelines/broken/runs", "", http.StatusInternalServerError, "factory exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, decode[ErrorResponse](t, w).Error, tt.want)
		})
	}
}

func TestSubmitRun_FailedRunIsUnprocessable(t *testing.T) {
	router := newTestServer(t, nil)
	body, err := json.Marshal(RunRequest{Params: map[string]any{"csv_path": "/does/not/exist.csv"}})
	require.NoError(t, err)

	w := do(t, router, http.MethodPost, "/v1/pipelines/"+demo.IrisPipeline+"/runs", string(body))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	run := decode[RunView](t, w)
	assert.Equal(t, "failed", run.Status)
	assert.Equal(t, "NodeExecutionFailure", run.Cause)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, "load", run.Failures[0].Node)
	assert.ElementsMatch(t, []string{"inspect", "split", "summarize"}, run.NotRun)
}

func TestSubmitRun_WiringErrorsListed(t *testing.T) {
	router := newTestServer(t, func(cfg *Config) { cfg.Catalog = catalog.New })

	w := do(t, router, http.MethodPost, "/v1/pipelines/"+demo.NumbersPipeline+"/runs", "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode[ErrorResponse](t, w)
	require.NotEmpty(t, resp.Errors)
	for _, e := range resp.Errors {
		assert.Equal(t, "UnknownKey", e.Kind)
	}
}

func TestSubmitRun_RateLimited(t *testing.T) {
	router := newTestServer(t, func(cfg *Config) {
		cfg.RunsPerSecond = 0.001
		cfg.Burst = 1
	})
	path := "/v1/pipelines/" + demo.NumbersPipeline + "/runs"

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodPost, path, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, router, http.MethodPost, path, "").Code)
}

func TestRunHistoryIsBounded(t *testing.T) {
	router := newTestServer(t, func(cfg *Config) { cfg.History = 2 })
	path := "/v1/pipelines/" + demo.NumbersPipeline + "/runs"

	var ids []string
	for range 3 {
		w := do(t, router, http.MethodPost, path, "")
		require.Equal(t, http.StatusOK, w.Code)
		ids = append(ids, decode[RunView](t, w).RunID)
	}
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/v1/runs/"+ids[0], "").Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/runs/"+ids[2], "").Code)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("datapipe_up 1\n"))
	})
	router := newTestServer(t, func(cfg *Config) { cfg.Metrics = metrics })

	w := do(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte("datapipe_up")))

	w = do(t, newTestServer(t, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
