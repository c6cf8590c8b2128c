package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medibot/internal/evaluation"
	"github.com/wolfman30/medibot/pkg/logging"
)

func TestParseFlags(t *testing.T) {
	t.Setenv("EVAL_BASE_URL", "")
	t.Setenv("EVAL_TOKEN", "")
	t.Setenv("EVAL_CASES_FILE", "")

	_, err := parseFlags(nil, io.Discard)
	assert.ErrorContains(t, err, "EVAL_TOKEN")

	t.Setenv("EVAL_TOKEN", "tok")
	opts, err := parseFlags([]string{"-pause", "0s", "-out", "tmp"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080", opts.baseURL)
	assert.Equal(t, "eval_cases.json", opts.cases)
	assert.Equal(t, "tmp", opts.outDir)
	assert.Equal(t, time.Duration(0), opts.pause)

	t.Setenv("EVAL_BASE_URL", "http://api:8080")
	opts, err = parseFlags(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "http://api:8080", opts.baseURL)
}

func TestBundledCasesParse(t *testing.T) {
	cases, err := evaluation.LoadCases("eval_cases.json")
	require.NoError(t, err)
	assert.NotEmpty(t, cases)
}

func TestRunWritesReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	casesPath := filepath.Join(dir, "cases.json")
	require.NoError(t, os.WriteFile(casesPath, []byte(`{"cases":[{"name":"a","message":"hi"}]}`), 0o644))

	out := filepath.Join(dir, "reports")
	report, err := run(context.Background(), options{baseURL: srv.URL, token: "tok", cases: casesPath},
		[]evaluation.Sink{evaluation.FileSink{Dir: out}}, logging.New("error"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.FileExists(t, filepath.Join(out, "eval_report_latest.json"))

	_, err = run(context.Background(), options{cases: filepath.Join(dir, "missing.json")}, nil, logging.New("error"))
	assert.Error(t, err)
}
