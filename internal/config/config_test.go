package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, tpl Template, vars map[string]string) string {
	t.Helper()
	out, err := tpl.Render(vars)
	require.NoError(t, err)
	return out
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, Store{Kind: StoreBolt, Path: DefaultResultPath}, cfg.ResultStore)
	assert.Equal(t, Store{Kind: StoreBolt, Path: DefaultModulePath}, cfg.ModuleStore)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultMaxAttempts, cfg.Commit.MaxAttempts)
	assert.Nil(t, cfg.Notify)
	assert.Equal(t, "index/na.json", render(t, cfg.IndexKey, map[string]string{"continent": "na"}))
	assert.Equal(t, "moi/constrained/eu.json", render(t, cfg.ContributionKey,
		map[string]string{"module": "moi", "run_type": "constrained", "continent": "eu"}))
}

func TestParse_Full(t *testing.T) {
	src := `
result_store "s3" {
  bucket   = "results"
  endpoint = "localhost:9000"
  use_ssl  = false
  prefix   = "sos"
}

module_store "bolt" {
  path = "/tmp/modules.db"
}

index {
  key = "reaches/${continent}/index.json"
}

contribution {
  key         = "${continent}/${module}.json"
  concurrency = 2
}

commit {
  max_attempts   = 3
  dangling_after = "2m"
  retry_initial  = "50ms"
  retry_max      = 4
}

notify {
  url   = "http://localhost:3000/socket.io/"
  event = "appended"
}

attributes = {
  institution = "confluence"
  version     = 2
}
`
	cfg, err := Parse([]byte(src), "job.hcl")
	require.NoError(t, err)

	assert.Equal(t, Store{Kind: StoreS3, Bucket: "results", Endpoint: "localhost:9000", Prefix: "sos"}, cfg.ResultStore)
	assert.Equal(t, Store{Kind: StoreBolt, Path: "/tmp/modules.db", UseSSL: true}, cfg.ModuleStore)
	assert.Equal(t, "reaches/sa/index.json", render(t, cfg.IndexKey, map[string]string{"continent": "sa"}))
	assert.Equal(t, "af/sad.json", render(t, cfg.ContributionKey,
		map[string]string{"continent": "af", "module": "sad", "run_type": "constrained"}))
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 3, cfg.Commit.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Commit.DanglingAfter)
	assert.Equal(t, 50*time.Millisecond, cfg.Commit.RetryInitial)
	assert.Equal(t, uint64(4), cfg.Commit.RetryMax)

	require.NotNil(t, cfg.Notify)
	assert.Equal(t, "appended", cfg.Notify.Event)
	assert.Equal(t, "/", cfg.Notify.Namespace)
	assert.Equal(t, DefaultNotifyTimeout, cfg.Notify.Timeout)

	assert.Equal(t, map[string]string{"institution": "confluence", "version": "2"}, cfg.Attributes)
}

func TestParse_EmptyBlocksKeepDefaults(t *testing.T) {
	cfg, err := Parse([]byte("index {}\ncontribution {}\ncommit {}\n"), "job.hcl")
	require.NoError(t, err)
	assert.Equal(t, "index/oc.json", render(t, cfg.IndexKey, map[string]string{"continent": "oc"}))
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultDanglingAfter, cfg.Commit.DanglingAfter)
}

func TestParse_Rejects(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{"syntax", "index {"},
		{"unknown block", "output {}"},
		{"unknown store kind", `result_store "ftp" {}`},
		{"s3 without bucket", `result_store "s3" {}`},
		{"bolt without path", `module_store "bolt" {}`},
		{"duplicate store", "result_store \"memory\" {}\nresult_store \"memory\" {}\n"},
		{"unknown index variable", `index { key = "${run_type}/${continent}.json" }`},
		{"function in key", `contribution { key = "${upper(module)}.json" }`},
		{"zero concurrency", "contribution { concurrency = 0 }"},
		{"bad duration", `commit { dangling_after = "soon" }`},
		{"zero attempts", "commit { max_attempts = 0 }"},
		{"notify without url", "notify {}"},
		{"attributes not a map", `attributes = ["a"]`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src), "job.hcl")
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	cfg, err := Load(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, StoreBolt, cfg.ResultStore.Kind)

	path := filepath.Join(t.TempDir(), "job.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`result_store "gcs" { bucket = "b" }`), 0o644))
	cfg, err = Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, StoreGCS, cfg.ResultStore.Kind)

	_, err = Load(ctx, filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}

func TestTemplate_Render(t *testing.T) {
	tpl := MustTemplate("${continent}/${run_type}")
	_, err := tpl.Render(map[string]string{"continent": "na"})
	assert.Error(t, err)

	_, err = Template{}.Render(nil)
	assert.Error(t, err)

	_, err = ParseTemplate("${")
	assert.Error(t, err)
}
