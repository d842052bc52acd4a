package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/sosappend/internal/config"
	"github.com/specialistvlad/sosappend/internal/versioning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(Config{})
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)

	testCases := []struct {
		name string
		cfg  Config
	}{
		{"log format", Config{LogFormat: "xml"}},
		{"log level", Config{LogLevel: "trace"}},
		{"port", Config{HealthcheckPort: 70000}},
		{"attempts", Config{MaxAttempts: -1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewApp_BoltStores(t *testing.T) {
	dir := t.TempDir()
	job := config.Default()
	shared := filepath.Join(dir, "sos.db")
	job.ResultStore = config.Store{Kind: config.StoreBolt, Path: shared}
	job.ModuleStore = config.Store{Kind: config.StoreBolt, Path: shared, Prefix: "modules"}

	a, err := NewApp(context.Background(), &SafeBuffer{}, &Config{MaxAttempts: 9}, WithJob(job))
	require.NoError(t, err)
	assert.Same(t, a.results, a.modules, "one bbolt file is opened once")
	assert.Equal(t, 9, a.job.Commit.MaxAttempts)
	assert.NotEmpty(t, a.writer)
	require.NoError(t, a.Close())
}

func TestNewApp_BadJobFile(t *testing.T) {
	_, err := NewApp(context.Background(), &SafeBuffer{}, &Config{JobFile: filepath.Join(t.TempDir(), "nope.hcl")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestNewApp_UnsupportedStore(t *testing.T) {
	job := config.Default()
	job.ResultStore = config.Store{Kind: "ftp"}
	_, err := NewApp(context.Background(), &SafeBuffer{}, &Config{}, WithJob(job))
	require.Error(t, err)
}

func TestRetryPolicy(t *testing.T) {
	assert.Equal(t, versioning.DefaultRetryPolicy, retryPolicy(config.Commit{}))

	p := retryPolicy(config.Commit{RetryMax: 2, RetryInitial: versioning.DefaultRetryPolicy.InitialInterval * 2})
	assert.Equal(t, uint64(2), p.MaxRetries)
	assert.Equal(t, versioning.DefaultRetryPolicy.InitialInterval*2, p.InitialInterval)
	assert.Equal(t, versioning.DefaultRetryPolicy.MaxInterval, p.MaxInterval)
}

func TestHealthMux(t *testing.T) {
	a, stores, _ := SetupAppTest(t)
	seedIndex(t, stores.Modules, "na")
	_, err := a.Append(context.Background(), Invocation{Continent: "na", RunType: "constrained"})
	require.NoError(t, err)

	srv := httptest.NewServer(a.healthMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	rec := httptest.NewRecorder()
	a.healthMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sosappend_passes_total{continent="na",result="committed",run_type="constrained"} 1`)
	assert.Contains(t, rec.Body.String(), `sosappend_latest_version{continent="na",run_type="constrained"} 1`)
}

func TestHealthCheckServer_Disabled(t *testing.T) {
	a, _, _ := SetupAppTest(t)
	a.Start()
	assert.Nil(t, a.httpServer)
	assert.NoError(t, a.Close())
}

func TestSelectContinent(t *testing.T) {
	data := []byte(`[{"af": [11, 12]}, {"NA": [71, 72]}, {"eu": [], "as": []}]`)

	c, err := SelectContinent(data, 0)
	require.NoError(t, err)
	assert.Equal(t, "af", c)

	c, err = SelectContinent(data, 1)
	require.NoError(t, err)
	assert.Equal(t, "na", c)

	_, err = SelectContinent(data, 2)
	assert.Error(t, err, "two keys")
	_, err = SelectContinent(data, 3)
	assert.Error(t, err, "out of range")
	_, err = SelectContinent([]byte("{}"), 0)
	assert.Error(t, err, "not a list")
	_, err = LoadContinent(filepath.Join(t.TempDir(), "continents.json"), 0)
	assert.Error(t, err)
}
