package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/sosappend/internal/app"
	"github.com/specialistvlad/sosappend/internal/blobstore/boltstore"
	"github.com/specialistvlad/sosappend/internal/versioning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupJob writes a job file over two bbolt stores and seeds the index of na
// plus any key/document pairs in docs.
func setupJob(t *testing.T, docs ...[2]string) string {
	t.Helper()
	dir := t.TempDir()
	modules := filepath.Join(dir, "modules.db")

	st, err := boltstore.Open(modules)
	require.NoError(t, err)
	_, err = st.PutIfAbsent(context.Background(), "index/na.json",
		[]byte(`{"continent": "na", "reach_ids": ["A", "B"], "time_steps": 1}`))
	require.NoError(t, err)
	for _, d := range docs {
		_, err = st.PutIfAbsent(context.Background(), d[0], []byte(d[1]))
		require.NoError(t, err)
	}
	require.NoError(t, st.Close())

	job := filepath.Join(dir, "job.hcl")
	src := fmt.Sprintf(`
result_store "bolt" {
  path = %q
}

module_store "bolt" {
  path = %q
}
`, filepath.Join(dir, "results.db"), modules)
	require.NoError(t, os.WriteFile(job, []byte(src), 0o600))
	return job
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	err := Run(context.Background(), args, out)
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	return exitErr.Code
}

func TestRun_AppendThenRead(t *testing.T) {
	job := setupJob(t)
	global := []string{"--config", job, "--log-level", "error"}

	out, err := run(t, append(global, "append", "--continent", "na")...)
	require.NoError(t, err)
	assert.Contains(t, out, "na/unconstrained v0001 modules=- attempts=1 figures=0")

	out, err = run(t, append(global, "append", "--continent", "na", "-m", "moi,hivdi")...)
	require.NoError(t, err)
	assert.Contains(t, out, "na/unconstrained v0002")

	out, err = run(t, append(global, "versions", "--continent", "na")...)
	require.NoError(t, err)
	assert.Contains(t, out, "v0001 na/unconstrained/v0001")
	assert.Contains(t, out, "v0002 na/unconstrained/v0002")
	assert.NotContains(t, out, "dangling")

	out, err = run(t, append(global, "latest", "--continent", "na")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"version": 2`)
	assert.Contains(t, out, `"key": "na/unconstrained/v0002"`)

	out, err = run(t, append(global, "latest", "--continent", "na", "--run-type", "constrained")...)
	require.NoError(t, err)
	assert.Contains(t, out, "no committed version")

	out, err = run(t, append(global, "append", "--continent", "na", "--run-type", "constrained", "-m", "sad")...)
	require.NoError(t, err)
	assert.Contains(t, out, "na/constrained v0001")
}

func TestRun_AppendDefaultsToEveryModule(t *testing.T) {
	job := setupJob(t, [2]string{"priors/unconstrained/na.json", `{
		"module": "priors", "continent": "na", "run_type": "unconstrained",
		"records": [{"id": "B", "values": {"qbar": 4.25}}]
	}`})

	out, err := run(t, "--config", job, "--log-level", "error", "append", "--continent", "na")
	require.NoError(t, err)
	assert.Contains(t, out, "na/unconstrained v0001 modules=priors attempts=1")

	out, err = run(t, "--config", job, "--log-level", "error", "latest", "--continent", "na")
	require.NoError(t, err)
	assert.Contains(t, out, `"modules": [`)
	assert.Contains(t, out, `"priors"`)
}

func TestRun_ContinentFile(t *testing.T) {
	job := setupJob(t)
	file := filepath.Join(t.TempDir(), "continents.json")
	require.NoError(t, os.WriteFile(file, []byte(`[{"af": [1]}, {"na": [7]}]`), 0o600))

	out, err := run(t, "--config", job, "--log-level", "error", "append", "--continent-file", file, "--index", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "na/unconstrained v0001")
}

func TestRun_UsageErrors(t *testing.T) {
	job := setupJob(t)
	testCases := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--this-is-not-a-valid-flag"}},
		{"unknown command flag", []string{"append", "--bogus"}},
		{"no continent", []string{"--config", job, "append"}},
		{"file without index", []string{"--config", job, "append", "--continent-file", "x.json"}},
		{"unknown module", []string{"--config", job, "--log-level", "error", "append", "--continent", "na", "-m", "geobam"}},
		{"bad run type", []string{"--config", job, "append", "--continent", "na", "--run-type", "both"}},
		{"bad log level", []string{"--config", job, "--log-level", "loud", "append", "--continent", "na"}},
		{"read needs one continent", []string{"--config", job, "latest"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(t, tc.args...)
			require.Error(t, err)
			assert.Equal(t, ExitUsage, exitCode(t, err))
		})
	}
}

func TestRun_Help(t *testing.T) {
	out, err := run(t, "-h")
	require.NoError(t, err)
	assert.Contains(t, out, "append")
	assert.Contains(t, out, "versions")
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.Equal(t, ExitConflict, exitCode(t, classify(fmt.Errorf("x: %w", versioning.ErrVersionConflict))))
	assert.Equal(t, ExitUsage, exitCode(t, classify(fmt.Errorf("%w: y", app.ErrInvalidInvocation))))
	assert.Equal(t, ExitFailure, exitCode(t, classify(errors.New("disk full"))))

	usage := usageError("bad")
	assert.Same(t, usage, classify(usage))

	err := classify(versioning.ErrCorrupt)
	assert.ErrorIs(t, err, versioning.ErrCorrupt)
}
