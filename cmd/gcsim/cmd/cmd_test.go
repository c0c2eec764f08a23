package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engine-gc/internal/mock"
	"github.com/engine-gc/internal/repository"
	"github.com/engine-gc/internal/snapshot"
	"github.com/engine-gc/internal/testutil"
	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/model"
	"github.com/engine-gc/pkg/utils"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	content := fmt.Sprintf(`
sim:
  seed: 3
  ticks: 40
  actors: 12
  verify_every: 10
  fullgc_every: 20
  output_dir: %s
database:
  enabled: true
  type: sqlite
  path: %s
storage:
  type: local
  local_path: %s
  prefix: runs
log:
  level: error
  color: false
`, filepath.Join(dir, "out"), filepath.Join(dir, "gcsim.db"), filepath.Join(dir, "store"))
	return testutil.WriteFile(t, dir, "gcsim.yaml", content)
}

func execute(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	require.NoError(t, execute("--config", cfgPath, "run", "--name", "smoke",
		"-o", "report.yaml", "--snapshot", "heap.json.zst", "--upload"))

	reports, err := filepath.Glob(filepath.Join(dir, "out", "smoke-*", "report.yaml"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	runDir := filepath.Dir(reports[0])
	runID := filepath.Base(runDir)

	snap, err := snapshot.Load(filepath.Join(runDir, "heap.json.zst"))
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Classes)

	for _, name := range []string{"report.yaml", "heap.json.zst"} {
		assert.True(t, testutil.FileExists(filepath.Join(dir, "store", "runs", runID, name)), name)
	}

	repos, err := repository.Open(cfg.Database)
	require.NoError(t, err)
	defer repos.Close()
	got, err := repos.Runs.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Equal(t, int64(3), got.Seed)
	assert.Equal(t, 40, got.Ticks)

	require.NoError(t, execute("--config", cfgPath, "snapshot", filepath.Join(runDir, "heap.json.zst"), "--top", "3", "--class", "Thinker,!Item"))
	err = execute("--config", cfgPath, "snapshot", filepath.Join(runDir, "heap.json.zst"), "--class", "A*b")
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
	require.NoError(t, execute("--config", cfgPath, "runs", "list", "--name", "smoke"))
	require.NoError(t, execute("--config", cfgPath, "runs", "show", runID, "-o", filepath.Join(dir, "export.json")))
	assert.Contains(t, testutil.ReadFile(t, filepath.Join(dir, "export.json")), `"run_id": "`+runID+`"`)

	t.Cleanup(func() { runsPurge = false })
	require.NoError(t, execute("--config", cfgPath, "runs", "delete", runID, "--purge"))
	err = execute("--config", cfgPath, "runs", "show", runID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.False(t, testutil.FileExists(filepath.Join(dir, "store", "runs", runID, "report.yaml")))
}

func TestBenchCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	out := filepath.Join(dir, "bench.json.gz")

	t.Cleanup(func() { benchUpload = false })
	require.NoError(t, execute("--config", cfgPath, "bench", "--seeds", "3", "-w", "2", "-o", out, "--upload"))
	require.True(t, testutil.FileExists(out))

	uploaded, err := filepath.Glob(filepath.Join(dir, "store", "runs", "bench-*", "report.json"))
	require.NoError(t, err)
	assert.Len(t, uploaded, 3)

	repos, err := repository.Open(cfg.Database)
	require.NoError(t, err)
	defer repos.Close()
	runs, err := repos.Runs.ListRuns(context.Background(), repository.RunFilter{Name: "bench"})
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	err = execute("--config", cfgPath, "bench", "--seeds", "0")
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
}

func TestScriptCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	good := testutil.Script(t, dir, "good.gcs", "new a", "root a", "fullgc", "expect alive a")
	bad := testutil.Script(t, dir, "bad.gcs", "new a", "fullgc", "expect alive a")

	require.NoError(t, execute("--config", cfgPath, "script", good))

	err := execute("--config", cfgPath, "script", "-k", bad, good)
	assert.Equal(t, apperrors.CodeScriptError, apperrors.GetErrorCode(err))
}

func TestPprofFlags(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	profDir := filepath.Join(dir, "prof")
	t.Cleanup(func() { pprofEnabled = false })

	script := testutil.Script(t, dir, "ok.gcs", "new a", "root a", "fullgc", "expect alive a")
	require.NoError(t, execute("--config", cfgPath, "--pprof", "--pprof-dir", profDir,
		"--pprof-profiles", "heap,goroutine", "script", script))

	matches, err := filepath.Glob(filepath.Join(profDir, "*.pprof"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	err = execute("--config", cfgPath, "--pprof", "--pprof-profiles", "threads", "version")
	assert.True(t, apperrors.IsConfigError(err))
}

func TestInDir(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "r1", "report.json"), inDir(filepath.Join("out", "r1"), "report.json"))
	assert.Equal(t, "/tmp/report.json", inDir("out", "/tmp/report.json"))
}

func TestSaveTo_StopsAtFirstError(t *testing.T) {
	logger = &utils.NullLogger{}
	runs := &mock.MockRunRepository{}
	runs.ExpectSaveRun("a", nil)
	runs.ExpectSaveRun("b", apperrors.New(apperrors.CodeDatabaseError, "disk full"))

	reports := []*model.RunReport{
		testutil.Report("a", "sim", 0, 1),
		testutil.Report("b", "sim", time.Second, 1),
		testutil.Report("c", "sim", 2*time.Second, 1),
	}
	err := saveTo(context.Background(), runs, reports)
	assert.True(t, apperrors.IsDatabaseError(err))
	runs.AssertExpectations(t)
	runs.AssertNumberOfCalls(t, "SaveRun", 2)
}
