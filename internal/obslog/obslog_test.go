package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, ws string, debug bool, jsonFormat bool) {
	t.Helper()
	dir := filepath.Join(ws, ".sunwell")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := `{"logging":{"level":"debug","debug_mode":` + boolStr(debug) + `,"json_format":` + boolStr(jsonFormat) + `}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0o644))
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func resetGlobals() {
	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
	config = loggingConfig{}
	logsDir = ""
	workspace = ""
}

func TestInitializeCreatesLogFileWhenDebugEnabled(t *testing.T) {
	resetGlobals()
	ws := t.TempDir()
	writeTestConfig(t, ws, true, false)

	require.NoError(t, Initialize(ws))
	Get(CategoryGraph).Info("hello %s", "world")

	entries, err := os.ReadDir(filepath.Join(ws, ".sunwell", "logs"))
	require.NoError(t, err)
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), "graph") {
			found = true
		}
	}
	require.True(t, found, "expected a graph category log file")
}

func TestNoLogDirectoryWhenDebugDisabled(t *testing.T) {
	resetGlobals()
	ws := t.TempDir()
	writeTestConfig(t, ws, false, false)

	require.NoError(t, Initialize(ws))
	Get(CategoryCache).Info("should not write")

	_, err := os.Stat(filepath.Join(ws, ".sunwell", "logs"))
	require.True(t, os.IsNotExist(err))
}

func TestTimerLogsCompletion(t *testing.T) {
	resetGlobals()
	ws := t.TempDir()
	writeTestConfig(t, ws, true, false)
	require.NoError(t, Initialize(ws))

	timer := StartTimer(CategoryExecutor, "wave-0")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()
	require.Greater(t, elapsed, time.Duration(0))
}

func TestMissingConfigDefaultsToDisabled(t *testing.T) {
	resetGlobals()
	ws := t.TempDir()

	require.NoError(t, Initialize(ws))
	require.False(t, IsDebugMode())
}
