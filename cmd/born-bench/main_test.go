package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, version)
}

func TestUnknownCommand(t *testing.T) {
	code, _, errOut := runCLI(t, "serve")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, errOut, `unknown command "serve"`)
}

func TestList(t *testing.T) {
	code, out, _ := runCLI(t, "list")
	assert.Equal(t, exitOK, code)
	for _, v := range []string{"GENERIC_CNN", "ALEXNET", "LENET", "VGG16", "RNN", "ALL"} {
		assert.Contains(t, out, v)
	}
}

func TestRunUnknownVariant(t *testing.T) {
	code, out, errOut := runCLI(t, "run", "-variant", "resnet")
	assert.Equal(t, exitConfig, code)
	assert.Empty(t, out, "no report is produced")
	assert.Contains(t, errOut, "unknown model variant")
}

func TestRunAndHistory(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	code, out, errOut := runCLI(t, "run",
		"-variant", "lenet",
		"-height", "28", "-width", "28", "-channels", "1", "-labels", "10",
		"-batch", "2", "-batches", "2",
		"-styled", "never", "-quiet",
		"-store", db,
	)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "== LeNet ==")
	assert.Contains(t, out, "synthetic 2x1x28x28")

	code, out, errOut = runCLI(t, "history", "-store", db)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "LeNet")
	assert.Contains(t, out, "synthetic 2x1x28x28")
}

func TestHistoryMissingStore(t *testing.T) {
	code, _, errOut := runCLI(t, "history", "-store", filepath.Join(t.TempDir(), "none.db"))
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, errOut, "does not exist")
}
