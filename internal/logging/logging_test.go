package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesCombinedAndErrorFiles(t *testing.T) {
	dir := t.TempDir()
	log := New("debug", dir)

	Component(log, "test").Info("hello")
	Component(log, "test").Error("broken")

	combined, err := os.ReadFile(filepath.Join(dir, CombinedFile))
	require.NoError(t, err)
	errs, err := os.ReadFile(filepath.Join(dir, ErrorFile))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(combined)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"level":"info"`)
	assert.Contains(t, lines[0], `"component":"test"`)

	assert.Contains(t, string(errs), `"msg":"broken"`)
	assert.NotContains(t, string(errs), "hello")
}

func TestNewFallsBackToInfo(t *testing.T) {
	log := New("loud", "")
	assert.Equal(t, "info", log.GetLevel().String())
}
