package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{}, &buf)

	l.For("cache").Printf("hit %s", "tags")
	l.For("mcp").Print("ready")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "[cache] hit tags"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "[mcp] ready"), lines[1])
	assert.NoError(t, l.Close())
}

func TestDebugDiscardsUnlessEnabled(t *testing.T) {
	var buf bytes.Buffer
	New(Options{}, &buf).Debug("mcp").Print("request")
	assert.Empty(t, buf.String())

	New(Options{Debug: true}, &buf).Debug("mcp").Print("request")
	assert.Contains(t, buf.String(), "[mcp] request")
}

func TestFileSink(t *testing.T) {
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	l := New(Options{File: path, MaxSizeMB: 1}, &stderr)

	l.For("preload").Print("warm")
	require.NoError(t, l.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[preload] warm")
	assert.Empty(t, stderr.String())
}
