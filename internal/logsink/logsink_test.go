package logsink

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidyou/ccgateway/internal/ir"
)

func TestRecorder_AccumulatesContentAndToolCalls(t *testing.T) {
	r := NewRecorder("chat-1", "gpt-4o")
	r.AppendText("hel")
	r.AppendText("lo")
	r.AppendThinking("pondering")
	r.ToolUseStart("t1", "get_time")
	r.ToolUseDelta("t1", `{"tz":`)
	r.ToolUseDelta("t1", `"UTC"}`)

	rec := r.Finish(ir.Usage{InputTokens: 10, OutputTokens: 4})
	assert.Equal(t, "hello", rec.Content)
	assert.Equal(t, "pondering", rec.Thinking)
	require.Contains(t, rec.ToolCalls, "t1")
	assert.Equal(t, "get_time", rec.ToolCalls["t1"].Name)
	assert.Equal(t, `{"tz":"UTC"}`, rec.ToolCalls["t1"].Args)
	require.NotNil(t, rec.InputTokens)
	assert.Equal(t, uint64(10), *rec.InputTokens)
}

func TestSink_WriteAppendsJSONLine(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(dir, slog.New(slog.NewTextHandler(os.Stderr, nil)))

	sink.Write(Record{ChatID: "c1", Model: "gpt-4o", Content: "hi"})
	sink.Write(Record{ChatID: "c2", Model: "gpt-4o", Content: "there"})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines int
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}
