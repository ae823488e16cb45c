package audit

import (
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evandepol/homewatch/types"
)

func TestTrail_AppendAndRead(t *testing.T) {
	dir := t.TempDir()

	trail, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, trail.Append(Record{
		Provider: types.TierOnline,
		Model:    "gpt-4o-mini",
		Prompt:   "recent changes",
		Response: "all quiet",
		Usage:    &Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
		Cost:     types.CostInfo{Model: "gpt-4o-mini", CostUSD: 0.001, Success: true},
	}))
	require.NoError(t, trail.Append(Record{
		Provider: types.TierMock,
		Model:    "gpt-4o-mini",
		Cost:     types.ZeroCost("gpt-4o-mini", "mock-tier"),
	}))
	require.NoError(t, trail.Close())

	files, err := filepath.Glob(filepath.Join(dir, "analysis-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	reader, err := NewReader(files[0])
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	first, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, types.TierOnline, first.Provider)
	assert.Equal(t, 120, first.Usage.TotalTokens)
	assert.False(t, first.Timestamp.IsZero())

	second, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Sequence)
	assert.Equal(t, types.TierMock, second.Provider)

	_, err = reader.Next()
	assert.Equal(t, io.EOF, err)
}

func TestTrail_TruncatesLongFields(t *testing.T) {
	dir := t.TempDir()

	trail, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, trail.Append(Record{
		Provider: types.TierOnline,
		Prompt:   strings.Repeat("p", 2000),
		Response: strings.Repeat("r", 5000),
	}))
	require.NoError(t, trail.Close())

	var record *Record
	require.NoError(t, Replay(dir, time.Time{}, func(r *Record) error {
		record = r
		return nil
	}))

	require.NotNil(t, record)
	assert.Len(t, record.Prompt, maxPromptChars+3)
	assert.Len(t, record.Response, maxResponseChars+3)
	assert.True(t, strings.HasSuffix(record.Prompt, "..."))
}

func TestReplay_SinceFilter(t *testing.T) {
	dir := t.TempDir()

	trail, err := Open(dir)
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, trail.Append(Record{Timestamp: old, Provider: types.TierMock}))
	require.NoError(t, trail.Append(Record{Provider: types.TierMock}))
	require.NoError(t, trail.Close())

	count := 0
	require.NoError(t, Replay(dir, time.Now().Add(-time.Hour), func(*Record) error {
		count++
		return nil
	}))
	assert.Equal(t, 1, count)
}

func TestTrail_Echo(t *testing.T) {
	dir := t.TempDir()

	trail, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = trail.Close() }()

	var buf strings.Builder
	trail.EchoTo(&buf)

	require.NoError(t, trail.Append(Record{Provider: types.TierMock, Model: "gpt-4o-mini"}))

	assert.Contains(t, buf.String(), `"provider":"mock"`)
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}
