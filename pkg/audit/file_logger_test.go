package audit

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoggerAppendsNDJSON(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	require.NoError(t, logger.Append(ctx, NewEvent(EventTypeProjectCreate, EventStatusSuccess).
		WithActor("admin-1", "admin").
		WithProject("p1")))
	require.NoError(t, logger.Append(ctx, NewEvent(EventTypeAccessDenied, EventStatusDenied).
		WithActor("dev-1", "developer").
		WithProject("p2").
		WithMessage("not a member of project")))
	require.NoError(t, logger.Close())

	file, err := os.Open(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	defer file.Close()

	var events []*Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		event, err := FromJSON(scanner.Bytes())
		require.NoError(t, err)
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	assert.Equal(t, EventTypeProjectCreate, events[0].EventType)
	assert.Equal(t, "p1", events[0].ProjectID)
	assert.Equal(t, EventStatusDenied, events[1].Status)
	assert.Equal(t, "not a member of project", events[1].Message)
}

func TestFileLoggerRotation(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{
		BasePath: dir,
		Rotate:   true,
		MaxSize:  64, // tiny so the second append rotates
		MaxFiles: 5,
	})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Append(ctx, NewEvent(EventTypeVersionAdd, EventStatusSuccess).
			WithDocument("p1", "d1")))
	}
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Greater(t, len(entries), 1, "expected rotated files alongside audit.log")
}

func TestFileLoggerAppendAfterClose(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	err = logger.Append(context.Background(), NewEvent(EventTypeUserCreate, EventStatusSuccess))
	assert.Error(t, err)
}
