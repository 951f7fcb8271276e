package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingLogger struct{ err error }

func (f *failingLogger) Append(ctx context.Context, event *Event) error { return f.err }
func (f *failingLogger) Close() error                                   { return f.err }

func TestMultiLoggerFansOut(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}
	multi := NewMultiLogger(a, b)

	require.NoError(t, multi.Append(context.Background(), NewEvent(EventTypeProjectDelete, EventStatusSuccess)))
	assert.Len(t, a.snapshot(), 1)
	assert.Len(t, b.snapshot(), 1)

	require.NoError(t, multi.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestMultiLoggerContinuesPastFailure(t *testing.T) {
	boom := errors.New("sink down")
	healthy := &recordingLogger{}
	multi := NewMultiLogger(&failingLogger{err: boom}, healthy)

	err := multi.Append(context.Background(), NewEvent(EventTypeBlobRemoveFailed, EventStatusFailure))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, healthy.snapshot(), 1)
}

func TestMultiLoggerEmpty(t *testing.T) {
	multi := NewMultiLogger()
	assert.NoError(t, multi.Append(context.Background(), NewEvent(EventTypeMemberRemove, EventStatusSuccess)))
	assert.NoError(t, multi.Close())
}
