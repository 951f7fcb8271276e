package docs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstack/docstack/pkg/audit"
	"github.com/docstack/docstack/pkg/authz"
	"github.com/docstack/docstack/pkg/storage"
)

type recordingAuditLogger struct {
	events []*audit.Event
}

func (r *recordingAuditLogger) Append(ctx context.Context, event *audit.Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAuditLogger) Close() error { return nil }

func TestSweepRemovesOnlyStaleOrphans(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "lead-1")

	blobs := storage.NewMemoryBlobStore()
	decider := authz.NewDecider(authz.NewScopeResolver(db), nil)
	service := NewService(db, blobs, decider, nil, nil, nil)

	doc, err := service.Create(ctx, admin, "p1", "Kept", upload("a.txt", "v1"))
	require.NoError(t, err)
	referencedPath := StoragePath("p1", doc.ID, 1, "a.txt")

	// A stale orphan from a failed commit, and a fresh one still inside
	// the grace period.
	stale := "p1/" + doc.ID + "/v2-lost.txt"
	fresh := "p1/" + doc.ID + "/v2-racing.txt"
	require.NoError(t, blobs.Put(ctx, stale, strings.NewReader("x"), "text/plain"))
	require.NoError(t, blobs.Put(ctx, fresh, strings.NewReader("y"), "text/plain"))
	blobs.SetLastModified(stale, time.Now().Add(-48*time.Hour))

	reconciler := NewReconciler(db, blobs, nil, nil, nil, 24*time.Hour)
	removed, err := reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.True(t, blobs.Exists(referencedPath), "referenced blob survives")
	assert.True(t, blobs.Exists(fresh), "blob inside the grace period survives")
	assert.False(t, blobs.Exists(stale))
}

func TestSweepAuditsRemovals(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	blobs := storage.NewMemoryBlobStore()
	stale := "p1/d1/v1-ghost.txt"
	require.NoError(t, blobs.Put(ctx, stale, strings.NewReader("x"), "text/plain"))
	blobs.SetLastModified(stale, time.Now().Add(-48*time.Hour))

	sink := &recordingAuditLogger{}
	reconciler := NewReconciler(db, blobs, sink, nil, nil, 24*time.Hour)
	removed, err := reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	require.Len(t, sink.events, 1)
	assert.Equal(t, stale, sink.events[0].StoragePath)
}

func TestSweepEmptyStore(t *testing.T) {
	db := setupTestDB(t)
	reconciler := NewReconciler(db, storage.NewMemoryBlobStore(), nil, nil, nil, 0)
	removed, err := reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
