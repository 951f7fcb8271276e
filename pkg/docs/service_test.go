package docs

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstack/docstack/pkg/audit"
	"github.com/docstack/docstack/pkg/authz"
	"github.com/docstack/docstack/pkg/errs"
	"github.com/docstack/docstack/pkg/storage"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// A second pool connection would see a different in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	// Minimal mirror of the production schema
	_, err = db.Exec(`
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'none',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			lead_id TEXT,
			created_by TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE memberships (
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (project_id, user_id)
		);

		CREATE TABLE documents (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			current_version INTEGER NOT NULL DEFAULT 1,
			created_by TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE document_versions (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			version INTEGER NOT NULL,
			file_name TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			content_type TEXT,
			storage_path TEXT NOT NULL,
			created_by TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (document_id, version)
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

func newTestService(t *testing.T) (*Service, *sql.DB, *storage.MemoryBlobStore) {
	t.Helper()
	db := setupTestDB(t)
	blobs := storage.NewMemoryBlobStore()
	decider := authz.NewDecider(authz.NewScopeResolver(db), nil)
	service := NewService(db, blobs, decider, nil, nil, nil)
	return service, db, blobs
}

func seedProject(t *testing.T, db *sql.DB, id, leadID string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO projects (id, name, lead_id) VALUES ($1, $2, $3)`,
		id, "project "+id, leadID)
	require.NoError(t, err)
}

func upload(name, content string) Upload {
	return Upload{
		FileName:    name,
		ContentType: "text/plain",
		Size:        int64(len(content)),
		Content:     strings.NewReader(content),
	}
}

var admin = authz.Actor{ID: "admin-1", Role: authz.RoleAdmin}

func TestCreateDocument(t *testing.T) {
	service, db, blobs := newTestService(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "lead-1")

	doc, err := service.Create(ctx, admin, "p1", "Design Notes", upload("notes.txt", "hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.CurrentVersion)
	assert.Equal(t, "p1", doc.ProjectID)
	assert.Equal(t, admin.ID, doc.CreatedBy)

	got, err := service.Get(ctx, admin, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.CreatedBy)

	assert.True(t, blobs.Exists(StoragePath("p1", doc.ID, 1, "notes.txt")))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM document_versions WHERE document_id = $1`, doc.ID).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCreateValidation(t *testing.T) {
	service, db, blobs := newTestService(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "lead-1")

	// Short title.
	_, err := service.Create(ctx, admin, "p1", "A", upload("a.txt", "x"))
	assert.True(t, errs.IsValidation(err))

	// Empty file.
	_, err = service.Create(ctx, admin, "p1", "Valid Title", Upload{FileName: "a.txt", Size: 0, Content: strings.NewReader("")})
	assert.True(t, errs.IsValidation(err))

	// Missing file.
	_, err = service.Create(ctx, admin, "p1", "Valid Title", Upload{FileName: "a.txt", Size: 3})
	assert.True(t, errs.IsValidation(err))

	// Oversized file fails before any side effect.
	big := Upload{FileName: "big.bin", Size: 61 << 20, Content: strings.NewReader("pretend")}
	_, err = service.Create(ctx, admin, "p1", "AB", big)
	assert.True(t, errs.IsValidation(err))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count))
	assert.Zero(t, count)
	objects, err := blobs.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestCreateUnknownProject(t *testing.T) {
	service, _, _ := newTestService(t)
	_, err := service.Create(context.Background(), admin, "nope", "Title", upload("a.txt", "x"))
	assert.True(t, errs.IsNotFound(err))
}

func TestCreateUploadFailureRollsBackDocument(t *testing.T) {
	service, db, blobs := newTestService(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "lead-1")

	blobs.FailPut = fmt.Errorf("bucket unavailable")
	_, err := service.Create(ctx, admin, "p1", "Doomed", upload("a.txt", "x"))
	assert.True(t, errs.IsStorage(err))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count))
	assert.Zero(t, count, "document row should be compensated away")
}

func TestCreateDeniedForDeveloper(t *testing.T) {
	service, db, _ := newTestService(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "lead-1")
	_, err := db.Exec(`INSERT INTO memberships (project_id, user_id) VALUES ('p1', 'dev-1')`)
	require.NoError(t, err)

	dev := authz.Actor{ID: "dev-1", Role: authz.RoleDeveloper}
	_, err = service.Create(ctx, dev, "p1", "Title", upload("a.txt", "x"))
	assert.True(t, errs.IsAuthorization(err))
}

func TestAddVersionSequence(t *testing.T) {
	service, db, blobs := newTestService(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "lead-1")

	doc, err := service.Create(ctx, admin, "p1", "Sequenced", upload("r.txt", "v1"))
	require.NoError(t, err)

	const extra = 4
	for i := 0; i < extra; i++ {
		version, err := service.AddVersion(ctx, admin, doc.ID, upload("r.txt", fmt.Sprintf("v%d", i+2)))
		require.NoError(t, err)
		assert.Equal(t, i+2, version.Version)
	}

	var current int
	require.NoError(t, db.QueryRow(`SELECT current_version FROM documents WHERE id = $1`, doc.ID).Scan(&current))
	assert.Equal(t, extra+1, current)

	// Version rows are exactly 1..N+1 with no gaps or duplicates.
	rows, err := db.Query(`SELECT version FROM document_versions WHERE document_id = $1 ORDER BY version`, doc.ID)
	require.NoError(t, err)
	defer rows.Close()
	var got []int
	for rows.Next() {
		var v int
		require.NoError(t, rows.Scan(&v))
		got = append(got, v)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)

	for _, v := range got {
		assert.True(t, blobs.Exists(StoragePath("p1", doc.ID, v, "r.txt")))
	}
}

func TestAddVersionUploadFailureLeavesStateUnchanged(t *testing.T) {
	service, db, blobs := newTestService(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "lead-1")

	doc, err := service.Create(ctx, admin, "p1", "Stable", upload("a.txt", "v1"))
	require.NoError(t, err)

	blobs.FailPut = fmt.Errorf("disk full")
	_, err = service.AddVersion(ctx, admin, doc.ID, upload("a.txt", "v2"))
	assert.True(t, errs.IsStorage(err))

	var current int
	require.NoError(t, db.QueryRow(`SELECT current_version FROM documents WHERE id = $1`, doc.ID).Scan(&current))
	assert.Equal(t, 1, current)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM document_versions WHERE document_id = $1 AND version = 2`, doc.ID).Scan(&count))
	assert.Zero(t, count)
}

// barrierBlobStore holds every Put until two callers have arrived, so
// both racing writers are guaranteed to have read the same
// current_version before either commits.
type barrierBlobStore struct {
	*storage.MemoryBlobStore
	barrier *sync.WaitGroup
}

func (b *barrierBlobStore) Put(ctx context.Context, path string, content io.Reader, contentType string) error {
	b.barrier.Done()
	b.barrier.Wait()
	return b.MemoryBlobStore.Put(ctx, path, content, contentType)
}

func TestAddVersionConcurrentRace(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "lead-1")

	decider := authz.NewDecider(authz.NewScopeResolver(db), nil)
	plain := NewService(db, storage.NewMemoryBlobStore(), decider, nil, nil, nil)
	doc, err := plain.Create(ctx, admin, "p1", "Contended", upload("a.txt", "v1"))
	require.NoError(t, err)

	var barrier sync.WaitGroup
	barrier.Add(2)
	blobs := &barrierBlobStore{MemoryBlobStore: storage.NewMemoryBlobStore(), barrier: &barrier}
	service := NewService(db, blobs, decider, nil, nil, nil)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = service.AddVersion(ctx, admin, doc.ID, upload(fmt.Sprintf("f%d.txt", i), "v2"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errs.IsConflict(err), "loser should see a conflict, got %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one writer commits version 2")

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM document_versions WHERE document_id = $1 AND version = 2`, doc.ID).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestAddVersionOccupiedPathIsConflict(t *testing.T) {
	service, db, blobs := newTestService(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "lead-1")

	doc, err := service.Create(ctx, admin, "p1", "Contended", upload("a.txt", "v1"))
	require.NoError(t, err)

	// A racing writer with the same file name already claimed the v2
	// object; this caller lost the race and should be told to retry,
	// not that the blob store is broken.
	path := StoragePath("p1", doc.ID, 2, "a.txt")
	require.NoError(t, blobs.Put(ctx, path, strings.NewReader("winner"), "text/plain"))

	_, err = service.AddVersion(ctx, admin, doc.ID, upload("a.txt", "loser"))
	assert.True(t, errs.IsConflict(err), "expected a conflict, got %v", err)
	assert.False(t, errs.IsStorage(err))

	var current int
	require.NoError(t, db.QueryRow(`SELECT current_version FROM documents WHERE id = $1`, doc.ID).Scan(&current))
	assert.Equal(t, 1, current)
}

func TestAddVersionUnknownDocument(t *testing.T) {
	service, _, _ := newTestService(t)
	_, err := service.AddVersion(context.Background(), admin, "missing", upload("a.txt", "x"))
	assert.True(t, errs.IsNotFound(err))
}

func TestDeleteCascadesRegardlessOfBlobOutcome(t *testing.T) {
	service, db, blobs := newTestService(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "lead-1")

	doc, err := service.Create(ctx, admin, "p1", "Removed", upload("a.txt", "v1"))
	require.NoError(t, err)
	_, err = service.AddVersion(ctx, admin, doc.ID, upload("a.txt", "v2"))
	require.NoError(t, err)

	blobs.FailRemove = fmt.Errorf("network partition")
	require.NoError(t, service.Delete(ctx, admin, doc.ID))

	var docCount, versionCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&docCount))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM document_versions`).Scan(&versionCount))
	assert.Zero(t, docCount)
	assert.Zero(t, versionCount, "version rows cascade even when blobs linger")
}

func TestDownload(t *testing.T) {
	service, db, _ := newTestService(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "lead-1")

	doc, err := service.Create(ctx, admin, "p1", "Shared", upload("a.txt", "v1"))
	require.NoError(t, err)

	url, err := service.Download(ctx, admin, doc.ID, 1)
	require.NoError(t, err)
	assert.Contains(t, url, StoragePath("p1", doc.ID, 1, "a.txt"))

	_, err = service.Download(ctx, admin, doc.ID, 9)
	assert.True(t, errs.IsNotFound(err))
}

// recordingAuditLog keeps appended events for assertions.
type recordingAuditLog struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *recordingAuditLog) Append(ctx context.Context, event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAuditLog) Close() error { return nil }

func (r *recordingAuditLog) last() *audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func TestDownloadAuditCarriesProject(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "lead-1")

	trail := &recordingAuditLog{}
	decider := authz.NewDecider(authz.NewScopeResolver(db), nil)
	service := NewService(db, storage.NewMemoryBlobStore(), decider, trail, nil, nil)

	doc, err := service.Create(ctx, admin, "p1", "Shared", upload("a.txt", "v1"))
	require.NoError(t, err)

	_, err = service.Download(ctx, admin, doc.ID, 1)
	require.NoError(t, err)

	event := trail.last()
	require.NotNil(t, event)
	assert.Equal(t, audit.EventTypeDownload, event.EventType)
	assert.Equal(t, "p1", event.ProjectID)
	assert.Equal(t, doc.ID, event.DocumentID)
}

func TestListByProjectAndVersions(t *testing.T) {
	service, db, _ := newTestService(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "lead-1")

	doc, err := service.Create(ctx, admin, "p1", "Listed", upload("a.txt", "v1"))
	require.NoError(t, err)
	_, err = service.AddVersion(ctx, admin, doc.ID, upload("b.txt", "v2"))
	require.NoError(t, err)

	documents, err := service.ListByProject(ctx, admin, "p1")
	require.NoError(t, err)
	require.Len(t, documents, 1)
	assert.Equal(t, doc.ID, documents[0].ID)

	versions, err := service.ListVersions(ctx, admin, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 2, versions[1].Version)
	assert.Equal(t, "b.txt", versions[1].FileName)
}

func TestStoragePathStripsDirectories(t *testing.T) {
	path := StoragePath("p1", "d1", 3, "../../etc/passwd")
	assert.Equal(t, "p1/d1/v3-passwd", path)
}
