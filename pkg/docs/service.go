package docs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/docstack/docstack/pkg/audit"
	"github.com/docstack/docstack/pkg/authz"
	"github.com/docstack/docstack/pkg/errs"
	"github.com/docstack/docstack/pkg/observability"
	"github.com/docstack/docstack/pkg/storage"
)

const (
	// MaxFileSize is the upload ceiling per version.
	MaxFileSize = 50 << 20 // 50 MiB

	// MinTitleLength is the minimum document title length in runes.
	MinTitleLength = 2

	// DownloadTTL is the lifetime of a signed download URL.
	DownloadTTL = time.Hour
)

// Service manages document lifecycles: create, version, delete,
// download. Every operation is permission-gated through the decider and
// recorded on the audit trail.
type Service struct {
	db      *sql.DB
	blobs   storage.BlobStore
	decider *authz.Decider
	audit   audit.Logger
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService creates a document service. auditLog may be nil (a no-op
// sink is used); logger and metrics may be nil.
func NewService(db *sql.DB, blobs storage.BlobStore, decider *authz.Decider, auditLog audit.Logger, logger *observability.Logger, metrics *observability.Metrics) *Service {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, os.Stderr)
	}
	return &Service{
		db:      db,
		blobs:   blobs,
		decider: decider,
		audit:   auditLog,
		logger:  logger,
		metrics: metrics,
	}
}

// StoragePath returns the blob key for one version. The original file
// name is reduced to its base so client input can never escape the
// document's prefix.
func StoragePath(projectID, documentID string, version int, fileName string) string {
	return fmt.Sprintf("%s/%s/v%d-%s", projectID, documentID, version, filepath.Base(fileName))
}

// Create makes a new document in a project with the upload as version 1.
func (s *Service) Create(ctx context.Context, actor authz.Actor, projectID, title string, upload Upload) (*Document, error) {
	if err := s.decider.Require(ctx, actor, authz.ActionCreate, authz.ResourceDocument, authz.CheckContext{ProjectID: projectID}); err != nil {
		s.auditDenied(ctx, actor, audit.EventTypeDocumentCreate, projectID, "", err)
		return nil, err
	}

	if utf8.RuneCountInString(title) < MinTitleLength {
		return nil, errs.NewValidation("title", fmt.Sprintf("must be at least %d characters", MinTitleLength))
	}
	if err := validateUpload(upload); err != nil {
		return nil, err
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists)
	if err != nil {
		return nil, errs.NewPersistence("check project", err)
	}
	if !exists {
		return nil, errs.NewNotFound("project", projectID)
	}

	now := time.Now().UTC()
	doc := &Document{
		ID:             uuid.NewString(),
		ProjectID:      projectID,
		Title:          title,
		CurrentVersion: 1,
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, project_id, title, current_version, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.ProjectID, doc.Title, doc.CurrentVersion, doc.CreatedBy, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return nil, errs.NewPersistence("insert document", err)
	}

	path := StoragePath(projectID, doc.ID, 1, upload.FileName)
	if err := s.putBlob(ctx, path, upload); err != nil {
		// The document row was created by this call, so it is ours to
		// roll back.
		s.deleteDocumentRow(ctx, doc.ID)
		return nil, err
	}

	version := &Version{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		Version:     1,
		FileName:    filepath.Base(upload.FileName),
		FileSize:    upload.Size,
		ContentType: upload.ContentType,
		StoragePath: path,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO document_versions (id, document_id, version, file_name, file_size, content_type, storage_path, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		version.ID, version.DocumentID, version.Version, version.FileName,
		version.FileSize, version.ContentType, version.StoragePath, version.CreatedBy, version.CreatedAt)
	if err != nil {
		s.removeBlobs(ctx, actor, []string{path})
		s.deleteDocumentRow(ctx, doc.ID)
		return nil, errs.NewPersistence("insert version", err)
	}

	if s.metrics != nil {
		s.metrics.DocumentsTotal.Inc()
		s.metrics.VersionsTotal.Inc()
		s.metrics.UploadBytes.Observe(float64(upload.Size))
	}
	s.append(ctx, audit.NewEvent(audit.EventTypeDocumentCreate, audit.EventStatusSuccess).
		WithActor(actor.ID, string(actor.Role)).
		WithDocument(projectID, doc.ID).
		WithMessage(fmt.Sprintf("created %q", title)))

	return doc, nil
}

// AddVersion uploads the next version of a document. Two racing calls
// on the same document never both commit the same version number: the
// bump is conditional on the version the caller read, and the loser
// gets a ConflictError to retry against fresh state.
func (s *Service) AddVersion(ctx context.Context, actor authz.Actor, documentID string, upload Upload) (*Version, error) {
	if err := s.decider.Require(ctx, actor, authz.ActionCreate, authz.ResourceVersion, authz.CheckContext{DocumentID: documentID}); err != nil {
		s.auditDenied(ctx, actor, audit.EventTypeVersionAdd, "", documentID, err)
		return nil, err
	}
	if err := validateUpload(upload); err != nil {
		return nil, err
	}

	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	newVersion := doc.CurrentVersion + 1
	path := StoragePath(doc.ProjectID, doc.ID, newVersion, upload.FileName)
	if err := s.putBlob(ctx, path, upload); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	version := &Version{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		Version:     newVersion,
		FileName:    filepath.Base(upload.FileName),
		FileSize:    upload.Size,
		ContentType: upload.ContentType,
		StoragePath: path,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
	}

	err = s.commitVersion(ctx, doc, version, now)
	if err != nil {
		// The upload preceded the failed commit, so the object at path
		// is unreferenced until removed here or swept by the
		// reconciler.
		s.removeBlobs(ctx, actor, []string{path})
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.VersionsTotal.Inc()
		s.metrics.UploadBytes.Observe(float64(upload.Size))
	}
	s.append(ctx, audit.NewEvent(audit.EventTypeVersionAdd, audit.EventStatusSuccess).
		WithActor(actor.ID, string(actor.Role)).
		WithDocument(doc.ProjectID, doc.ID).
		WithMessage(fmt.Sprintf("added version %d", newVersion)))

	return version, nil
}

// commitVersion inserts the version row and bumps current_version as one
// transaction. Losing the bump race rolls back the insert and returns a
// ConflictError.
func (s *Service) commitVersion(ctx context.Context, doc *Document, version *Version, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.NewPersistence("begin version commit", err)
	}
	defer tx.Rollback()

	// The conditional bump runs first: of two racing callers that both
	// read version N, only one matches current_version = N here and the
	// loser rolls back before touching the version table.
	result, err := tx.ExecContext(ctx,
		`UPDATE documents SET current_version = $1, updated_at = $2 WHERE id = $3 AND current_version = $4`,
		version.Version, now, doc.ID, doc.CurrentVersion)
	if err != nil {
		return errs.NewPersistence("bump current version", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errs.NewPersistence("bump current version", err)
	}
	if affected == 0 {
		s.countConflict()
		return errs.NewConflict(fmt.Sprintf("document %s moved past version %d", doc.ID, doc.CurrentVersion))
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO document_versions (id, document_id, version, file_name, file_size, content_type, storage_path, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		version.ID, version.DocumentID, version.Version, version.FileName,
		version.FileSize, version.ContentType, version.StoragePath, version.CreatedBy, version.CreatedAt)
	if err != nil {
		if errs.IsUniqueViolation(err) {
			s.countConflict()
			return errs.NewConflict(fmt.Sprintf("version %d already exists", version.Version))
		}
		return errs.NewPersistence("insert version", err)
	}

	if err := tx.Commit(); err != nil {
		return errs.NewPersistence("commit version", err)
	}
	return nil
}

// Delete removes a document, its version rows (by FK cascade) and,
// best-effort, its blobs. Blob removal failures are audited, never
// fatal: the rows go away regardless.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, documentID string) error {
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.decider.Require(ctx, actor, authz.ActionDelete, authz.ResourceDocument, authz.CheckContext{ProjectID: doc.ProjectID, DocumentID: doc.ID}); err != nil {
		s.auditDenied(ctx, actor, audit.EventTypeDocumentDelete, doc.ProjectID, doc.ID, err)
		return err
	}

	paths, err := s.versionPaths(ctx, doc.ID)
	if err != nil {
		return err
	}

	s.removeBlobs(ctx, actor, paths)

	_, err = s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, doc.ID)
	if err != nil {
		return errs.NewPersistence("delete document", err)
	}

	if s.metrics != nil {
		s.metrics.DocumentsTotal.Dec()
		s.metrics.VersionsTotal.Sub(float64(len(paths)))
	}
	s.append(ctx, audit.NewEvent(audit.EventTypeDocumentDelete, audit.EventStatusSuccess).
		WithActor(actor.ID, string(actor.Role)).
		WithDocument(doc.ProjectID, doc.ID).
		WithMessage(fmt.Sprintf("deleted %q with %d versions", doc.Title, len(paths))))

	return nil
}

// Download produces a time-limited signed URL for one version's content.
func (s *Service) Download(ctx context.Context, actor authz.Actor, documentID string, versionNumber int) (string, error) {
	if err := s.decider.Require(ctx, actor, authz.ActionRead, authz.ResourceVersion, authz.CheckContext{DocumentID: documentID}); err != nil {
		s.auditDenied(ctx, actor, audit.EventTypeDownload, "", documentID, err)
		return "", err
	}

	var path, projectID string
	err := s.db.QueryRowContext(ctx,
		`SELECT v.storage_path, d.project_id
		 FROM document_versions v
		 JOIN documents d ON d.id = v.document_id
		 WHERE v.document_id = $1 AND v.version = $2`,
		documentID, versionNumber).Scan(&path, &projectID)
	if err == sql.ErrNoRows {
		return "", errs.NewNotFound("version", fmt.Sprintf("%s/v%d", documentID, versionNumber))
	}
	if err != nil {
		return "", errs.NewPersistence("get version", err)
	}

	url, err := s.blobs.SignedURL(ctx, path, DownloadTTL)
	if err != nil {
		return "", errs.NewStorage("sign url", err)
	}

	s.append(ctx, audit.NewEvent(audit.EventTypeDownload, audit.EventStatusSuccess).
		WithActor(actor.ID, string(actor.Role)).
		WithDocument(projectID, documentID).
		WithMessage(fmt.Sprintf("download link for version %d", versionNumber)))

	return url, nil
}

// Get returns one document after a read permission check.
func (s *Service) Get(ctx context.Context, actor authz.Actor, documentID string) (*Document, error) {
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.decider.Require(ctx, actor, authz.ActionRead, authz.ResourceDocument, authz.CheckContext{ProjectID: doc.ProjectID, DocumentID: doc.ID}); err != nil {
		return nil, err
	}
	return doc, nil
}

// ListByProject returns a project's documents, newest first.
func (s *Service) ListByProject(ctx context.Context, actor authz.Actor, projectID string) ([]*Document, error) {
	if err := s.decider.Require(ctx, actor, authz.ActionRead, authz.ResourceDocument, authz.CheckContext{ProjectID: projectID}); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, title, current_version, created_by, created_at, updated_at
		 FROM documents WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, errs.NewPersistence("list documents", err)
	}
	defer rows.Close()

	var documents []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, errs.NewPersistence("scan document", err)
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewPersistence("list documents", err)
	}

	return documents, nil
}

// ListVersions returns a document's versions in ascending order.
func (s *Service) ListVersions(ctx context.Context, actor authz.Actor, documentID string) ([]*Version, error) {
	if err := s.decider.Require(ctx, actor, authz.ActionRead, authz.ResourceVersion, authz.CheckContext{DocumentID: documentID}); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, version, file_name, file_size, content_type, storage_path, created_by, created_at
		 FROM document_versions WHERE document_id = $1 ORDER BY version ASC`, documentID)
	if err != nil {
		return nil, errs.NewPersistence("list versions", err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		v := &Version{}
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Version, &v.FileName, &v.FileSize, &v.ContentType, &v.StoragePath, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, errs.NewPersistence("scan version", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewPersistence("list versions", err)
	}

	return versions, nil
}

func (s *Service) getDocument(ctx context.Context, documentID string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, current_version, created_by, created_at, updated_at
		 FROM documents WHERE id = $1`, documentID)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFound("document", documentID)
	}
	if err != nil {
		return nil, errs.NewPersistence("get document", err)
	}
	return doc, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	doc := &Document{}
	var createdBy sql.NullString
	err := row.Scan(&doc.ID, &doc.ProjectID, &doc.Title, &doc.CurrentVersion, &createdBy, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.CreatedBy = createdBy.String
	return doc, nil
}

func (s *Service) versionPaths(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT storage_path FROM document_versions WHERE document_id = $1`, documentID)
	if err != nil {
		return nil, errs.NewPersistence("list version paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, errs.NewPersistence("scan version path", err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewPersistence("list version paths", err)
	}
	return paths, nil
}

func (s *Service) putBlob(ctx context.Context, path string, upload Upload) error {
	err := s.blobs.Put(ctx, path, upload.Content, upload.ContentType)
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		s.metrics.BlobOperationsTotal.WithLabelValues("put", status).Inc()
	}
	if err != nil {
		// An occupied path means another writer already claimed this
		// version number with the same file name: a lost race, not a
		// broken store.
		if errors.Is(err, storage.ErrPathOccupied) {
			s.countConflict()
			return errs.NewConflict(fmt.Sprintf("version object already exists at %s", path))
		}
		return errs.NewStorage("put", err)
	}
	return nil
}

// removeBlobs deletes paths best-effort; each failure is audited so the
// reconciler's operator trail shows what was left behind.
func (s *Service) removeBlobs(ctx context.Context, actor authz.Actor, paths []string) {
	if len(paths) == 0 {
		return
	}
	failures := s.blobs.Remove(ctx, paths)
	if s.metrics != nil {
		s.metrics.BlobOperationsTotal.WithLabelValues("remove", "success").Add(float64(len(paths) - len(failures)))
		if len(failures) > 0 {
			s.metrics.BlobOperationsTotal.WithLabelValues("remove", "failure").Add(float64(len(failures)))
		}
	}
	for _, failure := range failures {
		s.logger.WithError(failure.Err).Warn("blob removal failed", "path", failure.Path)
		event := audit.NewEvent(audit.EventTypeBlobRemoveFailed, audit.EventStatusFailure).
			WithActor(actor.ID, string(actor.Role)).
			WithError(failure.Err)
		event.StoragePath = failure.Path
		s.append(ctx, event)
	}
}

func (s *Service) deleteDocumentRow(ctx context.Context, documentID string) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, documentID); err != nil {
		s.logger.WithError(err).Error("compensating document delete failed", "document_id", documentID)
	}
}

func (s *Service) countConflict() {
	if s.metrics != nil {
		s.metrics.VersionConflictsTotal.Inc()
	}
}

func (s *Service) auditDenied(ctx context.Context, actor authz.Actor, eventType audit.EventType, projectID, documentID string, err error) {
	event := audit.NewEvent(eventType, audit.EventStatusDenied).
		WithActor(actor.ID, string(actor.Role)).
		WithError(err)
	event.ProjectID = projectID
	event.DocumentID = documentID
	s.append(ctx, event)
}

func (s *Service) append(ctx context.Context, event *audit.Event) {
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		event.RequestID = requestID
	}
	if err := s.audit.Append(ctx, event); err != nil {
		s.logger.WithError(err).Warn("audit append failed", "event_type", string(event.EventType))
	}
}

func validateUpload(upload Upload) error {
	if upload.Content == nil {
		return errs.NewValidation("file", "is required")
	}
	if upload.FileName == "" {
		return errs.NewValidation("file_name", "is required")
	}
	if upload.Size <= 0 {
		return errs.NewValidation("file", "must not be empty")
	}
	if upload.Size > MaxFileSize {
		return errs.NewValidation("file", fmt.Sprintf("exceeds the %d byte limit", MaxFileSize))
	}
	return nil
}
