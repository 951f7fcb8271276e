package docs

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/docstack/docstack/pkg/audit"
	"github.com/docstack/docstack/pkg/errs"
	"github.com/docstack/docstack/pkg/observability"
	"github.com/docstack/docstack/pkg/storage"
)

// DefaultGracePeriod is how old an unreferenced object must be before
// the reconciler removes it. An upload racing a version commit is
// briefly unreferenced; the grace period keeps the sweep from eating it.
const DefaultGracePeriod = 24 * time.Hour

// Reconciler sweeps the blob store for objects no version row points
// at. Such orphans are produced when a multi-step workflow fails after
// its upload: the lost half of an AddVersion race whose cleanup also
// failed, or a crash between upload and commit.
type Reconciler struct {
	db          *sql.DB
	blobs       storage.BlobStore
	audit       audit.Logger
	logger      *observability.Logger
	metrics     *observability.Metrics
	gracePeriod time.Duration
	cron        *cron.Cron
}

// NewReconciler creates a reconciler. auditLog may be nil; gracePeriod
// <= 0 uses DefaultGracePeriod.
func NewReconciler(db *sql.DB, blobs storage.BlobStore, auditLog audit.Logger, logger *observability.Logger, metrics *observability.Metrics, gracePeriod time.Duration) *Reconciler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, os.Stderr)
	}
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	return &Reconciler{
		db:          db,
		blobs:       blobs,
		audit:       auditLog,
		logger:      logger,
		metrics:     metrics,
		gracePeriod: gracePeriod,
	}
}

// Start schedules Sweep on the given cron expression.
func (r *Reconciler) Start(schedule string) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(schedule, func() {
		defer observability.RecoverPanic(r.logger, "orphan sweep")
		if removed, err := r.Sweep(context.Background()); err != nil {
			r.logger.WithError(err).Error("orphan sweep failed")
		} else if removed > 0 {
			r.logger.Info("orphan sweep finished", "removed", removed)
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Sweep removes every object that is older than the grace period and
// referenced by no version row. It returns the number of objects
// removed.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	referenced, err := r.referencedPaths(ctx)
	if err != nil {
		return 0, err
	}

	objects, err := r.blobs.List(ctx, "")
	if err != nil {
		return 0, errs.NewStorage("list objects", err)
	}

	cutoff := time.Now().UTC().Add(-r.gracePeriod)
	var orphans []string
	for _, object := range objects {
		if _, ok := referenced[object.Path]; ok {
			continue
		}
		if object.LastModified.After(cutoff) {
			continue
		}
		orphans = append(orphans, object.Path)
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	failures := r.blobs.Remove(ctx, orphans)
	failed := make(map[string]struct{}, len(failures))
	for _, failure := range failures {
		failed[failure.Path] = struct{}{}
		r.logger.WithError(failure.Err).Warn("orphan removal failed", "path", failure.Path)
	}

	removed := 0
	for _, path := range orphans {
		if _, ok := failed[path]; ok {
			continue
		}
		removed++
		event := audit.NewEvent(audit.EventTypeBlobOrphanRemoved, audit.EventStatusSuccess)
		event.StoragePath = path
		if err := r.audit.Append(ctx, event); err != nil {
			r.logger.WithError(err).Warn("audit append failed", "path", path)
		}
	}

	if r.metrics != nil && removed > 0 {
		r.metrics.OrphanedBlobsRemoved.Add(float64(removed))
	}

	return removed, nil
}

func (r *Reconciler) referencedPaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT storage_path FROM document_versions`)
	if err != nil {
		return nil, errs.NewPersistence("list referenced paths", err)
	}
	defer rows.Close()

	referenced := make(map[string]struct{})
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, errs.NewPersistence("scan referenced path", err)
		}
		referenced[path] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewPersistence("list referenced paths", err)
	}
	return referenced, nil
}
