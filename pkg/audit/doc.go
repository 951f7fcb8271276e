// Package audit provides the append-only audit trail for docstack.
//
// # Overview
//
// Every denied permission check, every project/membership/document
// mutation, and every blob-store anomaly (failed removals, reclaimed
// orphans) is recorded as an Event. Sinks implement the Logger
// interface: DBLogger (postgres), FileLogger (NDJSON with rotation),
// MultiLogger (fan-out), and NopLogger.
//
// # Fire-and-forget
//
// Request paths must never block on the audit trail. Wrap the chosen
// sink in AsyncLogger: Append enqueues onto a bounded buffer and a
// worker goroutine drains it. When the buffer is full the event is
// dropped and counted, not queued.
//
//	sink, _ := audit.NewDBLogger(db)
//	logger := audit.NewAsyncLogger(sink, 1024, log, metrics)
//	defer logger.Close()
//
//	logger.Append(ctx, audit.NewEvent(audit.EventTypeDocumentCreate, audit.EventStatusSuccess).
//		WithActor(actor.ID, string(actor.Role)).
//		WithDocument(projectID, docID))
package audit
