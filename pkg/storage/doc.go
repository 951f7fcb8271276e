// Package storage defines the blob store abstraction for document content
// and the shared storage configuration.
//
// The resource store (PostgreSQL) lives in the postgres subpackage;
// document bytes live in an S3-compatible object store behind the
// BlobStore interface. MemoryBlobStore provides the same semantics
// in-process for tests and local development.
//
// Storage paths follow {projectID}/{documentID}/v{N}-{fileName}, so a
// path is deterministic and collision-free per version. Put is
// write-once: retried uploads to an occupied path are rejected instead
// of silently overwritten.
package storage
