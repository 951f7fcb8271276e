// Package docs implements the document lifecycle: a document lives in a
// project and accumulates strictly sequential, immutable versions whose
// content sits in the blob store under
// {projectID}/{documentID}/v{N}-{fileName}.
//
// AddVersion serializes per document through a conditional bump of
// current_version; there is no lock shared across documents. Multi-step
// workflows compensate the steps they performed themselves, and the
// Reconciler sweeps up blobs that slipped through (uploads whose commit
// or cleanup failed).
package docs
