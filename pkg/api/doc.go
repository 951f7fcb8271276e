// Package api exposes the document, project and user services over HTTP.
//
// # Routes
//
// All routes live under /api/v1 and require an authenticated identity
// resolved by the identity middleware (X-User-ID header).
//
// Projects:
//
//	POST   /api/v1/projects
//	GET    /api/v1/projects
//	GET    /api/v1/projects/{id}
//	PUT    /api/v1/projects/{id}
//	DELETE /api/v1/projects/{id}
//	POST   /api/v1/projects/{id}/members
//	GET    /api/v1/projects/{id}/members
//	DELETE /api/v1/projects/{id}/members/{userId}
//
// Documents and versions:
//
//	POST   /api/v1/projects/{id}/documents   (multipart: title, file)
//	GET    /api/v1/projects/{id}/documents
//	GET    /api/v1/documents/{id}
//	DELETE /api/v1/documents/{id}
//	POST   /api/v1/documents/{id}/versions   (multipart: file)
//	GET    /api/v1/documents/{id}/versions
//	GET    /api/v1/documents/{id}/versions/{version}/download
//
// Users:
//
//	POST   /api/v1/users
//	GET    /api/v1/users
//	GET    /api/v1/users/{id}
//	PUT    /api/v1/users/{id}/role
//	DELETE /api/v1/users/{id}
//
// Authorization failures map to 403, unknown resources to 404, version
// races to 409; see pkg/httputil for the full error mapping.
package api
