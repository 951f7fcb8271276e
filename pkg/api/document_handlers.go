package api

import (
	"net/http"

	"github.com/docstack/docstack/pkg/authz"
	"github.com/docstack/docstack/pkg/docs"
	"github.com/docstack/docstack/pkg/httputil"
	"github.com/docstack/docstack/pkg/middleware"
)

// requireActor extracts the resolved identity, writing a 401 if the
// request never passed through the identity middleware.
func requireActor(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return authz.Actor{}, false
	}
	return actor, true
}

// parseUpload reads the multipart "file" field into a docs.Upload. The
// multipart size header is what validation checks; the blob write reads
// the actual stream. The returned closer releases the form file.
func parseUpload(w http.ResponseWriter, r *http.Request) (docs.Upload, func(), bool) {
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "multipart field 'file' is required")
		return docs.Upload{}, nil, false
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	upload := docs.Upload{
		FileName:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Content:     file,
	}
	return upload, func() { file.Close() }, true
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	projectID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	upload, closeUpload, ok := parseUpload(w, r)
	if !ok {
		return
	}
	defer closeUpload()

	doc, err := s.docs.Create(r.Context(), actor, projectID, r.FormValue("title"), upload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, doc)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	projectID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	documents, err := s.docs.ListByProject(r.Context(), actor, projectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, documents)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	documentID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	doc, err := s.docs.Get(r.Context(), actor, documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	documentID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.docs.Delete(r.Context(), actor, documentID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) addVersion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	documentID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	upload, closeUpload, ok := parseUpload(w, r)
	if !ok {
		return
	}
	defer closeUpload()

	version, err := s.docs.AddVersion(r.Context(), actor, documentID, upload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, version)
}

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	documentID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	versions, err := s.docs.ListVersions(r.Context(), actor, documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, versions)
}

func (s *Server) downloadVersion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	documentID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}
	versionNumber, ok := httputil.PathIntOrError(w, r, "version")
	if !ok {
		return
	}

	url, err := s.docs.Download(r.Context(), actor, documentID, versionNumber)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, DownloadResponse{URL: url})
}
