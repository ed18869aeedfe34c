package server

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/jonathan/bulk-plasmid-seq/internal/runs"
)

// handlePrepareResults packages a result session into a downloadable archive
func (s *Server) handlePrepareResults(w http.ResponseWriter, r *http.Request) {
	var req runs.PackageRequest
	if !s.decode(w, r, &req) {
		return
	}
	archive, err := s.svc.Package(r.Context(), &req)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, archive)
}

// handleDownloadResults streams a prepared archive as an attachment
func (s *Server) handleDownloadResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fileName := q.Get("fileName")
	w.Header().Set("Content-Type", "application/x-gtar")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	s.serveSessionFile(w, r, q.Get("serverId"), fileName)
}

// handleResultFile returns one result artifact, e.g. for a genome browser view
func (s *Server) handleResultFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if ct := q.Get("contentType"); ct != "" {
		if _, _, err := mime.ParseMediaType(ct); err != nil {
			s.errorResponse(w, r, &ErrValidation{Field: "contentType", Message: fmt.Sprintf("invalid media type %q", ct)})
			return
		}
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	s.serveSessionFile(w, r, q.Get("serverId"), q.Get("fileName"))
}

func (s *Server) serveSessionFile(w http.ResponseWriter, r *http.Request, serverID, fileName string) {
	f, err := s.svc.Store().Open(serverID, fileName)
	if err != nil {
		w.Header().Del("Content-Disposition")
		s.errorResponse(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, fileName, info.ModTime(), f)
}
