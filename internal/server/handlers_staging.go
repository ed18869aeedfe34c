package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxMemory is the multipart buffer kept in memory before spilling to disk.
const maxMemory = 32 << 20

// CheckFormatRequest names a staged read file to inspect.
type CheckFormatRequest struct {
	ServerID string `json:"serverId"`
	FileName string `json:"fileName"`
}

// handleUpload stages the multipart field "filepond" into a session
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorResponse(w, r, err)
			return
		}
		s.errorResponse(w, r, &ErrValidation{Field: "filepond", Message: "no file was uploaded"})
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("filepond")
	if err != nil {
		s.errorResponse(w, r, &ErrValidation{Field: "filepond", Message: "no file was uploaded"})
		return
	}
	defer file.Close()

	staged, err := s.svc.Stage(r.Context(), r.URL.Query().Get("serverId"), header.Filename, file)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, staged)
}

// handleDelete removes a staged file or session; it always succeeds
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.svc.Delete(r.Context(), q.Get("serverId"), q.Get("fileName"))
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleCheckFormat reports whether a staged read file is really FASTQ
func (s *Server) handleCheckFormat(w http.ResponseWriter, r *http.Request) {
	var req CheckFormatRequest
	if !s.decode(w, r, &req) {
		return
	}
	ok, err := s.svc.CheckFormat(req.ServerID, req.FileName)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"serverId": req.ServerID, "fileName": req.FileName, "valid": ok})
}

// decode reads a JSON body into dst and reports malformed bodies itself.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		s.errorResponse(w, r, &ErrValidation{Message: "Invalid request body: " + err.Error()})
		return false
	}
	return true
}
