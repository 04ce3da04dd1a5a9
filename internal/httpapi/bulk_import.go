package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"account_sync/internal/importer"
)

func (s *Server) maxUploadBytes() int64 {
	mb := s.cfg.Server.MaxUploadMB
	if mb <= 0 {
		mb = 32
	}
	return int64(mb) << 20
}

// handleBulkImport accepts a multipart form with the fields file, separator
// and fieldsMapping (a JSON array of {fieldName, position}).
func (s *Server) handleBulkImport(role importer.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := s.maxUploadBytes()
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		if err := r.ParseMultipartForm(limit); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "upload too large"})
				return
			}
			badRequest(w, "invalid multipart form: "+err.Error())
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		file, header, err := r.FormFile("file")
		if err != nil {
			badRequest(w, "No file uploaded")
			return
		}
		defer file.Close()

		separator := r.FormValue("separator")
		if separator == "" {
			badRequest(w, "Separator is required")
			return
		}
		rawMapping := r.FormValue("fieldsMapping")
		if rawMapping == "" {
			badRequest(w, "Field mapping is required")
			return
		}
		mappings, err := importer.ParseMappings(rawMapping)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			badRequest(w, "failed to read uploaded file: "+err.Error())
			return
		}
		if !utf8.Valid(content) {
			badRequest(w, "file must be UTF-8 encoded")
			return
		}

		res := s.importer.Import(context.WithoutCancel(r.Context()), importer.Request{
			Content:   string(content),
			Separator: separator,
			Mappings:  mappings,
			Role:      role,
			Source:    header.Filename,
		})
		status := http.StatusOK
		if !res.Success {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, res)
	}
}

func (s *Server) handleImportFields(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": importer.AvailableFields})
}
