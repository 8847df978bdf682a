package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/sakif/photoshare/internal/filestore"
)

// MaxUploadBytes caps a whole multipart request body.
const MaxUploadBytes = 50 << 20

// Parts beyond this stay in temporary files instead of memory.
const multipartMemory = 8 << 20

var errUploadTooLarge = errors.New("upload too large")

// readUpload parses a multipart form and returns the file sent in field,
// or nil when the form carries no such file. Callers must call
// r.MultipartForm.RemoveAll once they are done with the file.
//
// MaxBytesReader stops reading after MaxUploadBytes, so an oversized body
// is rejected without being buffered.
func readUpload(w http.ResponseWriter, r *http.Request, field string) (*multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errUploadTooLarge
		}
		return nil, fmt.Errorf("parsing multipart form: %w", err)
	}

	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, nil
	}
	return files[0], nil
}

// writeUploadError answers a readUpload failure.
func writeUploadError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUploadTooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "too_large",
			Message: fmt.Sprintf("Uploads are limited to %d MB", MaxUploadBytes>>20),
		})
		return
	}
	writeBadRequest(w, "Expected a multipart form")
}

// saveUpload stores fh and returns its URL. A nil fh stores nothing and
// returns "", leaving the "file required" decision to the service.
func saveUpload(r *http.Request, files filestore.Store, field string, fh *multipart.FileHeader) (string, error) {
	if fh == nil {
		return "", nil
	}
	return files.Save(r.Context(), field, fh)
}

// discardUpload removes a file whose database write failed.
func discardUpload(r *http.Request, files filestore.Store, url string, logger *slog.Logger) {
	if url == "" {
		return
	}
	if err := files.Remove(r.Context(), url); err != nil {
		logger.Warn("failed to remove orphaned upload",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
}
