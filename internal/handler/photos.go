package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/photoshare/internal/filestore"
	"github.com/sakif/photoshare/internal/service"
)

// PhotoHandler serves the photo catalog.
//
// HANDLER RESPONSIBILITIES:
//   - HandleList    → every photo, newest first, with likes
//   - HandleUpload  → store a file and record the photo
//   - HandleEdit    → change title, tags and description
//   - HandleDelete  → remove a photo (and its likes and file)
//   - HandleLike    → toggle a like
type PhotoHandler struct {
	catalog *service.CatalogService
	files   filestore.Store
	logger  *slog.Logger
}

// NewPhotoHandler creates a PhotoHandler.
func NewPhotoHandler(catalog *service.CatalogService, files filestore.Store, logger *slog.Logger) *PhotoHandler {
	return &PhotoHandler{
		catalog: catalog,
		files:   files,
		logger:  logger,
	}
}

// UploadResponse is returned after a photo is stored.
type UploadResponse struct {
	Message string `json:"message"`
	PhotoID int64  `json:"photoId"`
}

// LikeResponse reports the like state after a toggle.
type LikeResponse struct {
	Message string `json:"message"`
	Liked   bool   `json:"liked"`
}

// flexibleID accepts a JSON number or a string holding one. The web client
// sends photo IDs both ways depending on where they came from.
type flexibleID int64

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return errors.New("photoId must be an integer")
	}
	*id = flexibleID(n)
	return nil
}

// tagList accepts the comma-separated string the web client sends, or a
// JSON array of tags, and normalises both to the comma-separated form.
type tagList string

func (t *tagList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = tagList(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.New("tags must be a string or a list of strings")
	}
	*t = tagList(strings.Join(list, ","))
	return nil
}

type likeRequest struct {
	PhotoID  *flexibleID `json:"photoId"`
	Username string      `json:"username"`
}

type editRequest struct {
	Title       string  `json:"title"`
	Tags        tagList `json:"tags"`
	Description string  `json:"description"`
}

// HandleList returns every photo.
//
// HTTP: GET /api/photos
//
// RESPONSE FORMAT:
//
//	[
//	  {"id":2,"uploader":"alice","url":"/uploads/photo/...","title":"...",
//	   "tags":["a","b"],"description":"...","createdAt":"...","likes":["bob"]},
//	  ...
//	]
func (h *PhotoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	photos, err := h.catalog.ListPhotos(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, photos)
}

// HandleUpload stores a photo.
//
// HTTP: POST /api/photos/upload
// FORM: photo (file), uploader, title, tags (comma-separated), description
//
// The file is saved before the row is written. If the row cannot be
// written, the file is removed again so no orphan is left behind.
func (h *PhotoHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	fh, err := readUpload(w, r, "photo")
	if err != nil {
		h.logger.Warn("invalid photo upload", slog.String("error", err.Error()))
		writeUploadError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	url, err := saveUpload(r, h.files, "photo", fh)
	if err != nil {
		h.logger.Error("failed to store photo file", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	photo, err := h.catalog.UploadPhoto(r.Context(),
		r.FormValue("uploader"),
		r.FormValue("title"),
		r.FormValue("tags"),
		r.FormValue("description"),
		url,
	)
	if err != nil {
		discardUpload(r, h.files, url, h.logger)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		Message: "Photo uploaded",
		PhotoID: photo.ID,
	})
}

// HandleEdit updates a photo's metadata.
//
// HTTP: PUT /api/photos/{id}
// REQUEST BODY: {"title":"...","tags":"a, b","description":"..."}
func (h *PhotoHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := photoIDParam(w, r)
	if !ok {
		return
	}

	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("invalid photo edit JSON", slog.String("error", err.Error()))
		writeBadRequest(w, "Invalid JSON body")
		return
	}

	if err := h.catalog.EditPhoto(r.Context(), id, req.Title, string(req.Tags), req.Description); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Photo updated"})
}

// HandleDelete removes a photo.
//
// HTTP: DELETE /api/photos/{id}
//
// Deleting a photo that does not exist still answers 200.
func (h *PhotoHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := photoIDParam(w, r)
	if !ok {
		return
	}

	if err := h.catalog.DeletePhoto(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Photo deleted"})
}

// HandleLike toggles a like.
//
// HTTP: POST /api/photos/like
// REQUEST BODY: {"photoId": 3, "username": "bob"}   ("3" works too)
func (h *PhotoHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	var req likeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("invalid like JSON", slog.String("error", err.Error()))
		writeBadRequest(w, "Invalid JSON body")
		return
	}
	if req.PhotoID == nil {
		writeBadRequest(w, "photoId is required")
		return
	}

	liked, err := h.catalog.ToggleLike(r.Context(), int64(*req.PhotoID), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	message := "Like removed"
	if liked {
		message = "Photo liked"
	}
	writeJSON(w, http.StatusOK, LikeResponse{Message: message, Liked: liked})
}

// photoIDParam reads the {id} URL parameter, answering 400 itself when it
// is not a positive integer.
func photoIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "Photo ID must be a positive integer")
		return 0, false
	}
	return id, true
}
