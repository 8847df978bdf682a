package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/photoshare/internal/filestore"
	"github.com/sakif/photoshare/internal/service"
)

// UserHandler serves profiles: lookup, rename and profile pictures.
type UserHandler struct {
	identity *service.IdentityService
	files    filestore.Store
	logger   *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(identity *service.IdentityService, files filestore.Store, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		identity: identity,
		files:    files,
		logger:   logger,
	}
}

type renameRequest struct {
	OldUsername string `json:"oldUsername"`
	NewUsername string `json:"newUsername"`
}

// RenameResponse carries the user under their new name.
type RenameResponse struct {
	Message string        `json:"message"`
	User    *UserResponse `json:"user,omitempty"`
}

// ProfilePicResponse carries the URL of a freshly uploaded profile picture.
type ProfilePicResponse struct {
	Message       string `json:"message"`
	ProfilePicURL string `json:"profilePicUrl"`
}

// HandleGet returns a public profile.
//
// HTTP: GET /api/users/{username}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.GetUser(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleRename changes a username. Photos uploaded under the old name move
// with it.
//
// HTTP: POST /api/users/update
// REQUEST BODY: {"oldUsername":"alice","newUsername":"alicia"}
func (h *UserHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("invalid rename JSON", slog.String("error", err.Error()))
		writeBadRequest(w, "Invalid JSON body")
		return
	}

	user, renamed, err := h.identity.RenameUser(r.Context(), req.OldUsername, req.NewUsername)
	if err != nil {
		writeError(w, err)
		return
	}

	message := "Username changed"
	if !renamed {
		message = "Username unchanged"
	}
	writeJSON(w, http.StatusOK, RenameResponse{
		Message: message,
		User:    toUserResponse(user),
	})
}

// HandleProfilePicUpload stores a new profile picture.
//
// HTTP: POST /api/profile/upload
// FORM: profilePic (file), username
func (h *UserHandler) HandleProfilePicUpload(w http.ResponseWriter, r *http.Request) {
	fh, err := readUpload(w, r, "profilePic")
	if err != nil {
		h.logger.Warn("invalid profile upload", slog.String("error", err.Error()))
		writeUploadError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	url, err := saveUpload(r, h.files, "profilePic", fh)
	if err != nil {
		h.logger.Error("failed to store profile picture", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	picURL, err := h.identity.UpdateProfilePicture(r.Context(), r.FormValue("username"), url)
	if err != nil {
		discardUpload(r, h.files, url, h.logger)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ProfilePicResponse{
		Message:       "Profile picture updated",
		ProfilePicURL: picURL,
	})
}
