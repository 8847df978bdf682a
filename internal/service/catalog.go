package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/metrics"
	"github.com/sakif/photoshare/internal/model"
	"github.com/sakif/photoshare/internal/repository"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxTags              = 30
)

// FileRemover deletes a stored upload by the URL it was served under.
// filestore.Local and filestore.MinIO both satisfy it.
type FileRemover interface {
	Remove(ctx context.Context, url string) error
}

// CatalogService owns photos and likes.
type CatalogService struct {
	photos repository.PhotoRepository
	likes  repository.LikeRepository
	users  repository.UserRepository
	files  FileRemover
	logger *slog.Logger
}

// NewCatalogService wires the catalog. files may be nil, in which case
// deleting a photo leaves its file in place.
func NewCatalogService(
	photos repository.PhotoRepository,
	likes repository.LikeRepository,
	users repository.UserRepository,
	files FileRemover,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		photos: photos,
		likes:  likes,
		users:  users,
		files:  files,
		logger: logger,
	}
}

// ListPhotos returns every photo, newest first, with the usernames of the
// users who liked each one.
func (s *CatalogService) ListPhotos(ctx context.Context) ([]model.Photo, error) {
	photos, err := s.photos.ListPhotos(ctx)
	if err != nil {
		s.logger.Error("failed to list photos", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/catalog: listing photos: %w", err)
	}
	return photos, nil
}

// UploadPhoto records a photo whose file the file store has already saved
// at storedFileURL. tagsCSV is the comma-separated tag list from the form.
func (s *CatalogService) UploadPhoto(ctx context.Context, uploader, title, tagsCSV, description, storedFileURL string) (*model.Photo, error) {
	if storedFileURL == "" {
		return nil, apperror.ValidationFailed("photo", "a photo file is required")
	}

	photo := &model.Photo{
		Uploader:    strings.TrimSpace(uploader),
		URL:         storedFileURL,
		Title:       strings.TrimSpace(title),
		Tags:        model.ParseTags(tagsCSV),
		Description: strings.TrimSpace(description),
	}
	if err := validatePhotoFields(photo); err != nil {
		return nil, err
	}

	if err := s.photos.CreatePhoto(ctx, photo); err != nil {
		s.logger.Error("failed to create photo",
			slog.String("uploader", photo.Uploader),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/catalog: creating photo: %w", err)
	}

	metrics.PhotosUploaded.Inc()
	s.logger.Info("photo uploaded",
		slog.Int64("id", photo.ID),
		slog.String("uploader", photo.Uploader),
		slog.Int("tags", len(photo.Tags)),
	)
	return photo, nil
}

// EditPhoto overwrites title, tags and description. Editing an ID that does
// not exist is not an error.
func (s *CatalogService) EditPhoto(ctx context.Context, id int64, title, tagsCSV, description string) error {
	photo := &model.Photo{
		ID:          id,
		Title:       strings.TrimSpace(title),
		Tags:        model.ParseTags(tagsCSV),
		Description: strings.TrimSpace(description),
	}
	if err := validatePhotoFields(photo); err != nil {
		return err
	}

	n, err := s.photos.UpdatePhoto(ctx, photo)
	if err != nil {
		s.logger.Error("failed to update photo",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/catalog: updating photo: %w", err)
	}
	if n == 0 {
		s.logger.Debug("photo edit matched nothing", slog.Int64("id", id))
		return nil
	}

	s.logger.Info("photo updated", slog.Int64("id", id))
	return nil
}

// DeletePhoto removes a photo and, through the schema, its likes. Deleting
// an ID that does not exist is not an error. The stored file is removed
// afterwards; failing to remove it is logged, not returned.
func (s *CatalogService) DeletePhoto(ctx context.Context, id int64) error {
	var fileURL string
	existing, err := s.photos.GetPhoto(ctx, id)
	switch {
	case err == nil:
		fileURL = existing.URL
	case errors.Is(err, apperror.ErrNotFound):
		s.logger.Debug("photo delete matched nothing", slog.Int64("id", id))
		return nil
	default:
		return fmt.Errorf("service/catalog: deleting photo: %w", err)
	}

	n, err := s.photos.DeletePhoto(ctx, id)
	if err != nil {
		s.logger.Error("failed to delete photo",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/catalog: deleting photo: %w", err)
	}
	if n == 0 {
		return nil
	}

	s.logger.Info("photo deleted", slog.Int64("id", id))

	if s.files != nil && fileURL != "" {
		if err := s.files.Remove(ctx, fileURL); err != nil {
			s.logger.Warn("failed to remove photo file",
				slog.Int64("id", id),
				slog.String("url", fileURL),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// ToggleLike flips whether username likes the photo and reports the new
// state (true = liked).
//
// Errors:
//   - apperror.ErrNotFound  unknown username or unknown photo
func (s *CatalogService) ToggleLike(ctx context.Context, photoID int64, username string) (bool, error) {
	username = normalizeUsername(username)
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return false, fmt.Errorf("service/catalog: toggling like: %w", err)
	}

	liked, err := s.likes.ToggleLike(ctx, user.ID, photoID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("failed to toggle like",
				slog.Int64("photoID", photoID),
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
		}
		return false, fmt.Errorf("service/catalog: toggling like: %w", err)
	}

	state := "unliked"
	if liked {
		state = "liked"
	}
	metrics.LikesToggled.WithLabelValues(state).Inc()
	s.logger.Info("like toggled",
		slog.Int64("photoID", photoID),
		slog.String("username", username),
		slog.String("state", state),
	)
	return liked, nil
}

func validatePhotoFields(p *model.Photo) error {
	if utf8.RuneCountInString(p.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if utf8.RuneCountInString(p.Description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if len(p.Tags) > MaxTags {
		return apperror.ValidationFailed("tags",
			fmt.Sprintf("a photo can have at most %d tags", MaxTags))
	}
	return nil
}
