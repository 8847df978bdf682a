// Package repository declares the storage interfaces the services depend on.
// internal/repository/sqlite provides the implementation.
package repository

import (
	"context"

	"github.com/sakif/photoshare/internal/model"
)

type UserRepository interface {
	// CreateUser inserts u and sets u.ID and u.CreatedAt. A taken username
	// is reported as apperror.ErrConflict by the UNIQUE constraint, never
	// by a prior read.
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	// RenameUser changes the username and rewrites photos.uploader in one
	// transaction.
	RenameUser(ctx context.Context, oldUsername, newUsername string) (*model.User, error)
	// SetProfilePic returns the URL it replaced. found is false for an
	// unknown username, which is not an error.
	SetProfilePic(ctx context.Context, username, url string) (previous string, found bool, err error)
}

type PhotoRepository interface {
	CreatePhoto(ctx context.Context, p *model.Photo) error
	GetPhoto(ctx context.Context, id int64) (*model.Photo, error)
	// ListPhotos returns every photo newest first with Likes populated.
	ListPhotos(ctx context.Context) ([]model.Photo, error)
	// UpdatePhoto overwrites title, tags and description. Zero rows
	// affected is not an error.
	UpdatePhoto(ctx context.Context, p *model.Photo) (int64, error)
	// DeletePhoto removes the photo; its likes go with it.
	DeletePhoto(ctx context.Context, id int64) (int64, error)
}

type LikeRepository interface {
	// ToggleLike flips the (user, photo) like and reports whether the
	// pair is liked afterwards.
	ToggleLike(ctx context.Context, userID, photoID int64) (bool, error)
}
