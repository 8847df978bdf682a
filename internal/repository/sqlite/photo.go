package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/model"
	"github.com/sakif/photoshare/internal/repository"
)

var _ repository.PhotoRepository = (*DB)(nil)

// CreatePhoto inserts p and fills in p.ID and p.CreatedAt.
func (db *DB) CreatePhoto(ctx context.Context, p *model.Photo) error {
	p.CreatedAt = time.Now().UTC()
	if p.Tags == nil {
		p.Tags = model.Tags{}
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO photos (uploader, url, title, tags, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.Uploader,
		p.URL,
		p.Title,
		p.Tags.Encode(),
		p.Description,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating photo: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading photo id: %w", err)
	}
	p.ID = id
	return nil
}

// GetPhoto retrieves a single photo without its likes.
// Returns apperror.ErrNotFound if the photo doesn't exist.
func (db *DB) GetPhoto(ctx context.Context, id int64) (*model.Photo, error) {
	var (
		p    model.Photo
		tags string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, uploader, url, title, tags, description, created_at
		 FROM photos WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.Uploader, &p.URL, &p.Title, &tags, &p.Description, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("photo", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting photo %d: %w", id, err)
	}
	p.Tags = model.DecodeTags(tags)
	return &p, nil
}

// ListPhotos returns all photos, newest first, each with the usernames of
// the users who liked it.
//
// TWO QUERIES, NOT N+1:
// The photos come back in one query and every like (joined to its
// username) in a second; the likes are then attached in memory by photo ID.
// Both reads run in one transaction so the likes match the photo set.
func (db *DB) ListPhotos(ctx context.Context) ([]model.Photo, error) {
	photos := []model.Photo{}

	err := db.withReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, uploader, url, title, tags, description, created_at
			 FROM photos
			 ORDER BY created_at DESC, id DESC`,
		)
		if err != nil {
			return fmt.Errorf("sqlite: listing photos: %w", err)
		}
		defer rows.Close()

		index := make(map[int64]int)
		for rows.Next() {
			var (
				p    model.Photo
				tags string
			)
			if err := rows.Scan(&p.ID, &p.Uploader, &p.URL, &p.Title, &tags, &p.Description, &p.CreatedAt); err != nil {
				return fmt.Errorf("sqlite: scanning photo row: %w", err)
			}
			p.Tags = model.DecodeTags(tags)
			p.Likes = []string{}
			index[p.ID] = len(photos)
			photos = append(photos, p)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("sqlite: iterating photos: %w", err)
		}

		likeRows, err := tx.QueryContext(ctx,
			`SELECT l.photo_id, u.username
			 FROM likes l
			 JOIN users u ON u.id = l.user_id
			 ORDER BY l.created_at, u.username`,
		)
		if err != nil {
			return fmt.Errorf("sqlite: listing likes: %w", err)
		}
		defer likeRows.Close()

		for likeRows.Next() {
			var (
				photoID  int64
				username string
			)
			if err := likeRows.Scan(&photoID, &username); err != nil {
				return fmt.Errorf("sqlite: scanning like row: %w", err)
			}
			if i, ok := index[photoID]; ok {
				photos[i].Likes = append(photos[i].Likes, username)
			}
		}
		if err := likeRows.Err(); err != nil {
			return fmt.Errorf("sqlite: iterating likes: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return photos, nil
}

// UpdatePhoto overwrites the mutable fields of a photo. An unknown ID
// updates nothing and returns 0.
func (db *DB) UpdatePhoto(ctx context.Context, p *model.Photo) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE photos SET title = ?, tags = ?, description = ? WHERE id = ?`,
		p.Title,
		p.Tags.Encode(),
		p.Description,
		p.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: updating photo %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

// DeletePhoto removes a photo. Its likes are removed by ON DELETE CASCADE.
// An unknown ID deletes nothing and returns 0.
func (db *DB) DeletePhoto(ctx context.Context, id int64) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting photo %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
