package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/repository"
)

var _ repository.LikeRepository = (*DB)(nil)

// ToggleLike flips whether userID likes photoID and returns the new state.
//
// DELETE FIRST, THEN INSERT:
// Instead of "SELECT, then DELETE or INSERT", the transaction tries the
// DELETE. One row gone means the pair was liked and now is not. Zero rows
// means it was not liked, so it is inserted with ON CONFLICT DO NOTHING,
// which cannot fail on the primary key even if another request inserted the
// same pair in between.
//
// A photo ID with no photo behind it fails the foreign key and is reported
// as apperror.ErrNotFound.
func (db *DB) ToggleLike(ctx context.Context, userID, photoID int64) (bool, error) {
	var liked bool

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM likes WHERE user_id = ? AND photo_id = ?`,
			userID, photoID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: removing like (%d, %d): %w", userID, photoID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n > 0 {
			liked = false
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO likes (user_id, photo_id) VALUES (?, ?)
			 ON CONFLICT (user_id, photo_id) DO NOTHING`,
			userID, photoID,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.NotFound("photo", strconv.FormatInt(photoID, 10))
			}
			return fmt.Errorf("sqlite: adding like (%d, %d): %w", userID, photoID, err)
		}
		liked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return liked, nil
}
