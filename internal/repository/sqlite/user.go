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

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, password_hash, question, answer_hash, profile_pic, created_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.Question,
		&u.AnswerHash,
		&u.ProfilePic,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user.
//
// There is no "SELECT ... WHERE username = ?" first. Two concurrent signups
// would both pass such a check; the UNIQUE constraint on username lets
// exactly one INSERT win and the loser gets apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, u *model.User) error {
	u.CreatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, question, answer_hash, profile_pic, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username,
		u.PasswordHash,
		u.Question,
		u.AnswerHash,
		u.ProfilePic,
		u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("username", u.Username)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", u.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}
	u.ID = id
	return nil
}

// GetUserByUsername looks a user up by exact, case-sensitive username.
// Returns apperror.ErrNotFound if no user has that name.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`,
		username,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return u, nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

// RenameUser changes a username and moves every photo uploaded under the
// old name to the new one.
//
// Both UPDATEs run in one transaction, so no reader ever sees the user
// renamed while their photos still carry the old name, and a failure
// between the two statements leaves nothing half done.
//
// Errors:
//   - apperror.ErrConflict if newUsername is taken (UNIQUE constraint)
//   - apperror.ErrNotFound if oldUsername does not exist
func (db *DB) RenameUser(ctx context.Context, oldUsername, newUsername string) (*model.User, error) {
	var renamed *model.User

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET username = ? WHERE username = ?`,
			newUsername, oldUsername,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("username", newUsername)
			}
			return fmt.Errorf("sqlite: renaming user %q: %w", oldUsername, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("user", oldUsername)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE photos SET uploader = ? WHERE uploader = ?`,
			newUsername, oldUsername,
		); err != nil {
			return fmt.Errorf("sqlite: moving photos from %q to %q: %w", oldUsername, newUsername, err)
		}

		renamed, err = scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE username = ?`,
			newUsername,
		))
		if err != nil {
			return fmt.Errorf("sqlite: reloading user %q: %w", newUsername, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

// SetProfilePic overwrites the profile picture URL and returns the one it
// replaced. An unknown username changes nothing and reports found=false.
func (db *DB) SetProfilePic(ctx context.Context, username, url string) (string, bool, error) {
	var previous string
	found := true

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT profile_pic FROM users WHERE username = ?`, username,
		).Scan(&previous)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("sqlite: reading profile picture for %q: %w", username, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET profile_pic = ? WHERE username = ?`,
			url, username,
		); err != nil {
			return fmt.Errorf("sqlite: setting profile picture for %q: %w", username, err)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return previous, found, nil
}
