// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes the database
//
// Services take repository interfaces, never *sqlite.DB, so tests can pass
// the in-memory fakes from the _test files.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/auth"
	"github.com/sakif/photoshare/internal/metrics"
	"github.com/sakif/photoshare/internal/model"
	"github.com/sakif/photoshare/internal/repository"
)

const (
	MaxUsernameLength = 50
	MaxQuestionLength = 200

	placeholderAvatar = "https://placehold.co/192x192/EFEFEF/3A3A3A?text="
)

// WrongPasswordError is returned by Login when the account exists but the
// password does not match. It carries the account's recovery question so
// the client can offer recovery; it never carries the answer.
type WrongPasswordError struct {
	Question string
}

func (e *WrongPasswordError) Error() string { return "incorrect password" }

func (e *WrongPasswordError) Unwrap() error { return apperror.ErrUnauthorized }

// AuthResult bundles an authenticated user with a session token. Token is
// empty when the service runs without a TokenService.
type AuthResult struct {
	User  *model.User
	Token string
}

// IdentityService owns accounts: signup, login, recovery, rename and
// profile pictures.
//
// DEPENDENCIES:
//   - users     repository.UserRepository → account rows
//   - passwords *auth.PasswordService     → bcrypt for passwords and answers
//   - tokens    *auth.TokenService        → session JWTs (nil disables tokens)
//   - attempts  *auth.AttemptLimiter      → per-username throttle (nil disables)
//   - files     FileRemover               → drops replaced profile pictures (nil keeps them)
//
// Usernames are trimmed on the way in by every method, so " alice" and
// "alice" name the same account everywhere.
type IdentityService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	attempts  *auth.AttemptLimiter
	files     FileRemover
	logger    *slog.Logger
}

func NewIdentityService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	attempts *auth.AttemptLimiter,
	files FileRemover,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		attempts:  attempts,
		files:     files,
		logger:    logger,
	}
}

// Signup creates an account.
//
// The username check is the INSERT itself: the repository maps the UNIQUE
// violation to apperror.ErrConflict, so two simultaneous signups for the
// same name cannot both succeed.
func (s *IdentityService) Signup(ctx context.Context, username, password, question, answer string) (*model.User, error) {
	username = normalizeUsername(username)
	if err := validateUsername("username", username); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}
	if len(password) > auth.MaxSecretBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxSecretBytes))
	}
	if len(answer) > auth.MaxSecretBytes {
		return nil, apperror.ValidationFailed("answer",
			fmt.Sprintf("answer must be %d bytes or fewer", auth.MaxSecretBytes))
	}
	question = strings.TrimSpace(question)
	if utf8.RuneCountInString(question) > MaxQuestionLength {
		return nil, apperror.ValidationFailed("question",
			fmt.Sprintf("question must be %d characters or less", MaxQuestionLength))
	}

	passwordHash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/identity: hashing password: %w", err)
	}

	// No answer means no recovery for this account; an empty hash never
	// verifies.
	var answerHash string
	if answer != "" {
		answerHash, err = s.passwords.Hash(answer)
		if err != nil {
			return nil, fmt.Errorf("service/identity: hashing answer: %w", err)
		}
	}

	user := &model.User{
		Username:     username,
		PasswordHash: passwordHash,
		Question:     question,
		AnswerHash:   answerHash,
		ProfilePic:   PlaceholderAvatar(username),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("failed to create user",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("service/identity: creating user: %w", err)
	}

	metrics.SignupTotal.Inc()
	s.logger.Info("user signed up",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login checks a username/password pair.
//
// Errors:
//   - apperror.ErrRateLimited     too many attempts for this username
//   - apperror.ErrNotFound        no such account
//   - *WrongPasswordError         wrong password (wraps ErrUnauthorized)
func (s *IdentityService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = normalizeUsername(username)
	if err := s.allowAttempt(username); err != nil {
		metrics.LoginFailure.WithLabelValues("rate_limited").Inc()
		return nil, err
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			metrics.LoginFailure.WithLabelValues("unknown_user").Inc()
		}
		return nil, fmt.Errorf("service/identity: login: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrMismatch) {
			metrics.LoginFailure.WithLabelValues("wrong_password").Inc()
			s.logger.Info("login rejected: wrong password", slog.String("username", username))
			return nil, &WrongPasswordError{Question: user.Question}
		}
		return nil, fmt.Errorf("service/identity: verifying password: %w", err)
	}

	return s.authenticated(user, "password")
}

// RecoverByAnswer signs a user in with the answer to their security
// question. An unknown username and a wrong answer produce the same
// apperror.ErrUnauthorized so the endpoint cannot be used to probe which
// accounts exist.
func (s *IdentityService) RecoverByAnswer(ctx context.Context, username, answer string) (*AuthResult, error) {
	username = normalizeUsername(username)
	if err := s.allowAttempt(username); err != nil {
		metrics.LoginFailure.WithLabelValues("rate_limited").Inc()
		return nil, err
	}

	rejected := apperror.Unauthorized("the answer is not correct")

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			metrics.LoginFailure.WithLabelValues("recovery_rejected").Inc()
			return nil, rejected
		}
		return nil, fmt.Errorf("service/identity: recover: %w", err)
	}

	if err := s.passwords.Verify(user.AnswerHash, answer); err != nil {
		if errors.Is(err, auth.ErrMismatch) {
			metrics.LoginFailure.WithLabelValues("recovery_rejected").Inc()
			s.logger.Info("recovery rejected", slog.String("username", username))
			return nil, rejected
		}
		return nil, fmt.Errorf("service/identity: verifying answer: %w", err)
	}

	return s.authenticated(user, "recovery")
}

// RenameUser changes a username.
//
// Equal names are a NoOp: renamed=false, no error, and the current user
// when one exists (nil otherwise). Otherwise the repository renames the
// user and moves their photos in one transaction.
func (s *IdentityService) RenameUser(ctx context.Context, oldUsername, newUsername string) (user *model.User, renamed bool, err error) {
	oldUsername = normalizeUsername(oldUsername)
	newUsername = normalizeUsername(newUsername)
	if oldUsername == newUsername {
		user, err := s.users.GetUserByUsername(ctx, oldUsername)
		switch {
		case err == nil:
			return user, false, nil
		case errors.Is(err, apperror.ErrNotFound):
			return nil, false, nil
		default:
			return nil, false, fmt.Errorf("service/identity: rename: %w", err)
		}
	}
	if err := validateUsername("newUsername", newUsername); err != nil {
		return nil, false, err
	}

	user, err = s.users.RenameUser(ctx, oldUsername, newUsername)
	if err != nil {
		if !errors.Is(err, apperror.ErrConflict) && !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("failed to rename user",
				slog.String("from", oldUsername),
				slog.String("to", newUsername),
				slog.String("error", err.Error()),
			)
		}
		return nil, false, fmt.Errorf("service/identity: rename: %w", err)
	}

	// Throttle state belongs to the old name; drop it.
	if s.attempts != nil {
		s.attempts.Reset(oldUsername)
	}

	s.logger.Info("user renamed",
		slog.Int64("userID", user.ID),
		slog.String("from", oldUsername),
		slog.String("to", newUsername),
	)
	return user, true, nil
}

// UpdateProfilePicture points the user's profile picture at fileURL. An
// unknown username is not an error; nothing is updated. The picture it
// replaces is removed from storage on a best-effort basis.
func (s *IdentityService) UpdateProfilePicture(ctx context.Context, username, fileURL string) (string, error) {
	username = normalizeUsername(username)
	if fileURL == "" {
		return "", apperror.ValidationFailed("profilePic", "a profile picture file is required")
	}

	previous, found, err := s.users.SetProfilePic(ctx, username, fileURL)
	if err != nil {
		s.logger.Error("failed to update profile picture",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("service/identity: profile picture: %w", err)
	}
	if !found {
		s.logger.Warn("profile picture update matched no user", slog.String("username", username))
		return fileURL, nil
	}

	s.removeReplacedPicture(ctx, username, previous, fileURL)
	return fileURL, nil
}

// The placeholder is generated, never stored, so there is nothing to remove.
func (s *IdentityService) removeReplacedPicture(ctx context.Context, username, previous, current string) {
	if s.files == nil || previous == "" || previous == current ||
		strings.HasPrefix(previous, placeholderAvatar) {
		return
	}
	if err := s.files.Remove(ctx, previous); err != nil {
		s.logger.Warn("failed to remove replaced profile picture",
			slog.String("username", username),
			slog.String("url", previous),
			slog.String("error", err.Error()),
		)
	}
}

// GetUser returns the public profile for username.
func (s *IdentityService) GetUser(ctx context.Context, username string) (*model.User, error) {
	user, err := s.users.GetUserByUsername(ctx, normalizeUsername(username))
	if err != nil {
		return nil, fmt.Errorf("service/identity: get user: %w", err)
	}
	return user, nil
}

// CurrentUser returns the user a session token was issued to.
func (s *IdentityService) CurrentUser(ctx context.Context, id int64) (*model.User, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/identity: user %d: %w", id, err)
	}
	return user, nil
}

// PlaceholderAvatar is the default profile picture: a generated image
// showing the first character of the username.
func PlaceholderAvatar(username string) string {
	r, _ := utf8.DecodeRuneInString(username)
	if r == utf8.RuneError {
		return placeholderAvatar
	}
	return placeholderAvatar + url.QueryEscape(string(r))
}

func (s *IdentityService) allowAttempt(username string) error {
	if s.attempts == nil || s.attempts.Allow(username) {
		return nil
	}
	s.logger.Warn("credential attempts throttled", slog.String("username", username))
	return apperror.RateLimited("too many attempts, try again later")
}

func (s *IdentityService) authenticated(user *model.User, method string) (*AuthResult, error) {
	if s.attempts != nil {
		s.attempts.Reset(user.Username)
	}

	result := &AuthResult{User: user}
	if s.tokens != nil {
		token, err := s.tokens.Generate(user.ID)
		if err != nil {
			return nil, fmt.Errorf("service/identity: issuing token for user %d: %w", user.ID, err)
		}
		result.Token = token
	}

	metrics.LoginSuccess.WithLabelValues(method).Inc()
	s.logger.Info("user authenticated",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
		slog.String("method", method),
	)
	return result, nil
}

func normalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

func validateUsername(field, username string) error {
	if username == "" {
		return apperror.ValidationFailed(field, "username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return apperror.ValidationFailed(field,
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	if strings.ContainsAny(username, "/\\?#") {
		return apperror.ValidationFailed(field, "username may not contain / \\ ? or #")
	}
	return nil
}
