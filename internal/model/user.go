// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account.
//
// Only ID, Username, ProfilePic and CreatedAt ever leave the server. The
// credential fields carry `json:"-"` so a User can be written straight into
// a response without leaking them.
//
// PasswordHash and AnswerHash are bcrypt hashes. AnswerHash is empty when
// the account was created without a recovery answer; recovery is then
// impossible for that account. Question is stored in the clear because it
// is shown back to the user after a failed login.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	ProfilePic   string    `json:"profilePic"`
	CreatedAt    time.Time `json:"createdAt"`
	PasswordHash string    `json:"-"`
	Question     string    `json:"-"`
	AnswerHash   string    `json:"-"`
}
