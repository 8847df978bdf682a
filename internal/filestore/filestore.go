// Package filestore persists uploaded files and hands back the URL they are
// served under.
//
// Two backends implement Store:
//   - Local  → files on disk below a root directory, served by the app
//   - MinIO  → objects in an S3-compatible bucket, served by MinIO itself
//
// Both lay files out as <field>/<name>, where field is the multipart form
// field the file arrived in ("photo", "profilePic") and name is a fresh
// xid plus the lower-cased original extension.
package filestore

import (
	"context"
	"errors"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/xid"
)

// ErrForeignURL is returned by Remove when the URL was not produced by the
// store it is given to.
var ErrForeignURL = errors.New("filestore: url does not belong to this store")

// Store saves and removes uploaded files.
type Store interface {
	// Save stores the file uploaded in form field field and returns its URL.
	Save(ctx context.Context, field string, fh *multipart.FileHeader) (string, error)
	// Remove deletes the file previously returned by Save.
	Remove(ctx context.Context, url string) error
}

var (
	fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	extPattern   = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
)

// newName returns a collision-resistant file name for an upload called
// original. xid IDs are time-ordered, so a directory listing sorts by
// upload time. Extensions that look odd are dropped rather than trusted.
func newName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	return xid.New().String() + ext
}

func validField(field string) bool {
	return fieldPattern.MatchString(field)
}

// splitKey turns "<field>/<name>" into its parts and rejects anything that
// could escape the field directory.
func splitKey(key string) (field, name string, ok bool) {
	field, name, found := strings.Cut(key, "/")
	if !found || !validField(field) || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", "", false
	}
	return field, name, true
}
