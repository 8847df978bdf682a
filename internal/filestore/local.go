package filestore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// URLPrefix is where the server mounts the Local store's root directory.
const URLPrefix = "/uploads/"

// Local keeps uploads on the local filesystem.
type Local struct {
	root string
}

var _ Store = (*Local)(nil)

// NewLocal creates root if needed and returns a store writing below it.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: creating %s: %w", root, err)
	}
	return &Local{root: root}, nil
}

// Root is the directory the server should serve at URLPrefix.
func (l *Local) Root() string {
	return l.root
}

// FileSystem exposes the stored files for http.FileServer. Directories do
// not exist as far as it is concerned, so no listing is ever rendered.
func (l *Local) FileSystem() http.FileSystem {
	return filesOnly{http.Dir(l.root)}
}

type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}

// Save copies the upload to <root>/<field>/<name>.
func (l *Local) Save(_ context.Context, field string, fh *multipart.FileHeader) (string, error) {
	if !validField(field) {
		return "", fmt.Errorf("filestore: invalid field name %q", field)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("filestore: opening upload: %w", err)
	}
	defer src.Close()

	dir := filepath.Join(l.root, field)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("filestore: creating %s: %w", dir, err)
	}

	name := newName(fh.Filename)
	path := filepath.Join(dir, name)

	// O_EXCL: never overwrite an existing file, however unlikely the clash.
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("filestore: creating %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("filestore: writing %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("filestore: closing %s: %w", path, err)
	}

	return URLPrefix + field + "/" + name, nil
}

// Remove deletes the file behind url. A file that is already gone is not
// an error.
func (l *Local) Remove(_ context.Context, url string) error {
	key, ok := strings.CutPrefix(url, URLPrefix)
	if !ok {
		return ErrForeignURL
	}
	field, name, ok := splitKey(key)
	if !ok {
		return ErrForeignURL
	}

	path := filepath.Join(l.root, field, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filestore: removing %s: %w", path, err)
	}
	return nil
}
