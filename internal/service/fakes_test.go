package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/model"
	"github.com/sakif/photoshare/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================
//
// fakeStore is an in-memory implementation of the three repository
// interfaces. It mimics the SQLite rules the services rely on: unique
// usernames, unique like pairs, likes cascading with their photo, and
// rename moving photo uploaders.
//
// Set the *Err fields to simulate database failures.

var (
	_ repository.UserRepository  = (*fakeStore)(nil)
	_ repository.PhotoRepository = (*fakeStore)(nil)
	_ repository.LikeRepository  = (*fakeStore)(nil)
)

type likeKey struct{ userID, photoID int64 }

type fakeStore struct {
	mu      sync.Mutex
	users   map[int64]*model.User
	photos  map[int64]*model.Photo
	likes   map[likeKey]bool
	nextID  int64
	clock   time.Time
	listErr error
	likeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  make(map[int64]*model.User),
		photos: make(map[int64]*model.Photo),
		likes:  make(map[likeKey]bool),
		clock:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return apperror.Conflict("username", u.Username)
		}
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = f.tick()
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeStore) findUser(username string) *model.User {
	for _, u := range f.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.findUser(username)
	if u == nil {
		return nil, apperror.NotFound("user", username)
	}
	out := *u
	return &out, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	out := *u
	return &out, nil
}

func (f *fakeStore) RenameUser(_ context.Context, oldUsername, newUsername string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findUser(newUsername) != nil {
		return nil, apperror.Conflict("username", newUsername)
	}
	u := f.findUser(oldUsername)
	if u == nil {
		return nil, apperror.NotFound("user", oldUsername)
	}
	u.Username = newUsername
	for _, p := range f.photos {
		if p.Uploader == oldUsername {
			p.Uploader = newUsername
		}
	}
	out := *u
	return &out, nil
}

func (f *fakeStore) SetProfilePic(_ context.Context, username, url string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.findUser(username)
	if u == nil {
		return "", false, nil
	}
	previous := u.ProfilePic
	u.ProfilePic = url
	return previous, true, nil
}

func (f *fakeStore) CreatePhoto(_ context.Context, p *model.Photo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = f.tick()
	stored := *p
	f.photos[p.ID] = &stored
	return nil
}

func (f *fakeStore) GetPhoto(_ context.Context, id int64) (*model.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.photos[id]
	if !ok {
		return nil, apperror.NotFound("photo", strconv.FormatInt(id, 10))
	}
	out := *p
	return &out, nil
}

func (f *fakeStore) ListPhotos(_ context.Context) ([]model.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.Photo{}
	for _, p := range f.photos {
		cp := *p
		cp.Likes = []string{}
		for k := range f.likes {
			if k.photoID == p.ID {
				cp.Likes = append(cp.Likes, f.users[k.userID].Username)
			}
		}
		sort.Strings(cp.Likes)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) UpdatePhoto(_ context.Context, p *model.Photo) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.photos[p.ID]
	if !ok {
		return 0, nil
	}
	existing.Title = p.Title
	existing.Tags = p.Tags
	existing.Description = p.Description
	return 1, nil
}

func (f *fakeStore) DeletePhoto(_ context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.photos[id]; !ok {
		return 0, nil
	}
	delete(f.photos, id)
	for k := range f.likes {
		if k.photoID == id {
			delete(f.likes, k)
		}
	}
	return 1, nil
}

func (f *fakeStore) ToggleLike(_ context.Context, userID, photoID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.likeErr != nil {
		return false, f.likeErr
	}
	if _, ok := f.photos[photoID]; !ok {
		return false, apperror.NotFound("photo", strconv.FormatInt(photoID, 10))
	}
	k := likeKey{userID, photoID}
	if f.likes[k] {
		delete(f.likes, k)
		return false, nil
	}
	f.likes[k] = true
	return true, nil
}

// fakeFiles records removed URLs.
type fakeFiles struct {
	removed []string
	err     error
}

func (f *fakeFiles) Remove(_ context.Context, url string) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, url)
	return nil
}

var errDatabaseDown = errors.New("database is on fire")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
