package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/auth"
)

// newTestIdentityService returns an IdentityService over a fresh fakeStore.
// Cost 4 is the bcrypt minimum, which keeps these tests fast.
func newTestIdentityService(t *testing.T) (*IdentityService, *fakeStore) {
	t.Helper()

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	store := newFakeStore()
	svc := NewIdentityService(store, auth.NewPasswordService(4), tokens, auth.NewAttemptLimiter(1, 3), nil, testLogger())
	return svc, store
}

// =========================================================================
// SIGNUP TESTS
// =========================================================================

func TestSignup_Success(t *testing.T) {
	svc, store := newTestIdentityService(t)

	user, err := svc.Signup(context.Background(), "  alice ", "pw", "pet?", "dog")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if user.ID == 0 {
		t.Error("expected user to have an ID")
	}
	if user.Username != "alice" {
		t.Errorf("Username = %q, want %q", user.Username, "alice")
	}
	if user.ProfilePic != PlaceholderAvatar("alice") {
		t.Errorf("ProfilePic = %q, want the placeholder", user.ProfilePic)
	}

	stored := store.users[user.ID]
	if stored.PasswordHash == "pw" || !strings.HasPrefix(stored.PasswordHash, "$2") {
		t.Errorf("password was not hashed: %q", stored.PasswordHash)
	}
	if stored.AnswerHash == "dog" || stored.AnswerHash == "" {
		t.Errorf("answer was not hashed: %q", stored.AnswerHash)
	}
	if stored.Question != "pet?" {
		t.Errorf("Question = %q, want %q", stored.Question, "pet?")
	}
}

func TestSignup_DuplicateUsernameChangesNothing(t *testing.T) {
	svc, store := newTestIdentityService(t)
	ctx := context.Background()

	first, err := svc.Signup(ctx, "alice", "pw", "pet?", "dog")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	before := *store.users[first.ID]

	_, err = svc.Signup(ctx, "alice", "other", "colour?", "blue")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if len(store.users) != 1 {
		t.Errorf("users = %d, want 1", len(store.users))
	}
	if *store.users[first.ID] != before {
		t.Error("the existing account was modified")
	}
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		question string
		answer   string
		field    string
	}{
		{"empty username", "", "pw", "", "", "username"},
		{"blank username", "   ", "pw", "", "", "username"},
		{"username too long", strings.Repeat("a", MaxUsernameLength+1), "pw", "", "", "username"},
		{"username with slash", "a/b", "pw", "", "", "username"},
		{"empty password", "alice", "", "", "", "password"},
		{"password too long", "alice", strings.Repeat("p", auth.MaxSecretBytes+1), "", "", "password"},
		{"answer too long", "alice", "pw", "q", strings.Repeat("a", auth.MaxSecretBytes+1), "answer"},
		{"question too long", "alice", "pw", strings.Repeat("q", MaxQuestionLength+1), "a", "question"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestIdentityService(t)
			_, err := svc.Signup(context.Background(), tt.username, tt.password, tt.question, tt.answer)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
			if len(store.users) != 0 {
				t.Error("a user was created despite the validation error")
			}
		})
	}
}

func TestSignup_ConcurrentSameUsername(t *testing.T) {
	svc, store := newTestIdentityService(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Signup(context.Background(), "alice", "pw", "", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, apperror.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 || conflicts != 5 {
		t.Errorf("created=%d conflicts=%d, want 1 and 5", created, conflicts)
	}
	if len(store.users) != 1 {
		t.Errorf("users = %d, want 1", len(store.users))
	}
}

// =========================================================================
// LOGIN & RECOVERY TESTS
// =========================================================================

// TestAliceScenario walks the full signup, login, wrong password and
// recovery flow.
func TestAliceScenario(t *testing.T) {
	svc, _ := newTestIdentityService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "alice", "pw", "pet?", "dog"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	result, err := svc.Login(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.Username != "alice" {
		t.Errorf("Username = %q, want %q", result.User.Username, "alice")
	}
	if result.Token == "" {
		t.Error("expected a session token")
	}

	_, err = svc.Login(ctx, "alice", "wrong")
	var wrong *WrongPasswordError
	if !errors.As(err, &wrong) {
		t.Fatalf("expected *WrongPasswordError, got %v", err)
	}
	if wrong.Question != "pet?" {
		t.Errorf("Question = %q, want %q", wrong.Question, "pet?")
	}
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Error("WrongPasswordError should unwrap to ErrUnauthorized")
	}
	if strings.Contains(err.Error(), "dog") {
		t.Error("the error leaks the recovery answer")
	}

	recovered, err := svc.RecoverByAnswer(ctx, "alice", "dog")
	if err != nil {
		t.Fatalf("RecoverByAnswer() error = %v", err)
	}
	if recovered.User.Username != "alice" {
		t.Errorf("Username = %q, want %q", recovered.User.Username, "alice")
	}
}

func TestLogin_TokenIdentifiesUser(t *testing.T) {
	svc, _ := newTestIdentityService(t)
	ctx := context.Background()

	user, err := svc.Signup(ctx, "alice", "pw", "", "")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	result, err := svc.Login(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	id, err := svc.tokens.Validate(result.Token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if id != user.ID {
		t.Errorf("token subject = %d, want %d", id, user.ID)
	}

	current, err := svc.CurrentUser(ctx, id)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if current.Username != "alice" {
		t.Errorf("Username = %q, want %q", current.Username, "alice")
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	svc, _ := newTestIdentityService(t)

	_, err := svc.Login(context.Background(), "nobody", "pw")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLogin_WithoutTokenService(t *testing.T) {
	store := newFakeStore()
	svc := NewIdentityService(store, auth.NewPasswordService(4), nil, nil, nil, testLogger())
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "alice", "pw", "", ""); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	result, err := svc.Login(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.Token != "" {
		t.Errorf("Token = %q, want empty", result.Token)
	}
}

func TestLogin_ThrottledAfterBurst(t *testing.T) {
	svc, _ := newTestIdentityService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "alice", "pw", "pet?", "dog"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	// The limiter allows a burst of 3.
	for i := 0; i < 3; i++ {
		if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, apperror.ErrUnauthorized) {
			t.Fatalf("attempt %d: expected ErrUnauthorized, got %v", i+1, err)
		}
	}

	// Even the right password is refused once the bucket is empty, and
	// recovery shares the same bucket.
	if _, err := svc.Login(ctx, "alice", "pw"); !errors.Is(err, apperror.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if _, err := svc.RecoverByAnswer(ctx, "alice", "dog"); !errors.Is(err, apperror.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Other accounts are unaffected.
	if _, err := svc.Login(ctx, "bob", "pw"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for bob, got %v", err)
	}
}

func TestLogin_SuccessResetsThrottle(t *testing.T) {
	svc, _ := newTestIdentityService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "alice", "pw", "", ""); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	svc.Login(ctx, "alice", "wrong")
	svc.Login(ctx, "alice", "wrong")
	if _, err := svc.Login(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Login(ctx, "alice", "wrong"); errors.Is(err, apperror.ErrRateLimited) {
			t.Fatalf("attempt %d throttled after a successful login reset", i+1)
		}
	}
}

func TestRecoverByAnswer_Rejections(t *testing.T) {
	svc, _ := newTestIdentityService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "alice", "pw", "pet?", "dog"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if _, err := svc.Signup(ctx, "bob", "pw", "", ""); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	tests := []struct {
		name     string
		username string
		answer   string
	}{
		{"wrong answer", "alice", "cat"},
		{"unknown user", "nobody", "dog"},
		{"account without an answer", "bob", ""},
	}

	var messages []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecoverByAnswer(ctx, tt.username, tt.answer)
			if !errors.Is(err, apperror.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
			messages = append(messages, err.Error())
		})
	}

	// Unknown users must look exactly like wrong answers.
	for _, m := range messages[1:] {
		if m != messages[0] {
			t.Errorf("rejection messages differ: %q vs %q", m, messages[0])
		}
	}
}

// =========================================================================
// RENAME TESTS
// =========================================================================

func TestRenameUser_MovesPhotos(t *testing.T) {
	svc, store := newTestIdentityService(t)
	catalog := NewCatalogService(store, store, store, nil, testLogger())
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "alice", "pw", "", ""); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	for _, title := range []string{"one", "two"} {
		if _, err := catalog.UploadPhoto(ctx, "alice", title, "", "", "/uploads/photo/"+title+".jpg"); err != nil {
			t.Fatalf("UploadPhoto() error = %v", err)
		}
	}
	if _, err := catalog.UploadPhoto(ctx, "carol", "three", "", "", "/uploads/photo/three.jpg"); err != nil {
		t.Fatalf("UploadPhoto() error = %v", err)
	}

	user, renamed, err := svc.RenameUser(ctx, "alice", "alicia")
	if err != nil {
		t.Fatalf("RenameUser() error = %v", err)
	}
	if !renamed {
		t.Error("renamed = false, want true")
	}
	if user.Username != "alicia" {
		t.Errorf("Username = %q, want %q", user.Username, "alicia")
	}

	photos, err := catalog.ListPhotos(ctx)
	if err != nil {
		t.Fatalf("ListPhotos() error = %v", err)
	}
	counts := map[string]int{}
	for _, p := range photos {
		counts[p.Uploader]++
	}
	if counts["alicia"] != 2 || counts["alice"] != 0 || counts["carol"] != 1 {
		t.Errorf("uploaders after rename = %v", counts)
	}
}

func TestRenameUser_SameNameIsNoOp(t *testing.T) {
	svc, _ := newTestIdentityService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "alice", "pw", "", ""); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	user, renamed, err := svc.RenameUser(ctx, "alice", "alice")
	if err != nil {
		t.Fatalf("RenameUser() error = %v", err)
	}
	if renamed {
		t.Error("renamed = true, want false")
	}
	if user.Username != "alice" {
		t.Errorf("Username = %q, want %q", user.Username, "alice")
	}
}

func TestRenameUser_SameNameUnknownUserIsNoOp(t *testing.T) {
	svc, _ := newTestIdentityService(t)

	user, renamed, err := svc.RenameUser(context.Background(), "ghost", "ghost")
	if err != nil {
		t.Fatalf("RenameUser() error = %v", err)
	}
	if renamed || user != nil {
		t.Errorf("got (%v, %v), want (nil, false)", user, renamed)
	}
}

func TestRenameUser_Conflict(t *testing.T) {
	svc, store := newTestIdentityService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "alice", "pw", "", ""); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if _, err := svc.Signup(ctx, "bob", "pw", "", ""); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	_, _, err := svc.RenameUser(ctx, "alice", "bob")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if store.findUser("alice") == nil {
		t.Error("alice disappeared after a failed rename")
	}
}

func TestRenameUser_Errors(t *testing.T) {
	svc, _ := newTestIdentityService(t)
	ctx := context.Background()

	if _, _, err := svc.RenameUser(ctx, "nobody", "somebody"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("unknown user: expected ErrNotFound, got %v", err)
	}
	if _, _, err := svc.RenameUser(ctx, "alice", ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("empty name: expected ErrValidation, got %v", err)
	}
}

// =========================================================================
// PROFILE TESTS
// =========================================================================

func TestUpdateProfilePicture(t *testing.T) {
	svc, _ := newTestIdentityService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "alice", "pw", "", ""); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	url, err := svc.UpdateProfilePicture(ctx, "alice", "/uploads/profilePic/x.png")
	if err != nil {
		t.Fatalf("UpdateProfilePicture() error = %v", err)
	}
	if url != "/uploads/profilePic/x.png" {
		t.Errorf("url = %q", url)
	}

	user, err := svc.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if user.ProfilePic != url {
		t.Errorf("ProfilePic = %q, want %q", user.ProfilePic, url)
	}
}

func TestUpdateProfilePicture_RemovesReplacedFile(t *testing.T) {
	store := newFakeStore()
	files := &fakeFiles{}
	svc := NewIdentityService(store, auth.NewPasswordService(4), nil, nil, files, testLogger())
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "alice", "pw", "", ""); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	// Replacing the placeholder removes nothing.
	if _, err := svc.UpdateProfilePicture(ctx, "alice", "/uploads/profilePic/one.png"); err != nil {
		t.Fatalf("UpdateProfilePicture() error = %v", err)
	}
	if len(files.removed) != 0 {
		t.Fatalf("removed = %v, want nothing", files.removed)
	}

	if _, err := svc.UpdateProfilePicture(ctx, "alice", "/uploads/profilePic/two.png"); err != nil {
		t.Fatalf("UpdateProfilePicture() error = %v", err)
	}
	if len(files.removed) != 1 || files.removed[0] != "/uploads/profilePic/one.png" {
		t.Errorf("removed = %v, want [/uploads/profilePic/one.png]", files.removed)
	}
}

func TestUpdateProfilePicture_RemovalFailureIsIgnored(t *testing.T) {
	store := newFakeStore()
	files := &fakeFiles{err: errors.New("disk gone")}
	svc := NewIdentityService(store, auth.NewPasswordService(4), nil, nil, files, testLogger())
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "alice", "pw", "", ""); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	svc.UpdateProfilePicture(ctx, "alice", "/uploads/profilePic/one.png")

	url, err := svc.UpdateProfilePicture(ctx, "alice", "/uploads/profilePic/two.png")
	if err != nil {
		t.Fatalf("UpdateProfilePicture() error = %v", err)
	}
	if user := store.findUser("alice"); user.ProfilePic != url {
		t.Errorf("ProfilePic = %q, want %q", user.ProfilePic, url)
	}
}

func TestUsernamesAreTrimmedEverywhere(t *testing.T) {
	svc, _ := newTestIdentityService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, " alice ", "pw", "pet?", "rex"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	for _, name := range []string{" alice ", "alice", "alice\t"} {
		if _, err := svc.Login(ctx, name, "pw"); err != nil {
			t.Errorf("Login(%q) error = %v", name, err)
		}
		if _, err := svc.RecoverByAnswer(ctx, name, "rex"); err != nil {
			t.Errorf("RecoverByAnswer(%q) error = %v", name, err)
		}
		if _, err := svc.GetUser(ctx, name); err != nil {
			t.Errorf("GetUser(%q) error = %v", name, err)
		}
	}

	user, renamed, err := svc.RenameUser(ctx, " alice", "alicia ")
	if err != nil {
		t.Fatalf("RenameUser() error = %v", err)
	}
	if !renamed || user.Username != "alicia" {
		t.Errorf("got (%q, %v), want (\"alicia\", true)", user.Username, renamed)
	}
}

func TestUpdateProfilePicture_UnknownUserIsNotAnError(t *testing.T) {
	svc, _ := newTestIdentityService(t)

	if _, err := svc.UpdateProfilePicture(context.Background(), "ghost", "/uploads/profilePic/x.png"); err != nil {
		t.Fatalf("UpdateProfilePicture() error = %v", err)
	}
}

func TestUpdateProfilePicture_MissingFile(t *testing.T) {
	svc, _ := newTestIdentityService(t)

	_, err := svc.UpdateProfilePicture(context.Background(), "alice", "")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	svc, _ := newTestIdentityService(t)

	_, err := svc.GetUser(context.Background(), "nobody")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCurrentUser_ZeroID(t *testing.T) {
	svc, _ := newTestIdentityService(t)

	_, err := svc.CurrentUser(context.Background(), 0)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPlaceholderAvatar(t *testing.T) {
	tests := []struct {
		username string
		want     string
	}{
		{"alice", "a"},
		{"Émile", "%C3%89"},
		{"", ""},
	}
	for _, tt := range tests {
		got := PlaceholderAvatar(tt.username)
		if got != placeholderAvatar+tt.want {
			t.Errorf("PlaceholderAvatar(%q) = %q", tt.username, got)
		}
	}
}
