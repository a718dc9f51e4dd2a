package account_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gobeaver/beaver-auth2/account"
	"github.com/gobeaver/beaver-auth2/database"
	"github.com/gobeaver/beaver-auth2/krypto"
)

func newStore(t *testing.T) (*account.GormStore, *database.Database) {
	t.Helper()
	db, err := database.New(database.Config{
		Driver:       "sqlite",
		Database:     filepath.Join(t.TempDir(), "account.db"),
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("database.New() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := account.NewGormStore(db.GORM())
	if err := store.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("AutoMigrate() failed: %v", err)
	}
	return store, db
}

func TestCreateAndLoad(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	hash, err := krypto.Argon2idHashPasswordWithParams("placeholder", krypto.Argon2Params{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		t.Fatal(err)
	}

	u := &account.User{Username: "octocat", Password: hash, Enabled: true}
	u.SetAuthorities([]string{"ROLE_USER", " ", "ROLE_ADMIN"})
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if u.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}

	got, err := store.LoadUserByUserID(ctx, u.ID)
	if err != nil {
		t.Fatalf("LoadUserByUserID() error = %v", err)
	}
	if got.Username != "octocat" || !got.Enabled {
		t.Errorf("loaded user = %+v", got)
	}
	if a := got.AuthorityList(); len(a) != 2 || a[0] != "ROLE_USER" || a[1] != "ROLE_ADMIN" {
		t.Errorf("AuthorityList() = %v", a)
	}
	if !got.CheckPassword("placeholder") || got.CheckPassword("other") {
		t.Error("CheckPassword() mismatch")
	}
}

func TestLoadMissingUser(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.LoadUserByUserID(context.Background(), "nope")
	if !errors.Is(err, account.ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestCreateDuplicateUsername(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, &account.User{Username: "dup", Password: "x"}); err != nil {
		t.Fatal(err)
	}
	err := store.Create(ctx, &account.User{Username: "dup", Password: "x"})
	if !errors.Is(err, account.ErrUsernameTaken) {
		t.Errorf("error = %v, want ErrUsernameTaken", err)
	}

	if err := store.Create(ctx, &account.User{Username: "  "}); !errors.Is(err, account.ErrInvalidUsername) {
		t.Errorf("blank username error = %v", err)
	}
}

func TestCreateJoinsTransaction(t *testing.T) {
	store, db := newStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	var id string
	err := database.RunInTx(ctx, db.GORM(), func(ctx context.Context) error {
		u := &account.User{Username: "rolled-back", Password: "x"}
		if err := store.Create(ctx, u); err != nil {
			return err
		}
		id = u.ID
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx() error = %v", err)
	}
	if _, err := store.LoadUserByUserID(ctx, id); !errors.Is(err, account.ErrUserNotFound) {
		t.Errorf("user survived rollback: %v", err)
	}
}

func TestUniqueUsername(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	name, err := account.UniqueUsername(ctx, store, "Jane Doe!")
	if err != nil {
		t.Fatal(err)
	}
	if name != "jane_doe" {
		t.Errorf("UniqueUsername() = %q, want jane_doe", name)
	}
	if err := store.Create(ctx, &account.User{Username: name, Password: "x"}); err != nil {
		t.Fatal(err)
	}

	next, err := account.UniqueUsername(ctx, store, "Jane Doe")
	if err != nil {
		t.Fatal(err)
	}
	if next == name || !strings.HasPrefix(next, "jane_doe_") {
		t.Errorf("UniqueUsername() after collision = %q", next)
	}

	empty, err := account.UniqueUsername(ctx, store, "???")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(empty, "user_") {
		t.Errorf("UniqueUsername(\"???\") = %q", empty)
	}
}

type takenStore struct{ account.Store }

func (takenStore) UsernameExists(context.Context, string) (bool, error) { return true, nil }

func TestUniqueUsernameGivesUp(t *testing.T) {
	_, err := account.UniqueUsername(context.Background(), takenStore{}, "bob")
	if !errors.Is(err, account.ErrUsernameTaken) {
		t.Errorf("error = %v, want ErrUsernameTaken", err)
	}
}

func TestSplitAuthorities(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"ROLE_USER", 1},
		{"ROLE_USER, ROLE_ADMIN ,", 2},
	}
	for _, tt := range tests {
		if got := account.SplitAuthorities(tt.in); len(got) != tt.want {
			t.Errorf("SplitAuthorities(%q) = %v", tt.in, got)
		}
	}
	if got := account.JoinAuthorities([]string{" a ", "", "b"}); got != "a,b" {
		t.Errorf("JoinAuthorities() = %q", got)
	}
}
