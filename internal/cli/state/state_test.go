package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreKeepsTokenPerBroker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Put("http://a:8080/", TokenState{AccessToken: "tok-a", UserID: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put("http://b:8080", TokenState{AccessToken: "tok-b"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Get("http://a:8080"); got.AccessToken != "tok-a" || got.UserID != 1 {
		t.Fatalf("unexpected token for a: %+v", got)
	}
	if err := reopened.Delete("http://b:8080/"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	again, _ := Open(path)
	if again.Get("http://b:8080").AccessToken != "" || again.Get("http://a:8080").AccessToken != "tok-a" {
		t.Fatalf("delete touched the wrong broker: %+v", again.Tokens)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	if (TokenState{}).Expired(now) {
		t.Fatalf("token without expiry never expires")
	}
	if !(TokenState{ExpiresAt: now.Add(-time.Second)}).Expired(now) {
		t.Fatalf("expected past expiry to be expired")
	}
}
