package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/classroomhub/classroom/internal/core/domain"
)

func newTestStore(t *testing.T, passphrase string) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewSessionStore(client, "classroom-auth", passphrase, time.Hour)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, mr
}

func TestSessionStore_SaveLoad(t *testing.T) {
	store, mr := newTestStore(t, "correct horse battery staple")
	ctx := context.Background()

	in := &domain.Session{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Identity:     domain.Identity{ID: "u1", Email: "u1@school.kr", Name: "Kim"},
	}
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := mr.Get("session:classroom-auth")
	if err != nil {
		t.Fatalf("key not written: %v", err)
	}
	if raw == "" || strings.Contains(raw, "access-token") || strings.Contains(raw, "u1@school.kr") {
		t.Fatalf("stored value is not sealed")
	}
	if ttl := mr.TTL("session:classroom-auth"); ttl != time.Hour {
		t.Errorf("expected 1h TTL, got %s", ttl)
	}

	out, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.AccessToken != in.AccessToken || out.RefreshToken != in.RefreshToken ||
		!out.ExpiresAt.Equal(in.ExpiresAt) || out.Identity != in.Identity {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestSessionStore_LoadEmpty(t *testing.T) {
	store, _ := newTestStore(t, "k")
	s, err := store.Load(context.Background())
	if err != nil || s != nil {
		t.Fatalf("expected (nil, nil), got (%+v, %v)", s, err)
	}
}

func TestSessionStore_WrongKey(t *testing.T) {
	store, mr := newTestStore(t, "first key")
	if err := store.Save(context.Background(), &domain.Session{AccessToken: "a"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	other, err := NewSessionStore(client, "classroom-auth", "second key", time.Hour)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := other.Load(context.Background()); !errors.Is(err, ErrSealedValueCorrupt) {
		t.Fatalf("expected ErrSealedValueCorrupt, got %v", err)
	}
}

func TestSessionStore_Clear(t *testing.T) {
	store, mr := newTestStore(t, "k")
	ctx := context.Background()
	if err := store.Save(ctx, &domain.Session{AccessToken: "a"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists("session:classroom-auth") {
		t.Fatalf("key still present after clear")
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestNewSessionStore_EmptyKey(t *testing.T) {
	if _, err := NewSessionStore(nil, "x", "", 0); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	_ = client.Close()

	if _, err := Connect(context.Background(), Config{Addr: "127.0.0.1:1", Timeout: 100 * time.Millisecond}); err == nil {
		t.Fatal("expected ping failure against an unreachable server")
	}
}
