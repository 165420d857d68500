package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

// exerciseStore runs the behavior every Store must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
	}

	old := Entry{RoomID: "r1", SessionID: "s1", ReconnectionToken: "t1", SavedAt: time.Now().Add(-time.Minute).UTC()}
	recent := Entry{RoomID: "r2", ProcessID: "p2", RoomType: "snake", SessionID: "s2", ReconnectionToken: "t2", SavedAt: time.Now().UTC()}
	for _, e := range []Entry{old, recent} {
		if err := s.Save(ctx, e); err != nil {
			t.Fatalf("Save(%s) error = %v", e.RoomID, err)
		}
	}

	got, err := s.Load(ctx, "r2")
	if err != nil {
		t.Fatalf("Load(r2) error = %v", err)
	}
	if got.ReconnectionToken != "t2" || got.RoomType != "snake" || !got.SavedAt.Equal(recent.SavedAt) {
		t.Fatalf("Load(r2) = %+v, want %+v", got, recent)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].RoomID != "r2" || list[1].RoomID != "r1" {
		t.Fatalf("List() = %+v, want r2 then r1", list)
	}

	updated := old
	updated.ReconnectionToken = "t1b"
	if err := s.Save(ctx, updated); err != nil {
		t.Fatalf("Save(update) error = %v", err)
	}
	if got, _ := s.Load(ctx, "r1"); got.ReconnectionToken != "t1b" {
		t.Fatalf("token after update = %q, want t1b", got.ReconnectionToken)
	}

	if err := s.Delete(ctx, "r1"); err != nil {
		t.Fatalf("Delete(r1) error = %v", err)
	}
	if err := s.Delete(ctx, "r1"); err != nil {
		t.Fatalf("second Delete(r1) error = %v", err)
	}
	if _, err := s.Load(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(r1) after delete error = %v, want ErrNotFound", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Save(ctx, recent); !errors.Is(err, ErrClosed) {
		t.Fatalf("Save() after close error = %v, want ErrClosed", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(WithMemoryTTL(time.Minute))
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if err := s.Save(ctx, Entry{RoomID: "r1", SessionID: "s1"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := s.Load(ctx, "r1"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := s.Load(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() after TTL error = %v, want ErrNotFound", err)
	}
	list, _ := s.List(ctx)
	if len(list) != 0 {
		t.Fatalf("List() after TTL = %+v, want empty", list)
	}
}
