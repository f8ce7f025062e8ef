package redisstore

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/riverline-chat/riverline/server/coordinator"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(rdb)
}

func TestPresenceLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddOnlineUser(ctx, "alice", "pod-1", 42); err != nil {
		t.Fatalf("AddOnlineUser: %v", err)
	}

	online, err := s.IsUserOnline(ctx, "alice")
	if err != nil || !online {
		t.Fatalf("IsUserOnline = %v, %v; want true, nil", online, err)
	}

	server, err := s.UserServerID(ctx, "alice")
	if err != nil || server != "pod-1" {
		t.Fatalf("UserServerID = %q, %v; want pod-1", server, err)
	}

	names, err := s.OnlineUsernames(ctx)
	if err != nil {
		t.Fatalf("OnlineUsernames: %v", err)
	}
	if diff := cmp.Diff([]string{"alice"}, names); diff != "" {
		t.Fatalf("OnlineUsernames mismatch (-want +got):\n%s", diff)
	}

	if err := s.RemoveOnlineUser(ctx, "alice"); err != nil {
		t.Fatalf("RemoveOnlineUser: %v", err)
	}
	online, err = s.IsUserOnline(ctx, "alice")
	if err != nil || online {
		t.Fatalf("IsUserOnline after removal = %v, %v; want false, nil", online, err)
	}
}

// TestIsUserOnlineReconcilesStaleEntry asserts the presence invariant:
// set membership without a live detail key is treated as offline and the
// stale entry is cleaned up.
func TestIsUserOnlineReconcilesStaleEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.rdb.SAdd(ctx, keyOnlineUsers, "ghost").Err(); err != nil {
		t.Fatalf("SAdd: %v", err)
	}

	online, err := s.IsUserOnline(ctx, "ghost")
	if err != nil {
		t.Fatalf("IsUserOnline: %v", err)
	}
	if online {
		t.Fatal("expected stale membership to report offline")
	}

	isMember, err := s.rdb.SIsMember(ctx, keyOnlineUsers, "ghost").Result()
	if err != nil {
		t.Fatalf("SIsMember: %v", err)
	}
	if isMember {
		t.Fatal("expected stale membership to be pruned")
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token, err := s.CreateSession(ctx, "bob", 7)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	rec, err := s.GetSession(ctx, token)
	if err != nil || rec == nil {
		t.Fatalf("GetSession = %v, %v", rec, err)
	}
	if rec.Username != "bob" || rec.UserID != 7 {
		t.Fatalf("GetSession record = %+v", rec)
	}

	gotToken, err := s.SessionByUsername(ctx, "bob")
	if err != nil || gotToken != token {
		t.Fatalf("SessionByUsername = %q, %v; want %q", gotToken, err, token)
	}

	if err := s.DeleteSession(ctx, token); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	rec, err = s.GetSession(ctx, token)
	if err != nil || rec != nil {
		t.Fatalf("GetSession after delete = %v, %v; want nil, nil", rec, err)
	}
}

func TestPendingMessagesCapped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		msg := pendingMsg(i)
		if err := s.SavePendingMessage(ctx, "carol", msg); err != nil {
			t.Fatalf("SavePendingMessage[%d]: %v", i, err)
		}
	}

	msgs, err := s.DrainPendingMessages(ctx, "carol")
	if err != nil {
		t.Fatalf("DrainPendingMessages: %v", err)
	}
	if len(msgs) != 100 {
		t.Fatalf("got %d pending messages, want 100 (capped)", len(msgs))
	}
	if msgs[0].Content != "msg-20" {
		t.Fatalf("oldest retained message = %q, want msg-20 (first 20 trimmed)", msgs[0].Content)
	}

	drained, err := s.DrainPendingMessages(ctx, "carol")
	if err != nil {
		t.Fatalf("second DrainPendingMessages: %v", err)
	}
	if len(drained) != 0 {
		t.Fatalf("expected drain to clear the queue, got %d leftover", len(drained))
	}
}

func pendingMsg(i int) coordinator.PendingMessage {
	return coordinator.PendingMessage{Content: "msg-" + strconv.Itoa(i), Timestamp: time.Unix(int64(i), 0)}
}
