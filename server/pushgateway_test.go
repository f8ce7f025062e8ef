package main

import (
	"testing"

	"github.com/riverline-chat/riverline/server/push"
	"github.com/riverline-chat/riverline/server/store"
)

// recordingHandler is registered fresh per test under a unique name:
// push's registry is process-wide and panics on a duplicate name, and
// the real fcm handler is already registered via main.go's blank
// import, so tests must not collide with it or each other.
type recordingHandler struct {
	received chan *push.Receipt
}

func (h *recordingHandler) Init(string) error         { return nil }
func (h *recordingHandler) IsReady() bool              { return true }
func (h *recordingHandler) Push() chan<- *push.Receipt { return h.received }
func (h *recordingHandler) Stop()                      {}

func TestNotifyMissedMessageSkipsUsersWithNoDevices(t *testing.T) {
	fa := newFakeAdapter()
	if err := store.Open(fa, ""); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	user, err := fa.RegisterUser("nodevice", "hash")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	notifyMissedMessage(user.UserID, user.Username, "private", "sender", "hi")
}

func TestNotifyMissedMessageDispatchesWithRegisteredDevice(t *testing.T) {
	fa := newFakeAdapter()
	if err := store.Open(fa, ""); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	user, err := fa.RegisterUser("withdevice", "hash")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if err := fa.RegisterDevice(user.UserID, "android", "token-1"); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}

	h := &recordingHandler{received: make(chan *push.Receipt, 1)}
	push.Register("pushgateway-test-dispatch", h)

	notifyMissedMessage(user.UserID, user.Username, "private", "sender", "hi there")

	select {
	case rcpt := <-h.received:
		if rcpt.Username != "withdevice" || len(rcpt.Devices) != 1 || rcpt.Devices[0].Token != "token-1" {
			t.Fatalf("unexpected receipt: %+v", rcpt)
		}
	default:
		t.Fatalf("expected a receipt to be pushed to the registered handler")
	}
}
