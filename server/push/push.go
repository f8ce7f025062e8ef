// Package push declares the interface a push notification plugin must
// implement and the process-wide registry the session layer feeds
// through (via pushgateway.go's notifyMissedMessage). Grounded on the teacher's own push package: same
// Register/Init/Push/Stop registry shape, same "never block the caller"
// contract, simplified to this domain's single notification kind (a
// text message a disconnected user missed).
package push

import (
	"encoding/json"
	"errors"
)

// DeviceToken is a push target, mirroring store/types.DeviceToken
// without pulling the Persistence package into push (handlers must not
// depend on the store layer).
type DeviceToken struct {
	Platform string
	Token    string
}

// Payload is the content of a single push notification.
type Payload struct {
	// Source names where the message came from: "private", "broadcast",
	// or a group name.
	Source string `json:"source"`
	// From is the sending user's username.
	From string `json:"from"`
	// Content is the message text.
	Content string `json:"content"`
}

// Receipt is what the gateway hands a Handler: the missed message and
// every device registered to the user who missed it.
type Receipt struct {
	UserID   int64
	Username string
	Devices  []DeviceToken
	Payload  Payload
}

// Handler is implemented by a concrete push plugin (fcm.Sender is the
// only one shipped).
type Handler interface {
	// Init configures the handler from its JSON config block.
	Init(jsonconf string) error
	// IsReady reports whether Init succeeded.
	IsReady() bool
	// Push returns the channel the gateway feeds. The handler MUST drop
	// a receipt rather than block if its internal worker falls behind.
	Push() chan<- *Receipt
	// Stop terminates the handler's worker.
	Stop()
}

type configType struct {
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config"`
}

var handlers map[string]Handler

// Register adds a named handler to the registry. Called from a plugin
// package's init(), matching the teacher's own registration idiom.
func Register(name string, hnd Handler) {
	if handlers == nil {
		handlers = make(map[string]Handler)
	}
	if hnd == nil {
		panic("push.Register: handler is nil")
	}
	if _, dup := handlers[name]; dup {
		panic("push.Register: called twice for handler " + name)
	}
	handlers[name] = hnd
}

// Init initializes every registered handler named in jsconfig, a JSON
// array of {name, config} objects.
func Init(jsconfig string) error {
	var config []configType
	if err := json.Unmarshal([]byte(jsconfig), &config); err != nil {
		return errors.New("push: failed to parse config: " + err.Error())
	}
	for _, cc := range config {
		if hnd := handlers[cc.Name]; hnd != nil {
			if err := hnd.Init(string(cc.Config)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Push fans rcpt out to every ready handler without blocking the
// caller; a handler whose internal channel is full silently drops the
// receipt (best-effort, matching sendToUser's own delivery semantics).
func Push(rcpt *Receipt) {
	for _, hnd := range handlers {
		if !hnd.IsReady() {
			continue
		}
		select {
		case hnd.Push() <- rcpt:
		default:
		}
	}
}

// Stop terminates every ready handler.
func Stop() {
	for _, hnd := range handlers {
		if hnd.IsReady() {
			hnd.Stop()
		}
	}
}
