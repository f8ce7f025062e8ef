// Package types defines the domain entities shared by the Persistence
// Gateway, the Coordinator Gateway, and the session layer.
package types

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"
)

// Uid is an application-allocated identifier (a tinode/snowflake value)
// used for messages, conversations and groups. It is never a bare
// database sequence: allocating it application-side means callers can
// reference a row before it is committed and the wire form does not leak
// insertion order.
type Uid uint64

// ZeroUid is the invalid/unset Uid.
var ZeroUid Uid

const uidBase64Unpadded = 11

// IsZero reports whether uid is unset.
func (uid Uid) IsZero() bool {
	return uid == 0
}

// String renders the Uid as an unpadded URL-safe base64 string, the form
// used on the wire and in log lines.
func (uid Uid) String() string {
	buf, _ := uid.MarshalText()
	return string(buf)
}

// MarshalText implements encoding.TextMarshaler.
func (uid Uid) MarshalText() ([]byte, error) {
	if uid == 0 {
		return []byte{}, nil
	}
	src := make([]byte, 8)
	binary.LittleEndian.PutUint64(src, uint64(uid))
	dst := make([]byte, base64.URLEncoding.EncodedLen(8))
	base64.URLEncoding.Encode(dst, src)
	return dst[:uidBase64Unpadded], nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (uid *Uid) UnmarshalText(src []byte) error {
	if len(src) != uidBase64Unpadded {
		return errors.New("types: Uid.UnmarshalText: invalid length")
	}
	padded := make([]byte, uidBase64Unpadded, uidBase64Unpadded+2)
	copy(padded, src)
	for len(padded) < base64.URLEncoding.EncodedLen(8) {
		padded = append(padded, '=')
	}
	dec := make([]byte, 8)
	n, err := base64.URLEncoding.Decode(dec, padded)
	if err != nil || n < 8 {
		return errors.New("types: Uid.UnmarshalText: failed to decode")
	}
	*uid = Uid(binary.LittleEndian.Uint64(dec))
	return nil
}

// User is a registered account. Immutable once created except for the
// fields not modeled here (the spec carries no profile fields beyond
// username/password).
type User struct {
	UserID       int64
	Username     string
	PasswordHash string // hex-encoded SHA-256 of the UTF-8 password bytes
	CreatedAt    time.Time
}

// Session is a durable login/logout record, distinct from the in-memory
// Connection Session state machine.
type Session struct {
	SessionID  int64
	UserID     int64
	LoginTime  time.Time
	LogoutTime *time.Time
	Active     bool
}

// Conversation is the canonical (p1 < p2) pairing of two users for
// private messaging.
type Conversation struct {
	ConversationID Uid
	Participant1   int64
	Participant2   int64
	LastMessageAt  time.Time
}

// Message is a single private message within a Conversation.
type Message struct {
	MessageID      Uid
	ConversationID Uid
	SenderID       int64
	SenderUsername string
	Text           string
	Timestamp      time.Time
}

// BroadcastMessage is a single message on the global broadcast channel.
type BroadcastMessage struct {
	MessageID      Uid
	SenderID       int64
	SenderUsername string
	Text           string
	Timestamp      time.Time
}

// GroupRole is a membership's privilege level.
type GroupRole string

const (
	RoleAdmin  GroupRole = "admin"
	RoleMember GroupRole = "member"
)

// Group is a named group chat.
type Group struct {
	GroupID       Uid
	GroupName     string
	Description   string
	CreatorID     int64
	CreatedAt     time.Time
	LastMessageAt time.Time
	Active        bool
}

// GroupMembership ties a user to a group. Soft-deleted via Active=false
// rather than row deletion, per spec's adopted Open Question resolution;
// uniqueness of (GroupID, UserID) is only enforced while Active.
type GroupMembership struct {
	GroupID  Uid
	UserID   int64
	Role     GroupRole
	JoinedAt time.Time
	Active   bool
}

// GroupMessageType distinguishes user-authored from synthetic system
// messages (e.g. "Group 'X' created by Y", "Y joined the group").
type GroupMessageType string

const (
	GroupMsgUser   GroupMessageType = "user"
	GroupMsgSystem GroupMessageType = "system"
)

// GroupMessage is a single message posted to a Group.
type GroupMessage struct {
	MessageID      Uid
	GroupID        Uid
	SenderID       int64
	SenderUsername string
	Text           string
	Timestamp      time.Time
	MessageType    GroupMessageType
}

// GroupReadMark records that a user has read a given group message.
// (MessageID, UserID) is unique; inserts are idempotent (ON CONFLICT DO
// NOTHING at the adapter level).
type GroupReadMark struct {
	MessageID Uid
	UserID    int64
	ReadAt    time.Time
}

// DeviceToken is a registered mobile push target for a user (see
// SPEC_FULL.md §3 expansion). Platform is an opaque client-supplied
// string ("ios", "android", ...).
type DeviceToken struct {
	UserID   int64
	Platform string
	Token    string
}
