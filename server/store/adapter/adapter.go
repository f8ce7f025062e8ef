// Package adapter declares the interface a Persistence backend must
// implement. The chat server and group chat service talk to storage only
// through this interface; server/store/postgres provides the concrete
// implementation used in production.
package adapter

import (
	t "github.com/riverline-chat/riverline/server/store/types"
)

// Adapter is the full set of operations the session and group-chat layers
// require of the durable store. Every operation is synchronous from the
// caller's perspective: it either completes or returns an error from the
// Code enum in this package.
type Adapter interface {
	// Open configures and opens the connection pool (min 1, max 20).
	Open(dsn string) error
	// Close releases all pooled connections.
	Close() error
	// IsOpen reports whether Open succeeded and Close has not been called.
	IsOpen() bool

	// Accounts

	RegisterUser(username, passwordHash string) (*t.User, error)
	Authenticate(username, passwordHash string) (*t.User, error)
	OpenSession(userID int64) (int64, error)
	CloseSession(sessionID int64) error
	ListUsers(excludingUserID int64) ([]t.User, error)

	// Private messaging

	GetOrCreateConversation(u1, u2 int64) (t.Uid, error)
	AppendPrivate(convID t.Uid, senderID int64, senderUsername, text string) (*t.Message, error)
	HistoryPrivate(convID t.Uid, limit int) ([]t.Message, error)

	// Broadcast

	AppendBroadcast(senderID int64, senderUsername, text string) (*t.BroadcastMessage, error)
	HistoryBroadcast(limit int) ([]t.BroadcastMessage, error)

	// Groups

	CreateGroup(name string, creatorID int64, creatorUsername, description string) (*t.Group, error)
	AddMember(groupID t.Uid, userID int64, actorUsername string) error
	RemoveMember(groupID t.Uid, userID int64, actorUsername string) error
	ListUserGroups(userID int64) ([]t.Group, error)
	ListAllActiveGroups() ([]t.Group, error)
	SearchGroups(term string) ([]t.Group, error)
	GroupMembers(groupID t.Uid) ([]GroupMemberInfo, error)
	GroupInfo(groupID t.Uid) (*t.Group, error)
	GroupByName(name string) (*t.Group, error)
	IsMember(groupID t.Uid, userID int64) (bool, error)
	AppendGroupMessage(groupID t.Uid, senderID int64, senderUsername, text string, kind t.GroupMessageType) (*t.GroupMessage, error)
	HistoryGroup(groupID t.Uid, limit int) ([]t.GroupMessage, error)
	MarkGroupRead(messageID t.Uid, userID int64) error
	MarkAllGroupRead(groupID t.Uid, userID int64) (int, error)

	// Devices (push notification targets, SPEC_FULL.md expansion)

	RegisterDevice(userID int64, platform, token string) error
	DevicesForUser(userID int64) ([]t.DeviceToken, error)
}

// GroupMemberInfo is a denormalized membership row joined with the
// member's username, as returned by GROUP_MEMBERS_START/END framing.
type GroupMemberInfo struct {
	UserID   int64
	Username string
	Role     t.GroupRole
	JoinedAt int64 // unix seconds, wire-friendly
}

// Code is a closed taxonomy of domain-level failures a caller must branch
// on (spec.md §7's "Input validation" category).
type Code int

const (
	_ Code = iota
	ErrNameTaken
	ErrBadCredentials
	ErrNotFound
	ErrNotMember
	ErrGroupNameTaken
	ErrStore
)

// Error wraps a Code with the underlying cause, if any.
type Error struct {
	Code  Code
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	switch e.Code {
	case ErrNameTaken:
		return "name already taken"
	case ErrBadCredentials:
		return "invalid username or password"
	case ErrNotFound:
		return "not found"
	case ErrNotMember:
		return "not a member"
	case ErrGroupNameTaken:
		return "group name already taken"
	default:
		return "store error"
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs an *Error for the given code, optionally wrapping
// cause.
func NewError(code Code, cause error) error {
	return &Error{Code: code, Cause: cause}
}
