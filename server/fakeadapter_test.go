package main

import (
	"sort"
	"sync"
	"time"

	"github.com/riverline-chat/riverline/server/store/adapter"
	t "github.com/riverline-chat/riverline/server/store/types"
)

// fakeAdapter is an in-memory adapter.Adapter used only by this package's
// tests, grounded in the same operation set postgres.Adapter implements
// but without a database round-trip.
type fakeAdapter struct {
	mu sync.Mutex

	nextUserID int64
	nextUid    uint64

	users    map[string]*t.User // by username
	byID     map[int64]*t.User
	convs    map[t.Uid]*t.Conversation
	convKey  map[[2]int64]t.Uid
	privMsgs map[t.Uid][]t.Message
	bcast    []t.BroadcastMessage
	groups   map[t.Uid]*t.Group
	members  map[t.Uid][]adapter.GroupMemberInfo
	groupMsg map[t.Uid][]t.GroupMessage
	devices  map[int64][]t.DeviceToken
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		users:    make(map[string]*t.User),
		byID:     make(map[int64]*t.User),
		convs:    make(map[t.Uid]*t.Conversation),
		convKey:  make(map[[2]int64]t.Uid),
		privMsgs: make(map[t.Uid][]t.Message),
		groups:   make(map[t.Uid]*t.Group),
		members:  make(map[t.Uid][]adapter.GroupMemberInfo),
		groupMsg: make(map[t.Uid][]t.GroupMessage),
		devices:  make(map[int64][]t.DeviceToken),
	}
}

func (a *fakeAdapter) nextUserIDLocked() int64 {
	a.nextUserID++
	return a.nextUserID
}

func (a *fakeAdapter) nextUidLocked() t.Uid {
	a.nextUid++
	return t.Uid(a.nextUid)
}

func (a *fakeAdapter) Open(string) error  { return nil }
func (a *fakeAdapter) Close() error       { return nil }
func (a *fakeAdapter) IsOpen() bool       { return true }

func (a *fakeAdapter) RegisterUser(username, passwordHash string) (*t.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[username]; ok {
		return nil, adapter.NewError(adapter.ErrNameTaken, nil)
	}
	u := &t.User{UserID: a.nextUserIDLocked(), Username: username, PasswordHash: passwordHash, CreatedAt: time.Unix(0, 0)}
	a.users[username] = u
	a.byID[u.UserID] = u
	return u, nil
}

func (a *fakeAdapter) Authenticate(username, passwordHash string) (*t.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[username]
	if !ok || u.PasswordHash != passwordHash {
		return nil, adapter.NewError(adapter.ErrBadCredentials, nil)
	}
	return u, nil
}

func (a *fakeAdapter) OpenSession(userID int64) (int64, error) {
	return userID, nil
}

func (a *fakeAdapter) CloseSession(int64) error { return nil }

func (a *fakeAdapter) ListUsers(excludingUserID int64) ([]t.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []t.User
	for _, u := range a.byID {
		if u.UserID == excludingUserID {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func conversationKey(u1, u2 int64) [2]int64 {
	if u1 > u2 {
		u1, u2 = u2, u1
	}
	return [2]int64{u1, u2}
}

func (a *fakeAdapter) GetOrCreateConversation(u1, u2 int64) (t.Uid, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := conversationKey(u1, u2)
	if id, ok := a.convKey[key]; ok {
		return id, nil
	}
	id := a.nextUidLocked()
	a.convs[id] = &t.Conversation{ConversationID: id, Participant1: key[0], Participant2: key[1]}
	a.convKey[key] = id
	return id, nil
}

func (a *fakeAdapter) AppendPrivate(convID t.Uid, senderID int64, senderUsername, text string) (*t.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := t.Message{MessageID: a.nextUidLocked(), ConversationID: convID, SenderID: senderID, SenderUsername: senderUsername, Text: text, Timestamp: time.Unix(0, 0)}
	a.privMsgs[convID] = append(a.privMsgs[convID], m)
	return &m, nil
}

func (a *fakeAdapter) HistoryPrivate(convID t.Uid, limit int) ([]t.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := a.privMsgs[convID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]t.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (a *fakeAdapter) AppendBroadcast(senderID int64, senderUsername, text string) (*t.BroadcastMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := t.BroadcastMessage{MessageID: a.nextUidLocked(), SenderID: senderID, SenderUsername: senderUsername, Text: text, Timestamp: time.Unix(0, 0)}
	a.bcast = append(a.bcast, m)
	return &m, nil
}

func (a *fakeAdapter) HistoryBroadcast(limit int) ([]t.BroadcastMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := a.bcast
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]t.BroadcastMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (a *fakeAdapter) CreateGroup(name string, creatorID int64, creatorUsername, description string) (*t.Group, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, g := range a.groups {
		if g.GroupName == name && g.Active {
			return nil, adapter.NewError(adapter.ErrGroupNameTaken, nil)
		}
	}
	g := &t.Group{GroupID: a.nextUidLocked(), GroupName: name, Description: description, CreatorID: creatorID, CreatedAt: time.Unix(0, 0), Active: true}
	a.groups[g.GroupID] = g
	a.members[g.GroupID] = append(a.members[g.GroupID], adapter.GroupMemberInfo{UserID: creatorID, Username: creatorUsername, Role: t.RoleAdmin})
	a.groupMsg[g.GroupID] = append(a.groupMsg[g.GroupID], t.GroupMessage{
		MessageID: a.nextUidLocked(), GroupID: g.GroupID, SenderID: creatorID, SenderUsername: creatorUsername,
		Text: "Group '" + name + "' created by " + creatorUsername, Timestamp: time.Unix(0, 0), MessageType: t.GroupMsgSystem,
	})
	return g, nil
}

func (a *fakeAdapter) AddMember(groupID t.Uid, userID int64, actorUsername string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range a.members[groupID] {
		if m.UserID == userID {
			return nil
		}
	}
	a.members[groupID] = append(a.members[groupID], adapter.GroupMemberInfo{UserID: userID, Username: actorUsername, Role: t.RoleMember})
	return nil
}

func (a *fakeAdapter) RemoveMember(groupID t.Uid, userID int64, actorUsername string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	members := a.members[groupID]
	out := members[:0]
	removed := false
	for _, m := range members {
		if m.UserID == userID {
			removed = true
			continue
		}
		out = append(out, m)
	}
	if !removed {
		return adapter.NewError(adapter.ErrNotMember, nil)
	}
	a.members[groupID] = out
	if len(out) == 0 {
		if g, ok := a.groups[groupID]; ok {
			g.Active = false
		}
	}
	return nil
}

func (a *fakeAdapter) ListUserGroups(userID int64) ([]t.Group, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []t.Group
	for gid, members := range a.members {
		for _, m := range members {
			if m.UserID == userID {
				out = append(out, *a.groups[gid])
				break
			}
		}
	}
	return out, nil
}

func (a *fakeAdapter) ListAllActiveGroups() ([]t.Group, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []t.Group
	for _, g := range a.groups {
		if g.Active {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (a *fakeAdapter) SearchGroups(term string) ([]t.Group, error) {
	return a.ListAllActiveGroups()
}

func (a *fakeAdapter) GroupMembers(groupID t.Uid) ([]adapter.GroupMemberInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]adapter.GroupMemberInfo, len(a.members[groupID]))
	copy(out, a.members[groupID])
	return out, nil
}

func (a *fakeAdapter) GroupInfo(groupID t.Uid) (*t.Group, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.groups[groupID]
	if !ok {
		return nil, adapter.NewError(adapter.ErrNotFound, nil)
	}
	return g, nil
}

func (a *fakeAdapter) GroupByName(name string) (*t.Group, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, g := range a.groups {
		if g.GroupName == name && g.Active {
			return g, nil
		}
	}
	return nil, adapter.NewError(adapter.ErrNotFound, nil)
}

func (a *fakeAdapter) IsMember(groupID t.Uid, userID int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range a.members[groupID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (a *fakeAdapter) AppendGroupMessage(groupID t.Uid, senderID int64, senderUsername, text string, kind t.GroupMessageType) (*t.GroupMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := t.GroupMessage{MessageID: a.nextUidLocked(), GroupID: groupID, SenderID: senderID, SenderUsername: senderUsername, Text: text, Timestamp: time.Unix(0, 0), MessageType: kind}
	a.groupMsg[groupID] = append(a.groupMsg[groupID], m)
	if g, ok := a.groups[groupID]; ok {
		g.LastMessageAt = m.Timestamp
	}
	return &m, nil
}

func (a *fakeAdapter) HistoryGroup(groupID t.Uid, limit int) ([]t.GroupMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := a.groupMsg[groupID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]t.GroupMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (a *fakeAdapter) MarkGroupRead(messageID t.Uid, userID int64) error { return nil }

func (a *fakeAdapter) MarkAllGroupRead(groupID t.Uid, userID int64) (int, error) { return 0, nil }

func (a *fakeAdapter) RegisterDevice(userID int64, platform, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.devices[userID] = append(a.devices[userID], t.DeviceToken{UserID: userID, Platform: platform, Token: token})
	return nil
}

func (a *fakeAdapter) DevicesForUser(userID int64) ([]t.DeviceToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.devices[userID], nil
}
