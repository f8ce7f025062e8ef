/******************************************************************************
 *
 *  Description :
 *
 *    Connection Session: the per-connection state machine that owns one
 *    client's raw TCP line protocol. Replaces the teacher's WebSocket/
 *    long-poll/gRPC multiplexed Session with a single reader/writer pair
 *    driving Hello -> Auth -> Menu <-> {Contacts, PrivateChat, Broadcast,
 *    MyGroups, BrowseGroups, CreateGroup, GroupChat} -> Closed.
 *
 *****************************************************************************/

package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/riverline-chat/riverline/server/coordinator"
	"github.com/riverline-chat/riverline/server/store"
	"github.com/riverline-chat/riverline/server/store/adapter"
	t "github.com/riverline-chat/riverline/server/store/types"
)

// sessionState names a node in the Connection Session state machine.
type sessionState int

const (
	stateMenu sessionState = iota
	stateContacts
	statePrivateChat
	stateBroadcast
	stateMyGroups
	stateBrowseGroups
	stateCreateGroup
	stateGroupChat
	stateClosed
)

// historyLimit bounds how many past lines PrivateChat/Broadcast/GroupChat
// replay on entry (spec.md §4.4: "up to 50 past lines").
const historyLimit = 50

// Session is one client's connection: a raw net.Conn, a buffered line
// reader, and a writer serialized through writeMu so asynchronous
// fan-in (MESSAGE/BROADCAST/GROUP_MESSAGE lines pushed by the Fabric)
// never interleaves with a framed reply mid-write (spec.md §4.4 edge
// case).
type Session struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex

	fabric   *Fabric
	coord    coordinator.Coordinator
	groupSvc *GroupChatService

	username string
	userID   int64
	token    string

	dbSessionID int64
	cleanLogout bool

	// PrivateChat context, valid only while in statePrivateChat.
	convID       t.Uid
	peerUsername string
	peerUserID   int64

	// GroupChat context, valid only while in stateGroupChat.
	groupID   t.Uid
	groupName string

	closed chan struct{}
}

func newSession(conn net.Conn, fabric *Fabric, coord coordinator.Coordinator, groupSvc *GroupChatService) *Session {
	return &Session{
		conn:     conn,
		reader:   bufio.NewReader(conn),
		fabric:   fabric,
		coord:    coord,
		groupSvc: groupSvc,
		closed:   make(chan struct{}),
	}
}

// handleConnection is the accept-loop callback wired in main.go.
func handleConnection(conn net.Conn, fabric *Fabric, coord coordinator.Coordinator, groupSvc *GroupChatService) {
	metricConnectionsAccepted.Inc()
	s := newSession(conn, fabric, coord, groupSvc)
	s.serve()
}

// writeLine serializes line as a single newline-terminated record.
func (s *Session) writeLine(line string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := fmt.Fprintf(s.conn, "%s\n", line); err != nil {
		log.Printf("session: write to %s failed: %v", s.username, err)
	}
}

// readLine blocks for the next newline-terminated record. A read error
// (including EOF on disconnect) is the only source of a Closed
// transition outside of an explicit "bye".
func (s *Session) readLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// hashPassword applies spec.md §3's chosen scheme: unsalted SHA-256 hex
// over the UTF-8 password bytes. See DESIGN.md for the open question
// this leaves on the table.
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// serve runs Hello/Auth, then drives the Menu loop until Closed.
func (s *Session) serve() {
	ctx := context.Background()
	defer s.cleanup(ctx)

	if !s.runAuthLoop(ctx) {
		return
	}

	if err := s.fabric.onClientAuthenticated(ctx, s.username, s.userID, s); err != nil {
		log.Printf("session: onClientAuthenticated(%s): %v", s.username, err)
	}
	go presenceHeartbeat(ctx, s.coord, s)

	state := stateMenu
	for state != stateClosed {
		switch state {
		case stateMenu:
			state = s.runMenu()
		case stateContacts:
			state = s.runContacts(ctx)
		case statePrivateChat:
			state = s.runPrivateChat(ctx)
		case stateBroadcast:
			state = s.runBroadcast(ctx)
		case stateMyGroups:
			state = s.runMyGroups(ctx)
		case stateBrowseGroups:
			state = s.runBrowseGroups(ctx)
		case stateCreateGroup:
			state = s.runCreateGroup(ctx)
		case stateGroupChat:
			state = s.runGroupChat(ctx)
		}
	}
}

func (s *Session) cleanup(ctx context.Context) {
	if s.username != "" {
		s.fabric.onClientDisconnected(ctx, s.username, s)
		if s.cleanLogout && s.token != "" {
			if err := revokeResumeToken(ctx, s.coord, s.token); err != nil {
				log.Printf("session: revokeResumeToken(%s): %v", s.username, err)
			}
		}
		if s.dbSessionID != 0 {
			if err := store.Adapter().CloseSession(s.dbSessionID); err != nil {
				log.Printf("session: CloseSession(%s): %v", s.username, err)
			}
		}
	}
	close(s.closed)
	s.conn.Close()
}

// handleBye marks a clean logout (revokes the ResumeToken in cleanup)
// and ends the state machine. Callers must only reach this from a state
// where "bye" means logout, never from inside a chat subflow where it is
// a literal message (spec.md §9's disambiguation note).
func (s *Session) handleBye() sessionState {
	s.cleanLogout = true
	return stateClosed
}

// runAuthLoop drives Hello -> Auth until a LOGIN/SIGNUP/RESUME_SESSION
// succeeds or the connection drops.
func (s *Session) runAuthLoop(ctx context.Context) bool {
	s.writeLine(sentinelAuthRequest)
	for {
		line, err := s.readLine()
		if err != nil {
			return false
		}
		switch {
		case line == cmdLogin:
			if s.doLogin(ctx) {
				return true
			}
		case line == cmdSignup:
			if s.doSignup(ctx) {
				return true
			}
		case strings.HasPrefix(line, cmdResumePrefix):
			if s.doResume(ctx, strings.TrimPrefix(line, cmdResumePrefix)) {
				return true
			}
		default:
			s.writeLine(sentinelAuthFailed + ":expected LOGIN, SIGNUP, or RESUME_SESSION:<token>")
		}
	}
}

func (s *Session) doLogin(ctx context.Context) bool {
	s.writeLine(sentinelLoginPrompt)
	username, err := s.readLine()
	if err != nil {
		return false
	}
	password, err := s.readLine()
	if err != nil {
		return false
	}

	user, err := store.Adapter().Authenticate(username, hashPassword(password))
	if err != nil {
		metricAuthOutcomes.WithLabelValues("login", "failure").Inc()
		s.writeLine(sentinelAuthFailed + ":" + errMessage(err))
		return false
	}
	metricAuthOutcomes.WithLabelValues("login", "success").Inc()
	return s.completeAuth(ctx, user)
}

func (s *Session) doSignup(ctx context.Context) bool {
	s.writeLine(sentinelSignupPrompt)
	username, err := s.readLine()
	if err != nil {
		return false
	}
	password, err := s.readLine()
	if err != nil {
		return false
	}

	user, err := store.Adapter().RegisterUser(username, hashPassword(password))
	if err != nil {
		metricAuthOutcomes.WithLabelValues("signup", "failure").Inc()
		s.writeLine(sentinelAuthFailed + ":" + errMessage(err))
		return false
	}
	metricAuthOutcomes.WithLabelValues("signup", "success").Inc()
	return s.completeAuth(ctx, user)
}

// completeAuth opens a durable Session row and issues a ResumeToken,
// shared by the LOGIN and SIGNUP paths (spec.md §4.4: "Post-success
// auto-login is atomic").
func (s *Session) completeAuth(ctx context.Context, user *t.User) bool {
	sessionID, err := store.Adapter().OpenSession(user.UserID)
	if err != nil {
		s.writeLine(sentinelAuthFailed + ":" + errMessage(err))
		return false
	}
	token, err := issueResumeToken(ctx, s.coord, user.Username, user.UserID)
	if err != nil {
		s.writeLine(sentinelAuthFailed + ":" + errMessage(err))
		return false
	}

	s.username = user.Username
	s.userID = user.UserID
	s.dbSessionID = sessionID
	s.token = token

	s.writeLine(sentinelAuthSuccess + ":welcome, " + user.Username)
	s.writeLine(sentinelSessionToken + ":" + token)
	return true
}

func (s *Session) doResume(ctx context.Context, token string) bool {
	res, err := resumeSession(ctx, s.coord, token)
	if err != nil {
		log.Printf("session: resumeSession: %v", err)
		s.writeLine(sentinelAuthFailed + ":Invalid or expired session")
		return false
	}
	if res == nil {
		s.writeLine(sentinelAuthFailed + ":Invalid or expired session")
		return false
	}

	s.username = res.Username
	s.userID = res.UserID
	s.token = token

	s.writeLine(sentinelSessionResumed + ":welcome back, " + res.Username)
	s.writeLine(sentinelSessionToken + ":" + token)

	s.writeLine(fmt.Sprintf("%s:%d", sentinelPendingMessagesStart, len(res.Pending)))
	for _, p := range res.Pending {
		s.writeLine(sentinelPendingMsg + ":" + p.Content)
	}
	s.writeLine(sentinelPendingMessagesEnd)
	return true
}

// errMessage unwraps an adapter.Error to its human string, falling back
// to a generic transient-failure message for anything else (spec.md §7:
// I/O failures are logged, never surfaced verbatim to the client).
func errMessage(err error) string {
	var aerr *adapter.Error
	if errors.As(err, &aerr) {
		return aerr.Error()
	}
	log.Printf("session: store error: %v", err)
	return "temporarily unavailable, try again"
}

// tryRegisterDevice handles REGISTER_DEVICE:<platform>:<token>, valid in
// any authenticated state (SPEC_FULL.md §4.4 expansion). Reports whether
// line was consumed so callers can fall through to their own handling
// otherwise.
func (s *Session) tryRegisterDevice(line string) bool {
	if !strings.HasPrefix(line, cmdRegisterDevicePrefix) {
		return false
	}
	rest := strings.TrimPrefix(line, cmdRegisterDevicePrefix)
	platform, token, ok := strings.Cut(rest, ":")
	if !ok || platform == "" || token == "" {
		s.writeLine(sentinelInvalidOption + ":expected REGISTER_DEVICE:<platform>:<token>")
		return true
	}
	if err := store.Adapter().RegisterDevice(s.userID, platform, token); err != nil {
		s.writeLine(sentinelInvalidOption + ":" + errMessage(err))
		return true
	}
	s.writeLine(sentinelDeviceRegistered)
	return true
}

func (s *Session) runMenu() sessionState {
	s.writeLine(sentinelMainMenuStart)
	s.writeLine(string(menuContacts) + "|Contacts")
	s.writeLine(string(menuBroadcastOnly) + "|Broadcast")
	s.writeLine(string(menuMyGroups) + "|My Groups")
	s.writeLine(string(menuBrowseGroups) + "|Browse Groups")
	s.writeLine(string(menuCreateGroup) + "|Create Group")
	s.writeLine(sentinelMainMenuEnd)

	for {
		line, err := s.readLine()
		if err != nil {
			return stateClosed
		}
		if s.tryRegisterDevice(line) {
			continue
		}
		switch menuOption(line) {
		case menuContacts:
			return stateContacts
		case menuBroadcastOnly:
			return stateBroadcast
		case menuMyGroups:
			return stateMyGroups
		case menuBrowseGroups:
			return stateBrowseGroups
		case menuCreateGroup:
			return stateCreateGroup
		}
		if line == sentinelBye {
			return s.handleBye()
		}
		s.writeLine(sentinelInvalidOption + ":choose 1-5 or bye")
	}
}

func (s *Session) runContacts(ctx context.Context) sessionState {
	for {
		users, err := store.Adapter().ListUsers(s.userID)
		if err != nil {
			s.writeLine(sentinelInvalidOption + ":" + errMessage(err))
			return stateMenu
		}
		online, err := onlineUsernames(ctx, s.coord)
		if err != nil {
			log.Printf("session: onlineUsernames: %v", err)
		}
		onlineSet := make(map[string]bool, len(online))
		for _, u := range online {
			onlineSet[u] = true
		}

		s.writeLine(sentinelContactListStart)
		s.writeLine("BROADCAST|broadcast")
		for _, u := range users {
			status := "offline"
			if onlineSet[u.Username] {
				status = "online"
			}
			s.writeLine(u.Username + "|" + status)
		}
		s.writeLine(sentinelContactListEnd)

		line, err := s.readLine()
		if err != nil {
			return stateClosed
		}
		if s.tryRegisterDevice(line) {
			continue
		}
		switch {
		case line == cmdBroadcastLine:
			return stateBroadcast
		case line == sentinelBack:
			return stateMenu
		case line == sentinelBye:
			return s.handleBye()
		}

		peer, ok := findUserByName(users, line)
		if !ok {
			s.writeLine(sentinelContactNotFound + ":" + line)
			continue
		}
		convID, err := store.Adapter().GetOrCreateConversation(s.userID, peer.UserID)
		if err != nil {
			s.writeLine(sentinelInvalidOption + ":" + errMessage(err))
			continue
		}
		s.convID = convID
		s.peerUsername = peer.Username
		s.peerUserID = peer.UserID
		return statePrivateChat
	}
}

func findUserByName(users []t.User, name string) (t.User, bool) {
	for _, u := range users {
		if u.Username == name {
			return u, true
		}
	}
	return t.User{}, false
}

func (s *Session) runPrivateChat(ctx context.Context) sessionState {
	s.writeLine(sentinelConversationStart + ":" + s.peerUsername)
	history, err := store.Adapter().HistoryPrivate(s.convID, historyLimit)
	if err != nil {
		log.Printf("session: HistoryPrivate: %v", err)
	}
	for _, m := range history {
		s.writeLine(sentinelMessage + ":" + m.SenderUsername + ":" + m.Text)
	}
	s.writeLine(sentinelConversationReady)

	for {
		line, err := s.readLine()
		if err != nil {
			return stateClosed
		}
		if s.tryRegisterDevice(line) {
			continue
		}
		if line == sentinelBack {
			return stateContacts
		}

		msg, err := store.Adapter().AppendPrivate(s.convID, s.userID, s.username, line)
		if err != nil {
			s.writeLine(sentinelInvalidOption + ":" + errMessage(err))
			continue
		}
		delivered := s.fabric.sendToUser(ctx, s.peerUsername, fmt.Sprintf("%s:%s:%s", sentinelMessage, s.username, msg.Text))
		if delivered {
			s.writeLine(sentinelSent + ":Message delivered")
		} else {
			notifyMissedMessage(s.peerUserID, s.peerUsername, "private", s.username, msg.Text)
			s.writeLine(sentinelSent + ":Message saved (recipient offline)")
		}
	}
}

func (s *Session) runBroadcast(ctx context.Context) sessionState {
	s.writeLine(sentinelBroadcastStart + ":BROADCAST CHANNEL")
	history, err := store.Adapter().HistoryBroadcast(historyLimit)
	if err != nil {
		log.Printf("session: HistoryBroadcast: %v", err)
	}
	for _, m := range history {
		s.writeLine(sentinelBroadcast + ":" + m.SenderUsername + ":" + m.Text)
	}
	s.writeLine(sentinelConversationReady)

	for {
		line, err := s.readLine()
		if err != nil {
			return stateClosed
		}
		if s.tryRegisterDevice(line) {
			continue
		}
		if line == sentinelBack {
			return stateMenu
		}

		msg, err := store.Adapter().AppendBroadcast(s.userID, s.username, line)
		if err != nil {
			s.writeLine(sentinelInvalidOption + ":" + errMessage(err))
			continue
		}

		online, err := onlineUsernames(ctx, s.coord)
		if err != nil {
			log.Printf("session: onlineUsernames: %v", err)
		}
		delivered := 0
		for _, u := range online {
			if u == s.username {
				continue
			}
			if s.fabric.sendToUser(ctx, u, fmt.Sprintf("%s:%s:%s", sentinelBroadcast, s.username, msg.Text)) {
				delivered++
			}
		}
		s.writeLine(fmt.Sprintf("%s:Broadcast sent to %d online users (of %d total)", sentinelBroadcastSent, delivered, len(online)))
	}
}

func (s *Session) runMyGroups(ctx context.Context) sessionState {
	for {
		groups, err := store.Adapter().ListUserGroups(s.userID)
		if err != nil {
			s.writeLine(sentinelInvalidOption + ":" + errMessage(err))
			return stateMenu
		}

		s.writeLine(sentinelMyGroupsStart)
		for _, g := range groups {
			s.writeLine(g.GroupName + "|" + g.GroupID.String())
		}
		s.writeLine(sentinelMyGroupsEnd)

		line, err := s.readLine()
		if err != nil {
			return stateClosed
		}
		if line == sentinelBack {
			return stateMenu
		}
		if line == sentinelBye {
			return s.handleBye()
		}
		if s.tryRegisterDevice(line) {
			continue
		}

		group, ok := findGroupByName(groups, line)
		if !ok {
			s.writeLine(sentinelNotAMember + ":" + line)
			continue
		}
		s.enterGroup(group)
		if _, err := s.groupSvc.MarkAllGroupRead(s.groupID, s.userID); err != nil {
			log.Printf("session: MarkAllGroupRead: %v", err)
		}
		return stateGroupChat
	}
}

func findGroupByName(groups []t.Group, name string) (t.Group, bool) {
	for _, g := range groups {
		if g.GroupName == name {
			return g, true
		}
	}
	return t.Group{}, false
}

func (s *Session) enterGroup(g t.Group) {
	s.groupID = g.GroupID
	s.groupName = g.GroupName
}

func (s *Session) runBrowseGroups(ctx context.Context) sessionState {
	for {
		groups, err := store.Adapter().ListAllActiveGroups()
		if err != nil {
			s.writeLine(sentinelInvalidOption + ":" + errMessage(err))
			return stateMenu
		}

		s.writeLine(sentinelBrowseGroupsStart)
		for _, g := range groups {
			s.writeLine(g.GroupName + "|" + g.GroupID.String())
		}
		s.writeLine(sentinelBrowseGroupsEnd)

		line, err := s.readLine()
		if err != nil {
			return stateClosed
		}
		if line == sentinelBack {
			return stateMenu
		}
		if line == sentinelBye {
			return s.handleBye()
		}
		if s.tryRegisterDevice(line) {
			continue
		}

		group, ok := findGroupByName(groups, line)
		if !ok {
			s.writeLine(sentinelInvalidOption + ":no such group " + line)
			continue
		}
		isMember, err := store.Adapter().IsMember(group.GroupID, s.userID)
		if err != nil {
			s.writeLine(sentinelInvalidOption + ":" + errMessage(err))
			continue
		}
		if !isMember {
			if err := s.groupSvc.AddMember(ctx, group.GroupID, s.userID, s.username); err != nil {
				s.writeLine(sentinelInvalidOption + ":" + errMessage(err))
				continue
			}
		}
		s.enterGroup(group)
		if _, err := s.groupSvc.MarkAllGroupRead(s.groupID, s.userID); err != nil {
			log.Printf("session: MarkAllGroupRead: %v", err)
		}
		return stateGroupChat
	}
}

func (s *Session) runCreateGroup(ctx context.Context) sessionState {
	s.writeLine(sentinelCreateGroupPrompt + ":Enter group name")
	name, err := s.readLine()
	if err != nil {
		return stateClosed
	}
	if name == sentinelBack {
		return stateMenu
	}
	if name == sentinelBye {
		return s.handleBye()
	}

	s.writeLine(sentinelCreateGroupPrompt + ":Enter description (blank for none)")
	desc, err := s.readLine()
	if err != nil {
		return stateClosed
	}

	group, err := s.groupSvc.CreateGroup(name, s.userID, s.username, desc)
	if err != nil {
		var aerr *adapter.Error
		if errors.As(err, &aerr) && aerr.Code == adapter.ErrGroupNameTaken {
			s.writeLine(sentinelGroupNameTaken + ":" + name)
		} else {
			s.writeLine(sentinelInvalidOption + ":" + errMessage(err))
		}
		return stateMenu
	}
	s.enterGroup(*group)
	if _, err := s.groupSvc.MarkAllGroupRead(s.groupID, s.userID); err != nil {
		log.Printf("session: MarkAllGroupRead: %v", err)
	}
	return stateGroupChat
}

func (s *Session) runGroupChat(ctx context.Context) sessionState {
	s.writeLine(fmt.Sprintf("%s:%s:%s", sentinelGroupChatStart, s.groupName, s.groupID.String()))
	history, err := store.Adapter().HistoryGroup(s.groupID, historyLimit)
	if err != nil {
		log.Printf("session: HistoryGroup: %v", err)
	}
	for _, m := range history {
		s.writeLine(sentinelGroupMessage + ":" + s.groupName + ":" + m.SenderUsername + ":" + m.Text)
	}
	s.writeLine(sentinelGroupChatReady)

	for {
		line, err := s.readLine()
		if err != nil {
			return stateClosed
		}
		if s.tryRegisterDevice(line) {
			continue
		}
		switch {
		case line == sentinelBack:
			return stateMyGroups
		case line == cmdMembers:
			s.writeGroupMembers()
		case line == cmdLeave:
			if err := s.groupSvc.RemoveMember(ctx, s.groupID, s.userID, s.username); err != nil {
				s.writeLine(sentinelInvalidOption + ":" + errMessage(err))
				continue
			}
			return stateMyGroups
		default:
			if _, err := s.groupSvc.SendGroupMessage(ctx, s.groupID, s.userID, s.username, s.groupName, line); err != nil {
				s.writeLine(sentinelInvalidOption + ":" + errMessage(err))
				continue
			}
			s.writeLine(sentinelGroupSent + ":Message sent to group")
		}
	}
}

func (s *Session) writeGroupMembers() {
	members, err := store.Adapter().GroupMembers(s.groupID)
	if err != nil {
		s.writeLine(sentinelInvalidOption + ":" + errMessage(err))
		return
	}
	s.writeLine(sentinelGroupMembersStart)
	for _, m := range members {
		s.writeLine(fmt.Sprintf("%s|%s", m.Username, m.Role))
	}
	s.writeLine(sentinelGroupMembersEnd)
}
