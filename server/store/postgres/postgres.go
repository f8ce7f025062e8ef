// Package postgres implements server/store/adapter.Adapter against
// PostgreSQL via sqlx and lib/pq. Grounded in original_source/db_manager.py
// and original_source/group_chat_manager.py, which are themselves
// psycopg2/PostgreSQL.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/tinode/snowflake"
	"golang.org/x/text/unicode/norm"

	"github.com/jmoiron/sqlx"
	"github.com/riverline-chat/riverline/server/store/adapter"
	t "github.com/riverline-chat/riverline/server/store/types"
)

// Adapter is the PostgreSQL-backed Persistence Gateway.
type Adapter struct {
	db  *sqlx.DB
	ids *snowflake.Snowflake
}

// New constructs an unopened Adapter. worker identifies this replica for
// snowflake ID allocation (0-1023); it should be derived from HOSTNAME.
func New(worker uint8) (*Adapter, error) {
	sf, err := snowflake.NewSnowflake(uint32(worker))
	if err != nil {
		return nil, fmt.Errorf("postgres: snowflake init: %w", err)
	}
	return &Adapter{ids: sf}, nil
}

// Open opens the connection pool. dsn is a standard libpq connection
// string (or URL). Pool is bounded min 1 / max 20 per spec.md §4.1.
func (a *Adapter) Open(dsn string) error {
	if a.db != nil {
		return errors.New("postgres: already open")
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return fmt.Errorf("postgres: connect: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
	// The domain types carry no db tags: map field names such as UserID or
	// LastMessageAt to the snake_case columns the queries select.
	db.MapperFunc(func(field string) string {
		field = strings.ReplaceAll(field, "ID", "Id")
		var b strings.Builder
		for i, c := range field {
			if c >= 'A' && c <= 'Z' {
				if i > 0 {
					b.WriteByte('_')
				}
				c += 'a' - 'A'
			}
			b.WriteRune(c)
		}
		return b.String()
	})
	a.db = db
	return nil
}

// Close releases the pool.
func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// IsOpen reports whether the pool is open.
func (a *Adapter) IsOpen() bool { return a.db != nil }

func (a *Adapter) nextID() t.Uid {
	return t.Uid(a.ids.Id())
}

var _ adapter.Adapter = (*Adapter)(nil)

// --- Accounts -----------------------------------------------------------

// RegisterUser inserts a new user row. The username is NFC-normalized
// before the uniqueness check so visually-identical Unicode confusables
// cannot register distinct accounts (spec.md §3's case-sensitivity rule
// is otherwise untouched: no case-folding happens here).
func (a *Adapter) RegisterUser(username, passwordHash string) (*t.User, error) {
	username = norm.NFC.String(username)

	tx, err := a.db.Beginx()
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.Get(&exists, `SELECT COUNT(*) FROM users WHERE username = $1`, username); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	if exists > 0 {
		return nil, adapter.NewError(adapter.ErrNameTaken, nil)
	}

	var u t.User
	row := tx.QueryRowx(
		`INSERT INTO users (username, password_hash, created_at)
		 VALUES ($1, $2, NOW()) RETURNING user_id, username, password_hash, created_at`,
		username, passwordHash)
	if err := row.Scan(&u.UserID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return &u, nil
}

// Authenticate verifies username/passwordHash and returns the user row.
func (a *Adapter) Authenticate(username, passwordHash string) (*t.User, error) {
	username = norm.NFC.String(username)
	var u t.User
	err := a.db.Get(&u,
		`SELECT user_id, username, password_hash, created_at FROM users
		 WHERE username = $1 AND password_hash = $2`, username, passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapter.NewError(adapter.ErrBadCredentials, nil)
	}
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return &u, nil
}

// OpenSession inserts a new durable session row and returns its id.
func (a *Adapter) OpenSession(userID int64) (int64, error) {
	var sessionID int64
	err := a.db.Get(&sessionID,
		`INSERT INTO sessions (user_id, login_time, active) VALUES ($1, NOW(), TRUE)
		 RETURNING session_id`, userID)
	if err != nil {
		return 0, adapter.NewError(adapter.ErrStore, err)
	}
	return sessionID, nil
}

// CloseSession marks a session row closed.
func (a *Adapter) CloseSession(sessionID int64) error {
	_, err := a.db.Exec(
		`UPDATE sessions SET logout_time = NOW(), active = FALSE WHERE session_id = $1`, sessionID)
	if err != nil {
		return adapter.NewError(adapter.ErrStore, err)
	}
	return nil
}

// ListUsers returns all users ordered by name, optionally excluding one.
func (a *Adapter) ListUsers(excludingUserID int64) ([]t.User, error) {
	var users []t.User
	var err error
	if excludingUserID != 0 {
		err = a.db.Select(&users,
			`SELECT user_id, username, password_hash, created_at FROM users
			 WHERE user_id != $1 ORDER BY username`, excludingUserID)
	} else {
		err = a.db.Select(&users,
			`SELECT user_id, username, password_hash, created_at FROM users ORDER BY username`)
	}
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return users, nil
}

// --- Private messaging ---------------------------------------------------

// GetOrCreateConversation canonicalizes the pair (p1 < p2) and returns the
// idempotent conversation id, satisfying invariant 2 in spec.md §8.
func (a *Adapter) GetOrCreateConversation(u1, u2 int64) (t.Uid, error) {
	p1, p2 := u1, u2
	if p1 > p2 {
		p1, p2 = p2, p1
	}

	var id t.Uid
	err := a.db.Get(&id,
		`SELECT conversation_id FROM conversations WHERE participant1_id = $1 AND participant2_id = $2`,
		p1, p2)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, adapter.NewError(adapter.ErrStore, err)
	}

	id = a.nextID()
	_, err = a.db.Exec(
		`INSERT INTO conversations (conversation_id, participant1_id, participant2_id, last_message_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (participant1_id, participant2_id) DO NOTHING`,
		id, p1, p2)
	if err != nil {
		return 0, adapter.NewError(adapter.ErrStore, err)
	}
	// Re-read in case of a racing insert by a concurrent replica.
	if err := a.db.Get(&id, `SELECT conversation_id FROM conversations WHERE participant1_id = $1 AND participant2_id = $2`, p1, p2); err != nil {
		return 0, adapter.NewError(adapter.ErrStore, err)
	}
	return id, nil
}

// AppendPrivate inserts a message and bumps the conversation's
// last_message_at.
func (a *Adapter) AppendPrivate(convID t.Uid, senderID int64, senderUsername, text string) (*t.Message, error) {
	tx, err := a.db.Beginx()
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	defer tx.Rollback()

	msg := t.Message{
		MessageID:      a.nextID(),
		ConversationID: convID,
		SenderID:       senderID,
		SenderUsername: senderUsername,
		Text:           text,
	}
	row := tx.QueryRowx(
		`INSERT INTO messages (message_id, conversation_id, sender_id, sender_username, message_text, timestamp)
		 VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING timestamp`,
		msg.MessageID, msg.ConversationID, msg.SenderID, msg.SenderUsername, msg.Text)
	if err := row.Scan(&msg.Timestamp); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	if _, err := tx.Exec(`UPDATE conversations SET last_message_at = NOW() WHERE conversation_id = $1`, convID); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return &msg, nil
}

// HistoryPrivate returns up to limit messages, oldest first.
func (a *Adapter) HistoryPrivate(convID t.Uid, limit int) ([]t.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var msgs []t.Message
	err := a.db.Select(&msgs,
		`SELECT * FROM (
			SELECT message_id, conversation_id, sender_id, sender_username, message_text as text, timestamp
			FROM messages WHERE conversation_id = $1 ORDER BY timestamp DESC LIMIT $2
		 ) recent ORDER BY timestamp ASC`, convID, limit)
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return msgs, nil
}

// --- Broadcast ------------------------------------------------------------

// AppendBroadcast inserts a row in the broadcast log.
func (a *Adapter) AppendBroadcast(senderID int64, senderUsername, text string) (*t.BroadcastMessage, error) {
	msg := t.BroadcastMessage{
		MessageID:      a.nextID(),
		SenderID:       senderID,
		SenderUsername: senderUsername,
		Text:           text,
	}
	row := a.db.QueryRowx(
		`INSERT INTO broadcast_messages (message_id, sender_id, sender_username, message_text, timestamp)
		 VALUES ($1, $2, $3, $4, NOW()) RETURNING timestamp`,
		msg.MessageID, msg.SenderID, msg.SenderUsername, msg.Text)
	if err := row.Scan(&msg.Timestamp); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return &msg, nil
}

// HistoryBroadcast returns up to limit broadcast messages, oldest first.
func (a *Adapter) HistoryBroadcast(limit int) ([]t.BroadcastMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var msgs []t.BroadcastMessage
	err := a.db.Select(&msgs,
		`SELECT * FROM (
			SELECT message_id, sender_id, sender_username, message_text as text, timestamp
			FROM broadcast_messages ORDER BY timestamp DESC LIMIT $1
		 ) recent ORDER BY timestamp ASC`, limit)
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return msgs, nil
}

// --- Groups -----------------------------------------------------------------

// CreateGroup inserts the group, its creator-as-admin membership, and a
// synthetic system message, all in one transaction (spec.md §4.5).
func (a *Adapter) CreateGroup(name string, creatorID int64, creatorUsername, description string) (*t.Group, error) {
	tx, err := a.db.Beginx()
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.Get(&exists, `SELECT COUNT(*) FROM groups WHERE group_name = $1 AND active`, name); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	if exists > 0 {
		return nil, adapter.NewError(adapter.ErrGroupNameTaken, nil)
	}

	g := t.Group{GroupID: a.nextID(), GroupName: name, Description: description, CreatorID: creatorID, Active: true}
	row := tx.QueryRowx(
		`INSERT INTO groups (group_id, group_name, description, creator_id, created_at, last_message_at, active)
		 VALUES ($1, $2, $3, $4, NOW(), NOW(), TRUE) RETURNING created_at, last_message_at`,
		g.GroupID, g.GroupName, g.Description, g.CreatorID)
	if err := row.Scan(&g.CreatedAt, &g.LastMessageAt); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}

	if _, err := tx.Exec(
		`INSERT INTO group_members (group_id, user_id, role, joined_at, active)
		 VALUES ($1, $2, 'admin', NOW(), TRUE)`, g.GroupID, creatorID); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}

	sysText := fmt.Sprintf("Group '%s' created by %s", name, creatorUsername)
	if _, err := tx.Exec(
		`INSERT INTO group_messages (message_id, group_id, sender_id, sender_username, message_text, timestamp, message_type)
		 VALUES ($1, $2, 0, 'system', $3, NOW(), 'system')`, a.nextID(), g.GroupID, sysText); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return &g, nil
}

// AddMember inserts (or reactivates) a membership and logs a system
// message.
func (a *Adapter) AddMember(groupID t.Uid, userID int64, actorUsername string) error {
	tx, err := a.db.Beginx()
	if err != nil {
		return adapter.NewError(adapter.ErrStore, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO group_members (group_id, user_id, role, joined_at, active)
		 VALUES ($1, $2, 'member', NOW(), TRUE)
		 ON CONFLICT (group_id, user_id) DO UPDATE SET active = TRUE, joined_at = NOW()`,
		groupID, userID); err != nil {
		return adapter.NewError(adapter.ErrStore, err)
	}
	if _, err := tx.Exec(`UPDATE groups SET active = TRUE WHERE group_id = $1`, groupID); err != nil {
		return adapter.NewError(adapter.ErrStore, err)
	}
	sysText := fmt.Sprintf("%s joined the group", actorUsername)
	if _, err := tx.Exec(
		`INSERT INTO group_messages (message_id, group_id, sender_id, sender_username, message_text, timestamp, message_type)
		 VALUES ($1, $2, 0, 'system', $3, NOW(), 'system')`, a.nextID(), groupID, sysText); err != nil {
		return adapter.NewError(adapter.ErrStore, err)
	}
	if err := tx.Commit(); err != nil {
		return adapter.NewError(adapter.ErrStore, err)
	}
	return nil
}

// RemoveMember soft-deletes a membership; if it was the last active
// member, the group itself is deactivated (invariant 3, spec.md §8).
func (a *Adapter) RemoveMember(groupID t.Uid, userID int64, actorUsername string) error {
	tx, err := a.db.Beginx()
	if err != nil {
		return adapter.NewError(adapter.ErrStore, err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE group_members SET active = FALSE WHERE group_id = $1 AND user_id = $2 AND active`,
		groupID, userID)
	if err != nil {
		return adapter.NewError(adapter.ErrStore, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return adapter.NewError(adapter.ErrNotMember, nil)
	}

	var remaining int
	if err := tx.Get(&remaining, `SELECT COUNT(*) FROM group_members WHERE group_id = $1 AND active`, groupID); err != nil {
		return adapter.NewError(adapter.ErrStore, err)
	}
	if remaining == 0 {
		if _, err := tx.Exec(`UPDATE groups SET active = FALSE WHERE group_id = $1`, groupID); err != nil {
			return adapter.NewError(adapter.ErrStore, err)
		}
	}

	sysText := fmt.Sprintf("%s left the group", actorUsername)
	if _, err := tx.Exec(
		`INSERT INTO group_messages (message_id, group_id, sender_id, sender_username, message_text, timestamp, message_type)
		 VALUES ($1, $2, 0, 'system', $3, NOW(), 'system')`, a.nextID(), groupID, sysText); err != nil {
		return adapter.NewError(adapter.ErrStore, err)
	}
	if err := tx.Commit(); err != nil {
		return adapter.NewError(adapter.ErrStore, err)
	}
	return nil
}

// ListUserGroups returns the active groups a user currently belongs to.
func (a *Adapter) ListUserGroups(userID int64) ([]t.Group, error) {
	var groups []t.Group
	err := a.db.Select(&groups,
		`SELECT g.group_id, g.group_name, g.description, g.creator_id, g.created_at, g.last_message_at, g.active
		 FROM groups g JOIN group_members gm ON gm.group_id = g.group_id
		 WHERE gm.user_id = $1 AND gm.active AND g.active
		 ORDER BY g.last_message_at DESC`, userID)
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return groups, nil
}

// ListAllActiveGroups returns every active group, for the browse-groups
// flow.
func (a *Adapter) ListAllActiveGroups() ([]t.Group, error) {
	var groups []t.Group
	err := a.db.Select(&groups,
		`SELECT group_id, group_name, description, creator_id, created_at, last_message_at, active
		 FROM groups WHERE active ORDER BY created_at DESC`)
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return groups, nil
}

// SearchGroups finds active groups whose name contains term
// (case-insensitive).
func (a *Adapter) SearchGroups(term string) ([]t.Group, error) {
	var groups []t.Group
	err := a.db.Select(&groups,
		`SELECT group_id, group_name, description, creator_id, created_at, last_message_at, active
		 FROM groups WHERE active AND group_name ILIKE $1 ORDER BY group_name`,
		"%"+strings.ReplaceAll(term, "%", "")+"%")
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return groups, nil
}

// GroupMembers returns every active membership of a group, joined with
// username.
func (a *Adapter) GroupMembers(groupID t.Uid) ([]adapter.GroupMemberInfo, error) {
	type row struct {
		UserID   int64     `db:"user_id"`
		Username string    `db:"username"`
		Role     t.GroupRole `db:"role"`
		JoinedAt time.Time `db:"joined_at"`
	}
	var rows []row
	err := a.db.Select(&rows,
		`SELECT u.user_id, u.username, gm.role, gm.joined_at
		 FROM group_members gm JOIN users u ON u.user_id = gm.user_id
		 WHERE gm.group_id = $1 AND gm.active ORDER BY gm.joined_at`, groupID)
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	out := make([]adapter.GroupMemberInfo, len(rows))
	for i, r := range rows {
		out[i] = adapter.GroupMemberInfo{UserID: r.UserID, Username: r.Username, Role: r.Role, JoinedAt: r.JoinedAt.Unix()}
	}
	return out, nil
}

// GroupInfo fetches a single active group by id.
func (a *Adapter) GroupInfo(groupID t.Uid) (*t.Group, error) {
	var g t.Group
	err := a.db.Get(&g,
		`SELECT group_id, group_name, description, creator_id, created_at, last_message_at, active
		 FROM groups WHERE group_id = $1 AND active`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapter.NewError(adapter.ErrNotFound, nil)
	}
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return &g, nil
}

// GroupByName looks up an active group by its unique name.
func (a *Adapter) GroupByName(name string) (*t.Group, error) {
	var g t.Group
	err := a.db.Get(&g,
		`SELECT group_id, group_name, description, creator_id, created_at, last_message_at, active
		 FROM groups WHERE group_name = $1 AND active`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapter.NewError(adapter.ErrNotFound, nil)
	}
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return &g, nil
}

// IsMember reports whether userID has an active membership in groupID.
func (a *Adapter) IsMember(groupID t.Uid, userID int64) (bool, error) {
	var n int
	err := a.db.Get(&n, `SELECT COUNT(*) FROM group_members WHERE group_id = $1 AND user_id = $2 AND active`, groupID, userID)
	if err != nil {
		return false, adapter.NewError(adapter.ErrStore, err)
	}
	return n > 0, nil
}

// AppendGroupMessage inserts a message row and bumps the group's
// last_message_at.
func (a *Adapter) AppendGroupMessage(groupID t.Uid, senderID int64, senderUsername, text string, kind t.GroupMessageType) (*t.GroupMessage, error) {
	tx, err := a.db.Beginx()
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	defer tx.Rollback()

	msg := t.GroupMessage{
		MessageID: a.nextID(), GroupID: groupID, SenderID: senderID,
		SenderUsername: senderUsername, Text: text, MessageType: kind,
	}
	row := tx.QueryRowx(
		`INSERT INTO group_messages (message_id, group_id, sender_id, sender_username, message_text, timestamp, message_type)
		 VALUES ($1, $2, $3, $4, $5, NOW(), $6) RETURNING timestamp`,
		msg.MessageID, msg.GroupID, msg.SenderID, msg.SenderUsername, msg.Text, msg.MessageType)
	if err := row.Scan(&msg.Timestamp); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	if _, err := tx.Exec(`UPDATE groups SET last_message_at = NOW() WHERE group_id = $1`, groupID); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return &msg, nil
}

// HistoryGroup returns up to limit group messages, oldest first.
func (a *Adapter) HistoryGroup(groupID t.Uid, limit int) ([]t.GroupMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var msgs []t.GroupMessage
	err := a.db.Select(&msgs,
		`SELECT * FROM (
			SELECT message_id, group_id, sender_id, sender_username, message_text as text, timestamp, message_type
			FROM group_messages WHERE group_id = $1 ORDER BY timestamp DESC LIMIT $2
		 ) recent ORDER BY timestamp ASC`, groupID, limit)
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return msgs, nil
}

// MarkGroupRead idempotently records a single read mark.
func (a *Adapter) MarkGroupRead(messageID t.Uid, userID int64) error {
	_, err := a.db.Exec(
		`INSERT INTO group_message_reads (message_id, user_id, read_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	if err != nil {
		return adapter.NewError(adapter.ErrStore, err)
	}
	return nil
}

// MarkAllGroupRead inserts missing read marks for every message in
// groupID not authored by userID, and reports how many were newly
// created. Idempotent: a repeat call affects zero rows.
func (a *Adapter) MarkAllGroupRead(groupID t.Uid, userID int64) (int, error) {
	res, err := a.db.Exec(
		`INSERT INTO group_message_reads (message_id, user_id, read_at)
		 SELECT m.message_id, $1, NOW() FROM group_messages m
		 WHERE m.group_id = $2 AND m.sender_id != $1
		   AND NOT EXISTS (
		     SELECT 1 FROM group_message_reads r WHERE r.message_id = m.message_id AND r.user_id = $1
		   )`, userID, groupID)
	if err != nil {
		return 0, adapter.NewError(adapter.ErrStore, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- Devices ----------------------------------------------------------------

// RegisterDevice upserts a push-notification target for userID.
func (a *Adapter) RegisterDevice(userID int64, platform, token string) error {
	_, err := a.db.Exec(
		`INSERT INTO device_tokens (user_id, platform, token) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, platform) DO UPDATE SET token = EXCLUDED.token`,
		userID, platform, token)
	if err != nil {
		return adapter.NewError(adapter.ErrStore, err)
	}
	return nil
}

// DevicesForUser returns all registered push targets for userID.
func (a *Adapter) DevicesForUser(userID int64) ([]t.DeviceToken, error) {
	var devices []t.DeviceToken
	err := a.db.Select(&devices, `SELECT user_id, platform, token FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, adapter.NewError(adapter.ErrStore, err)
	}
	return devices, nil
}
