// Package redisstore implements server/coordinator.Coordinator on top of
// Redis, grounded directly in the key layout and TTL choices of the
// original Python Redis manager this system was distilled from: a
// per-user detail key with a set for membership, session tokens with a
// reverse username mapping, and capped per-user pending-message lists.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/riverline-chat/riverline/server/coordinator"
)

const (
	keyOnlineUsers  = "online_users"
	keyOnlineUserFx = "online_user:%s"
	keySessionFx    = "session:%s"
	keyUserSessFx   = "user_session:%s"
	keyPendingFx    = "pending_messages:%s"
)

// Store is a Coordinator backed by a single Redis client.
type Store struct {
	rdb *redis.Client
}

// New dials Redis at addr (host:port) using password (may be empty).
func New(addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		MaxRetries:   1,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// NewFromClient wraps an already-constructed client, used by tests to
// inject a miniredis-backed client.
func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Close() error { return s.rdb.Close() }

var _ coordinator.Coordinator = (*Store)(nil)

// --- Presence --------------------------------------------------------------

func (s *Store) AddOnlineUser(ctx context.Context, username, serverID string, userID int64) error {
	info := coordinator.PresenceInfo{ServerID: serverID, UserID: userID, LoginTime: time.Now().UTC()}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(keyOnlineUserFx, username)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, data, coordinator.PresenceTTL)
	pipe.SAdd(ctx, keyOnlineUsers, username)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) RemoveOnlineUser(ctx context.Context, username string) error {
	key := fmt.Sprintf(keyOnlineUserFx, username)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, keyOnlineUsers, username)
	_, err := pipe.Exec(ctx)
	return err
}

// IsUserOnline checks set membership and reconciles against the detail
// key: if the set says present but the detail key has expired, the stale
// membership is cleaned up and false is returned (presence invariant).
func (s *Store) IsUserOnline(ctx context.Context, username string) (bool, error) {
	inSet, err := s.rdb.SIsMember(ctx, keyOnlineUsers, username).Result()
	if err != nil {
		return false, err
	}
	if !inSet {
		return false, nil
	}
	key := fmt.Sprintf(keyOnlineUserFx, username)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 0 {
		s.rdb.SRem(ctx, keyOnlineUsers, username)
		return false, nil
	}
	return true, nil
}

// OnlineUsernames returns the reconciled membership of online_users,
// pruning any entries whose detail key has already expired.
func (s *Store) OnlineUsernames(ctx context.Context) ([]string, error) {
	usernames, err := s.rdb.SMembers(ctx, keyOnlineUsers).Result()
	if err != nil {
		return nil, err
	}
	valid := make([]string, 0, len(usernames))
	for _, u := range usernames {
		key := fmt.Sprintf(keyOnlineUserFx, u)
		n, err := s.rdb.Exists(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			valid = append(valid, u)
		} else {
			s.rdb.SRem(ctx, keyOnlineUsers, u)
		}
	}
	return valid, nil
}

func (s *Store) UserInfo(ctx context.Context, username string) (*coordinator.PresenceInfo, error) {
	key := fmt.Sprintf(keyOnlineUserFx, username)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info coordinator.PresenceInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Store) UserServerID(ctx context.Context, username string) (string, error) {
	info, err := s.UserInfo(ctx, username)
	if err != nil || info == nil {
		return "", err
	}
	return info.ServerID, nil
}

func (s *Store) RefreshHeartbeat(ctx context.Context, username string) error {
	key := fmt.Sprintf(keyOnlineUserFx, username)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return s.rdb.Expire(ctx, key, coordinator.PresenceTTL).Err()
}

func (s *Store) OnlineUserCount(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, keyOnlineUsers).Result()
}

// UsersPerPod tallies online users by their serving replica. The
// Scaling Controller does not call it; it sizes the deployment from the
// cardinality of online_users alone.
func (s *Store) UsersPerPod(ctx context.Context) (map[string]int64, error) {
	usernames, err := s.rdb.SMembers(ctx, keyOnlineUsers).Result()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, u := range usernames {
		info, err := s.UserInfo(ctx, u)
		if err != nil {
			return nil, err
		}
		if info == nil {
			continue
		}
		server := info.ServerID
		if server == "" {
			server = "unknown"
		}
		counts[server]++
	}
	return counts, nil
}

// --- Pub/sub fanout ----------------------------------------------------------

func (s *Store) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, channel, data).Err()
}

type subscription struct {
	ps *redis.PubSub
	ch chan []byte
}

func (s *Store) Subscribe(ctx context.Context, channel string) (coordinator.Subscription, error) {
	ps := s.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}
	sub := &subscription{ps: ps, ch: make(chan []byte, 64)}
	go sub.pump()
	return sub, nil
}

func (sub *subscription) pump() {
	defer close(sub.ch)
	for msg := range sub.ps.Channel() {
		sub.ch <- []byte(msg.Payload)
	}
}

func (sub *subscription) Channel() <-chan []byte { return sub.ch }
func (sub *subscription) Close() error           { return sub.ps.Close() }

// --- Resume tokens -----------------------------------------------------------

// CreateSession allocates an opaque v4 UUID token and stores both the
// forward (token -> record) and reverse (username -> token) mappings with
// a 3600s sliding TTL.
func (s *Store) CreateSession(ctx context.Context, username string, userID int64) (string, error) {
	token := uuid.NewString()
	now := time.Now().UTC()
	rec := coordinator.SessionRecord{Username: username, UserID: userID, CreatedAt: now, LastActive: now}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(keySessionFx, token), data, coordinator.SessionTTL)
	pipe.Set(ctx, fmt.Sprintf(keyUserSessFx, username), token, coordinator.SessionTTL)
	_, err = pipe.Exec(ctx)
	return token, err
}

func (s *Store) GetSession(ctx context.Context, token string) (*coordinator.SessionRecord, error) {
	data, err := s.rdb.Get(ctx, fmt.Sprintf(keySessionFx, token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec coordinator.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SessionByUsername(ctx context.Context, username string) (string, error) {
	token, err := s.rdb.Get(ctx, fmt.Sprintf(keyUserSessFx, username)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return token, err
}

// RefreshSession extends both the session record and reverse mapping's
// TTL and updates LastActive, the "heartbeat" behavior of
// update_session_heartbeat.
func (s *Store) RefreshSession(ctx context.Context, token string) error {
	key := fmt.Sprintf(keySessionFx, token)
	rec, err := s.GetSession(ctx, token)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.LastActive = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, data, coordinator.SessionTTL)
	pipe.Expire(ctx, fmt.Sprintf(keyUserSessFx, rec.Username), coordinator.SessionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteSession removes the session, its reverse mapping, and any queued
// pending messages for the session's user.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	rec, err := s.GetSession(ctx, token)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, fmt.Sprintf(keySessionFx, token))
	pipe.Del(ctx, fmt.Sprintf(keyUserSessFx, rec.Username))
	pipe.Del(ctx, fmt.Sprintf(keyPendingFx, rec.Username))
	_, err = pipe.Exec(ctx)
	return err
}

// --- Pending message queue ----------------------------------------------------

// SavePendingMessage appends to a per-user list, trimming to the last
// MaxPendingMessages entries and refreshing the list's TTL to match the
// session TTL.
func (s *Store) SavePendingMessage(ctx context.Context, username string, msg coordinator.PendingMessage) error {
	key := fmt.Sprintf(keyPendingFx, username)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, coordinator.SessionTTL)
	pipe.LTrim(ctx, key, -coordinator.MaxPendingMessages, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// DrainPendingMessages returns and deletes all pending messages for
// username in one MULTI/EXEC transaction, so a message appended
// concurrently is either returned or left queued, never lost.
func (s *Store) DrainPendingMessages(ctx context.Context, username string) ([]coordinator.PendingMessage, error) {
	key := fmt.Sprintf(keyPendingFx, username)
	pipe := s.rdb.TxPipeline()
	lrange := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	raw := lrange.Val()
	msgs := make([]coordinator.PendingMessage, 0, len(raw))
	for _, item := range raw {
		var m coordinator.PendingMessage
		if err := json.Unmarshal([]byte(item), &m); err == nil {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}
