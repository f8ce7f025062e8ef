/******************************************************************************
 *
 *  Description :
 *
 *    TCP accept loop owner's per-process router: holds LocalPresence,
 *    runs the subscriber loop for chat_messages/group_messages/group_events,
 *    and exposes sendToUser, the cross-replica routing primitive.
 *
 *****************************************************************************/

package main

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/riverline-chat/riverline/server/coordinator"
)

var (
	metricLocalPresence = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "riverline_fabric_local_presence",
		Help: "Number of sessions currently attached to this replica.",
	})
	metricMessagesRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "riverline_fabric_messages_routed_total",
		Help: "Messages routed by sendToUser, labeled by path.",
	}, []string{"path"})
	metricSubscriberLag = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "riverline_fabric_subscriber_lag_seconds",
		Help:    "Time between a group_messages envelope being stamped and this replica's subscriber loop processing it.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(metricLocalPresence, metricMessagesRouted, metricSubscriberLag)
}

// sessionJoin/sessionLeave are LocalPresence registration requests.
type sessionJoin struct {
	username string
	sess     *Session
}

type sessionLeave struct {
	username string
	sess     *Session
}

// chatEnvelope is the bit-exact payload published to ChannelChatMessages
// (spec.md §6): message is the fully-formatted line ready to write
// verbatim to the recipient's connection.
type chatEnvelope struct {
	TargetUsername string `json:"target_username"`
	Message        string `json:"message"`
	SenderServerID string `json:"sender_server_id"`
}

// Fabric is this replica's message router: it tracks which usernames are
// attached locally (LocalPresence) and implements sendToUser per
// spec.md §4.3.
type Fabric struct {
	// LocalPresence: username -> *Session, sessions on this replica only.
	local sync.Map

	coord     coordinator.Coordinator
	replicaID string

	join  chan *sessionJoin
	unreg chan *sessionLeave

	shutdown chan chan<- bool

	sessionsLive *expvar.Int
}

func newFabric(coord coordinator.Coordinator, replicaID string) *Fabric {
	f := &Fabric{
		coord:        coord,
		replicaID:    replicaID,
		join:         make(chan *sessionJoin),
		unreg:        make(chan *sessionLeave),
		shutdown:     make(chan chan<- bool),
		sessionsLive: new(expvar.Int),
	}
	expvar.Publish("LiveSessions", f.sessionsLive)

	go f.run()
	go f.subscribeChat()
	go f.subscribeGroupMessages()
	go f.subscribeGroupEvents()

	return f
}

func (f *Fabric) run() {
	for {
		select {
		case j := <-f.join:
			f.local.Store(j.username, j.sess)
			f.sessionsLive.Add(1)
			metricLocalPresence.Inc()

		case u := <-f.unreg:
			if cur, ok := f.local.Load(u.username); ok && cur.(*Session) == u.sess {
				f.local.Delete(u.username)
				f.sessionsLive.Add(-1)
				metricLocalPresence.Dec()
			}

		case done := <-f.shutdown:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			f.local.Range(func(key, _ any) bool {
				if err := f.coord.RemoveOnlineUser(ctx, key.(string)); err != nil {
					log.Printf("fabric: shutdown RemoveOnlineUser(%s): %v", key, err)
				}
				f.local.Delete(key)
				return true
			})
			cancel()
			done <- true
			return
		}
	}
}

// sessionFor returns the session attached to username on this replica,
// or nil if the user is not local.
func (f *Fabric) sessionFor(username string) *Session {
	if v, ok := f.local.Load(username); ok {
		return v.(*Session)
	}
	return nil
}

// onClientAuthenticated attaches session to username's LocalPresence and
// registers presence with the Coordinator. If a stale PresenceRecord
// survives from a dead replica, it is purged first so the fresh record
// wins (spec.md §4.3).
func (f *Fabric) onClientAuthenticated(ctx context.Context, username string, userID int64, sess *Session) error {
	if online, err := f.coord.IsUserOnline(ctx, username); err == nil && online {
		if err := f.coord.RemoveOnlineUser(ctx, username); err != nil {
			log.Printf("fabric: purge stale presence for %s: %v", username, err)
		}
	}
	if err := f.coord.AddOnlineUser(ctx, username, f.replicaID, userID); err != nil {
		return err
	}
	f.join <- &sessionJoin{username: username, sess: sess}
	return nil
}

// onClientDisconnected is the inverse of onClientAuthenticated.
func (f *Fabric) onClientDisconnected(ctx context.Context, username string, sess *Session) {
	f.unreg <- &sessionLeave{username: username, sess: sess}
	if err := f.coord.RemoveOnlineUser(ctx, username); err != nil {
		log.Printf("fabric: onClientDisconnected RemoveOnlineUser(%s): %v", username, err)
	}
}

// sendToUser implements spec.md §4.3's routing primitive verbatim:
// offline targets are dropped, local targets get a direct write, and
// everyone else is reached via a chat_messages publish that counts as
// delivered from the sender's perspective.
func (f *Fabric) sendToUser(ctx context.Context, targetUser, line string) bool {
	online, err := f.coord.IsUserOnline(ctx, targetUser)
	if err != nil {
		log.Printf("fabric: sendToUser IsUserOnline(%s): %v", targetUser, err)
		return false
	}
	if !online {
		return false
	}

	if sess := f.sessionFor(targetUser); sess != nil {
		sess.writeLine(line)
		metricMessagesRouted.WithLabelValues("local").Inc()
		return true
	}

	env := chatEnvelope{TargetUsername: targetUser, Message: line, SenderServerID: f.replicaID}
	if err := f.coord.Publish(ctx, coordinator.ChannelChatMessages, env); err != nil {
		log.Printf("fabric: publish chat envelope for %s: %v", targetUser, err)
		return false
	}
	metricMessagesRouted.WithLabelValues("published").Inc()
	return true
}

// subscribeChat relays chat_messages envelopes not originating from this
// replica to the local target, if any.
func (f *Fabric) subscribeChat() {
	f.subscribeLoop(coordinator.ChannelChatMessages, func(payload []byte) {
		var env chatEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			log.Printf("fabric: bad chat envelope: %v", err)
			return
		}
		if env.SenderServerID == f.replicaID {
			return
		}
		if sess := f.sessionFor(env.TargetUsername); sess != nil {
			sess.writeLine(env.Message)
		}
	})
}

// groupMessageEnvelope matches spec.md §6's group_messages shape.
type groupMessageEnvelope struct {
	EventType      string    `json:"event_type"`
	GroupID        string    `json:"group_id"`
	MessageID      string    `json:"message_id"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	MessageText    string    `json:"message_text"`
	Timestamp      time.Time `json:"timestamp"`
	GroupName      string    `json:"group_name"`
	SenderServerID string    `json:"sender_server_id"`
}

// subscribeGroupMessages pushes GROUP_MESSAGE lines to locally-present
// members, re-checking membership against Persistence since LocalPresence
// alone cannot tell who belongs to the group.
func (f *Fabric) subscribeGroupMessages() {
	f.subscribeLoop(coordinator.ChannelGroupMessages, func(payload []byte) {
		var env groupMessageEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			log.Printf("fabric: bad group message envelope: %v", err)
			return
		}
		if env.SenderServerID == f.replicaID {
			return
		}
		if !env.Timestamp.IsZero() {
			metricSubscriberLag.Observe(time.Since(env.Timestamp).Seconds())
		}
		// The sender's own replica already fanned the message out locally
		// (and excluded the sender there); nothing local to exclude here.
		f.fanoutGroupMessage(env, "")
	})
}

// groupEventEnvelope matches spec.md §6's group_events shape. Unknown
// event types are swallowed without erroring per spec.md §4.5.
type groupEventEnvelope struct {
	EventType      string `json:"event_type"`
	GroupID        string `json:"group_id"`
	UserID         int64  `json:"user_id"`
	Actor          string `json:"actor"`
	SenderServerID string `json:"sender_server_id"`
}

func (f *Fabric) subscribeGroupEvents() {
	f.subscribeLoop(coordinator.ChannelGroupEvents, func(payload []byte) {
		var env groupEventEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			log.Printf("fabric: bad group event envelope: %v", err)
			return
		}
		if env.SenderServerID == f.replicaID {
			return
		}
		switch env.EventType {
		case "member_added", "member_removed":
			// No action required today; the group_events channel exists for
			// forward-compatible fanout and replicas must not error on it.
		default:
			log.Printf("fabric: unknown group event type %q, ignoring", env.EventType)
		}
	})
}

// subscribeLoop runs for the lifetime of the process, reconnecting on
// transient subscription failure; it only exits when the process does.
func (f *Fabric) subscribeLoop(channel string, handle func([]byte)) {
	for {
		ctx := context.Background()
		sub, err := f.coord.Subscribe(ctx, channel)
		if err != nil {
			log.Printf("fabric: subscribe to %s failed: %v, retrying", channel, err)
			time.Sleep(2 * time.Second)
			continue
		}
		for payload := range sub.Channel() {
			handle(payload)
		}
		sub.Close()
	}
}
