/******************************************************************************
 *
 *  Description :
 *
 *    Group lifecycle, membership, posting and read-mark maintenance.
 *    Wraps the Persistence Gateway's group operations with the
 *    publish-side contract spec.md §4.5 requires: every mutation that
 *    other members must learn about is mirrored onto the Coordinator's
 *    group_events or group_messages channel.
 *
 *****************************************************************************/

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/riverline-chat/riverline/server/coordinator"
	"github.com/riverline-chat/riverline/server/store"
	t "github.com/riverline-chat/riverline/server/store/types"
)

// GroupChatService is the Group Chat Service: a thin orchestration layer
// over the Adapter and Coordinator, owned by one Fabric per replica.
type GroupChatService struct {
	coord     coordinator.Coordinator
	fabric    *Fabric
	replicaID string
}

func newGroupChatService(coord coordinator.Coordinator, fabric *Fabric, replicaID string) *GroupChatService {
	return &GroupChatService{coord: coord, fabric: fabric, replicaID: replicaID}
}

// CreateGroup creates the group transactionally in Persistence. No
// group_events publish is needed here: the creator is the only member
// and is already locally present.
func (g *GroupChatService) CreateGroup(name string, creatorID int64, creatorUsername, description string) (*t.Group, error) {
	return store.Adapter().CreateGroup(name, creatorID, creatorUsername, description)
}

// AddMember inserts the membership, then publishes a group_events
// envelope so other replicas can react (even though no replica needs to
// act on it today, per spec.md §4.5).
func (g *GroupChatService) AddMember(ctx context.Context, groupID t.Uid, userID int64, actorUsername string) error {
	if err := store.Adapter().AddMember(groupID, userID, actorUsername); err != nil {
		return err
	}
	g.publishGroupEvent(ctx, "member_added", groupID, userID, actorUsername)
	return nil
}

// RemoveMember soft-deletes the membership, deactivating the group if it
// was the last active member, then publishes a group_events envelope.
func (g *GroupChatService) RemoveMember(ctx context.Context, groupID t.Uid, userID int64, actorUsername string) error {
	if err := store.Adapter().RemoveMember(groupID, userID, actorUsername); err != nil {
		return err
	}
	g.publishGroupEvent(ctx, "member_removed", groupID, userID, actorUsername)
	return nil
}

func (g *GroupChatService) publishGroupEvent(ctx context.Context, eventType string, groupID t.Uid, userID int64, actor string) {
	env := groupEventEnvelope{
		EventType:      eventType,
		GroupID:        groupID.String(),
		UserID:         userID,
		Actor:          actor,
		SenderServerID: g.replicaID,
	}
	if err := g.coord.Publish(ctx, coordinator.ChannelGroupEvents, env); err != nil {
		log.Printf("groupchat: publish group event: %v", err)
	}
}

// SendGroupMessage writes the message, bumps lastMessageAt, and
// publishes to group_messages so members on other replicas receive it.
// Local delivery to members already attached to this replica is done
// here directly, matching sendToUser's "local hit" fast path.
func (g *GroupChatService) SendGroupMessage(ctx context.Context, groupID t.Uid, senderID int64, senderUsername, groupName, text string) (*t.GroupMessage, error) {
	msg, err := store.Adapter().AppendGroupMessage(groupID, senderID, senderUsername, text, t.GroupMsgUser)
	if err != nil {
		return nil, err
	}

	env := groupMessageEnvelope{
		EventType:      "group_message",
		GroupID:        groupID.String(),
		MessageID:      msg.MessageID.String(),
		SenderID:       senderID,
		SenderUsername: senderUsername,
		MessageText:    text,
		Timestamp:      msg.Timestamp,
		GroupName:      groupName,
		SenderServerID: g.replicaID,
	}
	g.fabric.fanoutGroupMessage(env, senderUsername)
	if err := g.coord.Publish(ctx, coordinator.ChannelGroupMessages, env); err != nil {
		log.Printf("groupchat: publish group message: %v", err)
	}
	return msg, nil
}

// MarkAllGroupRead is idempotent; called on every entry to GroupChat per
// spec.md §4.5.
func (g *GroupChatService) MarkAllGroupRead(groupID t.Uid, userID int64) (int, error) {
	return store.Adapter().MarkAllGroupRead(groupID, userID)
}

// fanoutGroupMessage pushes a GROUP_MESSAGE line to every member of the
// envelope's group that is both locally present and still an active
// member per Persistence — stale replica caches are never authoritative
// (spec.md §4.5).
func (f *Fabric) fanoutGroupMessage(env groupMessageEnvelope, excludeUsername string) {
	var groupID t.Uid
	if err := groupID.UnmarshalText([]byte(env.GroupID)); err != nil {
		log.Printf("fabric: fanoutGroupMessage: bad group id %q: %v", env.GroupID, err)
		return
	}
	members, err := store.Adapter().GroupMembers(groupID)
	if err != nil {
		log.Printf("fabric: fanoutGroupMessage: GroupMembers(%s): %v", env.GroupID, err)
		return
	}
	line := fmt.Sprintf("GROUP_MESSAGE:%s:%s:%s", env.GroupName, env.SenderUsername, env.MessageText)
	for _, m := range members {
		if m.Username == excludeUsername {
			continue
		}
		if sess := f.sessionFor(m.Username); sess != nil {
			sess.writeLine(line)
		}
	}
}
