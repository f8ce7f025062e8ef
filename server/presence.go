/******************************************************************************
 *
 *  Description :
 *
 *    Maintain this replica's view of a session's online presence in the
 *    Coordinator, and answer presence queries used by contact listing
 *    and broadcast fan-out.
 *
 *****************************************************************************/

package main

import (
	"context"
	"log"
	"time"

	"github.com/riverline-chat/riverline/server/coordinator"
)

// presenceHeartbeat runs for the lifetime of a session, periodically
// refreshing its detail key's TTL so a live connection is never treated
// as stale by another replica (see the Coordinator's
// set-membership-vs-detail-key reconciliation).
func presenceHeartbeat(ctx context.Context, coord coordinator.Coordinator, sess *Session) {
	// Refresh at a third of the TTL, matching the safety margin tinode's
	// own clients use for token refresh.
	interval := coordinator.PresenceTTL / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := coord.RefreshHeartbeat(ctx, sess.username); err != nil {
				log.Printf("presence: RefreshHeartbeat(%s): %v", sess.username, err)
			}
		case <-sess.closed:
			return
		}
	}
}

// isOnline reports whether username is online anywhere in the fleet,
// reconciling against the Coordinator rather than trusting only the
// local Fabric (the invariant the spec calls out explicitly: set
// membership implies a live detail key, and vice versa).
func isOnline(ctx context.Context, coord coordinator.Coordinator, username string) (bool, error) {
	return coord.IsUserOnline(ctx, username)
}

// onlineUsernames lists everyone currently online, used by the Contacts
// and Broadcast flows.
func onlineUsernames(ctx context.Context, coord coordinator.Coordinator) ([]string, error) {
	return coord.OnlineUsernames(ctx)
}
