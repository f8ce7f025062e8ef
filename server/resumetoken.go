// ResumeToken issuance and verification. Unlike the teacher's
// self-verifying HMAC-signed token (48 bytes of UID/expiry/signature that
// a server instance can validate without a round-trip), spec.md §3
// requires an opaque 128-bit token whose meaning lives entirely in the
// Coordinator: any replica can resolve it, but none can forge or decode
// it locally.
package main

import (
	"context"

	"github.com/riverline-chat/riverline/server/coordinator"
)

// issueResumeToken creates a new Coordinator-backed session and returns
// its token, to be sent to the client as SESSION_TOKEN:<uuid> immediately
// after a successful login or signup. A resume issues no new token; it
// re-sends the one the client presented.
func issueResumeToken(ctx context.Context, coord coordinator.Coordinator, username string, userID int64) (string, error) {
	return coord.CreateSession(ctx, username, userID)
}

// resumeResult is what the Auth state needs to decide between
// SESSION_RESUMED and AUTH_FAILED.
type resumeResult struct {
	Username string
	UserID   int64
	Pending  []coordinator.PendingMessage
}

// resumeSession looks up token, refreshes its sliding TTL, and atomically
// drains any pending messages queued while the user's owning connection
// was gone (invariant 4, spec.md §3). A miss or expired token returns
// (nil, nil): the caller emits AUTH_FAILED and stays in Auth.
func resumeSession(ctx context.Context, coord coordinator.Coordinator, token string) (*resumeResult, error) {
	rec, err := coord.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if err := coord.RefreshSession(ctx, token); err != nil {
		return nil, err
	}
	pending, err := coord.DrainPendingMessages(ctx, rec.Username)
	if err != nil {
		return nil, err
	}
	return &resumeResult{Username: rec.Username, UserID: rec.UserID, Pending: pending}, nil
}

// revokeResumeToken is called on a clean `bye` logout; it deletes the
// token and any pending-message queue tied to it.
func revokeResumeToken(ctx context.Context, coord coordinator.Coordinator, token string) error {
	return coord.DeleteSession(ctx, token)
}
