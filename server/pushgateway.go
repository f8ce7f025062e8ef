/******************************************************************************
 *
 *  Description :
 *
 *    Bridges the Connection Session layer to the Push Notification
 *    Gateway: a disconnected user with at least one registered
 *    DeviceToken gets a best-effort FCM push alongside the history row
 *    that is already their durable record of the message.
 *
 *****************************************************************************/

package main

import (
	"github.com/riverline-chat/riverline/server/push"
	"github.com/riverline-chat/riverline/server/store"
)

// notifyMissedMessage fires when sendToUser reports the target is not
// online. It never blocks the session: push.Push drops the receipt if
// the handler's worker is backed up, and a lookup failure is swallowed.
func notifyMissedMessage(userID int64, username, source, from, content string) {
	devices, err := store.Adapter().DevicesForUser(userID)
	if err != nil {
		metricPushReceipts.WithLabelValues("lookup_error").Inc()
		return
	}
	if len(devices) == 0 {
		metricPushReceipts.WithLabelValues("no_devices").Inc()
		return
	}
	tokens := make([]push.DeviceToken, len(devices))
	for i, d := range devices {
		tokens[i] = push.DeviceToken{Platform: d.Platform, Token: d.Token}
	}
	push.Push(&push.Receipt{
		UserID:   userID,
		Username: username,
		Devices:  tokens,
		Payload:  push.Payload{Source: source, From: from, Content: content},
	})
	metricPushReceipts.WithLabelValues("dispatched").Inc()
}
