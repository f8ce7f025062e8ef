// Package fcm sends push notifications through Firebase Cloud Messaging.
// Grounded on the teacher's server/push/fcm/payload.go (same
// AndroidConfig/notification-building idiom, same truncate-to-N-runes
// habit) with tinode's drafty rich-text decoding and access-mode
// notification path dropped: this domain only ever pushes one kind of
// thing, a plain-text message a disconnected user missed.
package fcm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	firebase "firebase.google.com/go"
	fcm "firebase.google.com/go/messaging"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/riverline-chat/riverline/server/push"
)

// maxMessageLength bounds how much of a message body is included in the
// notification data payload.
const maxMessageLength = 80

// bufferSize is the capacity of the worker's input channel; Push()
// drops receipts once this fills, matching push.Handler's contract.
const bufferSize = 1024

type configType struct {
	Enabled     bool            `json:"enabled"`
	Credentials json.RawMessage `json:"credentials_json,omitempty"`
}

// Sender is the push.Handler implementation backing FCM.
type Sender struct {
	input  chan *push.Receipt
	stop   chan bool
	client *fcm.Client
}

var handler Sender

func init() {
	push.Register("fcm", &handler)
}

// Init parses jsonconf and, if enabled, constructs a Firebase app using
// application-default credentials (or an explicit service account JSON
// blob) and starts the worker goroutine.
func (s *Sender) Init(jsonconf string) error {
	var config configType
	if err := json.Unmarshal([]byte(jsonconf), &config); err != nil {
		return fmt.Errorf("fcm: invalid config: %w", err)
	}
	if !config.Enabled {
		return nil
	}

	ctx := context.Background()
	var opts []option.ClientOption
	if len(config.Credentials) > 0 {
		cred, err := google.CredentialsFromJSON(ctx, config.Credentials, "https://www.googleapis.com/auth/firebase.messaging")
		if err != nil {
			return fmt.Errorf("fcm: parsing credentials: %w", err)
		}
		opts = append(opts, option.WithTokenSource(cred.TokenSource))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return fmt.Errorf("fcm: init app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return fmt.Errorf("fcm: init messaging client: %w", err)
	}

	s.client = client
	s.input = make(chan *push.Receipt, bufferSize)
	s.stop = make(chan bool, 1)
	go s.worker()
	return nil
}

// IsReady reports whether Init constructed a live messaging client.
func (s *Sender) IsReady() bool {
	return s.client != nil
}

// Push returns the channel the gateway feeds.
func (s *Sender) Push() chan<- *push.Receipt {
	return s.input
}

// Stop terminates the worker goroutine.
func (s *Sender) Stop() {
	s.stop <- true
}

func (s *Sender) worker() {
	for {
		select {
		case rcpt := <-s.input:
			s.send(rcpt)
		case <-s.stop:
			return
		}
	}
}

func truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= maxMessageLength {
		return text
	}
	return string(runes[:maxMessageLength]) + "…"
}

// send delivers one receipt to every registered device, best-effort:
// a failed send is logged and dropped, never retried (matches
// sendToUser's own best-effort delivery contract).
func (s *Sender) send(rcpt *push.Receipt) {
	if rcpt == nil || len(rcpt.Devices) == 0 {
		return
	}
	title := "New message from " + rcpt.Payload.From
	body := truncate(rcpt.Payload.Content)

	ctx := context.Background()
	for _, d := range rcpt.Devices {
		if d.Token == "" {
			continue
		}
		msg := &fcm.Message{
			Token: d.Token,
			Data: map[string]string{
				"source":  rcpt.Payload.Source,
				"from":    rcpt.Payload.From,
				"content": body,
			},
		}
		switch d.Platform {
		case "android":
			msg.Android = &fcm.AndroidConfig{
				Priority: "high",
				Notification: &fcm.AndroidNotification{
					Title:      title,
					Body:       body,
					Tag:        rcpt.Payload.Source,
					Priority:   fcm.PriorityHigh,
					Visibility: fcm.VisibilityPrivate,
				},
			}
		case "ios":
			msg.APNS = &fcm.APNSConfig{
				Payload: &fcm.APNSPayload{
					Aps: &fcm.Aps{
						Sound: "default",
						Alert: &fcm.ApsAlert{
							Title: title,
							Body:  body,
						},
					},
				},
			}
		}
		if _, err := s.client.Send(ctx, msg); err != nil {
			log.Printf("fcm: send to %s (%s): %v", rcpt.Username, d.Platform, err)
		}
	}
}
