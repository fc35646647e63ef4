// Package push implements a Firebase Cloud Messaging sink for high-severity
// whale alerts. Adapted from a Telegram/FCM whale-radar backend; simplified
// to forward exactly the Envelope the Hub already builds instead of
// re-deriving a notification body per alert level.
package push

import (
	"context"
	"fmt"
	"log"
	"os"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"

	"flowradar/internal/broadcast"
)

const queueCapacity = 500

// Sink is nil-safe: when no service account file is present, NewSink
// returns a Sink whose Send always succeeds as a no-op, so callers don't
// need to special-case an absent Firebase project.
type Sink struct {
	client *messaging.Client
	topic  string
	queue  chan *messaging.Message
}

// NewSink loads credFile (the Firebase service account key) and starts the
// send worker. If the file is absent or Firebase init fails, it logs and
// returns a disabled Sink rather than an error, matching the optional-push
// behavior of the original backend.
func NewSink(credFile, topic string) *Sink {
	if _, err := os.Stat(credFile); os.IsNotExist(err) {
		log.Printf("[push] %s not found, push notifications disabled", credFile)
		return &Sink{}
	}

	app, err := firebase.NewApp(context.Background(), nil, option.WithCredentialsFile(credFile))
	if err != nil {
		log.Printf("[push] init firebase app: %v", err)
		return &Sink{}
	}
	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("[push] get messaging client: %v", err)
		return &Sink{}
	}

	s := &Sink{client: client, topic: topic, queue: make(chan *messaging.Message, queueCapacity)}
	go s.worker()
	log.Printf("[push] FCM sink initialized, topic=%s", topic)
	return s
}

func (s *Sink) enabled() bool { return s.client != nil }

// Send implements broadcast.Sink. It only ever carries alert envelopes,
// since the Hub only registers push sinks via RegisterAlertSink.
func (s *Sink) Send(env broadcast.Envelope) bool {
	if !s.enabled() || env.Alert == nil {
		return true
	}

	msg := &messaging.Message{
		Topic: s.topic,
		Notification: &messaging.Notification{
			Title: "Whale Alert",
			Body:  fmt.Sprintf("%s %s %.0f @ %s", env.Alert.Kind, env.Alert.Side, env.Alert.ValueQuote, env.Alert.Instrument.Key()),
		},
		Data: map[string]string{
			"kind":       string(env.Alert.Kind),
			"instrument": env.Alert.Instrument.Key(),
			"value":      fmt.Sprintf("%.0f", env.Alert.ValueQuote),
			"side":       string(env.Alert.Side),
		},
	}

	select {
	case s.queue <- msg:
		return true
	default:
		log.Println("[push] queue full, dropping alert")
		return false
	}
}

func (s *Sink) worker() {
	for msg := range s.queue {
		id, err := s.client.Send(context.Background(), msg)
		if err != nil {
			log.Printf("[push] send error: %v", err)
			continue
		}
		log.Printf("[push] sent %s", id)
	}
}
