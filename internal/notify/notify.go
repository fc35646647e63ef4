// Package notify implements a one-way Telegram sink for high-severity whale
// alerts. Adapted from a whale-radar backend's interactive approve/discard
// trading bot; the approval workflow and its inline keyboard are dropped
// since there is no order to approve here, only an alert to forward.
package notify

import (
	"fmt"
	"log"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flowradar/internal/broadcast"
)

const chatIDFile = "chat_id.txt"

// Sink is nil-safe in the same sense as internal/push.Sink: when
// TELEGRAM_BOT_TOKEN is unset, Send always succeeds as a no-op.
type Sink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewSink reads TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID from the
// environment, falling back to a persisted chat_id.txt (written the first
// time someone messages the bot) when TELEGRAM_CHAT_ID is unset.
func NewSink() *Sink {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("[notify] TELEGRAM_BOT_TOKEN not set, telegram sink disabled")
		return &Sink{}
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Printf("[notify] init telegram bot: %v", err)
		return &Sink{}
	}
	log.Printf("[notify] authorized on telegram account %s", bot.Self.UserName)

	var chatID int64
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		chatID, _ = strconv.ParseInt(raw, 10, 64)
	}
	s := &Sink{bot: bot, chatID: chatID}
	if chatID == 0 {
		s.chatID = s.loadChatID()
	}
	return s
}

func (s *Sink) enabled() bool { return s.bot != nil }

func (s *Sink) loadChatID() int64 {
	data, err := os.ReadFile(chatIDFile)
	if err != nil {
		return 0
	}
	id, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// ListenForChatID polls Telegram updates just long enough to capture an
// operator's chat ID from their first message, persisting it to disk. It
// returns at once when the sink is disabled or a chat ID is already known,
// and otherwise blocks until the first message arrives or done is closed;
// run it in its own goroutine.
func (s *Sink) ListenForChatID(done <-chan struct{}) {
	if !s.enabled() || s.chatID != 0 {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.bot.GetUpdatesChan(u)

	for {
		select {
		case <-done:
			return
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			s.chatID = update.Message.Chat.ID
			if err := os.WriteFile(chatIDFile, []byte(fmt.Sprintf("%d", s.chatID)), 0644); err != nil {
				log.Printf("[notify] failed to persist chat id: %v", err)
			}
			log.Printf("[notify] captured telegram chat id %d", s.chatID)
			return
		}
	}
}

// Send implements broadcast.Sink, forwarding only alert envelopes.
func (s *Sink) Send(env broadcast.Envelope) bool {
	if !s.enabled() || s.chatID == 0 || env.Alert == nil {
		return true
	}

	text := fmt.Sprintf("*%s* %s %s\n%.0f @ %s",
		env.Alert.Kind, env.Alert.Side, env.Alert.Instrument.Key(), env.Alert.ValueQuote, env.Alert.DetailsText)

	go func() {
		msg := tgbotapi.NewMessage(s.chatID, text)
		msg.ParseMode = "Markdown"
		if _, err := s.bot.Send(msg); err != nil {
			log.Printf("[notify] send failed: %v", err)
		}
	}()
	return true
}
