package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"campuspay/pkg/gateway"
	"campuspay/pkg/logging"
	"campuspay/pkg/store"

	"go.uber.org/zap"
)

// ErrEmptyMessage is returned when sending blank text.
var ErrEmptyMessage = errors.New("chat: empty message")

// MaxMessageLength bounds a single user message.
const MaxMessageLength = 2000

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one line of an account's conversation.
type Message struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Service stores conversations through the gateway.
type Service struct {
	gw     *gateway.Gateway
	now    func() time.Time
	logger *logging.Logger
}

// NewService creates a chat service. A nil clock means time.Now.
func NewService(gw *gateway.Gateway, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		gw:     gw,
		now:    now,
		logger: logging.Global().Named("chat"),
	}
}

// History returns the account's messages, oldest first.
func (s *Service) History(ctx context.Context, mode gateway.Mode, accountID string) ([]Message, gateway.Mode, error) {
	records, mode, err := s.gw.Read(ctx, mode, store.ChatMessages, store.ByAccount(accountID))
	if err != nil {
		return nil, mode, fmt.Errorf("chat: history: %w", err)
	}

	messages := make([]Message, 0, len(records))
	for _, r := range records {
		var m Message
		if err := json.Unmarshal(r.Data, &m); err != nil {
			s.logger.Warn("skipping unreadable message",
				zap.String("account_id", accountID),
				zap.String("id", r.ID),
				zap.Error(err),
			)
			continue
		}
		m.ID = r.ID
		m.AccountID = r.AccountID
		messages = append(messages, m)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, mode, nil
}

// Send stores text from the user followed by the bot's reply and returns
// both. name personalizes greetings.
func (s *Service) Send(ctx context.Context, mode gateway.Mode, accountID, name, text string) ([]Message, gateway.Mode, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, mode, ErrEmptyMessage
	}
	if len(text) > MaxMessageLength {
		return nil, mode, fmt.Errorf("chat: message longer than %d bytes", MaxMessageLength)
	}

	sent := s.now().UTC()
	question, mode, err := s.save(ctx, mode, Message{
		AccountID: accountID,
		Text:      text,
		Sender:    SenderUser,
		Timestamp: sent,
	})
	if err != nil {
		return nil, mode, err
	}

	// The reply must sort after the question even on a coarse clock.
	replied := s.now().UTC()
	if !replied.After(sent) {
		replied = sent.Add(time.Millisecond)
	}
	answer, mode, err := s.save(ctx, mode, Message{
		AccountID: accountID,
		Text:      Reply(text, name),
		Sender:    SenderBot,
		Timestamp: replied,
	})
	if err != nil {
		return []Message{question}, mode, err
	}
	return []Message{question, answer}, mode, nil
}

// Clear deletes the account's conversation. The local cache is always
// cleared; the remote store is cleared when reachable.
func (s *Service) Clear(ctx context.Context, mode gateway.Mode, accountID string) (gateway.Mode, error) {
	mode, err := s.gw.Purge(ctx, mode, store.ChatMessages, store.ByAccount(accountID))
	if err != nil {
		return mode, fmt.Errorf("chat: clear: %w", err)
	}
	return mode, nil
}

func (s *Service) save(ctx context.Context, mode gateway.Mode, m Message) (Message, gateway.Mode, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Message{}, mode, fmt.Errorf("chat: encode: %w", err)
	}
	stored, mode, err := s.gw.Write(ctx, mode, store.ChatMessages, store.Record{
		AccountID: m.AccountID,
		Data:      data,
		CreatedAt: m.Timestamp,
	})
	if err != nil {
		return Message{}, mode, fmt.Errorf("chat: save: %w", err)
	}
	m.ID = stored.ID
	return m, mode, nil
}
