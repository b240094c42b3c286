package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/store"
)

// MessageStore keeps messages in insertion order.
type MessageStore struct {
	mu       sync.RWMutex
	messages []models.Message
}

var _ store.MessageStore = (*MessageStore)(nil)

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

func between(m models.Message, a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

func (s *MessageStore) Create(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *MessageStore) FindByID(_ context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *MessageStore) List(_ context.Context, filter store.MessageFilter) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, 0)
	for _, m := range s.messages {
		if filter.WithUserID != "" {
			if !between(m, filter.UserID, filter.WithUserID) {
				continue
			}
		} else if m.SenderID != filter.UserID && m.ReceiverID != filter.UserID {
			continue
		}
		if !filter.Since.IsZero() && !m.CreatedAt.After(filter.Since) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if filter.NewestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MessageStore) MarkRead(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		m := &s.messages[i]
		if m.ID == id && m.Status == models.MessageStatusSent {
			m.Status = models.MessageStatusRead
			readAt := at
			m.ReadAt = &readAt
		}
	}
	return nil
}

func (s *MessageStore) MarkAllRead(_ context.Context, receiverID, senderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		m := &s.messages[i]
		if m.ReceiverID != receiverID || m.Status != models.MessageStatusSent {
			continue
		}
		if senderID != "" && m.SenderID != senderID {
			continue
		}
		m.Status = models.MessageStatusRead
		readAt := at
		m.ReadAt = &readAt
	}
	return nil
}

func (s *MessageStore) Partners(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{}
	var out []string
	for _, m := range s.messages {
		var partner string
		switch userID {
		case m.SenderID:
			partner = m.ReceiverID
		case m.ReceiverID:
			partner = m.SenderID
		default:
			continue
		}
		if !seen[partner] {
			seen[partner] = true
			out = append(out, partner)
		}
	}
	return out, nil
}

func (s *MessageStore) Latest(_ context.Context, userID, partnerID string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		if between(s.messages[i], userID, partnerID) {
			m := s.messages[i]
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *MessageStore) CountUnread(_ context.Context, receiverID, senderID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.messages {
		if m.ReceiverID == receiverID && m.SenderID == senderID && m.Status == models.MessageStatusSent {
			n++
		}
	}
	return n, nil
}
