package store

import (
	"context"
	"time"

	"clinic-portal-server/internal/models"

	"gorm.io/gorm"
)

type messageStore struct {
	db *gorm.DB
}

// NewMessageStore returns a MessageStore backed by gorm.
func NewMessageStore(db *gorm.DB) MessageStore {
	return &messageStore{db: db}
}

func (s *messageStore) Create(ctx context.Context, msg *models.Message) error {
	return translate(s.db.WithContext(ctx).Create(msg).Error)
}

func (s *messageStore) FindByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

func (s *messageStore) List(ctx context.Context, filter MessageFilter) ([]models.Message, error) {
	query := s.db.WithContext(ctx)
	if filter.WithUserID != "" {
		query = query.Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			filter.UserID, filter.WithUserID, filter.WithUserID, filter.UserID)
	} else {
		query = query.Where("sender_id = ? OR receiver_id = ?", filter.UserID, filter.UserID)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at > ?", filter.Since)
	}
	if filter.NewestFirst {
		query = query.Order("created_at desc")
	} else {
		query = query.Order("created_at asc")
	}

	var msgs []models.Message
	if err := query.Find(&msgs).Error; err != nil {
		return nil, translate(err)
	}
	return msgs, nil
}

func (s *messageStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND status = ?", id, models.MessageStatusSent).
		Updates(map[string]interface{}{"status": models.MessageStatusRead, "read_at": at})
	return translate(result.Error)
}

func (s *messageStore) MarkAllRead(ctx context.Context, receiverID, senderID string, at time.Time) error {
	query := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("receiver_id = ? AND status = ?", receiverID, models.MessageStatusSent)
	if senderID != "" {
		query = query.Where("sender_id = ?", senderID)
	}
	return translate(query.Updates(map[string]interface{}{"status": models.MessageStatusRead, "read_at": at}).Error)
}

func (s *messageStore) Partners(ctx context.Context, userID string) ([]string, error) {
	var partners []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT partner_id FROM (
			SELECT receiver_id AS partner_id FROM messages WHERE sender_id = ?
			UNION
			SELECT sender_id AS partner_id FROM messages WHERE receiver_id = ?
		) AS partners`, userID, userID).Scan(&partners).Error
	if err != nil {
		return nil, translate(err)
	}
	return partners, nil
}

func (s *messageStore) Latest(ctx context.Context, userID, partnerID string) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, partnerID, partnerID, userID).
		Order("created_at desc").
		First(&msg).Error
	if err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

func (s *messageStore) CountUnread(ctx context.Context, receiverID, senderID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND status = ?", senderID, receiverID, models.MessageStatusSent).
		Count(&count).Error
	return count, translate(err)
}
