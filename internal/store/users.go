package store

import (
	"context"

	"clinic-portal-server/internal/models"

	"gorm.io/gorm"
)

type userStore struct {
	db *gorm.DB
}

// NewUserStore returns a UserStore backed by gorm.
func NewUserStore(db *gorm.DB) UserStore {
	return &userStore{db: db}
}

func (s *userStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *userStore) Create(ctx context.Context, user *models.User) error {
	return translate(s.db.WithContext(ctx).Create(user).Error)
}

func (s *userStore) Update(ctx context.Context, user *models.User) error {
	return translate(s.db.WithContext(ctx).Save(user).Error)
}

func (s *userStore) List(ctx context.Context, filter UserFilter) ([]models.User, error) {
	query := s.db.WithContext(ctx).Order("last_name asc, first_name asc")
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if filter.VerifiedOnly {
		query = query.Where("is_verified = ?", true)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	return users, nil
}
