package tracker

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Update{}, &Refresh{})
}

func (r *Repository) CreateUpdate(ctx context.Context, u *Update) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repository) CreateRefresh(ctx context.Context, ref *Refresh) error {
	return r.db.WithContext(ctx).Create(ref).Error
}

func (r *Repository) SaveRefresh(ctx context.Context, ref *Refresh) error {
	return r.db.WithContext(ctx).Save(ref).Error
}

// LastRefresh returns the most recent refresh attempt regardless of outcome,
// or nil when none exists yet.
func (r *Repository) LastRefresh(ctx context.Context) (*Refresh, error) {
	var ref Refresh
	result := r.db.WithContext(ctx).Order("refresh_date desc").Limit(1).Find(&ref)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &ref, nil
}

// LastCompletedRefresh returns the most recent COMPLETED refresh, the
// authoritative watermark baseline after a failed attempt.
func (r *Repository) LastCompletedRefresh(ctx context.Context) (*Refresh, error) {
	var ref Refresh
	result := r.db.WithContext(ctx).
		Where("status = ?", RefreshCompleted).
		Order("refresh_date desc").
		Limit(1).
		Find(&ref)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &ref, nil
}

func (r *Repository) ListUpdates(ctx context.Context, limit, offset int) ([]Update, error) {
	var updates []Update
	err := r.db.WithContext(ctx).
		Order("create_date desc").
		Order("event_date desc").
		Limit(limit).
		Offset(offset).
		Find(&updates).Error
	return updates, err
}

func (r *Repository) GetUpdate(ctx context.Context, id uint) (*Update, error) {
	var u Update
	result := r.db.WithContext(ctx).First(&u, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &u, nil
}

func (r *Repository) ListRefreshes(ctx context.Context, limit, offset int) ([]Refresh, error) {
	var refreshes []Refresh
	err := r.db.WithContext(ctx).
		Order("refresh_date desc").
		Limit(limit).
		Offset(offset).
		Find(&refreshes).Error
	return refreshes, err
}
