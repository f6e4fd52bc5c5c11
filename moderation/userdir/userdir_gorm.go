package userdir

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sbnz-social/modguard/moderation/event"
)

type UserRow struct {
	ID        string `gorm:"primaryKey"`
	FirstName string
	LastName  string
	Email     string `gorm:"index"`
	CreatedAt time.Time
}

func (UserRow) TableName() string { return "users" }

// Directory backed by the shared `users` table.
type GormDirectory struct {
	db *gorm.DB
}

var _ Registry = (*GormDirectory)(nil)

func NewGormDirectory(db *gorm.DB) (*GormDirectory, error) {
	if err := db.AutoMigrate(&UserRow{}); err != nil {
		return nil, fmt.Errorf("%w: migrating users: %w", event.ErrStorageUnavailable, err)
	}
	return &GormDirectory{db: db}, nil
}

func (d *GormDirectory) AddUser(ctx context.Context, u User) error {
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	row := UserRow{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "email"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: adding user: %w", event.ErrStorageUnavailable, err)
	}
	return nil
}

func (d *GormDirectory) ListAllUsers(ctx context.Context) ([]string, error) {
	var ids []string
	if err := d.db.WithContext(ctx).Model(&UserRow{}).Order("created_at ASC, id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("%w: listing users: %w", event.ErrStorageUnavailable, err)
	}
	return ids, nil
}

func (d *GormDirectory) LookupUser(ctx context.Context, userID string) (*User, error) {
	var row UserRow
	err := d.db.WithContext(ctx).Where("id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", event.ErrUnknownUser, userID)
	} else if err != nil {
		return nil, fmt.Errorf("%w: looking up user: %w", event.ErrStorageUnavailable, err)
	}
	return &User{ID: row.ID, FirstName: row.FirstName, LastName: row.LastName, Email: row.Email}, nil
}
