package suspendstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sbnz-social/modguard/moderation/event"
)

type SuspensionRow struct {
	UserID            string `gorm:"primaryKey"`
	PostingBanUntilMs int64  `gorm:"not null;default:0"`
	LoginBanUntilMs   int64  `gorm:"not null;default:0"`
	UpdatedAt         time.Time
}

func (SuspensionRow) TableName() string { return "user_suspensions" }

func banColumn(ban BanType) string {
	if ban == BanLogin {
		return "login_ban_until_ms"
	}
	return "posting_ban_until_ms"
}

func (r SuspensionRow) until(ban BanType) int64 {
	if ban == BanLogin {
		return r.LoginBanUntilMs
	}
	return r.PostingBanUntilMs
}

type GormSuspendStore struct {
	db *gorm.DB
}

var _ SuspendStore = (*GormSuspendStore)(nil)

func NewGormSuspendStore(db *gorm.DB) (*GormSuspendStore, error) {
	if err := db.AutoMigrate(&SuspensionRow{}); err != nil {
		return nil, fmt.Errorf("%w: migrating suspensions: %w", event.ErrStorageUnavailable, err)
	}
	return &GormSuspendStore{db: db}, nil
}

func (s *GormSuspendStore) Suspend(ctx context.Context, userID string, ban BanType, until time.Time) (time.Time, error) {
	if err := checkBan(ban); err != nil {
		return time.Time{}, err
	}
	col := banColumn(ban)
	row := SuspensionRow{UserID: userID}
	if ban == BanLogin {
		row.LoginBanUntilMs = event.ToMillis(until)
	} else {
		row.PostingBanUntilMs = event.ToMillis(until)
	}

	// insert, or keep the larger of the stored and the new expiry, in one statement
	maxExpr := gorm.Expr(fmt.Sprintf("CASE WHEN excluded.%[1]s > %[2]s.%[1]s THEN excluded.%[1]s ELSE %[2]s.%[1]s END", col, row.TableName()))
	var out SuspensionRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{col: maxExpr, "updated_at": time.Now()}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Take(&out).Error
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: suspend %s: %w", event.ErrStorageUnavailable, ban, err)
	}
	return event.FromMillis(out.until(ban)), nil
}

func (s *GormSuspendStore) BanUntil(ctx context.Context, userID string, ban BanType) (time.Time, error) {
	if err := checkBan(ban); err != nil {
		return time.Time{}, err
	}
	var row SuspensionRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	} else if err != nil {
		return time.Time{}, fmt.Errorf("%w: read %s ban: %w", event.ErrStorageUnavailable, ban, err)
	}
	return event.FromMillis(row.until(ban)), nil
}
