package eventstore

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sbnz-social/modguard/moderation/event"
)

type ReportEventRow struct {
	ID         uint64 `gorm:"primaryKey"`
	AuthorID   string `gorm:"not null;index:idx_report_author_ts,priority:1"`
	ReporterID string `gorm:"not null"`
	PostID     string `gorm:"not null"`
	TsMs       int64  `gorm:"not null;index:idx_report_author_ts,priority:2"`
}

func (ReportEventRow) TableName() string { return "moderation_report_events" }

type BlockEventRow struct {
	ID        uint64 `gorm:"primaryKey"`
	BlockerID string `gorm:"not null"`
	TargetID  string `gorm:"not null;index:idx_block_target_ts,priority:1"`
	TsMs      int64  `gorm:"not null;index:idx_block_target_ts,priority:2"`
}

func (BlockEventRow) TableName() string { return "moderation_block_events" }

// pending (undrained) flag
type FlagRow struct {
	ID        uint64 `gorm:"primaryKey"`
	UserID    string `gorm:"not null"`
	Reason    string `gorm:"not null"`
	UntilMs   int64  `gorm:"not null"`
	CreatedMs int64  `gorm:"not null"`
}

func (FlagRow) TableName() string { return "moderation_flags" }

type FlagHistoryRow struct {
	ID        uint64 `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	Reason    string `gorm:"not null"`
	UntilMs   int64  `gorm:"not null"`
	CreatedMs int64  `gorm:"not null;index"`
}

func (FlagHistoryRow) TableName() string { return "moderation_flag_history" }

func (r FlagRow) toFlag() event.Flag {
	return event.Flag{
		UserID:         r.UserID,
		Reason:         r.Reason,
		SuspendedUntil: event.FromMillis(r.UntilMs),
		CreatedAt:      event.FromMillis(r.CreatedMs),
	}
}

func (r FlagHistoryRow) toFlag() event.Flag {
	return FlagRow{UserID: r.UserID, Reason: r.Reason, UntilMs: r.UntilMs, CreatedMs: r.CreatedMs}.toFlag()
}

type GormEventStore struct {
	db *gorm.DB
}

var _ EventStore = (*GormEventStore)(nil)

func NewGormEventStore(db *gorm.DB) (*GormEventStore, error) {
	if err := db.AutoMigrate(&ReportEventRow{}, &BlockEventRow{}, &FlagRow{}, &FlagHistoryRow{}); err != nil {
		return nil, storageErr("migrating event tables", err)
	}
	return &GormEventStore{db: db}, nil
}

func (s *GormEventStore) RecordReport(ctx context.Context, authorID, reporterID, postID string, at time.Time) error {
	row := ReportEventRow{
		AuthorID:   authorID,
		ReporterID: reporterID,
		PostID:     postID,
		TsMs:       at.UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return storageErr("record report", err)
	}
	return nil
}

func (s *GormEventStore) RecordBlock(ctx context.Context, blockerID, targetID string, at time.Time) error {
	row := BlockEventRow{
		BlockerID: blockerID,
		TargetID:  targetID,
		TsMs:      at.UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return storageErr("record block", err)
	}
	return nil
}

func (s *GormEventStore) ReportsAgainst(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ReportEventRow{}).
		Where("author_id = ? AND ts_ms >= ?", userID, since.UnixMilli()).
		Count(&n).Error
	if err != nil {
		return 0, storageErr("count reports", err)
	}
	return int(n), nil
}

func (s *GormEventStore) BlocksAgainst(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&BlockEventRow{}).
		Where("target_id = ? AND ts_ms >= ?", userID, since.UnixMilli()).
		Count(&n).Error
	if err != nil {
		return 0, storageErr("count blocks", err)
	}
	return int(n), nil
}

func (s *GormEventStore) ReportTimesAgainst(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	var ms []int64
	err := s.db.WithContext(ctx).Model(&ReportEventRow{}).
		Where("author_id = ? AND ts_ms >= ?", userID, since.UnixMilli()).
		Pluck("ts_ms", &ms).Error
	if err != nil {
		return nil, storageErr("list reports", err)
	}
	return millisToTimes(ms), nil
}

func (s *GormEventStore) BlockTimesAgainst(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	var ms []int64
	err := s.db.WithContext(ctx).Model(&BlockEventRow{}).
		Where("target_id = ? AND ts_ms >= ?", userID, since.UnixMilli()).
		Pluck("ts_ms", &ms).Error
	if err != nil {
		return nil, storageErr("list blocks", err)
	}
	return millisToTimes(ms), nil
}

func millisToTimes(ms []int64) []time.Time {
	out := make([]time.Time, 0, len(ms))
	for _, m := range ms {
		out = append(out, event.FromMillis(m))
	}
	return out
}

func (s *GormEventStore) AddFlag(ctx context.Context, userID, reason string, until time.Time) error {
	now := time.Now().UnixMilli()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&FlagRow{UserID: userID, Reason: reason, UntilMs: event.ToMillis(until), CreatedMs: now}).Error; err != nil {
			return err
		}
		return tx.Create(&FlagHistoryRow{UserID: userID, Reason: reason, UntilMs: event.ToMillis(until), CreatedMs: now}).Error
	})
	if err != nil {
		return storageErr("add flag", err)
	}
	return nil
}

func (s *GormEventStore) DrainFlags(ctx context.Context) ([]event.Flag, error) {
	// a single DELETE ... RETURNING statement: every row is removed (and so returned) by exactly one drain
	var rows []FlagRow
	err := s.db.WithContext(ctx).Clauses(clause.Returning{}).Where("1 = 1").Delete(&rows).Error
	if err != nil {
		return nil, storageErr("drain flags", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	out := make([]event.Flag, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toFlag())
	}
	return out, nil
}

func (s *GormEventStore) RecentFlags(ctx context.Context, since time.Time, limit int) ([]event.Flag, error) {
	var rows []FlagHistoryRow
	q := s.db.WithContext(ctx).Where("created_ms >= ?", since.UnixMilli()).Order("created_ms DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, storageErr("recent flags", err)
	}
	out := make([]event.Flag, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toFlag())
	}
	return out, nil
}

func (s *GormEventStore) ClearEvents(ctx context.Context) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&ReportEventRow{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&BlockEventRow{}).Error
	})
	if err != nil {
		return storageErr("clear events", err)
	}
	return nil
}
