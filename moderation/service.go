package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sbnz-social/modguard/moderation/engine"
	"github.com/sbnz-social/modguard/moderation/event"
	"github.com/sbnz-social/modguard/moderation/eventstore"
	"github.com/sbnz-social/modguard/moderation/suspendstore"
	"github.com/sbnz-social/modguard/moderation/trigger"
	"github.com/sbnz-social/modguard/moderation/userdir"
)

// Returned (wrapped) for malformed report or block requests.
var ErrInvalidRequest = errors.New("invalid moderation request")

type Service struct {
	Logger      *slog.Logger
	Users       userdir.Directory
	Events      eventstore.EventStore
	Suspensions suspendstore.SuspendStore
	Engine      *engine.Engine
	Trigger     *trigger.Debouncer
	Now         func() time.Time
}

type ServiceConfig struct {
	Logger      *slog.Logger
	Users       userdir.Directory
	Events      eventstore.EventStore
	Suspensions suspendstore.SuspendStore
	Notifier    engine.Notifier
	// Min time between detection passes scheduled by user actions. Defaults to trigger.DefaultInterval.
	TriggerInterval time.Duration
	// Parallel per-user reads during a pass. Defaults to engine.DefaultConcurrency.
	Concurrency int
	Now         func() time.Time
}

func NewService(config ServiceConfig) (*Service, error) {
	if config.Users == nil || config.Events == nil || config.Suspensions == nil {
		return nil, errors.New("moderation service requires a user directory, event store and suspension store")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	eng := &engine.Engine{
		Logger:      logger.With("component", "engine"),
		Users:       config.Users,
		Events:      config.Events,
		Suspensions: config.Suspensions,
		Notifier:    config.Notifier,
		Now:         now,
		Concurrency: config.Concurrency,
	}
	svc := &Service{
		Logger:      logger,
		Users:       config.Users,
		Events:      config.Events,
		Suspensions: config.Suspensions,
		Engine:      eng,
		Now:         now,
	}
	svc.Trigger = trigger.NewDebouncer(svc.runScheduledPass, config.TriggerInterval, logger.With("component", "trigger"))
	svc.Trigger.Now = now
	return svc, nil
}

// Flags from a scheduled pass stay queued for the next DrainFlags.
func (s *Service) runScheduledPass(ctx context.Context) error {
	_, err := s.Engine.Evaluate(ctx)
	return err
}

func (s *Service) RecordReport(ctx context.Context, authorID, reporterID, postID string) error {
	return s.RecordReportAt(ctx, authorID, reporterID, postID, s.Now())
}

// Records a report with an explicit timestamp. Used for backfill and seeding.
func (s *Service) RecordReportAt(ctx context.Context, authorID, reporterID, postID string, at time.Time) error {
	if authorID == "" || reporterID == "" {
		return fmt.Errorf("%w: report requires author and reporter", ErrInvalidRequest)
	}
	return s.Events.RecordReport(ctx, authorID, reporterID, postID, at)
}

func (s *Service) RecordBlock(ctx context.Context, blockerID, targetID string) error {
	return s.RecordBlockAt(ctx, blockerID, targetID, s.Now())
}

func (s *Service) RecordBlockAt(ctx context.Context, blockerID, targetID string, at time.Time) error {
	if blockerID == "" || targetID == "" {
		return fmt.Errorf("%w: block requires blocker and target", ErrInvalidRequest)
	}
	return s.Events.RecordBlock(ctx, blockerID, targetID, at)
}

// Schedules a detection pass unless one ran recently. Non-blocking.
func (s *Service) MaybeTrigger() bool {
	return s.Trigger.MaybeTrigger()
}

// Report workflow: both users must exist, the report is recorded, then a pass may be scheduled.
func (s *Service) ReportPost(ctx context.Context, authorID, reporterID, postID string) error {
	if err := s.checkUsers(ctx, authorID, reporterID); err != nil {
		return err
	}
	if err := s.RecordReport(ctx, authorID, reporterID, postID); err != nil {
		return err
	}
	s.MaybeTrigger()
	return nil
}

// Block workflow: both users must exist, the block is recorded, then a pass may be scheduled.
func (s *Service) BlockUser(ctx context.Context, blockerID, targetID string) error {
	if blockerID == targetID {
		return fmt.Errorf("%w: user can not block themselves", ErrInvalidRequest)
	}
	if err := s.checkUsers(ctx, blockerID, targetID); err != nil {
		return err
	}
	if err := s.RecordBlock(ctx, blockerID, targetID); err != nil {
		return err
	}
	s.MaybeTrigger()
	return nil
}

func (s *Service) checkUsers(ctx context.Context, userIDs ...string) error {
	for _, uid := range userIDs {
		if _, err := s.Users.LookupUser(ctx, uid); err != nil {
			return err
		}
	}
	return nil
}

// Fails open: storage errors are logged and reported as not suspended.
func (s *Service) IsPostingSuspended(ctx context.Context, userID string) bool {
	return s.isSuspended(ctx, userID, suspendstore.BanPosting)
}

// Fails open: storage errors are logged and reported as not suspended.
func (s *Service) IsLoginSuspended(ctx context.Context, userID string) bool {
	return s.isSuspended(ctx, userID, suspendstore.BanLogin)
}

func (s *Service) isSuspended(ctx context.Context, userID string, ban suspendstore.BanType) bool {
	ok, err := suspendstore.IsSuspended(ctx, s.Suspensions, userID, ban, s.Now())
	if err != nil {
		s.Logger.Warn("suspension check failed, allowing", "user", userID, "ban", ban, "err", err)
		return false
	}
	return ok
}

type SuspensionStatus struct {
	UserID           string
	PostingSuspended bool
	PostingBanUntil  time.Time
	LoginSuspended   bool
	LoginBanUntil    time.Time
}

// Current expiries for both ban types. Unlike the Is*Suspended checks, storage errors are returned.
func (s *Service) SuspensionStatus(ctx context.Context, userID string) (*SuspensionStatus, error) {
	now := s.Now()
	posting, err := s.Suspensions.BanUntil(ctx, userID, suspendstore.BanPosting)
	if err != nil {
		return nil, err
	}
	login, err := s.Suspensions.BanUntil(ctx, userID, suspendstore.BanLogin)
	if err != nil {
		return nil, err
	}
	return &SuspensionStatus{
		UserID:           userID,
		PostingSuspended: now.Before(posting),
		PostingBanUntil:  posting,
		LoginSuspended:   now.Before(login),
		LoginBanUntil:    login,
	}, nil
}

// Runs a pass immediately, bypassing the trigger policy, and returns the flags it produced along with any flags still queued from earlier passes.
func (s *Service) RunDetectionPass(ctx context.Context) ([]event.Flag, error) {
	return s.Engine.RunPass(ctx)
}

func (s *Service) DrainFlags(ctx context.Context) ([]event.Flag, error) {
	return s.Events.DrainFlags(ctx)
}

// Flag history entry with the flagged user's directory details, when known.
type FlagView struct {
	event.Flag
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Flags created within the last `since`, newest first. Users no longer in the directory are returned without details.
func (s *Service) RecentFlags(ctx context.Context, since time.Duration, limit int) ([]FlagView, error) {
	flags, err := s.Events.RecentFlags(ctx, s.Now().Add(-since), limit)
	if err != nil {
		return nil, err
	}
	out := make([]FlagView, 0, len(flags))
	for _, f := range flags {
		fv := FlagView{Flag: f}
		u, err := s.Users.LookupUser(ctx, f.UserID)
		if err == nil {
			fv.FirstName = u.FirstName
			fv.LastName = u.LastName
			fv.Email = u.Email
		} else if !errors.Is(err, event.ErrUnknownUser) {
			s.Logger.Warn("failed to enrich flag", "user", f.UserID, "err", err)
		}
		out = append(out, fv)
	}
	return out, nil
}

// Administrative reset of all report and block events. Suspensions and flags are kept.
func (s *Service) ClearEvents(ctx context.Context) error {
	return s.Events.ClearEvents(ctx)
}

// Waits for any scheduled background pass to finish.
func (s *Service) Close() {
	s.Trigger.Wait()
}
