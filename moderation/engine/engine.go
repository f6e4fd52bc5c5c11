package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sbnz-social/modguard/moderation/event"
	"github.com/sbnz-social/modguard/moderation/eventstore"
	"github.com/sbnz-social/modguard/moderation/suspendstore"
	"github.com/sbnz-social/modguard/moderation/userdir"
)

var tracer = otel.Tracer("engine")

const DefaultConcurrency = 8

// Runs detection passes over all users.
//
// Users, Events and Suspensions are required. The remaining fields are optional.
type Engine struct {
	Logger      *slog.Logger
	Users       userdir.Directory
	Events      eventstore.EventStore
	Suspensions suspendstore.SuspendStore
	// Defaults to DefaultPredicates
	Predicates []Predicate
	// Called with the flags created by each pass
	Notifier Notifier
	// Defaults to time.Now
	Now func() time.Time
	// Max number of users read in parallel. Defaults to DefaultConcurrency.
	Concurrency int
	// Throttles per-user storage reads
	Limiter *rate.Limiter

	runLock sync.Mutex
}

// State read for one user before any predicate is applied.
type userState struct {
	signals      Signals
	postingUntil time.Time
	loginUntil   time.Time
}

func (s *userState) banUntil(ban suspendstore.BanType) time.Time {
	if ban == suspendstore.BanLogin {
		return s.loginUntil
	}
	return s.postingUntil
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) predicates() []Predicate {
	if e.Predicates == nil {
		return DefaultPredicates
	}
	return e.Predicates
}

// Runs a pass, then drains the flag queue. The result includes flags queued before this pass that nobody drained.
func (e *Engine) RunPass(ctx context.Context) ([]event.Flag, error) {
	if _, err := e.Evaluate(ctx); err != nil {
		return nil, err
	}
	flags, err := e.Events.DrainFlags(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("draining flags: %w", err)
	}
	return flags, nil
}

// Evaluates every user against the predicate table and applies suspensions. Flags are appended to the queue and also returned.
//
// Passes are serialized. Failures reading or evaluating a single user skip that user; only failing to list users fails the pass. Once started, a pass is not interrupted by cancellation of ctx.
func (e *Engine) Evaluate(ctx context.Context) ([]event.Flag, error) {
	e.runLock.Lock()
	defer e.runLock.Unlock()

	ctx, span := tracer.Start(context.WithoutCancel(ctx), "Evaluate")
	defer span.End()

	start := time.Now()
	flags, err := e.evaluate(ctx)
	passDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		passCount.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, err
	}
	passCount.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("flags", len(flags)))

	if e.Notifier != nil && len(flags) > 0 {
		if err := e.Notifier.SendFlags(ctx, flags); err != nil {
			e.logger().Error("failed to send flag notification", "err", err)
		}
	}
	return flags, nil
}

func (e *Engine) evaluate(ctx context.Context) ([]event.Flag, error) {
	logger := e.logger()
	now := e.now()

	users, err := e.Users.ListAllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	usersEvaluated.Add(float64(len(users)))
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("users", len(users)))

	states := make([]*userState, len(users))
	conc := e.Concurrency
	if conc <= 0 {
		conc = DefaultConcurrency
	}
	var g errgroup.Group
	g.SetLimit(conc)
	for i, uid := range users {
		g.Go(func() error {
			st, err := e.readUser(ctx, uid, now)
			if err != nil {
				logger.Error("skipping user in detection pass", "user", uid, "phase", "read", "err", err)
				userErrorCount.WithLabelValues("read").Inc()
				return nil
			}
			states[i] = st
			return nil
		})
	}
	// per-user errors are never returned to the group
	_ = g.Wait()

	flags := []event.Flag{}
	for i, uid := range users {
		if states[i] == nil {
			continue
		}
		flags = append(flags, e.applyUser(ctx, uid, states[i], now)...)
	}
	logger.Info("detection pass complete", "users", len(users), "flags", len(flags))
	return flags, nil
}

func (e *Engine) readUser(ctx context.Context, userID string, now time.Time) (st *userState, err error) {
	// a panicking backend counts as a read failure for this user
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic reading user state: %v", r)
		}
	}()

	if e.Limiter != nil {
		if err := e.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	// one read per event kind, bucketed here, so the windows always nest
	reports, err := e.Events.ReportTimesAgainst(ctx, userID, now.Add(-Window7d))
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	blocks, err := e.Events.BlockTimesAgainst(ctx, userID, now.Add(-Window48h))
	if err != nil {
		return nil, fmt.Errorf("listing blocks: %w", err)
	}

	st = &userState{}
	for _, ts := range reports {
		st.signals.Reports7d++
		if inWindow(ts, now, Window48h) {
			st.signals.Reports48h++
		}
		if inWindow(ts, now, Window24h) {
			st.signals.Reports24h++
		}
		if inWindow(ts, now, Window12h) {
			st.signals.Reports12h++
		}
	}
	for _, ts := range blocks {
		st.signals.Blocks48h++
		if inWindow(ts, now, Window24h) {
			st.signals.Blocks24h++
		}
		if inWindow(ts, now, Window12h) {
			st.signals.Blocks12h++
		}
	}

	st.postingUntil, err = e.Suspensions.BanUntil(ctx, userID, suspendstore.BanPosting)
	if err != nil {
		return nil, fmt.Errorf("reading posting ban: %w", err)
	}
	st.loginUntil, err = e.Suspensions.BanUntil(ctx, userID, suspendstore.BanLogin)
	if err != nil {
		return nil, fmt.Errorf("reading login ban: %w", err)
	}
	return st, nil
}

// Lower edge inclusive.
func inWindow(ts, now time.Time, window time.Duration) bool {
	return !ts.Before(now.Add(-window))
}

// Applies every matching predicate for one user and returns the flags recorded.
//
// A predicate is applied only if it would extend the ban as it was before this pass started. Predicates of the same pass are judged against that snapshot, not against each other, so two posting predicates can both flag.
//
// A match already covered by a ban at least as long (for example a 48h login match under an earlier 72h login ban) writes nothing and produces no flag. It is only counted, in the predicate match and covered metrics.
func (e *Engine) applyUser(ctx context.Context, userID string, st *userState, now time.Time) (flags []event.Flag) {
	logger := e.logger().With("user", userID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("detection rule execution exception", "err", r)
			userErrorCount.WithLabelValues("apply").Inc()
		}
	}()

	for _, p := range MatchPredicates(e.predicates(), st.signals) {
		predicateMatchCount.WithLabelValues(p.Name).Inc()
		until := now.Add(p.Duration)
		if !until.After(st.banUntil(p.Ban)) {
			logger.Debug("ban already covers predicate", "predicate", p.Name, "ban", p.Ban)
			predicateCoveredCount.WithLabelValues(p.Name).Inc()
			continue
		}
		if _, err := e.Suspensions.Suspend(ctx, userID, p.Ban, until); err != nil {
			logger.Error("failed to write suspension", "predicate", p.Name, "ban", p.Ban, "err", err)
			userErrorCount.WithLabelValues("suspend").Inc()
			continue
		}
		suspensionCount.WithLabelValues(string(p.Ban)).Inc()
		if err := e.Events.AddFlag(ctx, userID, p.Reason, until); err != nil {
			logger.Error("failed to record flag", "predicate", p.Name, "err", err)
			userErrorCount.WithLabelValues("flag").Inc()
			continue
		}
		logger.Info("user suspended", "predicate", p.Name, "ban", p.Ban, "until", until, "reason", p.Reason)
		flags = append(flags, event.Flag{UserID: userID, Reason: p.Reason, SuspendedUntil: until, CreatedAt: now})
	}
	return flags
}
