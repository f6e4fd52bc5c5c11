// Demo data: one user per detection predicate, near-miss users that sit exactly on a threshold, and a clean user. Events are backdated relative to a given `now`.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/sbnz-social/modguard/moderation/eventstore"
	"github.com/sbnz-social/modguard/moderation/userdir"
)

// A seeded subject: events recorded against it, and the flag reasons a detection pass at the seed time should produce for it (in predicate table order).
type Scenario struct {
	Name    string
	Expect  []string
	Reports []time.Duration
	Blocks  []time.Duration
}

type SeededUser struct {
	User     userdir.User
	Scenario Scenario
}

func repeat(n int, f func(i int) time.Duration) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func hours(hs ...int) []time.Duration {
	out := make([]time.Duration, len(hs))
	for i, h := range hs {
		out[i] = time.Duration(h) * time.Hour
	}
	return out
}

// Offsets are "time before now".
var Scenarios = []Scenario{
	{
		Name:    "reports-24h",
		Expect:  []string{"5+ prijava u 24h"},
		Reports: repeat(6, func(i int) time.Duration { return time.Duration(i+1) * 10 * time.Second }),
	},
	{
		Name:    "reports-48h",
		Expect:  []string{"8+ prijava u 48h"},
		Reports: repeat(9, func(i int) time.Duration { return 30*time.Hour + time.Duration(i)*2*time.Second }),
	},
	{
		// five blocks spread over ten hours also trip the 12h rule
		Name:   "blocks-24h",
		Expect: []string{"4+ puta blokiran u 24h", "3+ blokiranja u 12h"},
		Blocks: hours(2, 4, 6, 8, 10),
	},
	{
		Name:    "blocks-and-reports",
		Expect:  []string{"blokiranja i prijave: zabrana logovanja 48h"},
		Blocks:  hours(36, 32, 31),
		Reports: repeat(5, func(i int) time.Duration { return time.Duration(i+1) * 15 * time.Second }),
	},
	{
		Name:   "blocks-12h",
		Expect: []string{"3+ blokiranja u 12h"},
		Blocks: hours(6, 4, 1),
	},
	{
		Name:    "reports-7d",
		Expect:  []string{"10+ prijava u 7 dana"},
		Reports: repeat(11, func(i int) time.Duration { return 150*time.Hour - time.Duration(i)*15*time.Hour }),
	},
	{
		Name:    "edge-reports-24h",
		Reports: repeat(5, func(i int) time.Duration { return time.Duration(i+1) * 20 * time.Second }),
	},
	{
		Name:    "edge-reports-48h",
		Reports: repeat(8, func(i int) time.Duration { return 35*time.Hour + time.Duration(i)*2*time.Second }),
	},
	{
		Name:   "edge-blocks-24h",
		Blocks: hours(20, 18, 12, 6),
	},
	{
		Name:    "edge-blocks-48h",
		Blocks:  hours(40, 30),
		Reports: repeat(5, func(i int) time.Duration { return time.Duration(i+1) * 25 * time.Second }),
	},
	{
		Name:    "edge-reports-with-blocks",
		Blocks:  hours(45, 40, 28),
		Reports: repeat(4, func(i int) time.Duration { return time.Duration(i+1) * 30 * time.Second }),
	},
	{
		Name:   "edge-blocks-12h",
		Blocks: hours(10, 3),
	},
	{
		Name: "clean",
	},
}

const numBlockers = 5

func fakeUser() userdir.User {
	return userdir.User{
		ID:        uuid.NewString(),
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Email:     gofakeit.Email(),
	}
}

// Registers a reporter, a pool of blockers and one user per scenario, then records each scenario's backdated events.
func SuspiciousUsers(ctx context.Context, reg userdir.Registry, events eventstore.EventStore, now time.Time) ([]SeededUser, error) {
	reporter := fakeUser()
	if err := reg.AddUser(ctx, reporter); err != nil {
		return nil, err
	}
	blockers := make([]userdir.User, numBlockers)
	for i := range blockers {
		blockers[i] = fakeUser()
		if err := reg.AddUser(ctx, blockers[i]); err != nil {
			return nil, err
		}
	}

	out := make([]SeededUser, 0, len(Scenarios))
	for _, sc := range Scenarios {
		u := fakeUser()
		if err := reg.AddUser(ctx, u); err != nil {
			return nil, err
		}
		for _, ago := range sc.Reports {
			if err := events.RecordReport(ctx, u.ID, reporter.ID, uuid.NewString(), now.Add(-ago)); err != nil {
				return nil, fmt.Errorf("seeding %s: %w", sc.Name, err)
			}
		}
		for i, ago := range sc.Blocks {
			if err := events.RecordBlock(ctx, blockers[i%numBlockers].ID, u.ID, now.Add(-ago)); err != nil {
				return nil, fmt.Errorf("seeding %s: %w", sc.Name, err)
			}
		}
		out = append(out, SeededUser{User: u, Scenario: sc})
	}
	return out, nil
}
