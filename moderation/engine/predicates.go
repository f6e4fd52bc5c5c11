package engine

import (
	"time"

	"github.com/sbnz-social/modguard/moderation/suspendstore"
)

// Windows over which events are counted. All windows are relative to the pass's `now`, with an inclusive lower edge.
const (
	Window12h = 12 * time.Hour
	Window24h = 24 * time.Hour
	Window48h = 48 * time.Hour
	Window7d  = 7 * 24 * time.Hour
)

// Per-user event counts for one pass. Reports are counted against the author of the reported post; blocks against the blocked user.
type Signals struct {
	Reports12h int
	Reports24h int
	Reports48h int
	Reports7d  int
	Blocks12h  int
	Blocks24h  int
	Blocks48h  int
}

// One row of the predicate table. When Match returns true, the user's Ban is extended to now+Duration and a flag with Reason is recorded.
type Predicate struct {
	Name     string
	Ban      suspendstore.BanType
	Duration time.Duration
	Reason   string
	Match    func(s Signals) bool
}

// Thresholds are exclusive: "more than N".
var DefaultPredicates = []Predicate{
	{
		Name:     "reports-24h",
		Ban:      suspendstore.BanPosting,
		Duration: 24 * time.Hour,
		Reason:   "5+ prijava u 24h",
		Match:    func(s Signals) bool { return s.Reports24h > 5 },
	},
	{
		Name:     "reports-48h",
		Ban:      suspendstore.BanPosting,
		Duration: 48 * time.Hour,
		Reason:   "8+ prijava u 48h",
		Match:    func(s Signals) bool { return s.Reports48h > 8 },
	},
	{
		Name:     "blocks-24h",
		Ban:      suspendstore.BanPosting,
		Duration: 24 * time.Hour,
		Reason:   "4+ puta blokiran u 24h",
		Match:    func(s Signals) bool { return s.Blocks24h > 4 },
	},
	{
		Name:     "blocks-and-reports",
		Ban:      suspendstore.BanLogin,
		Duration: 48 * time.Hour,
		Reason:   "blokiranja i prijave: zabrana logovanja 48h",
		Match:    func(s Signals) bool { return s.Blocks48h > 2 && s.Reports24h > 4 },
	},
	{
		Name:     "blocks-12h",
		Ban:      suspendstore.BanPosting,
		Duration: 24 * time.Hour,
		Reason:   "3+ blokiranja u 12h",
		Match:    func(s Signals) bool { return s.Blocks12h > 2 },
	},
	{
		Name:     "reports-7d",
		Ban:      suspendstore.BanLogin,
		Duration: 72 * time.Hour,
		Reason:   "10+ prijava u 7 dana",
		Match:    func(s Signals) bool { return s.Reports7d > 10 },
	},
}

// Returns the predicates matching s, in table order.
func MatchPredicates(preds []Predicate, s Signals) []Predicate {
	var out []Predicate
	for _, p := range preds {
		if p.Match(s) {
			out = append(out, p)
		}
	}
	return out
}
