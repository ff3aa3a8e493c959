package services

import "time"

// BadgeType identifies an achievement
type BadgeType string

const (
	BadgeFirstPayment  BadgeType = "first_payment"
	BadgeStreak3       BadgeType = "streak_3"
	BadgeStreak6       BadgeType = "streak_6"
	BadgeStreak12      BadgeType = "streak_12"
	BadgeStreak24      BadgeType = "streak_24"
	BadgeFullyVerified BadgeType = "fully_verified"
)

// BadgeIcon is the icon name the presentation layer renders for a badge
type BadgeIcon string

const (
	IconTrophy        BadgeIcon = "trophy"
	IconCalendarCheck BadgeIcon = "calendar-check"
	IconFlame         BadgeIcon = "flame"
	IconStar          BadgeIcon = "star"
	IconCrown         BadgeIcon = "crown"
	IconGem           BadgeIcon = "gem"
	IconShieldCheck   BadgeIcon = "shield-check"
)

// IconFor returns the icon of a badge type. Types this build does not know
// (for example rows written by a newer release) fall back to IconTrophy.
func IconFor(t BadgeType) BadgeIcon {
	switch t {
	case BadgeFirstPayment:
		return IconCalendarCheck
	case BadgeStreak3:
		return IconFlame
	case BadgeStreak6:
		return IconStar
	case BadgeStreak12:
		return IconCrown
	case BadgeStreak24:
		return IconGem
	case BadgeFullyVerified:
		return IconShieldCheck
	default:
		return IconTrophy
	}
}

type badgeRule int

const (
	ruleFirstPayment badgeRule = iota
	ruleStreak
	ruleFullyVerified
)

// BadgeDefinition describes one unlockable badge and its threshold
type BadgeDefinition struct {
	Type        BadgeType
	Title       string
	Description string
	rule        badgeRule
	threshold   int
}

// Icon returns the definition's icon
func (d BadgeDefinition) Icon() BadgeIcon {
	return IconFor(d.Type)
}

// BadgeCatalog is a read-only table of badge definitions
type BadgeCatalog struct {
	definitions []BadgeDefinition
}

// DefaultBadgeCatalog returns the production badge table
func DefaultBadgeCatalog() BadgeCatalog {
	return BadgeCatalog{definitions: []BadgeDefinition{
		{Type: BadgeFirstPayment, Title: "First Payment", Description: "Logged your first paid rent period", rule: ruleFirstPayment, threshold: 1},
		{Type: BadgeStreak3, Title: "3 Month Streak", Description: "Paid rent on time 3 months in a row", rule: ruleStreak, threshold: 3},
		{Type: BadgeStreak6, Title: "6 Month Streak", Description: "Paid rent on time 6 months in a row", rule: ruleStreak, threshold: 6},
		{Type: BadgeStreak12, Title: "12 Month Streak", Description: "A full year of on-time rent", rule: ruleStreak, threshold: 12},
		{Type: BadgeStreak24, Title: "24 Month Streak", Description: "Two years of on-time rent", rule: ruleStreak, threshold: 24},
		{Type: BadgeFullyVerified, Title: "Fully Verified", Description: "Six or more periods, every one verified by a bank or landlord", rule: ruleFullyVerified, threshold: 6},
	}}
}

// Definitions returns a copy of the table
func (c BadgeCatalog) Definitions() []BadgeDefinition {
	out := make([]BadgeDefinition, len(c.definitions))
	copy(out, c.definitions)
	return out
}

// Lookup finds the definition of t
func (c BadgeCatalog) Lookup(t BadgeType) (BadgeDefinition, bool) {
	for _, d := range c.definitions {
		if d.Type == t {
			return d, true
		}
	}
	return BadgeDefinition{}, false
}

// Badge is an earned achievement as exposed to callers
type Badge struct {
	ID          uint      `json:"id,omitempty"`
	BadgeType   BadgeType `json:"badgeType"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	EarnedAt    time.Time `json:"earnedAt"`
	IconName    BadgeIcon `json:"iconName"`
}

// EvaluateBadges returns the badges of catalog that history now qualifies for
// and that are not already in prior. EarnedAt is the last due date of the month
// that crossed the threshold, so re-running on the same history yields the
// same dates.
func EvaluateBadges(catalog BadgeCatalog, prior []Badge, metrics Metrics, history []PaymentEvent, opts ScoringOptions) []Badge {
	owned := make(map[BadgeType]bool, len(prior))
	for _, b := range prior {
		owned[b.BadgeType] = true
	}

	resolved := resolvedMonths(history, opts)

	var earned []Badge
	for _, def := range catalog.definitions {
		if owned[def.Type] {
			continue
		}
		earnedAt, ok := def.qualifies(metrics, resolved)
		if !ok {
			continue
		}
		earned = append(earned, Badge{
			BadgeType:   def.Type,
			Title:       def.Title,
			Description: def.Description,
			EarnedAt:    earnedAt,
			IconName:    def.Icon(),
		})
	}
	return earned
}

// qualifies checks the rule against the chronological resolved months
func (d BadgeDefinition) qualifies(metrics Metrics, resolved []rentMonth) (time.Time, bool) {
	switch d.rule {
	case ruleFirstPayment:
		for _, month := range resolved {
			if !month.firstPaid.IsZero() {
				return month.firstPaid, true
			}
		}
	case ruleStreak:
		if metrics.CurrentStreak < d.threshold {
			return time.Time{}, false
		}
		run := trailingRun(resolved)
		if run < d.threshold {
			return time.Time{}, false
		}
		start := len(resolved) - run
		return resolved[start+d.threshold-1].DueDate, true
	case ruleFullyVerified:
		if metrics.ResolvedPeriods < d.threshold || metrics.VerifiedPeriods != metrics.ResolvedPeriods {
			return time.Time{}, false
		}
		if len(resolved) < d.threshold {
			return time.Time{}, false
		}
		return resolved[d.threshold-1].DueDate, true
	}
	return time.Time{}, false
}

// trailingRun counts the on-time months at the end of resolved
func trailingRun(resolved []rentMonth) int {
	run := 0
	for i := len(resolved) - 1; i >= 0; i-- {
		if !resolved[i].OnTime {
			break
		}
		run++
	}
	return run
}
