// Package plans maps subscription tiers onto product quotas.
package plans

import (
	"fmt"
	"strings"
)

// Plan is a subscription tier.
type Plan string

const (
	Free    Plan = "free"
	Starter Plan = "starter"
	Premier Plan = "premier"
)

// Unlimited marks a quota with no upper bound.
const Unlimited = -1

// Parse validates a plan name.
func Parse(s string) (Plan, error) {
	switch p := Plan(strings.ToLower(strings.TrimSpace(s))); p {
	case Free, Starter, Premier:
		return p, nil
	default:
		return "", fmt.Errorf("unknown plan %q", s)
	}
}

// Normalize returns p, or Free for anything unrecognised.
func Normalize(p Plan) Plan {
	if parsed, err := Parse(string(p)); err == nil {
		return parsed
	}
	return Free
}

// FeaturedQuota is the number of contributions an owner may feature at once.
func (p Plan) FeaturedQuota() int {
	switch Normalize(p) {
	case Starter:
		return 3
	case Premier:
		return Unlimited
	default:
		return 1
	}
}

// ImportLimit is the number of screenshot imports an owner may hold.
func (p Plan) ImportLimit() int {
	switch Normalize(p) {
	case Starter:
		return 15
	case Premier:
		return Unlimited
	default:
		return 5
	}
}

// IsPro reports whether p is a paid tier.
func (p Plan) IsPro() bool {
	return Normalize(p) != Free
}

// Limits is the owner-facing summary of import usage.
type Limits struct {
	Remaining    int  `json:"remaining"`
	Limit        int  `json:"limit"`
	CurrentCount int  `json:"currentCount"`
	IsPro        bool `json:"isPro"`
	Plan         Plan `json:"plan"`
}

// ImportLimits summarises import usage for an owner on plan p with current
// imports on file. Limit and Remaining are Unlimited for unbounded plans.
func ImportLimits(p Plan, current int) Limits {
	p = Normalize(p)
	l := Limits{
		Limit:        p.ImportLimit(),
		CurrentCount: current,
		IsPro:        p.IsPro(),
		Plan:         p,
	}
	if l.Limit == Unlimited {
		l.Remaining = Unlimited
		return l
	}
	l.Remaining = l.Limit - current
	if l.Remaining < 0 {
		l.Remaining = 0
	}
	return l
}

// Allows reports whether one more item fits under limit given current usage.
func Allows(limit, current int) bool {
	return limit == Unlimited || current < limit
}
