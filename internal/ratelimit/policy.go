package ratelimit

import "time"

// Policy is a named token budget: a number of points per fixed window,
// with an optional lockout applied once the budget is exhausted.
type Policy struct {
	Name    string
	Points  int
	Window  time.Duration
	Lockout time.Duration
}

// Well-known policy names used across the route table.
const (
	PolicyGeneral           = "general"
	PolicyAuth              = "auth"
	PolicyTreatmentCreation = "treatment-creation"
	PolicySponsorship       = "sponsorship"
	PolicyResearchQuery     = "research-query"
)

// DefaultPolicies is the platform's standard policy table. Values are
// overridable at construction; these are the operational defaults.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		PolicyGeneral: {
			Name:   PolicyGeneral,
			Points: 100,
			Window: 15 * time.Minute,
		},
		PolicyAuth: {
			Name:    PolicyAuth,
			Points:  5,
			Window:  15 * time.Minute,
			Lockout: 30 * time.Minute,
		},
		PolicyTreatmentCreation: {
			Name:    PolicyTreatmentCreation,
			Points:  3,
			Window:  time.Hour,
			Lockout: time.Hour,
		},
		PolicySponsorship: {
			Name:   PolicySponsorship,
			Points: 10,
			Window: time.Hour,
		},
		PolicyResearchQuery: {
			Name:   PolicyResearchQuery,
			Points: 50,
			Window: time.Hour,
		},
	}
}
