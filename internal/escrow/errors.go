package escrow

import "net/http"

// Error is a precondition or state violation in the escrow. These
// indicate caller or state errors and are never retried automatically.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrInvalidMilestones is returned when milestone percentages are not
	// all positive or do not sum to exactly 100
	ErrInvalidMilestones = &Error{Code: "INVALID_MILESTONES", Message: "milestone percentages must be positive and sum to 100", Status: http.StatusBadRequest}

	// ErrInvalidTarget is returned when the target amount is not positive
	ErrInvalidTarget = &Error{Code: "INVALID_TARGET", Message: "target amount must be positive", Status: http.StatusBadRequest}

	// ErrInvalidAmount is returned when a commitment amount is not positive
	ErrInvalidAmount = &Error{Code: "INVALID_AMOUNT", Message: "commitment amount must be positive", Status: http.StatusBadRequest}

	// ErrCampaignNotFound is returned when no campaign exists for the id
	ErrCampaignNotFound = &Error{Code: "CAMPAIGN_NOT_FOUND", Message: "campaign not found", Status: http.StatusNotFound}

	// ErrCampaignNotOpen is returned when funds are committed to a
	// campaign that is no longer accepting them
	ErrCampaignNotOpen = &Error{Code: "CAMPAIGN_NOT_OPEN", Message: "campaign is not accepting commitments", Status: http.StatusConflict}

	// ErrExceedsTarget is returned when a commitment would push the
	// committed amount past the target
	ErrExceedsTarget = &Error{Code: "EXCEEDS_TARGET", Message: "commitment exceeds remaining campaign target", Status: http.StatusConflict}

	// ErrMilestoneNotFound is returned for an out-of-range milestone index
	ErrMilestoneNotFound = &Error{Code: "MILESTONE_NOT_FOUND", Message: "milestone not found", Status: http.StatusNotFound}

	// ErrMilestoneNotVerified is returned when a release is attempted on
	// a milestone that has not passed independent verification
	ErrMilestoneNotVerified = &Error{Code: "MILESTONE_NOT_VERIFIED", Message: "milestone has not been verified", Status: http.StatusConflict}

	// ErrAlreadyReleased is returned when a release record already exists
	// for the milestone
	ErrAlreadyReleased = &Error{Code: "ALREADY_RELEASED", Message: "milestone funds already released", Status: http.StatusConflict}

	// ErrUnauthorized is returned when the release authorizer is neither
	// a provider nor the platform admin identity
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "not authorized to release milestone funds", Status: http.StatusForbidden}

	// ErrNotExpirable is returned when expiry is requested for a campaign
	// whose funding window has not lapsed or that already left Open state
	ErrNotExpirable = &Error{Code: "CAMPAIGN_NOT_EXPIRABLE", Message: "campaign funding window has not lapsed", Status: http.StatusConflict}
)
