package contribution

import (
	"errors"
	"fmt"
	"time"

	"github.com/stephdmurray-sys/nomee-sub001/internal/apperr"
	"github.com/stephdmurray-sys/nomee-sub001/internal/ratelimit"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
)

// Identity attachment error codes, in the order they are checked.
const (
	CodeMissingFields       = "MISSING_FIELDS"
	CodeInvalidEmail        = "INVALID_EMAIL"
	CodeRateLimit           = "RATE_LIMIT"
	CodeNotFound            = "NOT_FOUND"
	CodeDuplicateSubmission = "DUPLICATE_SUBMISSION"
	CodeUpdateError         = "UPDATE_ERROR"
)

var (
	// ErrConfirmationFailed is the only error Confirm returns for bad links.
	ErrConfirmationFailed = errors.New("confirmation link is invalid or expired")

	// ErrFeaturedLimit is returned when the owner's plan quota is used up.
	ErrFeaturedLimit = fmt.Errorf("%w: featured contribution limit reached for plan", apperr.ErrForbidden)

	// ErrAlreadyConfirmed is returned when identity is attached after confirmation.
	ErrAlreadyConfirmed = fmt.Errorf("%w: contribution already confirmed", apperr.ErrConflict)

	// ErrNotConfirmed is returned when featuring a pending contribution.
	ErrNotConfirmed = fmt.Errorf("%w: contribution is not confirmed", apperr.ErrConflict)

	// ErrNotFound is returned for missing rows and rows owned by someone else.
	ErrNotFound = fmt.Errorf("contribution %w", apperr.ErrNotFound)
)

// Relationships accepted on a contribution.
var Relationships = []string{
	"colleague",
	"manager",
	"direct_report",
	"client",
	"collaborator",
	"mentor",
	"friend",
	"other",
}

// CreateRequest is a new written or voice testimony for a profile.
type CreateRequest struct {
	OwnerID      string   `json:"profileId"`
	Message      string   `json:"message"`
	VoiceURL     string   `json:"voiceUrl,omitempty"`
	Relationship string   `json:"relationship"`
	Traits       []string `json:"traits,omitempty"`
	Vibes        []string `json:"vibes,omitempty"`
}

// IdentityRequest attaches contributor identity to a pending contribution.
type IdentityRequest struct {
	ContributionID   string `json:"contributionId"`
	ContributorName  string `json:"contributorName"`
	ContributorEmail string `json:"contributorEmail"`

	// ClientIP keys the submission rate limit. Not read from the body.
	ClientIP string `json:"-"`
}

// Config configures the contribution service.
type Config struct {
	// SubmissionPolicy limits identity submissions per client.
	SubmissionPolicy ratelimit.Policy

	// ConfirmBaseURL is the public origin used to build confirmation links.
	ConfirmBaseURL string

	// MaxMessageRunes bounds stored testimony (default: 2000)
	MaxMessageRunes int

	// MaxTags bounds traits and vibes per contribution (default: 10)
	MaxTags int
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() *Config {
	return &Config{
		SubmissionPolicy: ratelimit.SubmissionPolicy(),
		ConfirmBaseURL:   "http://localhost:8080",
		MaxMessageRunes:  2000,
		MaxTags:          10,
	}
}

// View is the owner-facing representation of a contribution.
type View struct {
	ID              string     `json:"id"`
	ContributorName string     `json:"contributorName,omitempty"`
	Message         string     `json:"message"`
	VoiceURL        string     `json:"voiceUrl,omitempty"`
	Relationship    string     `json:"relationship"`
	Traits          []string   `json:"traits"`
	Vibes           []string   `json:"vibes"`
	Status          string     `json:"status"`
	IsFeatured      bool       `json:"isFeatured"`
	Flagged         bool       `json:"flagged"`
	FlagReason      string     `json:"flagReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ConfirmedAt     *time.Time `json:"confirmedAt,omitempty"`
}

// NewView converts a stored contribution. Contributor email is never exposed.
func NewView(c *store.Contribution) View {
	traits, vibes := c.Traits, c.Vibes
	if traits == nil {
		traits = []string{}
	}
	if vibes == nil {
		vibes = []string{}
	}
	return View{
		ID:              c.ID,
		ContributorName: c.ContributorName,
		Message:         c.Message,
		VoiceURL:        c.VoiceURL,
		Relationship:    c.Relationship,
		Traits:          traits,
		Vibes:           vibes,
		Status:          string(c.Status),
		IsFeatured:      c.IsFeatured,
		Flagged:         c.Flagged,
		FlagReason:      c.FlagReason,
		CreatedAt:       c.CreatedAt,
		ConfirmedAt:     c.ConfirmedAt,
	}
}
