package imports

import (
	"fmt"
	"time"

	"github.com/stephdmurray-sys/nomee-sub001/internal/apperr"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
)

var (
	// ErrNotFound is returned for missing imports and imports owned by
	// someone else.
	ErrNotFound = fmt.Errorf("import %w", apperr.ErrNotFound)

	// ErrImportLimit is returned when the owner's plan allows no more imports.
	ErrImportLimit = fmt.Errorf("import limit reached for plan: %w", apperr.ErrForbidden)
)

// AllowedImageTypes are the accepted screenshot media types.
var AllowedImageTypes = []string{"image/png", "image/jpeg", "image/webp", "image/gif"}

// Config configures the import service.
type Config struct {
	// MaxImageBytes caps uploads and blob reads.
	MaxImageBytes int64

	// StageTimeout bounds each model call.
	StageTimeout time.Duration
}

// DefaultServiceConfig returns the default configuration.
func DefaultServiceConfig() *Config {
	return &Config{
		MaxImageBytes: 10 << 20,
		StageTimeout:  60 * time.Second,
	}
}

// Upload is the stored screenshot returned to the client.
type Upload struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// ApproveRequest carries the owner's edits. Nil pointers keep the extracted
// value.
type ApproveRequest struct {
	Excerpt      *string   `json:"excerpt,omitempty"`
	GiverName    string    `json:"giverName"`
	GiverCompany string    `json:"giverCompany"`
	GiverRole    string    `json:"giverRole"`
	Traits       *[]string `json:"traits,omitempty"`
	Visibility   string    `json:"visibility,omitempty"`
}

// View is the JSON shape of an import.
type View struct {
	ID              string     `json:"id"`
	ImageURL        string     `json:"imageUrl"`
	State           string     `json:"state"`
	Excerpt         string     `json:"excerpt"`
	GiverName       string     `json:"giverName"`
	GiverCompany    string     `json:"giverCompany"`
	GiverRole       string     `json:"giverRole"`
	SourceType      string     `json:"sourceType"`
	ApproximateDate string     `json:"approximateDate,omitempty"`
	Traits          []string   `json:"traits"`
	Confidence      float64    `json:"confidence"`
	RequiresReview  bool       `json:"requiresReview"`
	ApprovedByOwner bool       `json:"approvedByOwner"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	Visibility      string     `json:"visibility"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// NewView converts a stored import. OCR text stays server-side.
func NewView(f *store.ImportedFeedback) View {
	traits := f.Traits
	if traits == nil {
		traits = []string{}
	}
	return View{
		ID:              f.ID,
		ImageURL:        f.ImageURL,
		State:           string(f.State),
		Excerpt:         f.Excerpt,
		GiverName:       f.GiverName,
		GiverCompany:    f.GiverCompany,
		GiverRole:       f.GiverRole,
		SourceType:      f.SourceType,
		ApproximateDate: f.ApproxDate,
		Traits:          traits,
		Confidence:      f.Confidence,
		RequiresReview:  f.RequiresReview,
		ApprovedByOwner: f.ApprovedByOwner,
		ApprovedAt:      f.ApprovedAt,
		Visibility:      string(f.Visibility),
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}
