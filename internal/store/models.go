package store

import (
	"time"

	"github.com/stephdmurray-sys/nomee-sub001/internal/plans"
)

// ContributionStatus is the lifecycle state of a contribution.
type ContributionStatus string

const (
	StatusPendingConfirmation ContributionStatus = "pending_confirmation"
	StatusConfirmed           ContributionStatus = "confirmed"
)

// ImportState tracks an imported screenshot through extraction and approval.
type ImportState string

const (
	ImportPendingProcessing ImportState = "pending_processing"
	ImportExtracted         ImportState = "extracted"
	ImportRequiresReview    ImportState = "requires_review"
	ImportApproved          ImportState = "approved"
)

// Visibility controls whether approved imports appear on the public profile.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ReportStatus is the moderation state of a report.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportReviewed  ReportStatus = "reviewed"
	ReportDismissed ReportStatus = "dismissed"
)

// Profile is the owner of contributions and imports.
type Profile struct {
	ID          string
	Slug        string
	DisplayName string
	Plan        plans.Plan
	CreatedAt   time.Time
}

// Contribution is a testimonial submitted by a collaborator.
// Identity fields are empty until the contributor attaches them.
type Contribution struct {
	ID                    string
	OwnerID               string
	ContributorName       string
	ContributorEmail      string
	EmailHash             string
	Message               string
	VoiceURL              string
	Relationship          string
	Traits                []string
	Vibes                 []string
	Status                ContributionStatus
	IsFeatured            bool
	Flagged               bool
	FlagReason            string
	FlaggedAt             *time.Time
	ConfirmationTokenHash string
	CreatedAt             time.Time
	ConfirmedAt           *time.Time
}

// ImportedFeedback is praise extracted from an uploaded screenshot.
type ImportedFeedback struct {
	ID              string
	OwnerID         string
	ImageKey        string
	ImageURL        string
	State           ImportState
	OCRText         string
	Excerpt         string
	GiverName       string
	GiverCompany    string
	GiverRole       string
	SourceType      string
	ApproxDate      string
	Traits          []string
	Confidence      float64
	RequiresReview  bool
	ApprovedByOwner bool
	ApprovedAt      *time.Time
	Visibility      Visibility
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Report is a moderation report against a contribution.
type Report struct {
	ID             string
	ContributionID string
	ReporterEmail  string
	Reason         string
	Details        string
	Status         ReportStatus
	CreatedAt      time.Time
	ReviewedAt     *time.Time
}

// RateLimitRecord is the counter for one (identifier, action) window.
type RateLimitRecord struct {
	Identifier  string
	Action      string
	WindowStart time.Time
	Count       int
}
