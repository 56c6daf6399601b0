package models

import (
	"encoding/json"
	"time"
)

// ApplicationStatus enumerates the admissions workflow states.
type ApplicationStatus string

const (
	StatusDraft              ApplicationStatus = "DRAFT"
	StatusSubmitted          ApplicationStatus = "SUBMITTED"
	StatusUnderReview        ApplicationStatus = "UNDER_REVIEW"
	StatusShortlisted        ApplicationStatus = "SHORTLISTED"
	StatusInterviewScheduled ApplicationStatus = "INTERVIEW_SCHEDULED"
	StatusInterviewed        ApplicationStatus = "INTERVIEWED"
	StatusAccepted           ApplicationStatus = "ACCEPTED"
	StatusRejected           ApplicationStatus = "REJECTED"
	StatusWaitlisted         ApplicationStatus = "WAITLISTED"
	StatusWithdrawn          ApplicationStatus = "WITHDRAWN"
)

// Valid reports whether the status is a known member of the enum.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusShortlisted,
		StatusInterviewScheduled, StatusInterviewed, StatusAccepted,
		StatusRejected, StatusWaitlisted, StatusWithdrawn:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are permitted.
// WAITLISTED is deliberately non-terminal.
func (s ApplicationStatus) Terminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

// reviewTargets are the statuses an admin may apply to a submitted
// application.
var reviewTargets = map[ApplicationStatus]struct{}{
	StatusUnderReview:        {},
	StatusShortlisted:        {},
	StatusInterviewScheduled: {},
	StatusInterviewed:        {},
	StatusAccepted:           {},
	StatusRejected:           {},
	StatusWaitlisted:         {},
}

// ReviewTarget reports whether the status is a valid admin-applied
// target for an application that has left DRAFT.
func (s ApplicationStatus) ReviewTarget() bool {
	_, ok := reviewTargets[s]
	return ok
}

// Application is an admissions record for one user within a season.
type Application struct {
	ID          string            `db:"id" json:"id"`
	UserID      string            `db:"user_id" json:"user_id"`
	SeasonID    string            `db:"season_id" json:"season_id"`
	Status      ApplicationStatus `db:"status" json:"status"`
	Answers     json.RawMessage   `db:"answers" json:"answers"`
	SubmittedAt *time.Time        `db:"submitted_at" json:"submitted_at,omitempty"`
	ReviewedAt  *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationStatusHistory is the append-only trail of transitions.
type ApplicationStatusHistory struct {
	ID             string            `db:"id" json:"id"`
	ApplicationID  string            `db:"application_id" json:"application_id"`
	PreviousStatus ApplicationStatus `db:"previous_status" json:"previous_status"`
	NewStatus      ApplicationStatus `db:"new_status" json:"new_status"`
	Notes          *string           `db:"notes" json:"notes,omitempty"`
	ChangedBy      string            `db:"changed_by" json:"changed_by"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
}

// ApplicationFilter constrains listing queries.
type ApplicationFilter struct {
	UserID   string
	SeasonID string
	Status   *ApplicationStatus
	Page     int
	PageSize int
}

// CreateApplicationRequest starts a draft for a season.
type CreateApplicationRequest struct {
	SeasonID string          `json:"season_id" validate:"required"`
	Answers  json.RawMessage `json:"answers,omitempty"`
}

// UpdateDraftRequest mutates answers while a draft is editable.
type UpdateDraftRequest struct {
	Answers json.RawMessage `json:"answers" validate:"required"`
}

// TransitionRequest applies a new status to one application.
type TransitionRequest struct {
	Status string  `json:"status" validate:"required"`
	Notes  *string `json:"notes,omitempty"`
}

// BulkTransitionRequest applies one status to a bounded batch of ids.
type BulkTransitionRequest struct {
	ApplicationIDs []string `json:"application_ids" validate:"required,min=1,max=50,dive,uuid"`
	Status         string   `json:"status" validate:"required"`
	Notes          *string  `json:"notes,omitempty"`
}

// BulkTransitionResult reports partial success for batch updates.
type BulkTransitionResult struct {
	Updated int      `json:"updated"`
	Skipped []string `json:"skipped,omitempty"`
}
