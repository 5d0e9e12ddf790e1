package domain

import (
	"context"
	"time"
)

// Bug mirrors one defect record of the upstream system.
type Bug struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	Reporter    string    `json:"reporter"`
	Assignee    string    `json:"assignee"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BugPage is one page of the upstream bug collection.
type BugPage struct {
	Items    []Bug `json:"items"`
	Total    int   `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

// BugListQuery bounds one page request against the upstream collection.
// ModifiedSince narrows the pull to records changed after the checkpoint.
type BugListQuery struct {
	Page          int        `json:"page"`
	PageSize      int        `json:"pageSize"`
	ModifiedSince *time.Time `json:"lastModified,omitempty"`
}

// BugResolutionStatus is the terminal disposition reported back upstream.
type BugResolutionStatus string

const (
	BugResolved  BugResolutionStatus = "resolved"
	BugNotABug   BugResolutionStatus = "not_a_bug"
	BugDuplicate BugResolutionStatus = "duplicate"
)

// BugResolution carries the disposition of one or more bugs back upstream.
type BugResolution struct {
	Status     BugResolutionStatus `json:"status"`
	Comment    string              `json:"comment,omitempty"`
	ResolvedBy string              `json:"resolvedBy"`
	ResolvedAt string              `json:"resolvedAt,omitempty"`
}

// BugRepo is the local persistence collaborator for synchronized bug records.
type BugRepo interface {
	Upsert(ctx context.Context, bug *Bug) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}
