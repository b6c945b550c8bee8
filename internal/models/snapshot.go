package models

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is one stored, hashed copy of a listing's raw payload.
// Snapshots for a notice id form an append-only log ordered by
// fetched_at; rows are never mutated or deleted.
type Snapshot struct {
	ID                  uuid.UUID              `json:"id"`
	NoticeID            string                 `json:"notice_id"`
	SolicitationNumber  string                 `json:"solicitation_number"`
	LinkedOpportunityID *uuid.UUID             `json:"linked_opportunity_id"`
	OwnerID             uuid.UUID              `json:"owner_id"`
	FetchedAt           time.Time              `json:"fetched_at"`
	PostedDate          *time.Time             `json:"posted_date"`
	ResponseDeadline    *time.Time             `json:"response_deadline"`
	ContentHash         string                 `json:"content_hash"`
	RawPayload          map[string]interface{} `json:"raw_payload,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
}

// WatchedListing is a listing the scheduler re-scans for amendments.
type WatchedListing struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	NoticeID  string    `json:"notice_id"`
	Keyword   string    `json:"keyword"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ProposalSection is the read-only projection of a drafted section.
// The CRUD layer owns these records; this subsystem only scores them.
type ProposalSection struct {
	ID            uuid.UUID `json:"id"`
	ProposalID    uuid.UUID `json:"proposal_id"`
	SectionNumber string    `json:"section_number"`
	Title         string    `json:"title"`
	Status        string    `json:"status"`
	Content       string    `json:"content"`
	RequirementID *string   `json:"requirement_id"`
}

// ComplianceRequirement is a read-only requirement row used for the
// requirement-overlap bonus during impact analysis.
type ComplianceRequirement struct {
	ID         string    `json:"id"`
	ProposalID uuid.UUID `json:"proposal_id"`
	Text       string    `json:"text"`
}
