package model

import "time"

// Confidence grades how sure the extraction collaborator is about a value.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ExpertStatus represents the registry status of an expert within a project.
type ExpertStatus string

const (
	StatusRecommended ExpertStatus = "recommended"
	StatusPending     ExpertStatus = "pending"
	StatusDeclined    ExpertStatus = "declined"
)

// ConflictStatus tracks the conflict-of-interest clearance for an expert.
type ConflictStatus string

const (
	ConflictCleared  ConflictStatus = "cleared"
	ConflictPending  ConflictStatus = "pending"
	ConflictConfirmed ConflictStatus = "conflict"
)

// StatusCue is an explicit status signal found in email text.
type StatusCue string

const (
	CueAvailable         StatusCue = "available"
	CueInterested        StatusCue = "interested"
	CuePending           StatusCue = "pending"
	CueDeclined          StatusCue = "declined"
	CueConflict          StatusCue = "conflict"
	CueNotAFit           StatusCue = "not_a_fit"
	CueNoLongerAvailable StatusCue = "no_longer_available"
	CueUnknown           StatusCue = "unknown"
)

// Provenance records the exact email excerpt backing one extracted value.
type Provenance struct {
	Excerpt    string     `json:"excerpt_text"`
	Confidence Confidence `json:"confidence"`
}

// ScreenerResponse is one screener Q&A pair from an email.
type ScreenerResponse struct {
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer"`
}

// ExpertProfile is one person as extracted from one email. It is ephemeral
// input to ingestion and is never persisted directly; the orchestrator
// resolves it against canonical ExpertRecords.
type ExpertProfile struct {
	FullName            string             `json:"full_name"`
	FullNameProv        *Provenance        `json:"full_name_provenance,omitempty"`
	Employer            string             `json:"employer,omitempty"`
	EmployerProv        *Provenance        `json:"employer_provenance,omitempty"`
	Title               string             `json:"title,omitempty"`
	TitleProv           *Provenance        `json:"title_provenance,omitempty"`
	RelevanceBullets    []string           `json:"relevance_bullets,omitempty"`
	RelevanceProv       *Provenance        `json:"relevance_bullets_provenance,omitempty"`
	ScreenerResponses   []ScreenerResponse `json:"screener_responses,omitempty"`
	ScreenerProv        *Provenance        `json:"screener_responses_provenance,omitempty"`
	ConflictStatus      ConflictStatus     `json:"conflict_status,omitempty"`
	ConflictID          string             `json:"conflict_id,omitempty"`
	ConflictProv        *Provenance        `json:"conflict_provenance,omitempty"`
	AvailabilityWindows []string           `json:"availability_windows,omitempty"`
	AvailabilityProv    *Provenance        `json:"availability_provenance,omitempty"`
	StatusCue           StatusCue          `json:"status_cue,omitempty"`
	StatusCueProv       *Provenance        `json:"status_cue_provenance,omitempty"`
	OverallConfidence   Confidence         `json:"overall_confidence"`
}

// Extraction is the full collaborator output for one email. The collaborator
// deduplicates repeated mentions of the same person before returning.
type Extraction struct {
	InferredNetwork   string          `json:"inferred_network,omitempty"`
	NetworkConfidence Confidence      `json:"network_confidence,omitempty"`
	Profiles          []ExpertProfile `json:"experts"`
	Notes             []string        `json:"extraction_notes,omitempty"`
}

// ExpertRecord is the canonical persisted identity for one real expert
// within one project. Created on first sighting, updated by accepted
// change-detector diffs, retired only by merge.
type ExpertRecord struct {
	ID                  string         `json:"id"`
	ProjectID           string         `json:"project_id"`
	CanonicalName       string         `json:"canonical_name"`
	CanonicalEmployer   string         `json:"canonical_employer,omitempty"`
	CanonicalTitle      string         `json:"canonical_title,omitempty"`
	Status              ExpertStatus   `json:"status"`
	ConflictStatus      ConflictStatus `json:"conflict_status,omitempty"`
	ConflictID          string         `json:"conflict_id,omitempty"`
	ScreeningGrade      string         `json:"screening_grade,omitempty"`
	ScreeningScore      int            `json:"screening_score,omitempty"`
	ScreeningRationale  string         `json:"screening_rationale,omitempty"`
	ScreeningConfidence Confidence     `json:"screening_confidence,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// ExpertSource links an ExpertRecord to one contributing email, preserving
// that mention's raw extracted values. Rows are append-only; the only
// mutation is reassignment to the surviving record during a merge.
type ExpertSource struct {
	ID           string    `json:"id"`
	ExpertID     string    `json:"expert_id"`
	EmailID      string    `json:"email_id"`
	Network      string    `json:"network,omitempty"`
	Name         string    `json:"extracted_name"`
	Employer     string    `json:"extracted_employer,omitempty"`
	Title        string    `json:"extracted_title,omitempty"`
	Bio          string    `json:"extracted_bio,omitempty"`
	ScreenerJSON string    `json:"extracted_screener,omitempty"`
	Availability string    `json:"extracted_availability,omitempty"`
	StatusCue    StatusCue `json:"extracted_status_cue,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// FieldProvenance is one audit row per extracted field per source. It is
// never consulted by dedupe or change detection.
type FieldProvenance struct {
	ID         string     `json:"id"`
	SourceID   string     `json:"source_id"`
	FieldName  string     `json:"field_name"`
	Excerpt    string     `json:"excerpt_text"`
	Confidence Confidence `json:"confidence"`
}

// UserEdit marks a field as human-pinned. Once a field has a UserEdit,
// later extractions must never silently overwrite it.
type UserEdit struct {
	ID        string    `json:"id"`
	ExpertID  string    `json:"expert_id"`
	FieldName string    `json:"field_name"`
	EditedAt  time.Time `json:"edited_at"`
}

// Patch enumerates the only legal extraction-driven mutations to an
// ExpertRecord. Nil pointers mean "leave unchanged".
type Patch struct {
	Employer       *string
	Title          *string
	ConflictStatus *ConflictStatus
	ConflictID     *string
	Status         *ExpertStatus
}

// IsZero reports whether the patch carries no assignments.
func (p Patch) IsZero() bool {
	return p.Employer == nil && p.Title == nil && p.ConflictStatus == nil &&
		p.ConflictID == nil && p.Status == nil
}

// Completeness counts the non-empty canonical identity fields. Used by the
// merge resolver to pick a survivor.
func (e *ExpertRecord) Completeness() int {
	n := 0
	if e.CanonicalName != "" {
		n++
	}
	if e.CanonicalEmployer != "" {
		n++
	}
	if e.CanonicalTitle != "" {
		n++
	}
	return n
}
