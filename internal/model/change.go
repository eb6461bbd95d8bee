package model

import "time"

// FieldChange records one accepted field mutation with its before/after
// values as extracted (pre-normalization), for honest summaries.
type FieldChange struct {
	Field    string `json:"field"`
	Previous string `json:"previous,omitempty"`
	New      string `json:"new"`
}

// AddedEntry records one expert created during an ingestion.
type AddedEntry struct {
	ExpertID   string `json:"expert_id"`
	ExpertName string `json:"expert_name"`
}

// UpdatedEntry records one expert whose canonical record materially changed.
type UpdatedEntry struct {
	ExpertID   string        `json:"expert_id"`
	ExpertName string        `json:"expert_name"`
	Changes    []FieldChange `json:"changes"`
}

// MergedEntry records one auto-merge of two matched identities.
type MergedEntry struct {
	SurvivorID string  `json:"survivor_id"`
	RetiredID  string  `json:"retired_id"`
	Score      float64 `json:"score"`
	MatchTier  string  `json:"match_tier"`
}

// ReviewEntry records a duplicate candidate left for human review.
type ReviewEntry struct {
	ExpertIDA string  `json:"expert_id_a"`
	ExpertIDB string  `json:"expert_id_b"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
}

// ChangeSet collects everything one ingestion (or one whole scan run) did.
type ChangeSet struct {
	Added       []AddedEntry   `json:"added"`
	Updated     []UpdatedEntry `json:"updated"`
	Merged      []MergedEntry  `json:"merged"`
	NeedsReview []ReviewEntry  `json:"needs_review"`
}

// Extend appends another change set, used by the scan coordinator to build
// one aggregated log for a whole run.
func (c *ChangeSet) Extend(other ChangeSet) {
	c.Added = append(c.Added, other.Added...)
	c.Updated = append(c.Updated, other.Updated...)
	c.Merged = append(c.Merged, other.Merged...)
	c.NeedsReview = append(c.NeedsReview, other.NeedsReview...)
}

// IsEmpty reports whether nothing happened in any bucket.
func (c *ChangeSet) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 &&
		len(c.Merged) == 0 && len(c.NeedsReview) == 0
}

// IngestSummary is the truthful counter view of one ingestion. All-zero
// summaries are flagged as no-ops rather than left ambiguous.
type IngestSummary struct {
	AddedCount       int      `json:"added_count"`
	UpdatedCount     int      `json:"updated_count"`
	MergedCount      int      `json:"merged_count"`
	NeedsReviewCount int      `json:"needs_review_count"`
	ExtractedCount   int      `json:"extracted_count"`
	Network          string   `json:"network,omitempty"`
	Notes            []string `json:"notes,omitempty"`
	IsNoOp           bool     `json:"is_no_op"`
}

// IngestionLog is one persisted change-log row: per email for direct
// ingestion, or one aggregated row per scan run.
type IngestionLog struct {
	ID        string        `json:"id"`
	ProjectID string        `json:"project_id"`
	EmailID   string        `json:"email_id,omitempty"`
	Summary   IngestSummary `json:"summary"`
	Changes   ChangeSet     `json:"changes"`
	CreatedAt time.Time     `json:"created_at"`
}
