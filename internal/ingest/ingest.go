// Package ingest orchestrates one email through extraction, matching,
// change detection, and duplicate resolution. It is the only writer of
// per-email ingestion logs.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/expert-registry/internal/changes"
	"github.com/sells-group/expert-registry/internal/dedupe"
	"github.com/sells-group/expert-registry/internal/extract"
	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/normalize"
	"github.com/sells-group/expert-registry/internal/store"
)

const (
	// DefaultAutoMergeThreshold is the combined-score floor for merging a
	// freshly created record into an existing one without review.
	DefaultAutoMergeThreshold = 0.85

	// DefaultMatchThreshold is the name-similarity floor for attaching an
	// extracted profile to an existing record. Deliberately tighter than
	// the duplicate finder's fuzzy tier: attaching updates the canonical
	// record directly, so a wrong attach is worse than a missed one.
	DefaultMatchThreshold = 0.9
)

// Options tunes the orchestrator. Zero values fall back to defaults.
type Options struct {
	AutoMergeThreshold float64
	MatchThreshold     float64
}

// Request is one email to ingest.
type Request struct {
	ProjectID  string
	EmailText  string
	Network    string // optional hint; extraction may infer one
	Hypothesis string

	// SuppressLog skips the per-email ingestion log write. The scan
	// coordinator sets it and writes one aggregated log per run instead.
	SuppressLog bool
}

// Result is the outcome of one ingestion.
type Result struct {
	EmailID string
	Network string
	Summary model.IngestSummary
	Changes model.ChangeSet
}

// Orchestrator wires the store, the extraction collaborator, and the
// merge resolver into the single-email ingestion flow.
type Orchestrator struct {
	store     store.Store
	extractor extract.Extractor
	merger    *dedupe.Merger
	opts      Options
}

// New builds an orchestrator.
func New(s store.Store, extractor extract.Extractor, opts Options) *Orchestrator {
	if opts.AutoMergeThreshold == 0 {
		opts.AutoMergeThreshold = DefaultAutoMergeThreshold
	}
	if opts.MatchThreshold == 0 {
		opts.MatchThreshold = DefaultMatchThreshold
	}
	return &Orchestrator{
		store:     s,
		extractor: extractor,
		merger:    dedupe.NewMerger(s),
		opts:      opts,
	}
}

// Ingest runs one email through the full flow: persist the raw email,
// extract profiles, attach or create expert records, then resolve
// duplicates among the newly created ones.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (*Result, error) {
	email, err := o.store.CreateEmail(ctx, model.EmailRecord{
		ProjectID: req.ProjectID,
		RawText:   req.EmailText,
		Network:   req.Network,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: persist email")
	}

	extraction, err := o.extractor.Extract(ctx, extract.ExtractRequest{
		EmailText:   req.EmailText,
		Hypothesis:  req.Hypothesis,
		NetworkHint: req.Network,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: extract email %s", email.ID)
	}

	network := req.Network
	if !normalize.IsMeaningful(network) {
		network = extraction.InferredNetwork
	}

	pool, err := o.loadPool(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	result := &Result{EmailID: email.ID, Network: network}
	var created []*model.ExpertRecord

	for _, profile := range extraction.Profiles {
		rec := o.matchProfile(profile, pool)
		if rec != nil {
			if err := o.updateExpert(ctx, rec, profile, email.ID, network, result); err != nil {
				return nil, err
			}
			continue
		}

		rec, err = o.createExpert(ctx, profile, req.ProjectID, email.ID, network, result)
		if err != nil {
			return nil, err
		}
		pool = append(pool, rec)
		created = append(created, rec)
	}

	if err := o.resolveDuplicates(ctx, created, pool, result); err != nil {
		return nil, err
	}

	result.Summary = model.IngestSummary{
		AddedCount:       len(result.Changes.Added),
		UpdatedCount:     len(result.Changes.Updated),
		MergedCount:      len(result.Changes.Merged),
		NeedsReviewCount: len(result.Changes.NeedsReview),
		ExtractedCount:   len(extraction.Profiles),
		Network:          network,
		Notes:            extraction.Notes,
		IsNoOp:           result.Changes.IsEmpty(),
	}
	if result.Summary.IsNoOp && result.Summary.ExtractedCount > 0 {
		note := fmt.Sprintf("no changes: %d extracted profile(s) already known, likely a repeated or quoted thread", result.Summary.ExtractedCount)
		result.Summary.Notes = append([]string{note}, result.Summary.Notes...)
	}

	if !req.SuppressLog {
		if _, err := o.store.CreateIngestionLog(ctx, model.IngestionLog{
			ProjectID: req.ProjectID,
			EmailID:   email.ID,
			Summary:   result.Summary,
			Changes:   result.Changes,
		}); err != nil {
			return nil, eris.Wrap(err, "ingest: write ingestion log")
		}
	}

	zap.L().Info("email ingested",
		zap.String("project_id", req.ProjectID),
		zap.String("email_id", email.ID),
		zap.String("network", network),
		zap.Int("extracted", result.Summary.ExtractedCount),
		zap.Int("added", result.Summary.AddedCount),
		zap.Int("updated", result.Summary.UpdatedCount),
		zap.Int("merged", result.Summary.MergedCount),
		zap.Int("needs_review", result.Summary.NeedsReviewCount),
		zap.Bool("no_op", result.Summary.IsNoOp),
	)
	return result, nil
}

func (o *Orchestrator) loadPool(ctx context.Context, projectID string) ([]*model.ExpertRecord, error) {
	experts, err := o.store.ListExperts(ctx, store.ExpertFilter{ProjectID: projectID})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: list project experts")
	}
	pool := make([]*model.ExpertRecord, len(experts))
	for i := range experts {
		e := experts[i]
		pool[i] = &e
	}
	return pool, nil
}

// matchProfile attaches a profile to at most one existing record: exact
// normalized-name equality, or the single highest name similarity above
// the match threshold.
func (o *Orchestrator) matchProfile(profile model.ExpertProfile, pool []*model.ExpertRecord) *model.ExpertRecord {
	name := normalize.Name(profile.FullName)
	if name == "" {
		return nil
	}

	var best *model.ExpertRecord
	bestSim := o.opts.MatchThreshold
	for _, rec := range pool {
		candName := normalize.Name(rec.CanonicalName)
		if candName == name {
			return rec
		}
		if sim := dedupe.Similarity(name, candName); sim > bestSim {
			best = rec
			bestSim = sim
		}
	}
	return best
}

func (o *Orchestrator) updateExpert(ctx context.Context, rec *model.ExpertRecord, profile model.ExpertProfile, emailID, network string, result *Result) error {
	pinned, err := o.store.PinnedFields(ctx, rec.ID)
	if err != nil {
		return eris.Wrapf(err, "ingest: load pinned fields for %s", rec.ID)
	}

	diff := changes.Detect(rec, profile, pinned)
	entries := diff.Changes

	networkEntries, err := o.networkScopedChanges(ctx, rec.ID, profile, network)
	if err != nil {
		return err
	}
	entries = append(entries, networkEntries...)

	if !diff.Patch.IsZero() {
		if err := o.store.ApplyPatch(ctx, rec.ID, diff.Patch); err != nil {
			return eris.Wrapf(err, "ingest: patch expert %s", rec.ID)
		}
		applyPatchLocal(rec, diff.Patch)
	}

	if err := o.appendSource(ctx, rec.ID, emailID, network, profile); err != nil {
		return err
	}

	if len(entries) > 0 {
		result.Changes.Updated = append(result.Changes.Updated, model.UpdatedEntry{
			ExpertID:   rec.ID,
			ExpertName: rec.CanonicalName,
			Changes:    entries,
		})
	}
	return nil
}

// networkScopedChanges compares availability and screener responses
// against the latest prior source from the same network. These feed the
// change log only; they never mutate the canonical record.
func (o *Orchestrator) networkScopedChanges(ctx context.Context, expertID string, profile model.ExpertProfile, network string) ([]model.FieldChange, error) {
	sources, err := o.store.ListSources(ctx, expertID)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: list sources for %s", expertID)
	}

	var latest *model.ExpertSource
	for i := range sources {
		s := &sources[i]
		if !strings.EqualFold(s.Network, network) {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}

	prevAvailability, prevScreener := "", ""
	if latest != nil {
		prevAvailability = latest.Availability
		prevScreener = latest.ScreenerJSON
	}

	var entries []model.FieldChange
	if changes.AvailabilityChanged(prevAvailability, profile.AvailabilityWindows) {
		entries = append(entries, model.FieldChange{
			Field:    changes.Label(changes.FieldAvailability, network),
			Previous: prevAvailability,
			New:      strings.Join(profile.AvailabilityWindows, ", "),
		})
	}
	if changes.ScreenerChanged(prevScreener, profile.ScreenerResponses) {
		entries = append(entries, model.FieldChange{
			Field: changes.Label(changes.FieldScreener, network),
			New:   fmt.Sprintf("%d response(s)", len(profile.ScreenerResponses)),
		})
	}
	return entries, nil
}

func (o *Orchestrator) createExpert(ctx context.Context, profile model.ExpertProfile, projectID, emailID, network string, result *Result) (*model.ExpertRecord, error) {
	status := model.StatusRecommended
	if mapped, ok := changes.StatusFromCue(profile.StatusCue); ok {
		status = mapped
	}

	rec, err := o.store.CreateExpert(ctx, model.ExpertRecord{
		ProjectID:         projectID,
		CanonicalName:     profile.FullName,
		CanonicalEmployer: profile.Employer,
		CanonicalTitle:    profile.Title,
		Status:            status,
		ConflictStatus:    profile.ConflictStatus,
		ConflictID:        profile.ConflictID,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: create expert %q", profile.FullName)
	}

	if err := o.appendSource(ctx, rec.ID, emailID, network, profile); err != nil {
		return nil, err
	}

	result.Changes.Added = append(result.Changes.Added, model.AddedEntry{
		ExpertID:   rec.ID,
		ExpertName: rec.CanonicalName,
	})
	return rec, nil
}

func (o *Orchestrator) appendSource(ctx context.Context, expertID, emailID, network string, profile model.ExpertProfile) error {
	var screenerJSON string
	if len(profile.ScreenerResponses) > 0 {
		data, err := json.Marshal(profile.ScreenerResponses)
		if err != nil {
			return eris.Wrap(err, "ingest: marshal screener responses")
		}
		screenerJSON = string(data)
	}

	source, err := o.store.AppendSource(ctx, model.ExpertSource{
		ExpertID:     expertID,
		EmailID:      emailID,
		Network:      network,
		Name:         profile.FullName,
		Employer:     profile.Employer,
		Title:        profile.Title,
		Bio:          strings.Join(profile.RelevanceBullets, "\n"),
		ScreenerJSON: screenerJSON,
		Availability: strings.Join(profile.AvailabilityWindows, ", "),
		StatusCue:    profile.StatusCue,
	})
	if err != nil {
		return eris.Wrapf(err, "ingest: append source for %s", expertID)
	}

	rows := provenanceRows(source.ID, profile)
	if len(rows) == 0 {
		return nil
	}
	if err := o.store.AppendProvenance(ctx, rows); err != nil {
		return eris.Wrapf(err, "ingest: append provenance for source %s", source.ID)
	}
	return nil
}

func provenanceRows(sourceID string, profile model.ExpertProfile) []model.FieldProvenance {
	var rows []model.FieldProvenance
	add := func(field string, prov *model.Provenance) {
		if prov == nil || prov.Excerpt == "" {
			return
		}
		rows = append(rows, model.FieldProvenance{
			SourceID:   sourceID,
			FieldName:  field,
			Excerpt:    prov.Excerpt,
			Confidence: prov.Confidence,
		})
	}

	add("full_name", profile.FullNameProv)
	add(changes.FieldEmployer, profile.EmployerProv)
	add(changes.FieldTitle, profile.TitleProv)
	add("relevance_bullets", profile.RelevanceProv)
	add("screener_responses", profile.ScreenerProv)
	add("conflict", profile.ConflictProv)
	add(changes.FieldAvailability, profile.AvailabilityProv)
	add("status_cue", profile.StatusCueProv)
	return rows
}

// resolveDuplicates runs the full duplicate finder over each record this
// ingestion created. High-confidence candidates merge immediately; the
// rest queue for human review. A failed merge degrades to review, never
// aborts the ingestion.
func (o *Orchestrator) resolveDuplicates(ctx context.Context, created, pool []*model.ExpertRecord, result *Result) error {
	retired := make(map[string]bool)

	for _, rec := range created {
		if retired[rec.ID] {
			continue
		}

		live := pool[:0:0]
		for _, cand := range pool {
			if !retired[cand.ID] {
				live = append(live, cand)
			}
		}

		// Every candidate gets a verdict, not just the best one. A record
		// can plausibly duplicate two existing experts at once, and each
		// pair needs its own merged or review entry.
		for _, m := range dedupe.FindCandidates(rec, live) {
			if retired[rec.ID] {
				break
			}
			if retired[m.Candidate.ID] {
				continue
			}

			if m.Score < o.opts.AutoMergeThreshold {
				result.Changes.NeedsReview = append(result.Changes.NeedsReview, model.ReviewEntry{
					ExpertIDA: rec.ID,
					ExpertIDB: m.Candidate.ID,
					Score:     m.Score,
					Reason:    fmt.Sprintf("possible duplicate (%s tier, score %.2f)", m.Tier, m.Score),
				})
				continue
			}

			survivor, err := o.merger.Merge(ctx, rec.ID, m.Candidate.ID)
			if err != nil {
				zap.L().Warn("auto-merge failed, queued for review",
					zap.String("expert_id_a", rec.ID),
					zap.String("expert_id_b", m.Candidate.ID),
					zap.Error(err))
				result.Changes.NeedsReview = append(result.Changes.NeedsReview, model.ReviewEntry{
					ExpertIDA: rec.ID,
					ExpertIDB: m.Candidate.ID,
					Score:     m.Score,
					Reason:    "auto-merge failed: " + err.Error(),
				})
				continue
			}

			retiredID := rec.ID
			if survivor.ID == rec.ID {
				retiredID = m.Candidate.ID
			}
			retired[retiredID] = true

			result.Changes.Merged = append(result.Changes.Merged, model.MergedEntry{
				SurvivorID: survivor.ID,
				RetiredID:  retiredID,
				Score:      m.Score,
				MatchTier:  string(m.Tier),
			})
		}
	}
	return nil
}

func applyPatchLocal(rec *model.ExpertRecord, p model.Patch) {
	if p.Employer != nil {
		rec.CanonicalEmployer = *p.Employer
	}
	if p.Title != nil {
		rec.CanonicalTitle = *p.Title
	}
	if p.ConflictStatus != nil {
		rec.ConflictStatus = *p.ConflictStatus
	}
	if p.ConflictID != nil {
		rec.ConflictID = *p.ConflictID
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
}
