// Package scan drives batch ingestion of an inbox: one ScanRun row per
// invocation, one ScannedMessage marker per attempted message, one
// aggregated ingestion log per run.
package scan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/expert-registry/internal/inbox"
	"github.com/sells-group/expert-registry/internal/ingest"
	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/store"
)

// DefaultMinBodyLength is the floor below which a message body is not
// worth an extraction call.
const DefaultMinBodyLength = 50

// Options tunes the coordinator.
type Options struct {
	Filter        inbox.Filter
	MinBodyLength int
	Hypothesis    string
}

// Coordinator runs batch scans. Messages are processed strictly
// sequentially so each message's matching step sees the records the
// previous one created. Concurrent scans of the same project are not
// supported; callers must serialize them.
type Coordinator struct {
	store  store.Store
	inbox  inbox.Client
	ingest *ingest.Orchestrator
	opts   Options
}

// New builds a coordinator.
func New(s store.Store, client inbox.Client, orchestrator *ingest.Orchestrator, opts Options) *Coordinator {
	if opts.MinBodyLength == 0 {
		opts.MinBodyLength = DefaultMinBodyLength
	}
	return &Coordinator{store: s, inbox: client, ingest: orchestrator, opts: opts}
}

// Scan processes up to maxMessages unseen inbox messages for a project.
// The run completes even when individual messages fail; it is finalized
// "failed" only when no message could be attempted at all.
func (c *Coordinator) Scan(ctx context.Context, projectID string, maxMessages int) (*model.ScanRun, error) {
	run, err := c.store.CreateScanRun(ctx, projectID, maxMessages)
	if err != nil {
		return nil, eris.Wrap(err, "scan: create run")
	}

	msgs, err := c.listUnseen(ctx, projectID, maxMessages)
	if err != nil {
		run.Status = model.ScanFailed
		run.ErrorDetails = []string{err.Error()}
		if finErr := c.store.FinalizeScanRun(ctx, run); finErr != nil {
			zap.L().Error("failed to finalize failed scan run",
				zap.String("run_id", run.ID), zap.Error(finErr))
		}
		return run, err
	}

	var aggregated model.ChangeSet
	var notes []string

	for _, msg := range msgs {
		if ctx.Err() != nil {
			run.ErrorDetails = append(run.ErrorDetails, "scan interrupted: "+ctx.Err().Error())
			break
		}
		run.MessagesConsidered++

		status := c.processMessage(ctx, projectID, msg, run, &aggregated, &notes)
		c.markScanned(ctx, projectID, msg, status)
	}

	if !aggregated.IsEmpty() || run.MessagesProcessed > 0 {
		summary := model.IngestSummary{
			AddedCount:       len(aggregated.Added),
			UpdatedCount:     len(aggregated.Updated),
			MergedCount:      len(aggregated.Merged),
			NeedsReviewCount: len(aggregated.NeedsReview),
			Notes:            notes,
			IsNoOp:           aggregated.IsEmpty(),
		}
		if _, err := c.store.CreateIngestionLog(ctx, model.IngestionLog{
			ProjectID: projectID,
			Summary:   summary,
			Changes:   aggregated,
		}); err != nil {
			run.ErrorDetails = append(run.ErrorDetails, "write aggregated log: "+err.Error())
		}
	}

	run.Status = model.ScanCompleted
	if err := c.store.FinalizeScanRun(ctx, run); err != nil {
		return run, eris.Wrap(err, "scan: finalize run")
	}

	zap.L().Info("scan run finished",
		zap.String("run_id", run.ID),
		zap.String("project_id", projectID),
		zap.Int("considered", run.MessagesConsidered),
		zap.Int("processed", run.MessagesProcessed),
		zap.Int("skipped", run.MessagesSkipped),
		zap.Int("failed", run.MessagesFailed),
	)
	return run, nil
}

// listUnseen lists inbox messages, applies the sender/keyword filter, and
// drops everything already carrying a scanned-message marker.
func (c *Coordinator) listUnseen(ctx context.Context, projectID string, maxMessages int) ([]inbox.Message, error) {
	// over-fetch so filtering and dedup still leave up to maxMessages
	listLimit := 0
	if maxMessages > 0 {
		listLimit = maxMessages * 4
	}
	msgs, err := c.inbox.ListMessages(ctx, listLimit, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scan: list inbox")
	}

	seen, err := c.store.ScannedMessageIDs(ctx, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "scan: load scanned markers")
	}

	var out []inbox.Message
	for _, m := range msgs {
		if !c.opts.Filter.Matches(m) || seen[m.ProviderID] {
			continue
		}
		out = append(out, m)
		if maxMessages > 0 && len(out) >= maxMessages {
			break
		}
	}
	return out, nil
}

func (c *Coordinator) processMessage(ctx context.Context, projectID string, msg inbox.Message, run *model.ScanRun, aggregated *model.ChangeSet, notes *[]string) model.MessageStatus {
	body, err := c.inbox.GetBody(ctx, msg.ProviderID)
	if err != nil {
		run.MessagesFailed++
		run.ErrorDetails = append(run.ErrorDetails, fmt.Sprintf("%s: fetch body: %v", msg.ProviderID, err))
		return model.MessageFailed
	}

	if len(strings.TrimSpace(body)) < c.opts.MinBodyLength {
		run.MessagesSkipped++
		return model.MessageSkipped
	}

	result, err := c.ingest.Ingest(ctx, ingest.Request{
		ProjectID:   projectID,
		EmailText:   body,
		Network:     inbox.DetectNetwork(msg),
		Hypothesis:  c.opts.Hypothesis,
		SuppressLog: true,
	})
	if err != nil {
		run.MessagesFailed++
		run.ErrorDetails = append(run.ErrorDetails, fmt.Sprintf("%s: ingest: %v", msg.ProviderID, err))
		return model.MessageFailed
	}

	run.MessagesProcessed++
	run.ExpertsAdded += result.Summary.AddedCount
	run.ExpertsUpdated += result.Summary.UpdatedCount
	run.ExpertsMerged += result.Summary.MergedCount
	aggregated.Extend(result.Changes)
	*notes = append(*notes, result.Summary.Notes...)
	return model.MessageProcessed
}

// markScanned writes the idempotency marker right after the attempt so a
// rerun never retries this message, whatever the outcome was.
func (c *Coordinator) markScanned(ctx context.Context, projectID string, msg inbox.Message, status model.MessageStatus) {
	received := msg.ReceivedAt
	var receivedPtr *time.Time
	if !received.IsZero() {
		receivedPtr = &received
	}

	err := c.store.RecordScannedMessage(ctx, model.ScannedMessage{
		ProjectID:         projectID,
		ProviderMessageID: msg.ProviderID,
		Subject:           msg.Subject,
		Sender:            msg.Sender,
		ReceivedAt:        receivedPtr,
		Status:            status,
	})
	if err != nil {
		zap.L().Error("failed to record scanned message",
			zap.String("provider_message_id", msg.ProviderID), zap.Error(err))
	}
}
