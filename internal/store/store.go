package store

import (
	"context"

	"github.com/sells-group/expert-registry/internal/model"
)

// ExpertFilter specifies criteria for listing experts.
type ExpertFilter struct {
	ProjectID string             `json:"project_id,omitempty"`
	Status    model.ExpertStatus `json:"status,omitempty"`
	Limit     int                `json:"limit,omitempty"`
	Offset    int                `json:"offset,omitempty"`
}

// ScanRunFilter specifies criteria for listing scan runs.
type ScanRunFilter struct {
	ProjectID string `json:"project_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the expert registry.
type Store interface {
	// Experts
	CreateExpert(ctx context.Context, expert model.ExpertRecord) (*model.ExpertRecord, error)
	GetExpert(ctx context.Context, id string) (*model.ExpertRecord, error)
	ListExperts(ctx context.Context, filter ExpertFilter) ([]model.ExpertRecord, error)
	ApplyPatch(ctx context.Context, id string, patch model.Patch) error
	UpdateScreening(ctx context.Context, id string, result model.ScreeningResult) error
	DeleteExpert(ctx context.Context, id string) error
	ImportExperts(ctx context.Context, experts []model.ExpertRecord) (int, error)

	// Sources. Rows are append-only; reassignment during a merge is the
	// only mutation, and it happens atomically with the loser's deletion.
	AppendSource(ctx context.Context, source model.ExpertSource) (*model.ExpertSource, error)
	ListSources(ctx context.Context, expertID string) ([]model.ExpertSource, error)
	CountSources(ctx context.Context, expertID string) (int, error)
	ReassignSourcesAndDelete(ctx context.Context, survivorID, retiredID string) error

	// Provenance
	AppendProvenance(ctx context.Context, rows []model.FieldProvenance) error
	ListProvenance(ctx context.Context, sourceID string) ([]model.FieldProvenance, error)

	// User edits
	PinField(ctx context.Context, expertID, fieldName string) error
	PinnedFields(ctx context.Context, expertID string) (map[string]bool, error)

	// Emails
	CreateEmail(ctx context.Context, email model.EmailRecord) (*model.EmailRecord, error)

	// Ingestion logs
	CreateIngestionLog(ctx context.Context, log model.IngestionLog) (*model.IngestionLog, error)
	ListIngestionLogs(ctx context.Context, projectID string, limit int) ([]model.IngestionLog, error)

	// Scan runs
	CreateScanRun(ctx context.Context, projectID string, maxMessages int) (*model.ScanRun, error)
	FinalizeScanRun(ctx context.Context, run *model.ScanRun) error
	GetScanRun(ctx context.Context, id string) (*model.ScanRun, error)
	ListScanRuns(ctx context.Context, filter ScanRunFilter) ([]model.ScanRun, error)

	// Scanned messages (idempotency markers)
	ScannedMessageIDs(ctx context.Context, projectID string) (map[string]bool, error)
	RecordScannedMessage(ctx context.Context, msg model.ScannedMessage) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
