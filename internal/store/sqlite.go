package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS experts (
	id                   TEXT PRIMARY KEY,
	project_id           TEXT NOT NULL,
	canonical_name       TEXT NOT NULL,
	canonical_employer   TEXT NOT NULL DEFAULT '',
	canonical_title      TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'recommended',
	conflict_status      TEXT NOT NULL DEFAULT '',
	conflict_id          TEXT NOT NULL DEFAULT '',
	screening_grade      TEXT NOT NULL DEFAULT '',
	screening_score      INTEGER NOT NULL DEFAULT 0,
	screening_rationale  TEXT NOT NULL DEFAULT '',
	screening_confidence TEXT NOT NULL DEFAULT '',
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS expert_sources (
	id                     TEXT PRIMARY KEY,
	expert_id              TEXT NOT NULL REFERENCES experts(id),
	email_id               TEXT NOT NULL,
	network                TEXT NOT NULL DEFAULT '',
	extracted_name         TEXT NOT NULL,
	extracted_employer     TEXT NOT NULL DEFAULT '',
	extracted_title        TEXT NOT NULL DEFAULT '',
	extracted_bio          TEXT NOT NULL DEFAULT '',
	extracted_screener     TEXT NOT NULL DEFAULT '',
	extracted_availability TEXT NOT NULL DEFAULT '',
	extracted_status_cue   TEXT NOT NULL DEFAULT '',
	created_at             DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS field_provenance (
	id           TEXT PRIMARY KEY,
	source_id    TEXT NOT NULL REFERENCES expert_sources(id),
	field_name   TEXT NOT NULL,
	excerpt_text TEXT NOT NULL DEFAULT '',
	confidence   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS user_edits (
	id         TEXT PRIMARY KEY,
	expert_id  TEXT NOT NULL,
	field_name TEXT NOT NULL,
	edited_at  DATETIME NOT NULL,
	UNIQUE(expert_id, field_name)
);

CREATE TABLE IF NOT EXISTS emails (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	raw_text   TEXT NOT NULL,
	network    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ingestion_logs (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	email_id   TEXT NOT NULL DEFAULT '',
	summary    TEXT NOT NULL,
	changes    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_runs (
	id                  TEXT PRIMARY KEY,
	project_id          TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'running',
	max_messages        INTEGER NOT NULL DEFAULT 0,
	messages_considered INTEGER NOT NULL DEFAULT 0,
	messages_processed  INTEGER NOT NULL DEFAULT 0,
	messages_skipped    INTEGER NOT NULL DEFAULT 0,
	messages_failed     INTEGER NOT NULL DEFAULT 0,
	experts_added       INTEGER NOT NULL DEFAULT 0,
	experts_updated     INTEGER NOT NULL DEFAULT 0,
	experts_merged      INTEGER NOT NULL DEFAULT 0,
	error_details       TEXT NOT NULL DEFAULT '[]',
	started_at          DATETIME NOT NULL,
	completed_at        DATETIME
);

CREATE TABLE IF NOT EXISTS scanned_messages (
	id                  TEXT PRIMARY KEY,
	project_id          TEXT NOT NULL,
	provider_message_id TEXT NOT NULL,
	subject             TEXT NOT NULL DEFAULT '',
	sender              TEXT NOT NULL DEFAULT '',
	received_at         DATETIME,
	status              TEXT NOT NULL,
	scanned_at          DATETIME NOT NULL,
	UNIQUE(project_id, provider_message_id)
);

CREATE INDEX IF NOT EXISTS idx_experts_project_id ON experts(project_id);
CREATE INDEX IF NOT EXISTS idx_experts_status ON experts(project_id, status);
CREATE INDEX IF NOT EXISTS idx_expert_sources_expert_id ON expert_sources(expert_id);
CREATE INDEX IF NOT EXISTS idx_field_provenance_source_id ON field_provenance(source_id);
CREATE INDEX IF NOT EXISTS idx_user_edits_expert_id ON user_edits(expert_id);
CREATE INDEX IF NOT EXISTS idx_ingestion_logs_project_id ON ingestion_logs(project_id);
CREATE INDEX IF NOT EXISTS idx_scan_runs_project_id ON scan_runs(project_id);
CREATE INDEX IF NOT EXISTS idx_scanned_messages_project_id ON scanned_messages(project_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// experts

func (s *SQLiteStore) CreateExpert(ctx context.Context, expert model.ExpertRecord) (*model.ExpertRecord, error) {
	expert.ID = uuid.New().String()
	now := time.Now().UTC()
	expert.CreatedAt = now
	expert.UpdatedAt = now
	if expert.Status == "" {
		expert.Status = model.StatusRecommended
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experts (id, project_id, canonical_name, canonical_employer, canonical_title,
			status, conflict_status, conflict_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expert.ID, expert.ProjectID, expert.CanonicalName, expert.CanonicalEmployer, expert.CanonicalTitle,
		string(expert.Status), string(expert.ConflictStatus), expert.ConflictID, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert expert")
	}
	return &expert, nil
}

const expertColumns = `id, project_id, canonical_name, canonical_employer, canonical_title,
	status, conflict_status, conflict_id, screening_grade, screening_score,
	screening_rationale, screening_confidence, created_at, updated_at`

func (s *SQLiteStore) GetExpert(ctx context.Context, id string) (*model.ExpertRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+expertColumns+` FROM experts WHERE id = ?`, id,
	)
	return scanExpert(row, id)
}

func (s *SQLiteStore) ListExperts(ctx context.Context, filter ExpertFilter) ([]model.ExpertRecord, error) {
	query := `SELECT ` + expertColumns + ` FROM experts WHERE 1=1`
	var args []any
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list experts")
	}
	defer rows.Close()

	var experts []model.ExpertRecord
	for rows.Next() {
		e, err := scanExpert(rows, "")
		if err != nil {
			return nil, err
		}
		experts = append(experts, *e)
	}
	return experts, eris.Wrap(rows.Err(), "sqlite: list experts rows")
}

func (s *SQLiteStore) ApplyPatch(ctx context.Context, id string, patch model.Patch) error {
	if patch.IsZero() {
		return nil
	}

	var sets []string
	var args []any
	if patch.Employer != nil {
		sets = append(sets, "canonical_employer = ?")
		args = append(args, *patch.Employer)
	}
	if patch.Title != nil {
		sets = append(sets, "canonical_title = ?")
		args = append(args, *patch.Title)
	}
	if patch.ConflictStatus != nil {
		sets = append(sets, "conflict_status = ?")
		args = append(args, string(*patch.ConflictStatus))
	}
	if patch.ConflictID != nil {
		sets = append(sets, "conflict_id = ?")
		args = append(args, *patch.ConflictID)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE experts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: patch expert %s", id)
	}
	return checkRowsAffected(res, "expert", id)
}

func (s *SQLiteStore) UpdateScreening(ctx context.Context, id string, result model.ScreeningResult) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE experts SET screening_grade = ?, screening_score = ?, screening_rationale = ?,
			screening_confidence = ?, updated_at = ? WHERE id = ?`,
		string(result.Grade), result.Score, result.Rationale, string(result.Confidence),
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update screening %s", id)
	}
	return checkRowsAffected(res, "expert", id)
}

// DeleteExpert removes an expert and its dependent rows. This is the only
// supported correction path; there is no undo.
func (s *SQLiteStore) DeleteExpert(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: delete expert: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM field_provenance WHERE source_id IN (SELECT id FROM expert_sources WHERE expert_id = ?)`, id,
	); err != nil {
		return eris.Wrapf(err, "sqlite: delete provenance for expert %s", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM expert_sources WHERE expert_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete sources for expert %s", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_edits WHERE expert_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete user edits for expert %s", id)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM experts WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete expert %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(resilience.ErrNotFound, "sqlite: expert %s", id)
	}
	return eris.Wrap(tx.Commit(), "sqlite: delete expert: commit")
}

// ImportExperts upserts roster rows keyed by id. Records without an id are
// assigned one.
func (s *SQLiteStore) ImportExperts(ctx context.Context, experts []model.ExpertRecord) (int, error) {
	if len(experts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import experts: begin tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, e := range experts {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.Status == "" {
			e.Status = model.StatusRecommended
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO experts (id, project_id, canonical_name, canonical_employer, canonical_title,
				status, conflict_status, conflict_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				canonical_name = excluded.canonical_name,
				canonical_employer = excluded.canonical_employer,
				canonical_title = excluded.canonical_title,
				status = excluded.status,
				conflict_status = excluded.conflict_status,
				conflict_id = excluded.conflict_id,
				updated_at = excluded.updated_at`,
			e.ID, e.ProjectID, e.CanonicalName, e.CanonicalEmployer, e.CanonicalTitle,
			string(e.Status), string(e.ConflictStatus), e.ConflictID, now, now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import expert %s", e.CanonicalName)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import experts: commit")
	}
	return len(experts), nil
}

// sources

func (s *SQLiteStore) AppendSource(ctx context.Context, source model.ExpertSource) (*model.ExpertSource, error) {
	source.ID = uuid.New().String()
	source.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expert_sources (id, expert_id, email_id, network, extracted_name,
			extracted_employer, extracted_title, extracted_bio, extracted_screener,
			extracted_availability, extracted_status_cue, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		source.ID, source.ExpertID, source.EmailID, source.Network, source.Name,
		source.Employer, source.Title, source.Bio, source.ScreenerJSON,
		source.Availability, string(source.StatusCue), source.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert source")
	}
	return &source, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context, expertID string) ([]model.ExpertSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, expert_id, email_id, network, extracted_name, extracted_employer,
			extracted_title, extracted_bio, extracted_screener, extracted_availability,
			extracted_status_cue, created_at
		 FROM expert_sources WHERE expert_id = ? ORDER BY created_at, id`,
		expertID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var sources []model.ExpertSource
	for rows.Next() {
		var src model.ExpertSource
		var cue string
		if err := rows.Scan(&src.ID, &src.ExpertID, &src.EmailID, &src.Network, &src.Name,
			&src.Employer, &src.Title, &src.Bio, &src.ScreenerJSON, &src.Availability,
			&cue, &src.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		src.StatusCue = model.StatusCue(cue)
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources rows")
}

func (s *SQLiteStore) CountSources(ctx context.Context, expertID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expert_sources WHERE expert_id = ?`, expertID,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count sources")
}

// ReassignSourcesAndDelete moves every source of the retired expert to the
// survivor and deletes the retired expert in one transaction, so no state
// exists where sources reference a deleted record.
func (s *SQLiteStore) ReassignSourcesAndDelete(ctx context.Context, survivorID, retiredID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: reassign: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE expert_sources SET expert_id = ? WHERE expert_id = ?`, survivorID, retiredID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: reassign sources %s <- %s", survivorID, retiredID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_edits WHERE expert_id = ?`, retiredID); err != nil {
		return eris.Wrapf(err, "sqlite: delete user edits %s", retiredID)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM experts WHERE id = ?`, retiredID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete retired expert %s", retiredID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(resilience.ErrNotFound, "sqlite: expert %s", retiredID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: reassign: commit")
}

// provenance

func (s *SQLiteStore) AppendProvenance(ctx context.Context, provRows []model.FieldProvenance) error {
	if len(provRows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: provenance: begin tx")
	}
	defer tx.Rollback()

	for _, p := range provRows {
		id := p.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO field_provenance (id, source_id, field_name, excerpt_text, confidence)
			 VALUES (?, ?, ?, ?, ?)`,
			id, p.SourceID, p.FieldName, p.Excerpt, string(p.Confidence),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert provenance %s", p.FieldName)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: provenance: commit")
}

func (s *SQLiteStore) ListProvenance(ctx context.Context, sourceID string) ([]model.FieldProvenance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, field_name, excerpt_text, confidence
		 FROM field_provenance WHERE source_id = ? ORDER BY field_name`,
		sourceID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list provenance")
	}
	defer rows.Close()

	var provRows []model.FieldProvenance
	for rows.Next() {
		var p model.FieldProvenance
		var conf string
		if err := rows.Scan(&p.ID, &p.SourceID, &p.FieldName, &p.Excerpt, &conf); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provenance")
		}
		p.Confidence = model.Confidence(conf)
		provRows = append(provRows, p)
	}
	return provRows, eris.Wrap(rows.Err(), "sqlite: list provenance rows")
}

// user edits

func (s *SQLiteStore) PinField(ctx context.Context, expertID, fieldName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_edits (id, expert_id, field_name, edited_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(expert_id, field_name) DO UPDATE SET edited_at = excluded.edited_at`,
		uuid.New().String(), expertID, fieldName, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: pin field %s", fieldName)
}

func (s *SQLiteStore) PinnedFields(ctx context.Context, expertID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT field_name FROM user_edits WHERE expert_id = ?`, expertID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: pinned fields")
	}
	defer rows.Close()

	pinned := make(map[string]bool)
	for rows.Next() {
		var field string
		if err := rows.Scan(&field); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pinned field")
		}
		pinned[field] = true
	}
	return pinned, eris.Wrap(rows.Err(), "sqlite: pinned fields rows")
}

// emails

func (s *SQLiteStore) CreateEmail(ctx context.Context, email model.EmailRecord) (*model.EmailRecord, error) {
	email.ID = uuid.New().String()
	email.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO emails (id, project_id, raw_text, network, created_at) VALUES (?, ?, ?, ?, ?)`,
		email.ID, email.ProjectID, email.RawText, email.Network, email.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert email")
	}
	return &email, nil
}

// ingestion logs

func (s *SQLiteStore) CreateIngestionLog(ctx context.Context, log model.IngestionLog) (*model.IngestionLog, error) {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now().UTC()

	summaryJSON, err := json.Marshal(log.Summary)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal summary")
	}
	changesJSON, err := json.Marshal(log.Changes)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal changes")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingestion_logs (id, project_id, email_id, summary, changes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		log.ID, log.ProjectID, log.EmailID, string(summaryJSON), string(changesJSON), log.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert ingestion log")
	}
	return &log, nil
}

func (s *SQLiteStore) ListIngestionLogs(ctx context.Context, projectID string, limit int) ([]model.IngestionLog, error) {
	query := `SELECT id, project_id, email_id, summary, changes, created_at
		FROM ingestion_logs WHERE project_id = ? ORDER BY created_at DESC, id`
	args := []any{projectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ingestion logs")
	}
	defer rows.Close()

	var logs []model.IngestionLog
	for rows.Next() {
		var l model.IngestionLog
		var summaryJSON, changesJSON string
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.EmailID, &summaryJSON, &changesJSON, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ingestion log")
		}
		if err := json.Unmarshal([]byte(summaryJSON), &l.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
		if err := json.Unmarshal([]byte(changesJSON), &l.Changes); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal changes")
		}
		logs = append(logs, l)
	}
	return logs, eris.Wrap(rows.Err(), "sqlite: list ingestion logs rows")
}

// scan runs

func (s *SQLiteStore) CreateScanRun(ctx context.Context, projectID string, maxMessages int) (*model.ScanRun, error) {
	run := model.ScanRun{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Status:      model.ScanRunning,
		MaxMessages: maxMessages,
		StartedAt:   time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_runs (id, project_id, status, max_messages, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.ProjectID, string(run.Status), run.MaxMessages, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert scan run")
	}
	return &run, nil
}

// FinalizeScanRun writes the terminal status, counters, and error details.
// Sets CompletedAt on the passed run.
func (s *SQLiteStore) FinalizeScanRun(ctx context.Context, run *model.ScanRun) error {
	now := time.Now().UTC()
	run.CompletedAt = &now

	detailsJSON, err := json.Marshal(run.ErrorDetails)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal error details")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE scan_runs SET status = ?, messages_considered = ?, messages_processed = ?,
			messages_skipped = ?, messages_failed = ?, experts_added = ?, experts_updated = ?,
			experts_merged = ?, error_details = ?, completed_at = ? WHERE id = ?`,
		string(run.Status), run.MessagesConsidered, run.MessagesProcessed,
		run.MessagesSkipped, run.MessagesFailed, run.ExpertsAdded, run.ExpertsUpdated,
		run.ExpertsMerged, string(detailsJSON), now, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize scan run %s", run.ID)
	}
	return checkRowsAffected(res, "scan run", run.ID)
}

func (s *SQLiteStore) GetScanRun(ctx context.Context, id string) (*model.ScanRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scanRunColumns+` FROM scan_runs WHERE id = ?`, id,
	)
	return scanScanRun(row, id)
}

func (s *SQLiteStore) ListScanRuns(ctx context.Context, filter ScanRunFilter) ([]model.ScanRun, error) {
	query := `SELECT ` + scanRunColumns + ` FROM scan_runs WHERE 1=1`
	var args []any
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	query += ` ORDER BY started_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scan runs")
	}
	defer rows.Close()

	var runs []model.ScanRun
	for rows.Next() {
		r, err := scanScanRun(rows, "")
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list scan runs rows")
}

// scanned messages

func (s *SQLiteStore) ScannedMessageIDs(ctx context.Context, projectID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider_message_id FROM scanned_messages WHERE project_id = ?`, projectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scanned message ids")
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan message id")
		}
		seen[id] = true
	}
	return seen, eris.Wrap(rows.Err(), "sqlite: scanned message ids rows")
}

func (s *SQLiteStore) RecordScannedMessage(ctx context.Context, msg model.ScannedMessage) error {
	var receivedAt any
	if msg.ReceivedAt != nil {
		receivedAt = *msg.ReceivedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scanned_messages (id, project_id, provider_message_id, subject, sender,
			received_at, status, scanned_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, provider_message_id) DO NOTHING`,
		uuid.New().String(), msg.ProjectID, msg.ProviderMessageID, msg.Subject, msg.Sender,
		receivedAt, string(msg.Status), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: record scanned message")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(resilience.ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanExpert(row scannable, id string) (*model.ExpertRecord, error) {
	var e model.ExpertRecord
	var status, conflictStatus, screeningConfidence string

	err := row.Scan(&e.ID, &e.ProjectID, &e.CanonicalName, &e.CanonicalEmployer, &e.CanonicalTitle,
		&status, &conflictStatus, &e.ConflictID, &e.ScreeningGrade, &e.ScreeningScore,
		&e.ScreeningRationale, &screeningConfidence, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(resilience.ErrNotFound, "expert %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan expert")
	}

	e.Status = model.ExpertStatus(status)
	e.ConflictStatus = model.ConflictStatus(conflictStatus)
	e.ScreeningConfidence = model.Confidence(screeningConfidence)
	return &e, nil
}

const scanRunColumns = `id, project_id, status, max_messages, messages_considered,
	messages_processed, messages_skipped, messages_failed, experts_added,
	experts_updated, experts_merged, error_details, started_at, completed_at`

func scanScanRun(row scannable, id string) (*model.ScanRun, error) {
	var r model.ScanRun
	var status, detailsJSON string
	var completedAt sql.NullTime

	err := row.Scan(&r.ID, &r.ProjectID, &status, &r.MaxMessages, &r.MessagesConsidered,
		&r.MessagesProcessed, &r.MessagesSkipped, &r.MessagesFailed, &r.ExpertsAdded,
		&r.ExpertsUpdated, &r.ExpertsMerged, &detailsJSON, &r.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(resilience.ErrNotFound, "scan run %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan scan run")
	}

	r.Status = model.ScanStatus(status)
	if detailsJSON != "" {
		if err := json.Unmarshal([]byte(detailsJSON), &r.ErrorDetails); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal error details")
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}
