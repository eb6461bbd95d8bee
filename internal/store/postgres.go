package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/expert-registry/internal/db"
	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations during a scan.
var preparedStatements = map[string]string{
	"get_expert":     `SELECT ` + expertColumns + ` FROM experts WHERE id = $1`,
	"insert_source":  insertSourceSQL,
	"pinned_fields":  `SELECT DISTINCT field_name FROM user_edits WHERE expert_id = $1`,
	"scanned_ids":    `SELECT provider_message_id FROM scanned_messages WHERE project_id = $1`,
	"record_scanned": recordScannedSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// Pool returns the underlying database pool for subsystems needing direct
// query access (e.g., roster import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
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
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
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
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
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
	edited_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(expert_id, field_name)
);

CREATE TABLE IF NOT EXISTS emails (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	raw_text   TEXT NOT NULL,
	network    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingestion_logs (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	email_id   TEXT NOT NULL DEFAULT '',
	summary    JSONB NOT NULL,
	changes    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
	error_details       JSONB NOT NULL DEFAULT '[]',
	started_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at        TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS scanned_messages (
	id                  TEXT PRIMARY KEY,
	project_id          TEXT NOT NULL,
	provider_message_id TEXT NOT NULL,
	subject             TEXT NOT NULL DEFAULT '',
	sender              TEXT NOT NULL DEFAULT '',
	received_at         TIMESTAMPTZ,
	status              TEXT NOT NULL,
	scanned_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
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

const insertSourceSQL = `INSERT INTO expert_sources (id, expert_id, email_id, network, extracted_name,
	extracted_employer, extracted_title, extracted_bio, extracted_screener,
	extracted_availability, extracted_status_cue, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const recordScannedSQL = `INSERT INTO scanned_messages (id, project_id, provider_message_id, subject,
	sender, received_at, status, scanned_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (project_id, provider_message_id) DO NOTHING`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// experts

func (s *PostgresStore) CreateExpert(ctx context.Context, expert model.ExpertRecord) (*model.ExpertRecord, error) {
	expert.ID = uuid.New().String()
	now := time.Now().UTC()
	expert.CreatedAt = now
	expert.UpdatedAt = now
	if expert.Status == "" {
		expert.Status = model.StatusRecommended
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO experts (id, project_id, canonical_name, canonical_employer, canonical_title,
			status, conflict_status, conflict_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		expert.ID, expert.ProjectID, expert.CanonicalName, expert.CanonicalEmployer, expert.CanonicalTitle,
		string(expert.Status), string(expert.ConflictStatus), expert.ConflictID, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert expert")
	}
	return &expert, nil
}

func (s *PostgresStore) GetExpert(ctx context.Context, id string) (*model.ExpertRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+expertColumns+` FROM experts WHERE id = $1`, id)
	return scanExpertPgx(row, id)
}

func (s *PostgresStore) ListExperts(ctx context.Context, filter ExpertFilter) ([]model.ExpertRecord, error) {
	query := `SELECT ` + expertColumns + ` FROM experts WHERE 1=1`
	var args []any
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		query += ` AND project_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += ` OFFSET $` + strconv.Itoa(len(args))
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list experts")
	}
	defer rows.Close()

	var experts []model.ExpertRecord
	for rows.Next() {
		e, err := scanExpertPgx(rows, "")
		if err != nil {
			return nil, err
		}
		experts = append(experts, *e)
	}
	return experts, eris.Wrap(rows.Err(), "postgres: list experts rows")
}

func (s *PostgresStore) ApplyPatch(ctx context.Context, id string, patch model.Patch) error {
	if patch.IsZero() {
		return nil
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if patch.Employer != nil {
		add("canonical_employer", *patch.Employer)
	}
	if patch.Title != nil {
		add("canonical_title", *patch.Title)
	}
	if patch.ConflictStatus != nil {
		add("conflict_status", string(*patch.ConflictStatus))
	}
	if patch.ConflictID != nil {
		add("conflict_id", *patch.ConflictID)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		`UPDATE experts SET `+strings.Join(sets, ", ")+` WHERE id = $`+strconv.Itoa(len(args)),
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: patch expert %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(resilience.ErrNotFound, "expert %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateScreening(ctx context.Context, id string, result model.ScreeningResult) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE experts SET screening_grade = $1, screening_score = $2, screening_rationale = $3,
			screening_confidence = $4, updated_at = $5 WHERE id = $6`,
		string(result.Grade), result.Score, result.Rationale, string(result.Confidence),
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update screening %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(resilience.ErrNotFound, "expert %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteExpert(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: delete expert: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM field_provenance WHERE source_id IN (SELECT id FROM expert_sources WHERE expert_id = $1)`, id,
	); err != nil {
		return eris.Wrapf(err, "postgres: delete provenance for expert %s", id)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM expert_sources WHERE expert_id = $1`, id); err != nil {
		return eris.Wrapf(err, "postgres: delete sources for expert %s", id)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM user_edits WHERE expert_id = $1`, id); err != nil {
		return eris.Wrapf(err, "postgres: delete user edits for expert %s", id)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM experts WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete expert %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(resilience.ErrNotFound, "expert %s", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: delete expert: commit")
}

// ImportExperts bulk-upserts roster rows keyed by id using the COPY-based
// upsert path.
func (s *PostgresStore) ImportExperts(ctx context.Context, experts []model.ExpertRecord) (int, error) {
	if len(experts) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(experts))
	for _, e := range experts {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.Status == "" {
			e.Status = model.StatusRecommended
		}
		rows = append(rows, []any{
			e.ID, e.ProjectID, e.CanonicalName, e.CanonicalEmployer, e.CanonicalTitle,
			string(e.Status), string(e.ConflictStatus), e.ConflictID, now, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "experts",
		Columns: []string{"id", "project_id", "canonical_name", "canonical_employer",
			"canonical_title", "status", "conflict_status", "conflict_id", "created_at", "updated_at"},
		ConflictKeys: []string{"id"},
		UpdateCols: []string{"canonical_name", "canonical_employer", "canonical_title",
			"status", "conflict_status", "conflict_id", "updated_at"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import experts")
	}
	return int(n), nil
}

// sources

func (s *PostgresStore) AppendSource(ctx context.Context, source model.ExpertSource) (*model.ExpertSource, error) {
	source.ID = uuid.New().String()
	source.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, insertSourceSQL,
		source.ID, source.ExpertID, source.EmailID, source.Network, source.Name,
		source.Employer, source.Title, source.Bio, source.ScreenerJSON,
		source.Availability, string(source.StatusCue), source.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert source")
	}
	return &source, nil
}

func (s *PostgresStore) ListSources(ctx context.Context, expertID string) ([]model.ExpertSource, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, expert_id, email_id, network, extracted_name, extracted_employer,
			extracted_title, extracted_bio, extracted_screener, extracted_availability,
			extracted_status_cue, created_at
		 FROM expert_sources WHERE expert_id = $1 ORDER BY created_at, id`,
		expertID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.ExpertSource
	for rows.Next() {
		var src model.ExpertSource
		var cue string
		if err := rows.Scan(&src.ID, &src.ExpertID, &src.EmailID, &src.Network, &src.Name,
			&src.Employer, &src.Title, &src.Bio, &src.ScreenerJSON, &src.Availability,
			&cue, &src.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		src.StatusCue = model.StatusCue(cue)
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources rows")
}

func (s *PostgresStore) CountSources(ctx context.Context, expertID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM expert_sources WHERE expert_id = $1`, expertID,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count sources")
}

func (s *PostgresStore) ReassignSourcesAndDelete(ctx context.Context, survivorID, retiredID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: reassign: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE expert_sources SET expert_id = $1 WHERE expert_id = $2`, survivorID, retiredID,
	); err != nil {
		return eris.Wrapf(err, "postgres: reassign sources %s <- %s", survivorID, retiredID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM user_edits WHERE expert_id = $1`, retiredID); err != nil {
		return eris.Wrapf(err, "postgres: delete user edits %s", retiredID)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM experts WHERE id = $1`, retiredID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete retired expert %s", retiredID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(resilience.ErrNotFound, "expert %s", retiredID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: reassign: commit")
}

// provenance

func (s *PostgresStore) AppendProvenance(ctx context.Context, provRows []model.FieldProvenance) error {
	if len(provRows) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: provenance: begin tx")
	}
	defer tx.Rollback(ctx)

	for _, p := range provRows {
		id := p.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO field_provenance (id, source_id, field_name, excerpt_text, confidence)
			 VALUES ($1, $2, $3, $4, $5)`,
			id, p.SourceID, p.FieldName, p.Excerpt, string(p.Confidence),
		); err != nil {
			return eris.Wrapf(err, "postgres: insert provenance %s", p.FieldName)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: provenance: commit")
}

func (s *PostgresStore) ListProvenance(ctx context.Context, sourceID string) ([]model.FieldProvenance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source_id, field_name, excerpt_text, confidence
		 FROM field_provenance WHERE source_id = $1 ORDER BY field_name`,
		sourceID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list provenance")
	}
	defer rows.Close()

	var provRows []model.FieldProvenance
	for rows.Next() {
		var p model.FieldProvenance
		var conf string
		if err := rows.Scan(&p.ID, &p.SourceID, &p.FieldName, &p.Excerpt, &conf); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provenance")
		}
		p.Confidence = model.Confidence(conf)
		provRows = append(provRows, p)
	}
	return provRows, eris.Wrap(rows.Err(), "postgres: list provenance rows")
}

// user edits

func (s *PostgresStore) PinField(ctx context.Context, expertID, fieldName string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_edits (id, expert_id, field_name, edited_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (expert_id, field_name) DO UPDATE SET edited_at = EXCLUDED.edited_at`,
		uuid.New().String(), expertID, fieldName, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: pin field %s", fieldName)
}

func (s *PostgresStore) PinnedFields(ctx context.Context, expertID string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT field_name FROM user_edits WHERE expert_id = $1`, expertID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: pinned fields")
	}
	defer rows.Close()

	pinned := make(map[string]bool)
	for rows.Next() {
		var field string
		if err := rows.Scan(&field); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pinned field")
		}
		pinned[field] = true
	}
	return pinned, eris.Wrap(rows.Err(), "postgres: pinned fields rows")
}

// emails

func (s *PostgresStore) CreateEmail(ctx context.Context, email model.EmailRecord) (*model.EmailRecord, error) {
	email.ID = uuid.New().String()
	email.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO emails (id, project_id, raw_text, network, created_at) VALUES ($1, $2, $3, $4, $5)`,
		email.ID, email.ProjectID, email.RawText, email.Network, email.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert email")
	}
	return &email, nil
}

// ingestion logs

func (s *PostgresStore) CreateIngestionLog(ctx context.Context, log model.IngestionLog) (*model.IngestionLog, error) {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now().UTC()

	summaryJSON, err := json.Marshal(log.Summary)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal summary")
	}
	changesJSON, err := json.Marshal(log.Changes)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal changes")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ingestion_logs (id, project_id, email_id, summary, changes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		log.ID, log.ProjectID, log.EmailID, summaryJSON, changesJSON, log.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert ingestion log")
	}
	return &log, nil
}

func (s *PostgresStore) ListIngestionLogs(ctx context.Context, projectID string, limit int) ([]model.IngestionLog, error) {
	query := `SELECT id, project_id, email_id, summary, changes, created_at
		FROM ingestion_logs WHERE project_id = $1 ORDER BY created_at DESC, id`
	args := []any{projectID}
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ingestion logs")
	}
	defer rows.Close()

	var logs []model.IngestionLog
	for rows.Next() {
		var l model.IngestionLog
		var summaryJSON, changesJSON []byte
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.EmailID, &summaryJSON, &changesJSON, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ingestion log")
		}
		if err := json.Unmarshal(summaryJSON, &l.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
		if err := json.Unmarshal(changesJSON, &l.Changes); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal changes")
		}
		logs = append(logs, l)
	}
	return logs, eris.Wrap(rows.Err(), "postgres: list ingestion logs rows")
}

// scan runs

func (s *PostgresStore) CreateScanRun(ctx context.Context, projectID string, maxMessages int) (*model.ScanRun, error) {
	run := model.ScanRun{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Status:      model.ScanRunning,
		MaxMessages: maxMessages,
		StartedAt:   time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_runs (id, project_id, status, max_messages, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.ProjectID, string(run.Status), run.MaxMessages, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert scan run")
	}
	return &run, nil
}

func (s *PostgresStore) FinalizeScanRun(ctx context.Context, run *model.ScanRun) error {
	now := time.Now().UTC()
	run.CompletedAt = &now

	detailsJSON, err := json.Marshal(run.ErrorDetails)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal error details")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE scan_runs SET status = $1, messages_considered = $2, messages_processed = $3,
			messages_skipped = $4, messages_failed = $5, experts_added = $6, experts_updated = $7,
			experts_merged = $8, error_details = $9, completed_at = $10 WHERE id = $11`,
		string(run.Status), run.MessagesConsidered, run.MessagesProcessed,
		run.MessagesSkipped, run.MessagesFailed, run.ExpertsAdded, run.ExpertsUpdated,
		run.ExpertsMerged, detailsJSON, now, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize scan run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(resilience.ErrNotFound, "scan run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetScanRun(ctx context.Context, id string) (*model.ScanRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+scanRunColumns+` FROM scan_runs WHERE id = $1`, id)
	return scanScanRunPgx(row, id)
}

func (s *PostgresStore) ListScanRuns(ctx context.Context, filter ScanRunFilter) ([]model.ScanRun, error) {
	query := `SELECT ` + scanRunColumns + ` FROM scan_runs WHERE 1=1`
	var args []any
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		query += ` AND project_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY started_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scan runs")
	}
	defer rows.Close()

	var runs []model.ScanRun
	for rows.Next() {
		r, err := scanScanRunPgx(rows, "")
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list scan runs rows")
}

// scanned messages

func (s *PostgresStore) ScannedMessageIDs(ctx context.Context, projectID string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider_message_id FROM scanned_messages WHERE project_id = $1`, projectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scanned message ids")
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan message id")
		}
		seen[id] = true
	}
	return seen, eris.Wrap(rows.Err(), "postgres: scanned message ids rows")
}

func (s *PostgresStore) RecordScannedMessage(ctx context.Context, msg model.ScannedMessage) error {
	var receivedAt any
	if msg.ReceivedAt != nil {
		receivedAt = *msg.ReceivedAt
	}
	_, err := s.pool.Exec(ctx, recordScannedSQL,
		uuid.New().String(), msg.ProjectID, msg.ProviderMessageID, msg.Subject, msg.Sender,
		receivedAt, string(msg.Status), time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: record scanned message")
}

// helpers

func scanExpertPgx(row pgx.Row, id string) (*model.ExpertRecord, error) {
	var e model.ExpertRecord
	var status, conflictStatus, screeningConfidence string

	err := row.Scan(&e.ID, &e.ProjectID, &e.CanonicalName, &e.CanonicalEmployer, &e.CanonicalTitle,
		&status, &conflictStatus, &e.ConflictID, &e.ScreeningGrade, &e.ScreeningScore,
		&e.ScreeningRationale, &screeningConfidence, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(resilience.ErrNotFound, "expert %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan expert")
	}

	e.Status = model.ExpertStatus(status)
	e.ConflictStatus = model.ConflictStatus(conflictStatus)
	e.ScreeningConfidence = model.Confidence(screeningConfidence)
	return &e, nil
}

func scanScanRunPgx(row pgx.Row, id string) (*model.ScanRun, error) {
	var r model.ScanRun
	var status string
	var detailsJSON []byte
	var completedAt *time.Time

	err := row.Scan(&r.ID, &r.ProjectID, &status, &r.MaxMessages, &r.MessagesConsidered,
		&r.MessagesProcessed, &r.MessagesSkipped, &r.MessagesFailed, &r.ExpertsAdded,
		&r.ExpertsUpdated, &r.ExpertsMerged, &detailsJSON, &r.StartedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(resilience.ErrNotFound, "scan run %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan scan run")
	}

	r.Status = model.ScanStatus(status)
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &r.ErrorDetails); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal error details")
		}
	}
	r.CompletedAt = completedAt
	return &r, nil
}
