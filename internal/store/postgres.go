package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/callflow/internal/db"
	"github.com/sells-group/callflow/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const callSessionColumns = `c.id, c.org_id, c.prospect_id, c.thread_id, c.agent_id, c.status, c.started_at, c.ended_at, c.created_at, p.client_count`

// preparedStatements lists queries to prepare on each new connection for
// the hot read paths.
var preparedStatements = map[string]string{
	"get_call_session":     `SELECT ` + callSessionColumns + ` FROM call_sessions c JOIN prospects p ON p.id = c.prospect_id WHERE c.id = $1 AND c.org_id = $2`,
	"get_outcome":          `SELECT id, call_id, org_id, outcome_type, disqualification_reason, qualification_flags, created_at FROM call_outcomes WHERE call_id = $1 AND org_id = $2`,
	"count_unresolved":     `SELECT count(*) FROM objection_responses WHERE call_id = $1 AND org_id = $2 AND outcome <> 'resolved'`,
	"get_flow_state":       `SELECT state FROM flow_states WHERE flow_id = $1 AND org_id = $2 AND expires_at > $3`,
	"lock_flow_state":      `SELECT state FROM flow_states WHERE flow_id = $1 AND org_id = $2 AND expires_at > $3 FOR UPDATE`,
	"create_flow_state":    `INSERT INTO flow_states (flow_id, org_id, state, updated_at, expires_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_flow_state":    `UPDATE flow_states SET state = $1, updated_at = $2, expires_at = $3 WHERE flow_id = $4 AND org_id = $5`,
	"delete_expired_flows": `DELETE FROM flow_states WHERE expires_at <= $1`,
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
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS prospects (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	org_id       TEXT NOT NULL,
	name         TEXT NOT NULL,
	client_count INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS call_sessions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	org_id      TEXT NOT NULL,
	prospect_id TEXT NOT NULL REFERENCES prospects(id),
	thread_id   TEXT NOT NULL,
	agent_id    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'scheduled',
	started_at  TIMESTAMPTZ,
	ended_at    TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_call_sessions_org ON call_sessions(org_id);
CREATE INDEX IF NOT EXISTS idx_call_sessions_thread ON call_sessions(org_id, thread_id, ended_at DESC);

CREATE TABLE IF NOT EXISTS milestone_responses (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	call_id          TEXT NOT NULL REFERENCES call_sessions(id),
	milestone_number INTEGER NOT NULL,
	completed        BOOLEAN NOT NULL DEFAULT false,
	notes            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_milestone_responses_call ON milestone_responses(call_id);

CREATE TABLE IF NOT EXISTS objection_responses (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	call_id          TEXT NOT NULL REFERENCES call_sessions(id),
	org_id           TEXT NOT NULL,
	milestone_number INTEGER NOT NULL,
	objection_type   TEXT NOT NULL,
	outcome          TEXT NOT NULL,
	answers          JSONB NOT NULL DEFAULT '{}',
	notes            TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_objection_responses_call ON objection_responses(call_id, created_at);

CREATE TABLE IF NOT EXISTS call_outcomes (
	id                      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	call_id                 TEXT NOT NULL UNIQUE REFERENCES call_sessions(id),
	org_id                  TEXT NOT NULL,
	outcome_type            TEXT NOT NULL,
	disqualification_reason TEXT,
	qualification_flags     JSONB,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT chk_disqualification_reason CHECK ((outcome_type = 'disqualified') = (disqualification_reason IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_call_outcomes_org_created ON call_outcomes(org_id, created_at);

CREATE TABLE IF NOT EXISTS flow_states (
	flow_id    TEXT PRIMARY KEY,
	org_id     TEXT NOT NULL,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flow_states_expires_at ON flow_states(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

// --- Prospects ---

func (s *PostgresStore) CreateProspect(ctx context.Context, p *model.Prospect) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.clock()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO prospects (id, org_id, name, client_count, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.OrgID, p.Name, p.ClientCount, p.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert prospect")
}

func (s *PostgresStore) GetProspect(ctx context.Context, orgID, prospectID string) (*model.Prospect, error) {
	var p model.Prospect
	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, name, client_count, created_at FROM prospects WHERE id = $1 AND org_id = $2`,
		prospectID, orgID,
	).Scan(&p.ID, &p.OrgID, &p.Name, &p.ClientCount, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: prospect %s", prospectID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get prospect %s", prospectID)
	}
	return &p, nil
}

// --- Call sessions ---

func (s *PostgresStore) CreateCallSession(ctx context.Context, c *model.CallSession) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.ThreadID == "" {
		c.ThreadID = c.ID
	}
	if c.Status == "" {
		c.Status = model.CallStatusScheduled
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_sessions (id, org_id, prospect_id, thread_id, agent_id, status, started_at, ended_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.OrgID, c.ProspectID, c.ThreadID, c.AgentID, string(c.Status), c.StartedAt, c.EndedAt, c.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert call session")
}

func (s *PostgresStore) GetCallSession(ctx context.Context, orgID, callID string) (*model.CallSession, error) {
	return pgGetCallSession(ctx, s.pool, orgID, callID, false)
}

func (s *PostgresStore) StartCallSession(ctx context.Context, orgID, callID string, startedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE call_sessions SET status = $1, started_at = $2 WHERE id = $3 AND org_id = $4 AND status = $5`,
		string(model.CallStatusInProgress), startedAt.UTC(), callID, orgID, string(model.CallStatusScheduled),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: start call session %s", callID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: scheduled call session %s", callID)
	}
	return nil
}

func (s *PostgresStore) ListThreadCalls(ctx context.Context, orgID, threadID string) ([]model.CallSession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+callSessionColumns+` FROM call_sessions c JOIN prospects p ON p.id = c.prospect_id
		 WHERE c.org_id = $1 AND c.thread_id = $2
		 ORDER BY c.ended_at DESC NULLS LAST, c.created_at DESC`,
		orgID, threadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list thread calls")
	}
	defer rows.Close()

	var calls []model.CallSession
	for rows.Next() {
		c, err := scanPgCallSession(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *c)
	}
	return calls, eris.Wrap(rows.Err(), "postgres: iterate thread calls")
}

// --- Milestones ---

func (s *PostgresStore) RecordMilestone(ctx context.Context, r *model.MilestoneResponse) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO milestone_responses (id, call_id, milestone_number, completed, notes, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.CallID, r.MilestoneNumber, r.Completed, r.Notes, r.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert milestone response")
}

func (s *PostgresStore) ListMilestoneResponses(ctx context.Context, orgID string, callIDs []string) ([]model.MilestoneResponse, error) {
	if len(callIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.call_id, m.milestone_number, m.completed, m.notes, m.created_at
		 FROM milestone_responses m JOIN call_sessions c ON c.id = m.call_id
		 WHERE c.org_id = $1 AND m.call_id = ANY($2)
		 ORDER BY m.created_at, m.id`,
		orgID, callIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list milestone responses")
	}
	defer rows.Close()

	var out []model.MilestoneResponse
	for rows.Next() {
		var m model.MilestoneResponse
		if err := rows.Scan(&m.ID, &m.CallID, &m.MilestoneNumber, &m.Completed, &m.Notes, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan milestone response")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate milestone responses")
}

// --- Objections ---

func (s *PostgresStore) ListObjectionResponses(ctx context.Context, orgID string, callIDs []string) ([]model.ObjectionResponse, error) {
	if len(callIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, call_id, org_id, milestone_number, objection_type, outcome, answers, notes, created_at
		 FROM objection_responses
		 WHERE org_id = $1 AND call_id = ANY($2)
		 ORDER BY created_at, id`,
		orgID, callIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list objection responses")
	}
	defer rows.Close()

	var out []model.ObjectionResponse
	for rows.Next() {
		var r model.ObjectionResponse
		var objType, outcome string
		var answers []byte
		if err := rows.Scan(&r.ID, &r.CallID, &r.OrgID, &r.MilestoneNumber, &objType, &outcome, &answers, &r.Notes, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan objection response")
		}
		r.ObjectionType = model.ObjectionType(objType)
		r.Outcome = model.ObjectionOutcome(outcome)
		if r.Answers, err = model.DecodeAnswers(answers); err != nil {
			return nil, eris.Wrapf(err, "postgres: objection response %s", r.ID)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate objection responses")
}

func (s *PostgresStore) CountUnresolvedObjections(ctx context.Context, orgID, callID string) (int, error) {
	return pgCountUnresolved(ctx, s.pool, orgID, callID)
}

// --- Outcomes ---

func (s *PostgresStore) GetOutcome(ctx context.Context, orgID, callID string) (*model.CallOutcome, error) {
	return pgGetOutcome(ctx, s.pool, orgID, callID)
}

func (s *PostgresStore) GetOutcomeStats(ctx context.Context, orgID string, r DateRange) (*OutcomeStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT outcome_type, COALESCE(disqualification_reason, ''), count(*)
		 FROM call_outcomes
		 WHERE org_id = $1
		   AND ($2::timestamptz IS NULL OR created_at >= $2)
		   AND ($3::timestamptz IS NULL OR created_at < $3)
		 GROUP BY outcome_type, COALESCE(disqualification_reason, '')`,
		orgID, r.From, r.To,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: outcome stats")
	}
	defer rows.Close()

	stats := newStats()
	for rows.Next() {
		var outcomeType, reason string
		var n int
		if err := rows.Scan(&outcomeType, &reason, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome stats")
		}
		stats.Total += n
		stats.ByType[model.OutcomeType(outcomeType)] += n
		if reason != "" {
			stats.ByDisqualificationReason[reason] += n
		}
	}
	return stats, eris.Wrap(rows.Err(), "postgres: iterate outcome stats")
}

// --- Flow states ---

func (s *PostgresStore) CreateFlowState(ctx context.Context, orgID string, st model.ObjectionFlowState, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal flow state")
	}
	now := s.clock()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO flow_states (flow_id, org_id, state, updated_at, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		st.FlowID, orgID, data, now, now.Add(ttl),
	)
	if db.IsUniqueViolation(err) {
		return eris.Wrapf(ErrDuplicate, "postgres: flow state %s", st.FlowID)
	}
	return eris.Wrap(err, "postgres: create flow state")
}

func (s *PostgresStore) GetFlowState(ctx context.Context, orgID, flowID string) (*model.ObjectionFlowState, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM flow_states WHERE flow_id = $1 AND org_id = $2 AND expires_at > $3`,
		flowID, orgID, s.clock(),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: flow state %s", flowID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get flow state %s", flowID)
	}
	var st model.ObjectionFlowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal flow state")
	}
	return &st, nil
}

func (s *PostgresStore) DeleteExpiredFlowStates(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM flow_states WHERE expires_at <= $1`, s.clock())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired flow states")
	}
	return int(tag.RowsAffected()), nil
}

// --- Transactions ---

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx, clock: s.clock}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit transaction")
}

type pgTx struct {
	tx    pgx.Tx
	clock func() time.Time
}

func (t *pgTx) LockCallSession(ctx context.Context, orgID, callID string) (*model.CallSession, error) {
	return pgGetCallSession(ctx, t.tx, orgID, callID, true)
}

func (t *pgTx) GetOutcome(ctx context.Context, orgID, callID string) (*model.CallOutcome, error) {
	return pgGetOutcome(ctx, t.tx, orgID, callID)
}

func (t *pgTx) CountUnresolvedObjections(ctx context.Context, orgID, callID string) (int, error) {
	return pgCountUnresolved(ctx, t.tx, orgID, callID)
}

func (t *pgTx) InsertOutcome(ctx context.Context, o *model.CallOutcome) error {
	var flags []byte
	if o.QualificationFlags != nil {
		var err error
		if flags, err = json.Marshal(o.QualificationFlags); err != nil {
			return eris.Wrap(err, "postgres: marshal qualification flags")
		}
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO call_outcomes (id, call_id, org_id, outcome_type, disqualification_reason, qualification_flags, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.CallID, o.OrgID, string(o.Type), o.DisqualificationReason, flags, o.CreatedAt,
	)
	if db.IsUniqueViolation(err) {
		return eris.Wrapf(ErrDuplicate, "postgres: outcome for call %s", o.CallID)
	}
	return eris.Wrap(err, "postgres: insert outcome")
}

func (t *pgTx) CompleteCallSession(ctx context.Context, orgID, callID string, endedAt time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE call_sessions SET status = $1, ended_at = $2 WHERE id = $3 AND org_id = $4`,
		string(model.CallStatusCompleted), endedAt.UTC(), callID, orgID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete call session %s", callID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: call session %s", callID)
	}
	return nil
}

func (t *pgTx) InsertObjectionResponse(ctx context.Context, r *model.ObjectionResponse) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal answers")
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO objection_responses (id, call_id, org_id, milestone_number, objection_type, outcome, answers, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.CallID, r.OrgID, r.MilestoneNumber, string(r.ObjectionType), string(r.Outcome), answers, r.Notes, r.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert objection response")
}

func (t *pgTx) LockFlowState(ctx context.Context, orgID, flowID string) (*model.ObjectionFlowState, error) {
	var data []byte
	err := t.tx.QueryRow(ctx,
		`SELECT state FROM flow_states WHERE flow_id = $1 AND org_id = $2 AND expires_at > $3 FOR UPDATE`,
		flowID, orgID, t.clock(),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: flow state %s", flowID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lock flow state %s", flowID)
	}
	var st model.ObjectionFlowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal flow state")
	}
	return &st, nil
}

func (t *pgTx) UpdateFlowState(ctx context.Context, orgID string, st model.ObjectionFlowState, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal flow state")
	}
	now := t.clock()
	tag, err := t.tx.Exec(ctx,
		`UPDATE flow_states SET state = $1, updated_at = $2, expires_at = $3 WHERE flow_id = $4 AND org_id = $5`,
		data, now, now.Add(ttl), st.FlowID, orgID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update flow state %s", st.FlowID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: flow state %s", st.FlowID)
	}
	return nil
}

// --- Shared queries ---

func pgGetCallSession(ctx context.Context, q db.Querier, orgID, callID string, lock bool) (*model.CallSession, error) {
	query := `SELECT ` + callSessionColumns + ` FROM call_sessions c JOIN prospects p ON p.id = c.prospect_id WHERE c.id = $1 AND c.org_id = $2`
	if lock {
		query += ` FOR UPDATE OF c`
	}
	c, err := scanPgCallSession(q.QueryRow(ctx, query, callID, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: call session %s", callID)
	}
	return c, err
}

func scanPgCallSession(row pgx.Row) (*model.CallSession, error) {
	var c model.CallSession
	var status string
	err := row.Scan(&c.ID, &c.OrgID, &c.ProspectID, &c.ThreadID, &c.AgentID, &status, &c.StartedAt, &c.EndedAt, &c.CreatedAt, &c.ClientCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan call session")
	}
	c.Status = model.CallStatus(status)
	return &c, nil
}

func pgGetOutcome(ctx context.Context, q db.Querier, orgID, callID string) (*model.CallOutcome, error) {
	var o model.CallOutcome
	var outcomeType string
	var flags []byte
	err := q.QueryRow(ctx,
		`SELECT id, call_id, org_id, outcome_type, disqualification_reason, qualification_flags, created_at FROM call_outcomes WHERE call_id = $1 AND org_id = $2`,
		callID, orgID,
	).Scan(&o.ID, &o.CallID, &o.OrgID, &outcomeType, &o.DisqualificationReason, &flags, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: outcome for call %s", callID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get outcome for call %s", callID)
	}
	o.Type = model.OutcomeType(outcomeType)
	if o.QualificationFlags, err = model.DecodeQualificationFlags(flags); err != nil {
		return nil, eris.Wrapf(err, "postgres: outcome for call %s", callID)
	}
	return &o, nil
}

func pgCountUnresolved(ctx context.Context, q db.Querier, orgID, callID string) (int, error) {
	var n int
	err := q.QueryRow(ctx,
		`SELECT count(*) FROM objection_responses WHERE call_id = $1 AND org_id = $2 AND outcome <> 'resolved'`,
		callID, orgID,
	).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count unresolved objections for call %s", callID)
}
