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

	"github.com/sells-group/callflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// sqliteParams are applied to every pooled connection. Transactions start
// with BEGIN IMMEDIATE so the write lock is taken before the first read,
// which serializes concurrent outcome creation for the same call.
const sqliteParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_txlock=immediate"

// sqliteTimeLayout is fixed width so TEXT comparisons order correctly.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// NewSQLite opens a SQLite database at the given path. A bare path gets the
// default connection parameters; a DSN that already carries a query string
// is used as-is.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if !strings.Contains(dsn, "?") {
		dsn = "file:" + dsn + "?" + sqliteParams
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS prospects (
	id           TEXT PRIMARY KEY,
	org_id       TEXT NOT NULL,
	name         TEXT NOT NULL,
	client_count INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS call_sessions (
	id          TEXT PRIMARY KEY,
	org_id      TEXT NOT NULL,
	prospect_id TEXT NOT NULL REFERENCES prospects(id),
	thread_id   TEXT NOT NULL,
	agent_id    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'scheduled',
	started_at  TEXT,
	ended_at    TEXT,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS milestone_responses (
	id               TEXT PRIMARY KEY,
	call_id          TEXT NOT NULL REFERENCES call_sessions(id),
	milestone_number INTEGER NOT NULL,
	completed        INTEGER NOT NULL DEFAULT 0,
	notes            TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS objection_responses (
	id               TEXT PRIMARY KEY,
	call_id          TEXT NOT NULL REFERENCES call_sessions(id),
	org_id           TEXT NOT NULL,
	milestone_number INTEGER NOT NULL,
	objection_type   TEXT NOT NULL,
	outcome          TEXT NOT NULL,
	answers          TEXT NOT NULL DEFAULT '{}',
	notes            TEXT,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS call_outcomes (
	id                      TEXT PRIMARY KEY,
	call_id                 TEXT NOT NULL UNIQUE REFERENCES call_sessions(id),
	org_id                  TEXT NOT NULL,
	outcome_type            TEXT NOT NULL,
	disqualification_reason TEXT,
	qualification_flags     TEXT,
	created_at              TEXT NOT NULL,
	CONSTRAINT chk_disqualification_reason CHECK ((outcome_type = 'disqualified') = (disqualification_reason IS NOT NULL))
);

CREATE TABLE IF NOT EXISTS flow_states (
	flow_id    TEXT PRIMARY KEY,
	org_id     TEXT NOT NULL,
	state      TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_call_sessions_org ON call_sessions(org_id);
CREATE INDEX IF NOT EXISTS idx_call_sessions_thread ON call_sessions(org_id, thread_id);
CREATE INDEX IF NOT EXISTS idx_milestone_responses_call ON milestone_responses(call_id);
CREATE INDEX IF NOT EXISTS idx_objection_responses_call ON objection_responses(call_id, created_at);
CREATE INDEX IF NOT EXISTS idx_call_outcomes_org_created ON call_outcomes(org_id, created_at);
CREATE INDEX IF NOT EXISTS idx_flow_states_expires_at ON flow_states(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

// --- Prospects ---

func (s *SQLiteStore) CreateProspect(ctx context.Context, p *model.Prospect) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prospects (id, org_id, name, client_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.OrgID, p.Name, p.ClientCount, formatTime(p.CreatedAt),
	)
	return eris.Wrap(err, "sqlite: insert prospect")
}

func (s *SQLiteStore) GetProspect(ctx context.Context, orgID, prospectID string) (*model.Prospect, error) {
	var p model.Prospect
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, org_id, name, client_count, created_at FROM prospects WHERE id = ? AND org_id = ?`,
		prospectID, orgID,
	).Scan(&p.ID, &p.OrgID, &p.Name, &p.ClientCount, &createdAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: prospect %s", prospectID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get prospect %s", prospectID)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Call sessions ---

func (s *SQLiteStore) CreateCallSession(ctx context.Context, c *model.CallSession) error {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_sessions (id, org_id, prospect_id, thread_id, agent_id, status, started_at, ended_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OrgID, c.ProspectID, c.ThreadID, c.AgentID, string(c.Status),
		formatNullTime(c.StartedAt), formatNullTime(c.EndedAt), formatTime(c.CreatedAt),
	)
	return eris.Wrap(err, "sqlite: insert call session")
}

func (s *SQLiteStore) GetCallSession(ctx context.Context, orgID, callID string) (*model.CallSession, error) {
	return sqliteGetCallSession(ctx, s.db, orgID, callID)
}

func (s *SQLiteStore) StartCallSession(ctx context.Context, orgID, callID string, startedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE call_sessions SET status = ?, started_at = ? WHERE id = ? AND org_id = ? AND status = ?`,
		string(model.CallStatusInProgress), formatTime(startedAt), callID, orgID, string(model.CallStatusScheduled),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: start call session %s", callID)
	}
	return checkRowsAffected(res, "scheduled call session", callID)
}

func (s *SQLiteStore) ListThreadCalls(ctx context.Context, orgID, threadID string) ([]model.CallSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+callSessionColumns+` FROM call_sessions c JOIN prospects p ON p.id = c.prospect_id
		 WHERE c.org_id = ? AND c.thread_id = ?
		 ORDER BY c.ended_at IS NULL, c.ended_at DESC, c.created_at DESC`,
		orgID, threadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list thread calls")
	}
	defer rows.Close()

	var calls []model.CallSession
	for rows.Next() {
		c, err := scanSQLiteCallSession(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *c)
	}
	return calls, eris.Wrap(rows.Err(), "sqlite: iterate thread calls")
}

// --- Milestones ---

func (s *SQLiteStore) RecordMilestone(ctx context.Context, r *model.MilestoneResponse) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO milestone_responses (id, call_id, milestone_number, completed, notes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.CallID, r.MilestoneNumber, r.Completed, r.Notes, formatTime(r.CreatedAt),
	)
	return eris.Wrap(err, "sqlite: insert milestone response")
}

func (s *SQLiteStore) ListMilestoneResponses(ctx context.Context, orgID string, callIDs []string) ([]model.MilestoneResponse, error) {
	if len(callIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(orgID, callIDs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.call_id, m.milestone_number, m.completed, m.notes, m.created_at
		 FROM milestone_responses m JOIN call_sessions c ON c.id = m.call_id
		 WHERE c.org_id = ? AND m.call_id IN (`+placeholders+`)
		 ORDER BY m.created_at, m.id`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list milestone responses")
	}
	defer rows.Close()

	var out []model.MilestoneResponse
	for rows.Next() {
		var m model.MilestoneResponse
		var createdAt string
		if err := rows.Scan(&m.ID, &m.CallID, &m.MilestoneNumber, &m.Completed, &m.Notes, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan milestone response")
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate milestone responses")
}

// --- Objections ---

func (s *SQLiteStore) ListObjectionResponses(ctx context.Context, orgID string, callIDs []string) ([]model.ObjectionResponse, error) {
	if len(callIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(orgID, callIDs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, call_id, org_id, milestone_number, objection_type, outcome, answers, notes, created_at
		 FROM objection_responses
		 WHERE org_id = ? AND call_id IN (`+placeholders+`)
		 ORDER BY created_at, id`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list objection responses")
	}
	defer rows.Close()

	var out []model.ObjectionResponse
	for rows.Next() {
		var r model.ObjectionResponse
		var objType, outcome, answers, createdAt string
		var notes sql.NullString
		if err := rows.Scan(&r.ID, &r.CallID, &r.OrgID, &r.MilestoneNumber, &objType, &outcome, &answers, &notes, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan objection response")
		}
		r.ObjectionType = model.ObjectionType(objType)
		r.Outcome = model.ObjectionOutcome(outcome)
		if notes.Valid {
			r.Notes = &notes.String
		}
		if r.Answers, err = model.DecodeAnswers([]byte(answers)); err != nil {
			return nil, eris.Wrapf(err, "sqlite: objection response %s", r.ID)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate objection responses")
}

func (s *SQLiteStore) CountUnresolvedObjections(ctx context.Context, orgID, callID string) (int, error) {
	return sqliteCountUnresolved(ctx, s.db, orgID, callID)
}

// --- Outcomes ---

func (s *SQLiteStore) GetOutcome(ctx context.Context, orgID, callID string) (*model.CallOutcome, error) {
	return sqliteGetOutcome(ctx, s.db, orgID, callID)
}

func (s *SQLiteStore) GetOutcomeStats(ctx context.Context, orgID string, r DateRange) (*OutcomeStats, error) {
	query := `SELECT outcome_type, COALESCE(disqualification_reason, ''), count(*) FROM call_outcomes WHERE org_id = ?`
	args := []any{orgID}
	if r.From != nil {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(*r.From))
	}
	if r.To != nil {
		query += ` AND created_at < ?`
		args = append(args, formatTime(*r.To))
	}
	query += ` GROUP BY outcome_type, COALESCE(disqualification_reason, '')`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: outcome stats")
	}
	defer rows.Close()

	stats := newStats()
	for rows.Next() {
		var outcomeType, reason string
		var n int
		if err := rows.Scan(&outcomeType, &reason, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome stats")
		}
		stats.Total += n
		stats.ByType[model.OutcomeType(outcomeType)] += n
		if reason != "" {
			stats.ByDisqualificationReason[reason] += n
		}
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: iterate outcome stats")
}

// --- Flow states ---

func (s *SQLiteStore) CreateFlowState(ctx context.Context, orgID string, st model.ObjectionFlowState, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal flow state")
	}
	now := s.clock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flow_states (flow_id, org_id, state, updated_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		st.FlowID, orgID, string(data), formatTime(now), formatTime(now.Add(ttl)),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return eris.Wrapf(ErrDuplicate, "sqlite: flow state %s", st.FlowID)
	}
	return eris.Wrap(err, "sqlite: create flow state")
}

func (s *SQLiteStore) GetFlowState(ctx context.Context, orgID, flowID string) (*model.ObjectionFlowState, error) {
	return sqliteGetFlowState(ctx, s.db, orgID, flowID, s.clock())
}

func (s *SQLiteStore) DeleteExpiredFlowStates(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flow_states WHERE expires_at <= ?`, formatTime(s.clock()))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired flow states")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// --- Transactions ---

func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteTx{tx: tx, clock: s.clock}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit transaction")
}

type sqliteTx struct {
	tx    *sql.Tx
	clock func() time.Time
}

// LockCallSession relies on the IMMEDIATE transaction already holding the
// database write lock.
func (t *sqliteTx) LockCallSession(ctx context.Context, orgID, callID string) (*model.CallSession, error) {
	return sqliteGetCallSession(ctx, t.tx, orgID, callID)
}

func (t *sqliteTx) GetOutcome(ctx context.Context, orgID, callID string) (*model.CallOutcome, error) {
	return sqliteGetOutcome(ctx, t.tx, orgID, callID)
}

func (t *sqliteTx) CountUnresolvedObjections(ctx context.Context, orgID, callID string) (int, error) {
	return sqliteCountUnresolved(ctx, t.tx, orgID, callID)
}

func (t *sqliteTx) InsertOutcome(ctx context.Context, o *model.CallOutcome) error {
	var flags sql.NullString
	if o.QualificationFlags != nil {
		data, err := json.Marshal(o.QualificationFlags)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal qualification flags")
		}
		flags = sql.NullString{String: string(data), Valid: true}
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO call_outcomes (id, call_id, org_id, outcome_type, disqualification_reason, qualification_flags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.CallID, o.OrgID, string(o.Type), o.DisqualificationReason, flags, formatTime(o.CreatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return eris.Wrapf(ErrDuplicate, "sqlite: outcome for call %s", o.CallID)
	}
	return eris.Wrap(err, "sqlite: insert outcome")
}

func (t *sqliteTx) CompleteCallSession(ctx context.Context, orgID, callID string, endedAt time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE call_sessions SET status = ?, ended_at = ? WHERE id = ? AND org_id = ?`,
		string(model.CallStatusCompleted), formatTime(endedAt), callID, orgID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete call session %s", callID)
	}
	return checkRowsAffected(res, "call session", callID)
}

func (t *sqliteTx) InsertObjectionResponse(ctx context.Context, r *model.ObjectionResponse) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal answers")
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO objection_responses (id, call_id, org_id, milestone_number, objection_type, outcome, answers, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CallID, r.OrgID, r.MilestoneNumber, string(r.ObjectionType), string(r.Outcome), string(answers), r.Notes, formatTime(r.CreatedAt),
	)
	return eris.Wrap(err, "sqlite: insert objection response")
}

// LockFlowState re-reads the state inside the IMMEDIATE transaction, which
// already holds the database write lock.
func (t *sqliteTx) LockFlowState(ctx context.Context, orgID, flowID string) (*model.ObjectionFlowState, error) {
	return sqliteGetFlowState(ctx, t.tx, orgID, flowID, t.clock())
}

func (t *sqliteTx) UpdateFlowState(ctx context.Context, orgID string, st model.ObjectionFlowState, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal flow state")
	}
	now := t.clock()
	res, err := t.tx.ExecContext(ctx,
		`UPDATE flow_states SET state = ?, updated_at = ?, expires_at = ? WHERE flow_id = ? AND org_id = ?`,
		string(data), formatTime(now), formatTime(now.Add(ttl)), st.FlowID, orgID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update flow state %s", st.FlowID)
	}
	return checkRowsAffected(res, "flow state", st.FlowID)
}

// --- Shared queries ---

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteGetFlowState(ctx context.Context, q sqlQuerier, orgID, flowID string, now time.Time) (*model.ObjectionFlowState, error) {
	var data string
	err := q.QueryRowContext(ctx,
		`SELECT state FROM flow_states WHERE flow_id = ? AND org_id = ? AND expires_at > ?`,
		flowID, orgID, formatTime(now),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: flow state %s", flowID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get flow state %s", flowID)
	}
	var st model.ObjectionFlowState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal flow state")
	}
	return &st, nil
}

func sqliteGetCallSession(ctx context.Context, q sqlQuerier, orgID, callID string) (*model.CallSession, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+callSessionColumns+` FROM call_sessions c JOIN prospects p ON p.id = c.prospect_id WHERE c.id = ? AND c.org_id = ?`,
		callID, orgID,
	)
	c, err := scanSQLiteCallSession(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: call session %s", callID)
	}
	return c, err
}

func scanSQLiteCallSession(row scannable) (*model.CallSession, error) {
	var c model.CallSession
	var status, createdAt string
	var startedAt, endedAt sql.NullString
	err := row.Scan(&c.ID, &c.OrgID, &c.ProspectID, &c.ThreadID, &c.AgentID, &status, &startedAt, &endedAt, &createdAt, &c.ClientCount)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan call session")
	}
	c.Status = model.CallStatus(status)
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if c.EndedAt, err = parseNullTime(endedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func sqliteGetOutcome(ctx context.Context, q sqlQuerier, orgID, callID string) (*model.CallOutcome, error) {
	var o model.CallOutcome
	var outcomeType, createdAt string
	var reason, flags sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT id, call_id, org_id, outcome_type, disqualification_reason, qualification_flags, created_at FROM call_outcomes WHERE call_id = ? AND org_id = ?`,
		callID, orgID,
	).Scan(&o.ID, &o.CallID, &o.OrgID, &outcomeType, &reason, &flags, &createdAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: outcome for call %s", callID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get outcome for call %s", callID)
	}
	o.Type = model.OutcomeType(outcomeType)
	if reason.Valid {
		o.DisqualificationReason = &reason.String
	}
	if flags.Valid {
		if o.QualificationFlags, err = model.DecodeQualificationFlags([]byte(flags.String)); err != nil {
			return nil, eris.Wrapf(err, "sqlite: outcome for call %s", callID)
		}
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func sqliteCountUnresolved(ctx context.Context, q sqlQuerier, orgID, callID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT count(*) FROM objection_responses WHERE call_id = ? AND org_id = ? AND outcome <> 'resolved'`,
		callID, orgID,
	).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count unresolved objections for call %s", callID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func inClause(orgID string, ids []string) (string, []any) {
	args := make([]any, 0, len(ids)+1)
	args = append(args, orgID)
	for _, id := range ids {
		args = append(args, id)
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t.UTC(), nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
