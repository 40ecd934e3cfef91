package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/benefits-notice/internal/db"
	"github.com/sells-group/benefits-notice/internal/model"
)

// sqliteMaxRows bounds rows per multi-row statement to stay under the
// bound-parameter limit.
const sqliteMaxRows = 200

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS employers (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS plan_years (
	id          TEXT PRIMARY KEY,
	employer_id TEXT NOT NULL REFERENCES employers(id),
	start_date  DATETIME NOT NULL,
	end_date    DATETIME NOT NULL,
	status      TEXT NOT NULL DEFAULT 'active',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_plan_years_employer_status ON plan_years(employer_id, status);

CREATE TABLE IF NOT EXISTS employees (
	id                    TEXT PRIMARY KEY,
	employer_id           TEXT NOT NULL REFERENCES employers(id),
	email                 TEXT NOT NULL,
	first_name            TEXT,
	last_name             TEXT,
	token                 TEXT NOT NULL UNIQUE,
	eligible              BOOLEAN NOT NULL DEFAULT 1,
	opted_out_at          DATETIME,
	first_viewed_at       DATETIME,
	insurance_carrier     TEXT,
	insurance_affirmed_at DATETIME,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (employer_id, email)
);

CREATE TABLE IF NOT EXISTS employee_plan_year_compliance (
	employee_id           TEXT NOT NULL REFERENCES employees(id),
	plan_year_id          TEXT NOT NULL REFERENCES plan_years(id),
	status                TEXT NOT NULL DEFAULT 'noncompliant',
	override              BOOLEAN NOT NULL DEFAULT 0,
	last_login_at         DATETIME,
	compliant_at          DATETIME,
	portal_url            TEXT,
	last_reminder_sent_at DATETIME,
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (employee_id, plan_year_id)
);

CREATE TABLE IF NOT EXISTS import_runs (
	id           TEXT PRIMARY KEY,
	employer_id  TEXT NOT NULL REFERENCES employers(id),
	plan_year_id TEXT NOT NULL REFERENCES plan_years(id),
	file_name    TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_import_runs_scope ON import_runs(employer_id, plan_year_id, created_at);

CREATE TABLE IF NOT EXISTS import_run_members (
	run_id      TEXT NOT NULL REFERENCES import_runs(id),
	employee_id TEXT NOT NULL REFERENCES employees(id),
	PRIMARY KEY (run_id, employee_id)
);

CREATE TABLE IF NOT EXISTS activity_events (
	id          TEXT PRIMARY KEY,
	employer_id TEXT NOT NULL,
	employee_id TEXT NOT NULL,
	kind        TEXT NOT NULL,
	detail      TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_activity_employee ON activity_events(employee_id, created_at);

CREATE TABLE IF NOT EXISTS mail_accounts (
	id              TEXT PRIMARY KEY,
	employer_id     TEXT NOT NULL DEFAULT '',
	provider        TEXT NOT NULL,
	email           TEXT NOT NULL,
	display_name    TEXT NOT NULL DEFAULT '',
	access_token    TEXT NOT NULL DEFAULT '',
	refresh_token   TEXT NOT NULL DEFAULT '',
	token_expiry    DATETIME,
	needs_reconnect BOOLEAN NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (employer_id, provider, email)
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Employers ---

func (s *SQLiteStore) CreateEmployer(ctx context.Context, name string) (*model.Employer, error) {
	e := model.Employer{ID: uuid.New().String(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO employers (id, name, created_at) VALUES (?, ?, ?)`,
		e.ID, e.Name, e.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert employer")
	}
	return &e, nil
}

func (s *SQLiteStore) GetEmployer(ctx context.Context, id string) (*model.Employer, error) {
	e, err := scanEmployer(s.db.QueryRowContext(ctx, employerSelect+` WHERE id = ?`, id))
	if err != nil {
		return nil, sqlNotFound(err, "sqlite: get employer %s", id)
	}
	return e, nil
}

func (s *SQLiteStore) ListEmployers(ctx context.Context) ([]model.Employer, error) {
	rows, err := s.db.QueryContext(ctx, employerSelect+` ORDER BY name, created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list employers")
	}
	return collectSQL(rows, scanEmployer, "sqlite: scan employer")
}

// --- Plan years ---

func (s *SQLiteStore) CreatePlanYear(ctx context.Context, employerID string, start, end time.Time) (*model.PlanYear, error) {
	if err := validatePlanYear(start, end); err != nil {
		return nil, err
	}
	p := model.PlanYear{
		ID:         uuid.New().String(),
		EmployerID: employerID,
		StartDate:  model.MidnightUTC(start),
		EndDate:    model.MidnightUTC(end),
		Status:     model.PlanYearActive,
		CreatedAt:  time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin plan year tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE plan_years SET status = 'closed' WHERE employer_id = ? AND status = 'active'`,
		employerID,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: close active plan years")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO plan_years (id, employer_id, start_date, end_date, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.EmployerID, p.StartDate, p.EndDate, string(p.Status), p.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert plan year")
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit plan year")
	}
	return &p, nil
}

func (s *SQLiteStore) GetPlanYear(ctx context.Context, id string) (*model.PlanYear, error) {
	p, err := scanPlanYear(s.db.QueryRowContext(ctx, planYearSelect+` WHERE id = ?`, id))
	if err != nil {
		return nil, sqlNotFound(err, "sqlite: get plan year %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) ActivePlanYear(ctx context.Context, employerID string) (*model.PlanYear, error) {
	p, err := scanPlanYear(s.db.QueryRowContext(ctx,
		planYearSelect+` WHERE employer_id = ? AND status = 'active' ORDER BY created_at DESC LIMIT 1`,
		employerID,
	))
	if err != nil {
		return nil, sqlNotFound(err, "sqlite: active plan year for %s", employerID)
	}
	return p, nil
}

func (s *SQLiteStore) ClosePlanYear(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE plan_years SET status = 'closed' WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: close plan year %s", id)
	}
	return checkRowsAffected(res, "plan year", id)
}

// --- Employees ---

func (s *SQLiteStore) UpsertEmployees(ctx context.Context, rows []model.EmployeeUpsert, opts EmployeeUpsertOptions) (int64, error) {
	now := time.Now().UTC()
	data := make([][]any, len(rows))
	for i, r := range rows {
		data[i] = employeeRow(r, now)
	}
	n, err := s.upsert(ctx, employeeUpsertConfig(opts), data)
	return n, eris.Wrap(err, "sqlite: upsert employees")
}

func (s *SQLiteStore) EmployeesByEmail(ctx context.Context, employerID string, emails []string) (map[string]model.Employee, error) {
	out := make(map[string]model.Employee, len(emails))
	for _, chunk := range db.Chunk(emails, sqliteMaxRows) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, employerID)
		for _, e := range chunk {
			args = append(args, e)
		}
		rows, err := s.db.QueryContext(ctx,
			employeeSelect+` WHERE employer_id = ? AND email IN (`+placeholders(len(chunk))+`)`,
			args...,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: employees by email")
		}
		list, err := collectSQL(rows, scanEmployee, "sqlite: scan employee")
		if err != nil {
			return nil, err
		}
		for _, e := range list {
			out[e.Email] = e
		}
	}
	return out, nil
}

func (s *SQLiteStore) ListEmployees(ctx context.Context, employerID string) ([]model.Employee, error) {
	rows, err := s.db.QueryContext(ctx, employeeSelect+` WHERE employer_id = ? ORDER BY email`, employerID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list employees")
	}
	return collectSQL(rows, scanEmployee, "sqlite: scan employee")
}

func (s *SQLiteStore) GetEmployee(ctx context.Context, id string) (*model.Employee, error) {
	e, err := scanEmployee(s.db.QueryRowContext(ctx, employeeSelect+` WHERE id = ?`, id))
	if err != nil {
		return nil, sqlNotFound(err, "sqlite: get employee %s", id)
	}
	return e, nil
}

func (s *SQLiteStore) EmployeeByToken(ctx context.Context, token string) (*model.Employee, error) {
	e, err := scanEmployee(s.db.QueryRowContext(ctx, employeeSelect+` WHERE token = ?`, token))
	if err != nil {
		return nil, sqlNotFound(err, "sqlite: employee by token")
	}
	return e, nil
}

func (s *SQLiteStore) SetOptedOut(ctx context.Context, employeeID string, at *time.Time) error {
	now := time.Now().UTC()
	var err error
	if at == nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE employees SET opted_out_at = NULL, updated_at = ? WHERE id = ?`,
			now, employeeID,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE employees SET opted_out_at = COALESCE(opted_out_at, ?), updated_at = ? WHERE id = ?`,
			at.UTC(), now, employeeID,
		)
	}
	return eris.Wrapf(err, "sqlite: set opted out %s", employeeID)
}

func (s *SQLiteStore) MarkNoticeViewed(ctx context.Context, employeeID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE employees SET first_viewed_at = COALESCE(first_viewed_at, ?) WHERE id = ?`,
		at.UTC(), employeeID,
	)
	return eris.Wrapf(err, "sqlite: mark notice viewed %s", employeeID)
}

func (s *SQLiteStore) AffirmInsurance(ctx context.Context, employeeID string, a model.InsuranceAffirmation) error {
	var carrier *string
	if a.HasCoverage {
		carrier = model.StringPtr(a.Carrier)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE employees SET insurance_carrier = ?, insurance_affirmed_at = ?, updated_at = ? WHERE id = ?`,
		carrier, a.At.UTC(), a.At.UTC(), employeeID,
	)
	return eris.Wrapf(err, "sqlite: affirm insurance %s", employeeID)
}

// --- Compliance ---

func (s *SQLiteStore) OverriddenEmployees(ctx context.Context, planYearID string) (map[string]model.ComplianceStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT employee_id, status FROM employee_plan_year_compliance WHERE plan_year_id = ? AND override`,
		planYearID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: overridden employees")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]model.ComplianceStatus)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan override")
		}
		out[id] = model.ComplianceStatus(status)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate overrides")
}

func (s *SQLiteStore) UpsertCompliance(ctx context.Context, rows []model.ComplianceUpsert) (int64, error) {
	now := time.Now().UTC()
	regular, overrideOnly := splitCompliance(rows)

	var total int64
	for _, part := range []struct {
		rows         []model.ComplianceUpsert
		overrideOnly bool
	}{{regular, false}, {overrideOnly, true}} {
		data := make([][]any, len(part.rows))
		for i, r := range part.rows {
			data[i] = complianceRow(r, now)
		}
		n, err := s.upsert(ctx, complianceUpsertConfig(part.overrideOnly), data)
		if err != nil {
			return total, eris.Wrap(err, "sqlite: upsert compliance")
		}
		total += n
	}
	return total, nil
}

func (s *SQLiteStore) GetCompliance(ctx context.Context, employeeID, planYearID string) (*model.ComplianceRecord, error) {
	c, err := scanCompliance(s.db.QueryRowContext(ctx,
		complianceSelect+` WHERE employee_id = ? AND plan_year_id = ?`,
		employeeID, planYearID,
	))
	if err != nil {
		return nil, sqlNotFound(err, "sqlite: get compliance %s/%s", employeeID, planYearID)
	}
	return c, nil
}

func (s *SQLiteStore) SetComplianceOverride(ctx context.Context, employeeID, planYearID string, override bool, status model.ComplianceStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO employee_plan_year_compliance (employee_id, plan_year_id, status, override, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (employee_id, plan_year_id) DO UPDATE SET
		     status = excluded.status, override = excluded.override, updated_at = excluded.updated_at`,
		employeeID, planYearID, string(status), override, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: set override %s", employeeID)
}

func (s *SQLiteStore) MarkReminderSent(ctx context.Context, employeeID, planYearID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE employee_plan_year_compliance SET last_reminder_sent_at = ? WHERE employee_id = ? AND plan_year_id = ?`,
		at.UTC(), employeeID, planYearID,
	)
	return eris.Wrapf(err, "sqlite: mark reminder sent %s", employeeID)
}

func (s *SQLiteStore) ComplianceTable(ctx context.Context, run model.ImportRun) ([]model.ComplianceRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.email, e.first_name, e.last_name,
		        COALESCE(c.status, 'noncompliant'), COALESCE(c.override, 0),
		        c.last_login_at, c.portal_url, c.last_reminder_sent_at
		 FROM import_run_members m
		 JOIN employees e ON e.id = m.employee_id
		 LEFT JOIN employee_plan_year_compliance c ON c.employee_id = e.id AND c.plan_year_id = ?
		 WHERE m.run_id = ?
		 ORDER BY e.email`,
		run.PlanYearID, run.ID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: compliance table")
	}
	return collectSQL(rows, scanComplianceRow, "sqlite: scan compliance row")
}

// --- Import runs ---

func (s *SQLiteStore) CreateImportRun(ctx context.Context, run model.ImportRun) (*model.ImportRun, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()
	run.MemberCount = 0
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_runs (id, employer_id, plan_year_id, file_name, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.EmployerID, run.PlanYearID, run.FileName, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert import run")
	}
	return &run, nil
}

func (s *SQLiteStore) AddImportRunMembers(ctx context.Context, runID string, employeeIDs []string) (int64, error) {
	rows := make([][]any, len(employeeIDs))
	for i, id := range employeeIDs {
		rows[i] = []any{runID, id}
	}
	n, err := s.upsert(ctx, db.UpsertConfig{
		Table:        "import_run_members",
		Columns:      []string{"run_id", "employee_id"},
		ConflictKeys: []string{"run_id", "employee_id"},
	}, rows)
	return n, eris.Wrap(err, "sqlite: add import run members")
}

func (s *SQLiteStore) LatestImportRun(ctx context.Context, employerID, planYearID string) (*model.ImportRun, error) {
	r, err := scanImportRun(s.db.QueryRowContext(ctx,
		importRunSelect+` WHERE r.employer_id = ? AND r.plan_year_id = ? ORDER BY r.created_at DESC, r.rowid DESC LIMIT 1`,
		employerID, planYearID,
	))
	if err != nil {
		return nil, sqlNotFound(err, "sqlite: latest import run for %s", employerID)
	}
	return r, nil
}

func (s *SQLiteStore) ListImportRuns(ctx context.Context, employerID string, limit int) ([]model.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		importRunSelect+` WHERE r.employer_id = ? ORDER BY r.created_at DESC, r.rowid DESC LIMIT ?`,
		employerID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list import runs")
	}
	return collectSQL(rows, scanImportRun, "sqlite: scan import run")
}

func (s *SQLiteStore) CountImportRuns(ctx context.Context, employerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM import_runs WHERE employer_id = ?`, employerID).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count import runs")
}

// --- Activity ---

func (s *SQLiteStore) RecordActivity(ctx context.Context, ev model.ActivityEvent) error {
	detail, err := marshalDetail(ev.Detail)
	if err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	var detailText *string
	if detail != nil {
		t := string(detail)
		detailText = &t
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activity_events (id, employer_id, employee_id, kind, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.EmployerID, ev.EmployeeID, string(ev.Kind), detailText, ev.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: record activity")
}

func (s *SQLiteStore) ListActivity(ctx context.Context, employeeID string, limit int) ([]model.ActivityEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		activitySelect+` WHERE employee_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		employeeID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list activity")
	}
	return collectSQL(rows, scanActivity, "sqlite: scan activity")
}

// --- Mail accounts ---

func (s *SQLiteStore) UpsertMailAccount(ctx context.Context, acct model.MailAccount) (*model.MailAccount, error) {
	now := time.Now().UTC()
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mail_accounts (id, employer_id, provider, email, display_name, access_token,
		     refresh_token, token_expiry, needs_reconnect, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT (employer_id, provider, email) DO UPDATE SET
		     display_name = excluded.display_name,
		     access_token = excluded.access_token,
		     refresh_token = COALESCE(NULLIF(excluded.refresh_token, ''), mail_accounts.refresh_token),
		     token_expiry = excluded.token_expiry,
		     needs_reconnect = 0,
		     updated_at = excluded.updated_at`,
		acct.ID, acct.EmployerID, string(acct.Provider), acct.Email, acct.DisplayName,
		acct.AccessToken, acct.RefreshToken, acct.TokenExpiry, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert mail account")
	}
	a, err := scanMailAccount(s.db.QueryRowContext(ctx,
		mailAccountSelect+` WHERE employer_id = ? AND provider = ? AND email = ?`,
		acct.EmployerID, string(acct.Provider), acct.Email,
	))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: reload mail account")
	}
	return a, nil
}

func (s *SQLiteStore) ListMailAccounts(ctx context.Context, employerID string) ([]model.MailAccount, error) {
	rows, err := s.db.QueryContext(ctx, mailAccountSelect+` WHERE employer_id = ?`, employerID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list mail accounts")
	}
	accts, err := collectSQL(rows, scanMailAccount, "sqlite: scan mail account")
	if err != nil {
		return nil, err
	}
	sortMailAccounts(accts)
	return accts, nil
}

func (s *SQLiteStore) UpdateMailAccountToken(ctx context.Context, id, accessToken, refreshToken string, expiry *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mail_accounts SET access_token = ?,
		     refresh_token = COALESCE(NULLIF(?, ''), refresh_token),
		     token_expiry = ?, needs_reconnect = 0, updated_at = ?
		 WHERE id = ?`,
		accessToken, refreshToken, expiry, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: update mail account token %s", id)
}

func (s *SQLiteStore) MarkMailAccountReconnect(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mail_accounts SET needs_reconnect = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: mark mail account reconnect %s", id)
}

// --- helpers ---

// upsert applies cfg to rows in one transaction, sqliteMaxRows per
// statement.
func (s *SQLiteStore) upsert(ctx context.Context, cfg db.UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, chunk := range db.Chunk(rows, sqliteMaxRows) {
		query, err := db.UpsertSQL(cfg, len(chunk))
		if err != nil {
			return 0, err
		}
		args := make([]any, 0, len(chunk)*len(cfg.Columns))
		for _, r := range chunk {
			args = append(args, r...)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert %s", cfg.Table)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return total, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sqlNotFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, format, args...)
	}
	return eris.Wrapf(err, format, args...)
}

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

func collectSQL[T any](rows *sql.Rows, scan func(scannable) (*T, error), msg string) ([]T, error) {
	defer rows.Close() //nolint:errcheck
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, eris.Wrap(err, msg)
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), msg)
}
