package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/benefits-notice/internal/db"
	"github.com/sells-group/benefits-notice/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the notice link and compliance lookups hit on every request.
var preparedStatements = map[string]string{
	"employee_by_token":  employeeSelect + ` WHERE token = $1`,
	"active_plan_year":   planYearSelect + ` WHERE employer_id = $1 AND status = 'active' ORDER BY created_at DESC LIMIT 1`,
	"get_compliance":     complianceSelect + ` WHERE employee_id = $1 AND plan_year_id = $2`,
	"insert_activity":    `INSERT INTO activity_events (id, employer_id, employee_id, kind, detail, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"mark_reminder_sent": `UPDATE employee_plan_year_compliance SET last_reminder_sent_at = $1 WHERE employee_id = $2 AND plan_year_id = $3`,
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS employers (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS plan_years (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	employer_id TEXT NOT NULL REFERENCES employers(id),
	start_date  DATE NOT NULL,
	end_date    DATE NOT NULL,
	status      TEXT NOT NULL DEFAULT 'active',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (start_date <= end_date)
);

CREATE INDEX IF NOT EXISTS idx_plan_years_employer_status ON plan_years(employer_id, status);

CREATE TABLE IF NOT EXISTS employees (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	employer_id           TEXT NOT NULL REFERENCES employers(id),
	email                 TEXT NOT NULL,
	first_name            TEXT,
	last_name             TEXT,
	token                 TEXT NOT NULL UNIQUE,
	eligible              BOOLEAN NOT NULL DEFAULT true,
	opted_out_at          TIMESTAMPTZ,
	first_viewed_at       TIMESTAMPTZ,
	insurance_carrier     TEXT,
	insurance_affirmed_at TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (employer_id, email)
);

CREATE TABLE IF NOT EXISTS employee_plan_year_compliance (
	employee_id           TEXT NOT NULL REFERENCES employees(id),
	plan_year_id          TEXT NOT NULL REFERENCES plan_years(id),
	status                TEXT NOT NULL DEFAULT 'noncompliant',
	override              BOOLEAN NOT NULL DEFAULT false,
	last_login_at         TIMESTAMPTZ,
	compliant_at          TIMESTAMPTZ,
	portal_url            TEXT,
	last_reminder_sent_at TIMESTAMPTZ,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (employee_id, plan_year_id)
);

CREATE INDEX IF NOT EXISTS idx_compliance_plan_year_override ON employee_plan_year_compliance(plan_year_id) WHERE override;

CREATE TABLE IF NOT EXISTS import_runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	employer_id  TEXT NOT NULL REFERENCES employers(id),
	plan_year_id TEXT NOT NULL REFERENCES plan_years(id),
	file_name    TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_import_runs_scope ON import_runs(employer_id, plan_year_id, created_at DESC);

CREATE TABLE IF NOT EXISTS import_run_members (
	run_id      TEXT NOT NULL REFERENCES import_runs(id),
	employee_id TEXT NOT NULL REFERENCES employees(id),
	PRIMARY KEY (run_id, employee_id)
);

CREATE TABLE IF NOT EXISTS activity_events (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	employer_id TEXT NOT NULL,
	employee_id TEXT NOT NULL,
	kind        TEXT NOT NULL,
	detail      JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_activity_employee ON activity_events(employee_id, created_at DESC);

CREATE TABLE IF NOT EXISTS mail_accounts (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	employer_id     TEXT NOT NULL DEFAULT '',
	provider        TEXT NOT NULL,
	email           TEXT NOT NULL,
	display_name    TEXT NOT NULL DEFAULT '',
	access_token    TEXT NOT NULL DEFAULT '',
	refresh_token   TEXT NOT NULL DEFAULT '',
	token_expiry    TIMESTAMPTZ,
	needs_reconnect BOOLEAN NOT NULL DEFAULT false,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (employer_id, provider, email)
);
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

// --- Employers ---

func (s *PostgresStore) CreateEmployer(ctx context.Context, name string) (*model.Employer, error) {
	e := model.Employer{ID: uuid.New().String(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO employers (id, name, created_at) VALUES ($1, $2, $3)`,
		e.ID, e.Name, e.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert employer")
	}
	return &e, nil
}

func (s *PostgresStore) GetEmployer(ctx context.Context, id string) (*model.Employer, error) {
	e, err := scanEmployer(s.pool.QueryRow(ctx, employerSelect+` WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err, "postgres: get employer %s", id)
	}
	return e, nil
}

func (s *PostgresStore) ListEmployers(ctx context.Context) ([]model.Employer, error) {
	rows, err := s.pool.Query(ctx, employerSelect+` ORDER BY name, created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list employers")
	}
	return collect(rows, scanEmployer, "postgres: scan employer")
}

// --- Plan years ---

func (s *PostgresStore) CreatePlanYear(ctx context.Context, employerID string, start, end time.Time) (*model.PlanYear, error) {
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin plan year tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`UPDATE plan_years SET status = 'closed' WHERE employer_id = $1 AND status = 'active'`,
		employerID,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: close active plan years")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO plan_years (id, employer_id, start_date, end_date, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.EmployerID, p.StartDate, p.EndDate, string(p.Status), p.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert plan year")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit plan year")
	}
	return &p, nil
}

func (s *PostgresStore) GetPlanYear(ctx context.Context, id string) (*model.PlanYear, error) {
	p, err := scanPlanYear(s.pool.QueryRow(ctx, planYearSelect+` WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err, "postgres: get plan year %s", id)
	}
	return p, nil
}

func (s *PostgresStore) ActivePlanYear(ctx context.Context, employerID string) (*model.PlanYear, error) {
	p, err := scanPlanYear(s.pool.QueryRow(ctx,
		planYearSelect+` WHERE employer_id = $1 AND status = 'active' ORDER BY created_at DESC LIMIT 1`,
		employerID,
	))
	if err != nil {
		return nil, pgNotFound(err, "postgres: active plan year for %s", employerID)
	}
	return p, nil
}

func (s *PostgresStore) ClosePlanYear(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE plan_years SET status = 'closed' WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: close plan year %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "plan year %s", id)
	}
	return nil
}

// --- Employees ---

// UpsertEmployees writes one batch keyed on (employer_id, email). Rows must
// be unique on that key.
func (s *PostgresStore) UpsertEmployees(ctx context.Context, rows []model.EmployeeUpsert, opts EmployeeUpsertOptions) (int64, error) {
	now := time.Now().UTC()
	data := make([][]any, len(rows))
	for i, r := range rows {
		data[i] = employeeRow(r, now)
	}
	n, err := db.BulkUpsert(ctx, s.pool, employeeUpsertConfig(opts), data)
	return n, eris.Wrap(err, "postgres: upsert employees")
}

func (s *PostgresStore) EmployeesByEmail(ctx context.Context, employerID string, emails []string) (map[string]model.Employee, error) {
	out := make(map[string]model.Employee, len(emails))
	if len(emails) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		employeeSelect+` WHERE employer_id = $1 AND email = ANY($2)`,
		employerID, emails,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: employees by email")
	}
	list, err := collect(rows, scanEmployee, "postgres: scan employee")
	if err != nil {
		return nil, err
	}
	for _, e := range list {
		out[e.Email] = e
	}
	return out, nil
}

func (s *PostgresStore) ListEmployees(ctx context.Context, employerID string) ([]model.Employee, error) {
	rows, err := s.pool.Query(ctx, employeeSelect+` WHERE employer_id = $1 ORDER BY email`, employerID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list employees")
	}
	return collect(rows, scanEmployee, "postgres: scan employee")
}

func (s *PostgresStore) GetEmployee(ctx context.Context, id string) (*model.Employee, error) {
	e, err := scanEmployee(s.pool.QueryRow(ctx, employeeSelect+` WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err, "postgres: get employee %s", id)
	}
	return e, nil
}

func (s *PostgresStore) EmployeeByToken(ctx context.Context, token string) (*model.Employee, error) {
	e, err := scanEmployee(s.pool.QueryRow(ctx, employeeSelect+` WHERE token = $1`, token))
	if err != nil {
		return nil, pgNotFound(err, "postgres: employee by token")
	}
	return e, nil
}

// SetOptedOut records an opt-out once, keeping the first timestamp. A nil
// at clears it.
func (s *PostgresStore) SetOptedOut(ctx context.Context, employeeID string, at *time.Time) error {
	now := time.Now().UTC()
	var err error
	if at == nil {
		_, err = s.pool.Exec(ctx,
			`UPDATE employees SET opted_out_at = NULL, updated_at = $1 WHERE id = $2`,
			now, employeeID,
		)
	} else {
		_, err = s.pool.Exec(ctx,
			`UPDATE employees SET opted_out_at = COALESCE(opted_out_at, $1), updated_at = $2 WHERE id = $3`,
			at.UTC(), now, employeeID,
		)
	}
	return eris.Wrapf(err, "postgres: set opted out %s", employeeID)
}

func (s *PostgresStore) MarkNoticeViewed(ctx context.Context, employeeID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE employees SET first_viewed_at = COALESCE(first_viewed_at, $1) WHERE id = $2`,
		at.UTC(), employeeID,
	)
	return eris.Wrapf(err, "postgres: mark notice viewed %s", employeeID)
}

func (s *PostgresStore) AffirmInsurance(ctx context.Context, employeeID string, a model.InsuranceAffirmation) error {
	var carrier *string
	if a.HasCoverage {
		carrier = model.StringPtr(a.Carrier)
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE employees SET insurance_carrier = $1, insurance_affirmed_at = $2, updated_at = $2 WHERE id = $3`,
		carrier, a.At.UTC(), employeeID,
	)
	return eris.Wrapf(err, "postgres: affirm insurance %s", employeeID)
}

// --- Compliance ---

func (s *PostgresStore) OverriddenEmployees(ctx context.Context, planYearID string) (map[string]model.ComplianceStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT employee_id, status FROM employee_plan_year_compliance WHERE plan_year_id = $1 AND override`,
		planYearID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: overridden employees")
	}
	defer rows.Close()

	out := make(map[string]model.ComplianceStatus)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan override")
		}
		out[id] = model.ComplianceStatus(status)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate overrides")
}

// UpsertCompliance writes one batch keyed on (employee_id, plan_year_id).
// Override-only rows refresh login and portal data without touching status.
func (s *PostgresStore) UpsertCompliance(ctx context.Context, rows []model.ComplianceUpsert) (int64, error) {
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
		n, err := db.BulkUpsert(ctx, s.pool, complianceUpsertConfig(part.overrideOnly), data)
		if err != nil {
			return total, eris.Wrap(err, "postgres: upsert compliance")
		}
		total += n
	}
	return total, nil
}

func (s *PostgresStore) GetCompliance(ctx context.Context, employeeID, planYearID string) (*model.ComplianceRecord, error) {
	c, err := scanCompliance(s.pool.QueryRow(ctx,
		complianceSelect+` WHERE employee_id = $1 AND plan_year_id = $2`,
		employeeID, planYearID,
	))
	if err != nil {
		return nil, pgNotFound(err, "postgres: get compliance %s/%s", employeeID, planYearID)
	}
	return c, nil
}

func (s *PostgresStore) SetComplianceOverride(ctx context.Context, employeeID, planYearID string, override bool, status model.ComplianceStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO employee_plan_year_compliance (employee_id, plan_year_id, status, override, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (employee_id, plan_year_id) DO UPDATE SET status = $3, override = $4, updated_at = $5`,
		employeeID, planYearID, string(status), override, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: set override %s", employeeID)
}

func (s *PostgresStore) MarkReminderSent(ctx context.Context, employeeID, planYearID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE employee_plan_year_compliance SET last_reminder_sent_at = $1 WHERE employee_id = $2 AND plan_year_id = $3`,
		at.UTC(), employeeID, planYearID,
	)
	return eris.Wrapf(err, "postgres: mark reminder sent %s", employeeID)
}

func (s *PostgresStore) ComplianceTable(ctx context.Context, run model.ImportRun) ([]model.ComplianceRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT e.id, e.email, e.first_name, e.last_name,
		        COALESCE(c.status, 'noncompliant'), COALESCE(c.override, false),
		        c.last_login_at, c.portal_url, c.last_reminder_sent_at
		 FROM import_run_members m
		 JOIN employees e ON e.id = m.employee_id
		 LEFT JOIN employee_plan_year_compliance c ON c.employee_id = e.id AND c.plan_year_id = $2
		 WHERE m.run_id = $1
		 ORDER BY e.email`,
		run.ID, run.PlanYearID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: compliance table")
	}
	return collect(rows, scanComplianceRow, "postgres: scan compliance row")
}

// --- Import runs ---

func (s *PostgresStore) CreateImportRun(ctx context.Context, run model.ImportRun) (*model.ImportRun, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()
	run.MemberCount = 0
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_runs (id, employer_id, plan_year_id, file_name, created_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.EmployerID, run.PlanYearID, run.FileName, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert import run")
	}
	return &run, nil
}

func (s *PostgresStore) AddImportRunMembers(ctx context.Context, runID string, employeeIDs []string) (int64, error) {
	rows := make([][]any, len(employeeIDs))
	for i, id := range employeeIDs {
		rows[i] = []any{runID, id}
	}
	n, err := db.CopyFrom(ctx, s.pool, "import_run_members", []string{"run_id", "employee_id"}, rows)
	return n, eris.Wrap(err, "postgres: add import run members")
}

func (s *PostgresStore) LatestImportRun(ctx context.Context, employerID, planYearID string) (*model.ImportRun, error) {
	r, err := scanImportRun(s.pool.QueryRow(ctx,
		importRunSelect+` WHERE r.employer_id = $1 AND r.plan_year_id = $2 ORDER BY r.created_at DESC LIMIT 1`,
		employerID, planYearID,
	))
	if err != nil {
		return nil, pgNotFound(err, "postgres: latest import run for %s", employerID)
	}
	return r, nil
}

func (s *PostgresStore) ListImportRuns(ctx context.Context, employerID string, limit int) ([]model.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		importRunSelect+` WHERE r.employer_id = $1 ORDER BY r.created_at DESC LIMIT $2`,
		employerID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list import runs")
	}
	return collect(rows, scanImportRun, "postgres: scan import run")
}

func (s *PostgresStore) CountImportRuns(ctx context.Context, employerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM import_runs WHERE employer_id = $1`, employerID).Scan(&n)
	return n, eris.Wrap(err, "postgres: count import runs")
}

// --- Activity ---

func (s *PostgresStore) RecordActivity(ctx context.Context, ev model.ActivityEvent) error {
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO activity_events (id, employer_id, employee_id, kind, detail, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.EmployerID, ev.EmployeeID, string(ev.Kind), detail, ev.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record activity")
}

func (s *PostgresStore) ListActivity(ctx context.Context, employeeID string, limit int) ([]model.ActivityEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		activitySelect+` WHERE employee_id = $1 ORDER BY created_at DESC LIMIT $2`,
		employeeID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list activity")
	}
	return collect(rows, scanActivity, "postgres: scan activity")
}

// --- Mail accounts ---

func (s *PostgresStore) UpsertMailAccount(ctx context.Context, acct model.MailAccount) (*model.MailAccount, error) {
	now := time.Now().UTC()
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	a, err := scanMailAccount(s.pool.QueryRow(ctx,
		`INSERT INTO mail_accounts (id, employer_id, provider, email, display_name, access_token,
		     refresh_token, token_expiry, needs_reconnect, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9, $9)
		 ON CONFLICT (employer_id, provider, email) DO UPDATE SET
		     display_name = EXCLUDED.display_name,
		     access_token = EXCLUDED.access_token,
		     refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), mail_accounts.refresh_token),
		     token_expiry = EXCLUDED.token_expiry,
		     needs_reconnect = false,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id, employer_id, provider, email, display_name, access_token,
		     refresh_token, token_expiry, needs_reconnect, created_at, updated_at`,
		acct.ID, acct.EmployerID, string(acct.Provider), acct.Email, acct.DisplayName,
		acct.AccessToken, acct.RefreshToken, acct.TokenExpiry, now,
	))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert mail account")
	}
	return a, nil
}

// ListMailAccounts returns an employer's accounts, most recently updated
// first. An empty employerID selects admin accounts.
func (s *PostgresStore) ListMailAccounts(ctx context.Context, employerID string) ([]model.MailAccount, error) {
	rows, err := s.pool.Query(ctx,
		mailAccountSelect+` WHERE employer_id = $1 ORDER BY updated_at DESC`,
		employerID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list mail accounts")
	}
	return collect(rows, scanMailAccount, "postgres: scan mail account")
}

func (s *PostgresStore) UpdateMailAccountToken(ctx context.Context, id, accessToken, refreshToken string, expiry *time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE mail_accounts SET access_token = $1,
		     refresh_token = COALESCE(NULLIF($2, ''), refresh_token),
		     token_expiry = $3, needs_reconnect = false, updated_at = $4
		 WHERE id = $5`,
		accessToken, refreshToken, expiry, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: update mail account token %s", id)
}

func (s *PostgresStore) MarkMailAccountReconnect(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE mail_accounts SET needs_reconnect = true, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: mark mail account reconnect %s", id)
}

// --- helpers ---

func pgNotFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, format, args...)
	}
	return eris.Wrapf(err, format, args...)
}

func collect[T any](rows pgx.Rows, scan func(scannable) (*T, error), msg string) ([]T, error) {
	defer rows.Close()
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
