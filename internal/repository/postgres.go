package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bountyboard/bounty-server/internal/models"
)

const (
	accountColumns = `id, username, email, display_name, role, password_hash,
		reports_submitted, total_earnings, programs_created, total_bounty_paid, reports_reviewed, created_at`

	programColumns = `id, company_id, name, industry, description, scope, out_of_scope, rules,
		reward_structure, min_bounty, max_bounty, unparsed_severities, active,
		total_reports, accepted_reports, total_bounty_paid, created_at, updated_at`

	reportColumns = `id, researcher_id, program_id, company_id, title, description, steps_to_reproduce,
		impact, category, severity, status, reward, feedback, reviewer_id, submitted_at, updated_at`

	eventColumns = `id, report_id, actor_id, actor_role, from_status, to_status, reward, feedback, created_at`
)

// Postgres is the pgx-backed Store
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres wraps an open connection pool
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Ping checks database connectivity
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// Close releases the pool
func (p *Postgres) Close() {
	p.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

// CreateAccount inserts a new account
func (p *Postgres) CreateAccount(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO accounts (id, username, email, display_name, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.db.Exec(ctx, query,
		a.ID, a.Username, a.Email, a.DisplayName, string(a.Role), a.PasswordHash, a.CreatedAt,
	)
	if err != nil {
		return mapError(err, "insert account")
	}
	return nil
}

// GetAccount looks up an account by id
func (p *Postgres) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	row := p.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("account %s", id))
	}
	return a, nil
}

// FindAccountByLogin looks up an account by username or email
func (p *Postgres) FindAccountByLogin(ctx context.Context, login string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)
		LIMIT 1`
	a, err := scanAccount(p.db.QueryRow(ctx, query, login))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("account %q", login))
	}
	return a, nil
}

// ListAccounts returns accounts ordered by creation time
func (p *Postgres) ListAccounts(ctx context.Context, role models.Role) ([]models.Account, error) {
	return listAccounts(ctx, p.db, role)
}

func listAccounts(ctx context.Context, q querier, role models.Role) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE ($1::text = '' OR role = $1::text)
		ORDER BY created_at, username`

	rows, err := q.Query(ctx, query, string(role))
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]models.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account; foreign keys reject referenced accounts
func (p *Postgres) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return mapError(err, fmt.Sprintf("delete account %s", id))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// CreateProgram inserts a program and counts it against its company
func (p *Postgres) CreateProgram(ctx context.Context, prog *models.Program) error {
	return pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE accounts SET programs_created = programs_created + 1 WHERE id = $1`,
			prog.CompanyID,
		)
		if err != nil {
			return fmt.Errorf("count program: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("company %s: %w", prog.CompanyID, models.ErrNotFound)
		}

		query := `
			INSERT INTO programs (id, company_id, name, industry, description, scope, out_of_scope, rules,
				reward_structure, min_bounty, max_bounty, unparsed_severities, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`
		_, err = tx.Exec(ctx, query,
			prog.ID, prog.CompanyID, prog.Name, prog.Industry, prog.Description,
			nonNil(prog.Scope), nonNil(prog.OutOfScope), nonNil(prog.Rules),
			rewardStructure(prog.RewardStructure), prog.MinBounty, prog.MaxBounty,
			severityStrings(prog.UnparsedSeverities), prog.Active, prog.CreatedAt, prog.UpdatedAt,
		)
		if err != nil {
			return mapError(err, "insert program")
		}
		return nil
	})
}

// GetProgram looks up a program by id
func (p *Postgres) GetProgram(ctx context.Context, id uuid.UUID) (*models.Program, error) {
	prog, err := scanProgram(p.db.QueryRow(ctx, `SELECT `+programColumns+` FROM programs WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("program %s", id))
	}
	return prog, nil
}

// ListPrograms returns matching programs, newest first
func (p *Postgres) ListPrograms(ctx context.Context, f models.ProgramFilter) ([]models.Program, error) {
	return listPrograms(ctx, p.db, f)
}

func listPrograms(ctx context.Context, q querier, f models.ProgramFilter) ([]models.Program, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Active != nil {
		add("active = $%d", *f.Active)
	}
	if f.Industry != "" {
		add("LOWER(industry) = LOWER($%d)", f.Industry)
	}
	if f.CompanyID != nil {
		add("company_id = $%d", *f.CompanyID)
	}
	if f.MinBounty != nil {
		add("min_bounty >= $%d", *f.MinBounty)
	}

	query := `SELECT ` + programColumns + ` FROM programs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	programs := make([]models.Program, 0)
	for rows.Next() {
		prog, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		programs = append(programs, *prog)
	}
	return programs, rows.Err()
}

// UpdateProgram replaces a program's descriptive fields
func (p *Postgres) UpdateProgram(ctx context.Context, prog *models.Program) error {
	query := `
		UPDATE programs SET name = $2, industry = $3, description = $4, scope = $5, out_of_scope = $6,
			rules = $7, reward_structure = $8, min_bounty = $9, max_bounty = $10,
			unparsed_severities = $11, active = $12, updated_at = $13
		WHERE id = $1
	`
	tag, err := p.db.Exec(ctx, query,
		prog.ID, prog.Name, prog.Industry, prog.Description,
		nonNil(prog.Scope), nonNil(prog.OutOfScope), nonNil(prog.Rules),
		rewardStructure(prog.RewardStructure), prog.MinBounty, prog.MaxBounty,
		severityStrings(prog.UnparsedSeverities), prog.Active, prog.UpdatedAt,
	)
	if err != nil {
		return mapError(err, fmt.Sprintf("update program %s", prog.ID))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("program %s: %w", prog.ID, models.ErrNotFound)
	}
	return nil
}

// DeleteProgram removes a program; foreign keys reject referenced programs
func (p *Postgres) DeleteProgram(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM programs WHERE id = $1`, id)
	if err != nil {
		return mapError(err, fmt.Sprintf("delete program %s", id))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("program %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// CreateReport inserts a report and counts the submission
func (p *Postgres) CreateReport(ctx context.Context, r *models.Report) error {
	return pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE accounts SET reports_submitted = reports_submitted + 1 WHERE id = $1`,
			r.ResearcherID,
		)
		if err != nil {
			return fmt.Errorf("count submission: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("researcher %s: %w", r.ResearcherID, models.ErrNotFound)
		}

		tag, err = tx.Exec(ctx,
			`UPDATE programs SET total_reports = total_reports + 1 WHERE id = $1`,
			r.ProgramID,
		)
		if err != nil {
			return fmt.Errorf("count program report: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("program %s: %w", r.ProgramID, models.ErrNotFound)
		}

		query := `
			INSERT INTO reports (id, researcher_id, program_id, company_id, title, description,
				steps_to_reproduce, impact, category, severity, status, submitted_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`
		_, err = tx.Exec(ctx, query,
			r.ID, r.ResearcherID, r.ProgramID, r.CompanyID, r.Title, r.Description,
			r.StepsToReproduce, r.Impact, r.Category, string(r.Severity), string(r.Status),
			r.SubmittedAt, r.UpdatedAt,
		)
		if err != nil {
			return mapError(err, "insert report")
		}
		return nil
	})
}

// GetReport looks up a report by id
func (p *Postgres) GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	r, err := scanReport(p.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("report %s", id))
	}
	return r, nil
}

// ListReports returns matching reports, newest submission first
func (p *Postgres) ListReports(ctx context.Context, f models.ReportFilter) ([]models.Report, error) {
	return listReports(ctx, p.db, f)
}

func listReports(ctx context.Context, q querier, f models.ReportFilter) ([]models.Report, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ResearcherID != nil {
		add("researcher_id = $%d", *f.ResearcherID)
	}
	if f.CompanyID != nil {
		add("company_id = $%d", *f.CompanyID)
	}
	if f.ProgramID != nil {
		add("program_id = $%d", *f.ProgramID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.Severity != nil {
		add("severity = $%d", string(*f.Severity))
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY submitted_at DESC, id`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := make([]models.Report, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// UpdateReportContent rewrites the editable fields of a pending report
func (p *Postgres) UpdateReportContent(ctx context.Context, r *models.Report) error {
	query := `
		UPDATE reports SET title = $2, description = $3, steps_to_reproduce = $4, impact = $5,
			category = $6, severity = $7, updated_at = $8
		WHERE id = $1 AND status = $9
	`
	tag, err := p.db.Exec(ctx, query,
		r.ID, r.Title, r.Description, r.StepsToReproduce, r.Impact,
		r.Category, string(r.Severity), r.UpdatedAt, string(models.StatusPendingReview),
	)
	if err != nil {
		return mapError(err, fmt.Sprintf("update report %s", r.ID))
	}
	if tag.RowsAffected() == 0 {
		return p.missOrConflict(ctx, p.db, r.ID)
	}
	return nil
}

// ApplyTransition moves a report from t.From to t.To with its bookkeeping
func (p *Postgres) ApplyTransition(ctx context.Context, t Transition) (*models.Report, error) {
	var out *models.Report

	err := pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		query := `
			UPDATE reports SET status = $2, updated_at = $3, reviewer_id = $4,
				reward = COALESCE($5, reward), feedback = COALESCE($6, feedback)
			WHERE id = $1 AND status = $7
			RETURNING ` + reportColumns
		r, err := scanReport(tx.QueryRow(ctx, query,
			t.ReportID, string(t.To), t.At, t.Actor.ID, t.Reward, t.Feedback, string(t.From),
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return p.missOrConflict(ctx, tx, t.ReportID)
		}
		if err != nil {
			return mapError(err, fmt.Sprintf("update report %s status", t.ReportID))
		}

		if t.Payout != nil {
			if err := applyPayout(ctx, tx, *t.Payout); err != nil {
				return err
			}
		}

		if t.CountReview {
			if err := execOne(ctx, tx, "reviewer",
				`UPDATE accounts SET reports_reviewed = reports_reviewed + 1 WHERE id = $1`,
				t.Actor.ID,
			); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO report_events (id, report_id, actor_id, actor_role, from_status, to_status, reward, feedback, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, uuid.New(), t.ReportID, t.Actor.ID, string(t.Actor.Role), string(t.From), string(t.To),
			r.Reward, t.Feedback, t.At)
		if err != nil {
			return mapError(err, "insert report event")
		}

		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteReport removes a report and reverses its payout
func (p *Postgres) DeleteReport(ctx context.Context, rm Removal) error {
	return pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM reports WHERE id = $1 AND status = $2`,
			rm.ReportID, string(rm.Expected))
		if err != nil {
			return mapError(err, fmt.Sprintf("delete report %s", rm.ReportID))
		}
		if tag.RowsAffected() == 0 {
			return p.missOrConflict(ctx, tx, rm.ReportID)
		}
		if rm.Refund != nil {
			return applyPayout(ctx, tx, *rm.Refund)
		}
		return nil
	})
}

// ListReportEvents returns a report's history, oldest first
func (p *Postgres) ListReportEvents(ctx context.Context, reportID uuid.UUID) ([]models.ReportEvent, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+eventColumns+` FROM report_events WHERE report_id = $1 ORDER BY created_at, id`,
		reportID,
	)
	if err != nil {
		return nil, fmt.Errorf("list report events: %w", err)
	}
	defer rows.Close()

	events := make([]models.ReportEvent, 0)
	for rows.Next() {
		var (
			e              models.ReportEvent
			role, from, to string
		)
		if err := rows.Scan(&e.ID, &e.ReportID, &e.ActorID, &role, &from, &to,
			&e.Reward, &e.Feedback, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report event: %w", err)
		}
		e.ActorRole = models.Role(role)
		e.FromStatus = models.Status(from)
		e.ToStatus = models.Status(to)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Snapshot reads accounts, programs and reports in one read-only
// repeatable-read transaction
func (p *Postgres) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

	err := pgx.BeginTxFunc(ctx, p.db, opts, func(tx pgx.Tx) error {
		var err error
		if snap.Accounts, err = listAccounts(ctx, tx, ""); err != nil {
			return err
		}
		if snap.Programs, err = listPrograms(ctx, tx, models.ProgramFilter{}); err != nil {
			return err
		}
		snap.Reports, err = listReports(ctx, tx, models.ReportFilter{})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return &snap, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// missOrConflict explains why a conditional write matched no row
func (p *Postgres) missOrConflict(ctx context.Context, q querier, id uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reports WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check report %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("report %s: %w", id, models.ErrNotFound)
	}
	return fmt.Errorf("report %s changed concurrently: %w", id, models.ErrConflict)
}

func applyPayout(ctx context.Context, tx pgx.Tx, pay Payout) error {
	amount, count := pay.delta()

	if err := execOne(ctx, tx, "researcher",
		`UPDATE accounts SET total_earnings = total_earnings + $2 WHERE id = $1`,
		pay.ResearcherID, amount,
	); err != nil {
		return err
	}
	if err := execOne(ctx, tx, "program",
		`UPDATE programs SET accepted_reports = accepted_reports + $2, total_bounty_paid = total_bounty_paid + $3 WHERE id = $1`,
		pay.ProgramID, count, amount,
	); err != nil {
		return err
	}
	return execOne(ctx, tx, "company",
		`UPDATE accounts SET total_bounty_paid = total_bounty_paid + $2 WHERE id = $1`,
		pay.CompanyID, amount,
	)
}

// execOne runs an increment that must hit exactly one row. A miss means the
// referenced row was deleted underneath us.
func execOne(ctx context.Context, tx pgx.Tx, what, query string, args ...any) error {
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%s %v: %w", what, args[0], models.ErrConflict)
	}
	return nil
}

func scanAccount(row scanner) (*models.Account, error) {
	var (
		a    models.Account
		role string
	)
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.DisplayName, &role, &a.PasswordHash,
		&a.ReportsSubmitted, &a.TotalEarnings, &a.ProgramsCreated, &a.TotalBountyPaid,
		&a.ReportsReviewed, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Role = models.Role(role)
	return &a, nil
}

func scanProgram(row scanner) (*models.Program, error) {
	var (
		prog      models.Program
		structure map[string]string
		unparsed  []string
	)
	err := row.Scan(&prog.ID, &prog.CompanyID, &prog.Name, &prog.Industry, &prog.Description,
		&prog.Scope, &prog.OutOfScope, &prog.Rules, &structure, &prog.MinBounty, &prog.MaxBounty,
		&unparsed, &prog.Active, &prog.TotalReports, &prog.AcceptedReports, &prog.TotalBountyPaid,
		&prog.CreatedAt, &prog.UpdatedAt)
	if err != nil {
		return nil, err
	}

	prog.RewardStructure = make(map[models.Severity]string, len(structure))
	for k, v := range structure {
		prog.RewardStructure[models.Severity(k)] = v
	}
	for _, s := range unparsed {
		prog.UnparsedSeverities = append(prog.UnparsedSeverities, models.Severity(s))
	}
	return &prog, nil
}

func scanReport(row scanner) (*models.Report, error) {
	var (
		r                models.Report
		severity, status string
	)
	err := row.Scan(&r.ID, &r.ResearcherID, &r.ProgramID, &r.CompanyID, &r.Title, &r.Description,
		&r.StepsToReproduce, &r.Impact, &r.Category, &severity, &status, &r.Reward, &r.Feedback,
		&r.ReviewerID, &r.SubmittedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Severity = models.Severity(severity)
	r.Status = models.Status(status)
	return &r, nil
}

// mapError turns driver errors into the shared error outcomes
func mapError(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503": // unique_violation, foreign_key_violation
			return fmt.Errorf("%s: %s: %w", what, pgErr.ConstraintName, models.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func severityStrings(s []models.Severity) []string {
	out := make([]string, 0, len(s))
	for _, sev := range s {
		out = append(out, string(sev))
	}
	return out
}

func rewardStructure(m map[models.Severity]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
