// Package repository persists accounts, programs and reports.
// Two backends share one contract: Postgres for deployments and Memory for
// development and tests. Every multi-row write is a single atomic unit and
// every counter change is an increment, never a read-modify-write.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bountyboard/bounty-server/internal/models"
)

// Accounts stores the identity and role directory
type Accounts interface {
	// CreateAccount fails with models.ErrConflict when the username or email is taken.
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// FindAccountByLogin matches the username or the email.
	FindAccountByLogin(ctx context.Context, login string) (*models.Account, error)
	// ListAccounts returns every account with the role, or all accounts for "".
	ListAccounts(ctx context.Context, role models.Role) ([]models.Account, error)
	// DeleteAccount fails with models.ErrConflict while programs or reports reference the account.
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// Programs stores the program registry
type Programs interface {
	// CreateProgram also increments the owning company's programs_created.
	CreateProgram(ctx context.Context, p *models.Program) error
	GetProgram(ctx context.Context, id uuid.UUID) (*models.Program, error)
	ListPrograms(ctx context.Context, f models.ProgramFilter) ([]models.Program, error)
	// UpdateProgram replaces the descriptive fields and derived bounds.
	// Ownership and counters are left untouched.
	UpdateProgram(ctx context.Context, p *models.Program) error
	// DeleteProgram fails with models.ErrConflict while reports reference the program.
	DeleteProgram(ctx context.Context, id uuid.UUID) error
}

// Reports stores reports and their review history
type Reports interface {
	// CreateReport inserts the report and increments the researcher's
	// reports_submitted and the program's total_reports.
	CreateReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error)
	ListReports(ctx context.Context, f models.ReportFilter) ([]models.Report, error)
	// UpdateReportContent rewrites the researcher-editable fields only while
	// the report is still Pending Review, else models.ErrConflict.
	UpdateReportContent(ctx context.Context, r *models.Report) error
	// ApplyTransition performs a conditional status write plus bookkeeping.
	ApplyTransition(ctx context.Context, t Transition) (*models.Report, error)
	// DeleteReport removes a report whose status still equals r.Expected.
	DeleteReport(ctx context.Context, r Removal) error
	ListReportEvents(ctx context.Context, reportID uuid.UUID) ([]models.ReportEvent, error)
}

// Store is the full persistence layer
type Store interface {
	Accounts
	Programs
	Reports
	// Snapshot reads accounts, programs and reports as of one point in time.
	Snapshot(ctx context.Context) (*Snapshot, error)
	Ping(ctx context.Context) error
	Close()
}

// Snapshot is a consistent view of the whole store
type Snapshot struct {
	Accounts []models.Account
	Programs []models.Program
	Reports  []models.Report
}

// Payout moves an accepted report's reward into the researcher, program and
// company totals. A negative Sign reverses a previous payout.
type Payout struct {
	ResearcherID uuid.UUID
	ProgramID    uuid.UUID
	CompanyID    uuid.UUID
	Amount       int64
	Sign         int64
}

func (p Payout) delta() (amount, count int64) {
	sign := p.Sign
	if sign == 0 {
		sign = 1
	}
	return sign * p.Amount, sign
}

// Transition is a status change the service has already validated.
// The write only succeeds while the stored status still equals From.
type Transition struct {
	ReportID uuid.UUID
	From     models.Status
	To       models.Status
	Actor    models.Actor
	Reward   *int64
	Feedback *string
	At       time.Time
	// Payout is set when the transition accepts the report.
	Payout *Payout
	// CountReview increments the actor's reports_reviewed.
	CountReview bool
}

// Removal deletes a report while its status still equals Expected
type Removal struct {
	ReportID uuid.UUID
	Expected models.Status
	// Refund reverses the payout of an Accepted report.
	Refund *Payout
}
