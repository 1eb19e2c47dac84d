// Package models defines the data structures used across the application.
// These map to the PostgreSQL schema in internal/database/migrations.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the single, immutable role an account carries
type Role string

const (
	RoleResearcher Role = "researcher"
	RoleCompany    Role = "company"
	RoleTriage     Role = "triage"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleResearcher, RoleCompany, RoleTriage:
		return true
	}
	return false
}

// Severity classifies a report and indexes a program's reward structure
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Severities lists every severity, most severe first
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Valid reports whether s is one of the four known severities
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// Rank orders severities with Critical at 0. Unknown severities rank -1.
func (s Severity) Rank() int {
	for i, known := range Severities {
		if s == known {
			return i
		}
	}
	return -1
}

// Account is a researcher, company or triage user.
// Counters are only ever changed by report and program bookkeeping.
type Account struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	Role         Role      `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`

	// researcher
	ReportsSubmitted int64 `json:"reports_submitted" db:"reports_submitted"`
	TotalEarnings    int64 `json:"total_earnings" db:"total_earnings"`
	// company
	ProgramsCreated int64 `json:"programs_created" db:"programs_created"`
	TotalBountyPaid int64 `json:"total_bounty_paid" db:"total_bounty_paid"`
	// triage
	ReportsReviewed int64 `json:"reports_reviewed" db:"reports_reviewed"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Actor is the authenticated caller of an operation
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// Program is a company-owned bounty program
type Program struct {
	ID                 uuid.UUID           `json:"id" db:"id"`
	CompanyID          uuid.UUID           `json:"company_id" db:"company_id"`
	Name               string              `json:"name" db:"name"`
	Industry           string              `json:"industry" db:"industry"`
	Description        string              `json:"description" db:"description"`
	Scope              []string            `json:"scope" db:"scope"`
	OutOfScope         []string            `json:"out_of_scope" db:"out_of_scope"`
	Rules              []string            `json:"rules" db:"rules"`
	RewardStructure    map[Severity]string `json:"reward_structure" db:"reward_structure"`
	MinBounty          int64               `json:"min_bounty" db:"min_bounty"`
	MaxBounty          int64               `json:"max_bounty" db:"max_bounty"`
	UnparsedSeverities []Severity          `json:"unparsed_severities,omitempty" db:"unparsed_severities"`
	Active             bool                `json:"active" db:"active"`
	TotalReports       int64               `json:"total_reports" db:"total_reports"`
	AcceptedReports    int64               `json:"accepted_reports" db:"accepted_reports"`
	TotalBountyPaid    int64               `json:"total_bounty_paid" db:"total_bounty_paid"`
	CreatedAt          time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at" db:"updated_at"`
}

// Report is a single vulnerability submission against one program
type Report struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	ResearcherID     uuid.UUID  `json:"researcher_id" db:"researcher_id"`
	ProgramID        uuid.UUID  `json:"program_id" db:"program_id"`
	CompanyID        uuid.UUID  `json:"company_id" db:"company_id"`
	Title            string     `json:"title" db:"title"`
	Description      string     `json:"description" db:"description"`
	StepsToReproduce string     `json:"steps_to_reproduce" db:"steps_to_reproduce"`
	Impact           string     `json:"impact" db:"impact"`
	Category         string     `json:"category" db:"category"`
	Severity         Severity   `json:"severity" db:"severity"`
	Status           Status     `json:"status" db:"status"`
	Reward           *int64     `json:"reward" db:"reward"`
	Feedback         *string    `json:"feedback" db:"feedback"`
	ReviewerID       *uuid.UUID `json:"reviewer_id" db:"reviewer_id"`
	SubmittedAt      time.Time  `json:"submitted_at" db:"submitted_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// ReportEvent is one entry in a report's review history
type ReportEvent struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ReportID   uuid.UUID `json:"report_id" db:"report_id"`
	ActorID    uuid.UUID `json:"actor_id" db:"actor_id"`
	ActorRole  Role      `json:"actor_role" db:"actor_role"`
	FromStatus Status    `json:"from_status" db:"from_status"`
	ToStatus   Status    `json:"to_status" db:"to_status"`
	Reward     *int64    `json:"reward,omitempty" db:"reward"`
	Feedback   *string   `json:"feedback,omitempty" db:"feedback"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ReportFilter narrows a report listing. Nil fields match everything.
type ReportFilter struct {
	ResearcherID *uuid.UUID
	CompanyID    *uuid.UUID
	ProgramID    *uuid.UUID
	Status       *Status
	Severity     *Severity
}

// ProgramFilter narrows a program listing. Zero values match everything.
type ProgramFilter struct {
	Active    *bool
	Industry  string
	CompanyID *uuid.UUID
	MinBounty *int64
}

// SignupRequest is the request body for creating an account
type SignupRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"max=64"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	Role        Role   `json:"role" validate:"required,oneof=researcher company triage"`
}

// LoginRequest accepts either username or email as login
type LoginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by signup and login
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   *Account  `json:"account"`
}

// ProgramInput is the request body for creating or replacing a program
type ProgramInput struct {
	Name            string              `json:"name" validate:"required,max=120"`
	Industry        string              `json:"industry" validate:"max=80"`
	Description     string              `json:"description"`
	Scope           []string            `json:"scope"`
	OutOfScope      []string            `json:"out_of_scope"`
	Rules           []string            `json:"rules"`
	RewardStructure map[Severity]string `json:"reward_structure"`
	Active          *bool               `json:"active,omitempty"`
}

// ReportSubmission is the request body for filing a new report
type ReportSubmission struct {
	ProgramID        uuid.UUID `json:"program_id" validate:"required"`
	Title            string    `json:"title" validate:"required,max=200"`
	Description      string    `json:"description" validate:"required"`
	StepsToReproduce string    `json:"steps_to_reproduce" validate:"required"`
	Impact           string    `json:"impact" validate:"required"`
	Category         string    `json:"category" validate:"required,max=80"`
	Severity         Severity  `json:"severity" validate:"required,oneof=Low Medium High Critical"`
}

// ReportContentUpdate replaces the researcher-editable fields of a report
type ReportContentUpdate struct {
	Title            string   `json:"title" validate:"required,max=200"`
	Description      string   `json:"description" validate:"required"`
	StepsToReproduce string   `json:"steps_to_reproduce" validate:"required"`
	Impact           string   `json:"impact" validate:"required"`
	Category         string   `json:"category" validate:"required,max=80"`
	Severity         Severity `json:"severity" validate:"required,oneof=Low Medium High Critical"`
}

// TransitionRequest is the request body for a status change
type TransitionRequest struct {
	Status   Status  `json:"status"`
	Reward   *int64  `json:"reward,omitempty"`
	Feedback *string `json:"feedback,omitempty"`
}

// BountyRange is the numeric range derived from a reward structure
type BountyRange struct {
	MinBounty int64      `json:"min_bounty"`
	MaxBounty int64      `json:"max_bounty"`
	Unparsed  []Severity `json:"unparsed,omitempty"`
}

// ReportCounts tallies reports by status
type ReportCounts struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	InReview      int `json:"in_review"`
	Accepted      int `json:"accepted"`
	Rejected      int `json:"rejected"`
	Duplicate     int `json:"duplicate"`
	Informative   int `json:"informative"`
	NotApplicable int `json:"not_applicable"`
}

// ResearcherStats summarises one researcher's reports
type ResearcherStats struct {
	ResearcherID uuid.UUID `json:"researcher_id"`
	ReportCounts
	TotalEarnings int64 `json:"total_earnings"`
}

// CompanyStats summarises the reports filed against one company's programs
type CompanyStats struct {
	CompanyID uuid.UUID `json:"company_id"`
	ReportCounts
	TotalBountyPaid int64 `json:"total_bounty_paid"`
}

// LeaderboardEntry is one researcher's standing within a timeframe
type LeaderboardEntry struct {
	ResearcherID uuid.UUID `json:"researcher_id"`
	Identity     string    `json:"identity"`
	Earnings     int64     `json:"earnings"`
	Accepted     int       `json:"accepted"`
	TotalReports int       `json:"total_reports"`
}

// Analytics holds report distributions for charts
type Analytics struct {
	BySeverity map[Severity]int `json:"by_severity"`
	ByCategory map[string]int   `json:"by_category"`
	ByStatus   map[Status]int   `json:"by_status"`
}

// CounterDrift records a stored counter that disagrees with the reports
type CounterDrift struct {
	Entity   string    `json:"entity"` // "account" | "program"
	ID       uuid.UUID `json:"id"`
	Counter  string    `json:"counter"`
	Stored   int64     `json:"stored"`
	Computed int64     `json:"computed"`
}

// HealthStatus represents the server health check response
type HealthStatus struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`
	Cache    string `json:"cache,omitempty"`
}
