package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bountyboard/bounty-server/internal/models"
)

// runStoreContract exercises the behaviour every Store backend must share.
// newStore must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("should enforce unique usernames and emails case-insensitively", func(t *testing.T) {
		s := newStore(t)
		a := seedAccount(t, s, "alice", models.RoleResearcher)

		dup := newAccount("ALICE", models.RoleResearcher)
		assert.ErrorIs(t, s.CreateAccount(ctx, dup), models.ErrConflict)

		dup = newAccount("alice2", models.RoleResearcher)
		dup.Email = "Alice@Example.com"
		assert.ErrorIs(t, s.CreateAccount(ctx, dup), models.ErrConflict)

		found, err := s.FindAccountByLogin(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, a.ID, found.ID)
		assert.Equal(t, "hash", found.PasswordHash)

		_, err = s.GetAccount(ctx, uuid.New())
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = s.FindAccountByLogin(ctx, "nobody")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("should list accounts by role", func(t *testing.T) {
		s := newStore(t)
		seedAccount(t, s, "alice", models.RoleResearcher)
		seedAccount(t, s, "acme", models.RoleCompany)
		seedAccount(t, s, "bob", models.RoleResearcher)

		researchers, err := s.ListAccounts(ctx, models.RoleResearcher)
		require.NoError(t, err)
		assert.Len(t, researchers, 2)

		all, err := s.ListAccounts(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("should count programs against their company", func(t *testing.T) {
		s := newStore(t)
		acme := seedAccount(t, s, "acme", models.RoleCompany)
		p := seedProgram(t, s, acme.ID)

		company, err := s.GetAccount(ctx, acme.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), company.ProgramsCreated)

		got, err := s.GetProgram(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.RewardStructure, got.RewardStructure)
		assert.Equal(t, p.Scope, got.Scope)
		assert.Equal(t, []models.Severity{models.SeverityLow}, got.UnparsedSeverities)
		assert.Equal(t, int64(100), got.MinBounty)

		orphan := newProgram(uuid.New())
		assert.ErrorIs(t, s.CreateProgram(ctx, orphan), models.ErrNotFound)
	})

	t.Run("should filter and update programs", func(t *testing.T) {
		s := newStore(t)
		acme := seedAccount(t, s, "acme", models.RoleCompany)
		p := seedProgram(t, s, acme.ID)
		other := newProgram(acme.ID)
		other.Industry = "Finance"
		other.Active = false
		other.MinBounty = 5000
		require.NoError(t, s.CreateProgram(ctx, other))

		active := true
		list, err := s.ListPrograms(ctx, models.ProgramFilter{Active: &active})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, p.ID, list[0].ID)

		list, err = s.ListPrograms(ctx, models.ProgramFilter{Industry: "finance"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, other.ID, list[0].ID)

		minBounty := int64(1000)
		list, err = s.ListPrograms(ctx, models.ProgramFilter{MinBounty: &minBounty, CompanyID: &acme.ID})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, other.ID, list[0].ID)

		p.Name = "Renamed"
		p.Scope = []string{"api.acme.test"}
		p.UnparsedSeverities = nil
		require.NoError(t, s.UpdateProgram(ctx, p))
		got, err := s.GetProgram(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, []string{"api.acme.test"}, got.Scope)
		assert.Empty(t, got.UnparsedSeverities)

		missing := newProgram(acme.ID)
		assert.ErrorIs(t, s.UpdateProgram(ctx, missing), models.ErrNotFound)
	})

	t.Run("should count submissions atomically with the insert", func(t *testing.T) {
		s := newStore(t)
		researcher, _, program := seedWorld(t, s)
		r := seedReport(t, s, researcher.ID, program)

		got, err := s.GetReport(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPendingReview, got.Status)
		assert.Nil(t, got.Reward)
		assert.Nil(t, got.ReviewerID)

		account, _ := s.GetAccount(ctx, researcher.ID)
		assert.Equal(t, int64(1), account.ReportsSubmitted)
		prog, _ := s.GetProgram(ctx, program.ID)
		assert.Equal(t, int64(1), prog.TotalReports)

		dangling := newReport(researcher.ID, newProgram(program.CompanyID))
		assert.ErrorIs(t, s.CreateReport(ctx, dangling), models.ErrNotFound)
		account, _ = s.GetAccount(ctx, researcher.ID)
		assert.Equal(t, int64(1), account.ReportsSubmitted, "failed insert must not count")
	})

	t.Run("should apply an accepting transition with its payout", func(t *testing.T) {
		s := newStore(t)
		researcher, company, program := seedWorld(t, s)
		triage := seedAccount(t, s, "triager", models.RoleTriage)
		r := seedReport(t, s, researcher.ID, program)

		amount := int64(5000)
		feedback := "nice find"
		got, err := s.ApplyTransition(ctx, Transition{
			ReportID: r.ID,
			From:     models.StatusPendingReview,
			To:       models.StatusAccepted,
			Actor:    models.Actor{ID: triage.ID, Role: models.RoleTriage},
			Reward:   &amount,
			Feedback: &feedback,
			At:       time.Now().UTC(),
			Payout: &Payout{
				ResearcherID: researcher.ID,
				ProgramID:    program.ID,
				CompanyID:    company.ID,
				Amount:       amount,
			},
			CountReview: true,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusAccepted, got.Status)
		require.NotNil(t, got.Reward)
		assert.Equal(t, amount, *got.Reward)
		require.NotNil(t, got.ReviewerID)
		assert.Equal(t, triage.ID, *got.ReviewerID)
		assert.Equal(t, feedback, *got.Feedback)

		acc, _ := s.GetAccount(ctx, researcher.ID)
		assert.Equal(t, amount, acc.TotalEarnings)
		acc, _ = s.GetAccount(ctx, company.ID)
		assert.Equal(t, amount, acc.TotalBountyPaid)
		acc, _ = s.GetAccount(ctx, triage.ID)
		assert.Equal(t, int64(1), acc.ReportsReviewed)
		prog, _ := s.GetProgram(ctx, program.ID)
		assert.Equal(t, int64(1), prog.AcceptedReports)
		assert.Equal(t, amount, prog.TotalBountyPaid)
		assert.Equal(t, int64(1), prog.TotalReports)

		events, err := s.ListReportEvents(ctx, r.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, models.StatusPendingReview, events[0].FromStatus)
		assert.Equal(t, models.StatusAccepted, events[0].ToStatus)
		assert.Equal(t, models.RoleTriage, events[0].ActorRole)
	})

	t.Run("should reject a transition whose source status is stale", func(t *testing.T) {
		s := newStore(t)
		researcher, company, program := seedWorld(t, s)
		r := seedReport(t, s, researcher.ID, program)
		actor := models.Actor{ID: company.ID, Role: models.RoleCompany}

		_, err := s.ApplyTransition(ctx, Transition{
			ReportID: r.ID, From: models.StatusInReview, To: models.StatusRejected, Actor: actor, At: time.Now(),
		})
		assert.ErrorIs(t, err, models.ErrConflict)

		_, err = s.ApplyTransition(ctx, Transition{
			ReportID: uuid.New(), From: models.StatusPendingReview, To: models.StatusRejected, Actor: actor, At: time.Now(),
		})
		assert.ErrorIs(t, err, models.ErrNotFound)

		got, _ := s.GetReport(ctx, r.ID)
		assert.Equal(t, models.StatusPendingReview, got.Status)
	})

	t.Run("should let exactly one of many concurrent transitions win", func(t *testing.T) {
		s := newStore(t)
		researcher, company, program := seedWorld(t, s)
		r := seedReport(t, s, researcher.ID, program)

		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				amount := int64(100)
				_, err := s.ApplyTransition(ctx, Transition{
					ReportID: r.ID,
					From:     models.StatusPendingReview,
					To:       models.StatusAccepted,
					Actor:    models.Actor{ID: company.ID, Role: models.RoleCompany},
					Reward:   &amount,
					At:       time.Now(),
					Payout: &Payout{
						ResearcherID: researcher.ID, ProgramID: program.ID, CompanyID: company.ID, Amount: amount,
					},
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, models.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, workers-1, conflicts)
		acc, _ := s.GetAccount(ctx, researcher.ID)
		assert.Equal(t, int64(100), acc.TotalEarnings)
		prog, _ := s.GetProgram(ctx, program.ID)
		assert.Equal(t, int64(1), prog.AcceptedReports)
	})

	t.Run("should roll back the status write when a payout target vanished", func(t *testing.T) {
		s := newStore(t)
		researcher, company, program := seedWorld(t, s)
		r := seedReport(t, s, researcher.ID, program)
		amount := int64(10)

		_, err := s.ApplyTransition(ctx, Transition{
			ReportID: r.ID,
			From:     models.StatusPendingReview,
			To:       models.StatusAccepted,
			Actor:    models.Actor{ID: company.ID, Role: models.RoleCompany},
			Reward:   &amount,
			At:       time.Now(),
			Payout:   &Payout{ResearcherID: researcher.ID, ProgramID: program.ID, CompanyID: uuid.New(), Amount: amount},
		})
		assert.ErrorIs(t, err, models.ErrConflict)

		got, _ := s.GetReport(ctx, r.ID)
		assert.Equal(t, models.StatusPendingReview, got.Status)
		acc, _ := s.GetAccount(ctx, researcher.ID)
		assert.Zero(t, acc.TotalEarnings)
	})

	t.Run("should only edit content while pending review", func(t *testing.T) {
		s := newStore(t)
		researcher, company, program := seedWorld(t, s)
		r := seedReport(t, s, researcher.ID, program)

		r.Title = "Updated title"
		r.Severity = models.SeverityCritical
		require.NoError(t, s.UpdateReportContent(ctx, r))
		got, _ := s.GetReport(ctx, r.ID)
		assert.Equal(t, "Updated title", got.Title)
		assert.Equal(t, models.SeverityCritical, got.Severity)

		_, err := s.ApplyTransition(ctx, Transition{
			ReportID: r.ID, From: models.StatusPendingReview, To: models.StatusInReview,
			Actor: models.Actor{ID: company.ID, Role: models.RoleCompany}, At: time.Now(),
		})
		require.NoError(t, err)

		r.Title = "Too late"
		assert.ErrorIs(t, s.UpdateReportContent(ctx, r), models.ErrConflict)
	})

	t.Run("should refuse a transition by a reviewer whose account is gone", func(t *testing.T) {
		s := newStore(t)
		researcher, _, program := seedWorld(t, s)
		r := seedReport(t, s, researcher.ID, program)

		reviewer := seedAccount(t, s, "gone", models.RoleTriage)
		require.NoError(t, s.DeleteAccount(ctx, reviewer.ID))

		for _, countReview := range []bool{false, true} {
			_, err := s.ApplyTransition(ctx, Transition{
				ReportID:    r.ID,
				From:        models.StatusPendingReview,
				To:          models.StatusInReview,
				Actor:       models.Actor{ID: reviewer.ID, Role: models.RoleTriage},
				At:          time.Now(),
				CountReview: countReview,
			})
			assert.ErrorIs(t, err, models.ErrConflict)
		}

		got, err := s.GetReport(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPendingReview, got.Status)
		assert.Nil(t, got.ReviewerID)

		events, err := s.ListReportEvents(ctx, r.ID)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("should snapshot accounts programs and reports together", func(t *testing.T) {
		s := newStore(t)
		researcher, _, program := seedWorld(t, s)
		r := seedReport(t, s, researcher.ID, program)

		snap, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.Len(t, snap.Accounts, 2)
		require.Len(t, snap.Programs, 1)
		assert.Equal(t, int64(1), snap.Programs[0].TotalReports)
		require.Len(t, snap.Reports, 1)
		assert.Equal(t, r.ID, snap.Reports[0].ID)
	})

	t.Run("should refuse to delete referenced accounts and programs", func(t *testing.T) {
		s := newStore(t)
		researcher, company, program := seedWorld(t, s)
		seedReport(t, s, researcher.ID, program)

		assert.ErrorIs(t, s.DeleteAccount(ctx, researcher.ID), models.ErrConflict)
		assert.ErrorIs(t, s.DeleteAccount(ctx, company.ID), models.ErrConflict)
		assert.ErrorIs(t, s.DeleteProgram(ctx, program.ID), models.ErrConflict)
		assert.ErrorIs(t, s.DeleteAccount(ctx, uuid.New()), models.ErrNotFound)

		loner := seedAccount(t, s, "loner", models.RoleTriage)
		require.NoError(t, s.DeleteAccount(ctx, loner.ID))
		_, err := s.GetAccount(ctx, loner.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("should reverse the payout when an accepted report is deleted", func(t *testing.T) {
		s := newStore(t)
		researcher, company, program := seedWorld(t, s)
		r := seedReport(t, s, researcher.ID, program)
		amount := int64(750)
		payout := Payout{ResearcherID: researcher.ID, ProgramID: program.ID, CompanyID: company.ID, Amount: amount}

		_, err := s.ApplyTransition(ctx, Transition{
			ReportID: r.ID, From: models.StatusPendingReview, To: models.StatusAccepted,
			Actor: models.Actor{ID: company.ID, Role: models.RoleCompany}, Reward: &amount, At: time.Now(),
			Payout: &payout,
		})
		require.NoError(t, err)

		assert.ErrorIs(t, s.DeleteReport(ctx, Removal{ReportID: r.ID, Expected: models.StatusPendingReview}), models.ErrConflict)

		refund := payout
		refund.Sign = -1
		require.NoError(t, s.DeleteReport(ctx, Removal{ReportID: r.ID, Expected: models.StatusAccepted, Refund: &refund}))

		_, err = s.GetReport(ctx, r.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		acc, _ := s.GetAccount(ctx, researcher.ID)
		assert.Zero(t, acc.TotalEarnings)
		prog, _ := s.GetProgram(ctx, program.ID)
		assert.Zero(t, prog.AcceptedReports)
		assert.Zero(t, prog.TotalBountyPaid)
		assert.Equal(t, int64(1), prog.TotalReports, "submission count is kept")

		events, err := s.ListReportEvents(ctx, r.ID)
		require.NoError(t, err)
		assert.Empty(t, events)

		assert.ErrorIs(t, s.DeleteReport(ctx, Removal{ReportID: r.ID, Expected: models.StatusAccepted}), models.ErrNotFound)
	})

	t.Run("should filter reports", func(t *testing.T) {
		s := newStore(t)
		researcher, _, program := seedWorld(t, s)
		other := seedAccount(t, s, "bob", models.RoleResearcher)
		seedReport(t, s, researcher.ID, program)
		r2 := newReport(other.ID, program)
		r2.Severity = models.SeverityCritical
		require.NoError(t, s.CreateReport(ctx, r2))

		list, err := s.ListReports(ctx, models.ReportFilter{ResearcherID: &other.ID})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, r2.ID, list[0].ID)

		sev := models.SeverityHigh
		list, err = s.ListReports(ctx, models.ReportFilter{Severity: &sev, ProgramID: &program.ID})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		status := models.StatusPendingReview
		list, err = s.ListReports(ctx, models.ReportFilter{Status: &status, CompanyID: &program.CompanyID})
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}

func newAccount(username string, role models.Role) *models.Account {
	return &models.Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@example.com",
		DisplayName:  username,
		Role:         role,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
}

func seedAccount(t *testing.T, s Store, username string, role models.Role) *models.Account {
	t.Helper()
	a := newAccount(username, role)
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

func newProgram(companyID uuid.UUID) *models.Program {
	now := time.Now().UTC()
	return &models.Program{
		ID:        uuid.New(),
		CompanyID: companyID,
		Name:      "Acme Web",
		Industry:  "Retail",
		Scope:     []string{"*.acme.test"},
		RewardStructure: map[models.Severity]string{
			models.SeverityCritical: "$5,000 - $15,000",
			models.SeverityLow:      "$100",
		},
		MinBounty:          100,
		MaxBounty:          15000,
		UnparsedSeverities: []models.Severity{models.SeverityLow},
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func seedProgram(t *testing.T, s Store, companyID uuid.UUID) *models.Program {
	t.Helper()
	p := newProgram(companyID)
	require.NoError(t, s.CreateProgram(context.Background(), p))
	return p
}

func newReport(researcherID uuid.UUID, p *models.Program) *models.Report {
	now := time.Now().UTC()
	return &models.Report{
		ID:               uuid.New(),
		ResearcherID:     researcherID,
		ProgramID:        p.ID,
		CompanyID:        p.CompanyID,
		Title:            "Stored XSS in profile",
		Description:      "The bio field is rendered unescaped.",
		StepsToReproduce: "1. Set bio to <script>",
		Impact:           "Account takeover",
		Category:         "XSS",
		Severity:         models.SeverityHigh,
		Status:           models.StatusPendingReview,
		SubmittedAt:      now,
		UpdatedAt:        now,
	}
}

func seedReport(t *testing.T, s Store, researcherID uuid.UUID, p *models.Program) *models.Report {
	t.Helper()
	r := newReport(researcherID, p)
	require.NoError(t, s.CreateReport(context.Background(), r))
	return r
}

func seedWorld(t *testing.T, s Store) (researcher, company *models.Account, program *models.Program) {
	t.Helper()
	researcher = seedAccount(t, s, "alice", models.RoleResearcher)
	company = seedAccount(t, s, "acme", models.RoleCompany)
	program = seedProgram(t, s, company.ID)
	return researcher, company, program
}
