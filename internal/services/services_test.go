package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/auth"
	"github.com/bountyboard/bounty-server/internal/models"
	"github.com/bountyboard/bounty-server/internal/repository"
	"github.com/bountyboard/bounty-server/internal/stats"
)

// fakeCache records leaderboard cache traffic in memory
type fakeCache struct {
	entries     map[stats.Timeframe][]models.LeaderboardEntry
	generation  int64
	gets        int
	invalidated int
	failGet     error
	// beforeSet runs at the start of Set, between computing and storing a board
	beforeSet func()
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[stats.Timeframe][]models.LeaderboardEntry)}
}

func (c *fakeCache) Get(_ context.Context, tf stats.Timeframe) ([]models.LeaderboardEntry, bool, error) {
	c.gets++
	if c.failGet != nil {
		return nil, false, c.failGet
	}
	e, ok := c.entries[tf]
	return e, ok, nil
}

func (c *fakeCache) Generation(context.Context) (int64, error) {
	return c.generation, nil
}

func (c *fakeCache) Set(_ context.Context, tf stats.Timeframe, generation int64, entries []models.LeaderboardEntry) error {
	if c.beforeSet != nil {
		hook := c.beforeSet
		c.beforeSet = nil
		hook()
	}
	if generation != c.generation {
		return nil
	}
	c.entries[tf] = entries
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.invalidated++
	c.generation++
	c.entries = make(map[stats.Timeframe][]models.LeaderboardEntry)
	return nil
}

// env wires every service onto one in-memory store
type env struct {
	store    *repository.Memory
	cache    *fakeCache
	accounts *AccountService
	programs *ProgramService
	reports  *ReportService
	stats    *StatsService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zap.NewNop().Sugar()
	store := repository.NewMemory()
	cache := newFakeCache()
	return &env{
		store:    store,
		cache:    cache,
		accounts: NewAccountService(store, auth.NewIssuer("test-secret", time.Hour), logger),
		programs: NewProgramService(store, logger),
		reports:  NewReportService(store, cache, nil, logger),
		stats:    NewStatsService(store, cache, logger),
	}
}

func (e *env) signup(t *testing.T, username string, role models.Role) models.Actor {
	t.Helper()
	resp, err := e.accounts.Signup(context.Background(), &models.SignupRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
		Role:     role,
	})
	require.NoError(t, err)
	return models.Actor{ID: resp.Account.ID, Role: role}
}

func (e *env) program(t *testing.T, company models.Actor) *models.Program {
	t.Helper()
	p, err := e.programs.Create(context.Background(), company, &models.ProgramInput{
		Name:     "Acme Web",
		Industry: "Retail",
		Scope:    []string{"*.acme.test"},
		RewardStructure: map[models.Severity]string{
			models.SeverityCritical: "$5,000 - $15,000",
			models.SeverityHigh:     "$2,000 - $5,000",
			models.SeverityMedium:   "$500 - $2,000",
			models.SeverityLow:      "$100 - $500",
		},
	})
	require.NoError(t, err)
	return p
}

func (e *env) submit(t *testing.T, researcher models.Actor, programID uuid.UUID, sev models.Severity) *models.Report {
	t.Helper()
	r, err := e.reports.Submit(context.Background(), researcher, submission(programID, sev))
	require.NoError(t, err)
	return r
}

func (e *env) account(t *testing.T, id uuid.UUID) *models.Account {
	t.Helper()
	a, err := e.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (e *env) programByID(t *testing.T, id uuid.UUID) *models.Program {
	t.Helper()
	p, err := e.store.GetProgram(context.Background(), id)
	require.NoError(t, err)
	return p
}

func submission(programID uuid.UUID, sev models.Severity) *models.ReportSubmission {
	return &models.ReportSubmission{
		ProgramID:        programID,
		Title:            "SQL injection in search",
		Description:      "The q parameter is concatenated into SQL.",
		StepsToReproduce: "GET /search?q=' OR 1=1--",
		Impact:           "Full database read",
		Category:         "Injection",
		Severity:         sev,
	}
}

func ptr[T any](v T) *T { return &v }
