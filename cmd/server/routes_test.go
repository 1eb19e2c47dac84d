package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/config"
	"github.com/bountyboard/bounty-server/internal/metrics"
	"github.com/bountyboard/bounty-server/internal/models"
	"github.com/bountyboard/bounty-server/internal/repository"
	"github.com/bountyboard/bounty-server/internal/services"
)

type client struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T) *client {
	t.Helper()
	cfg := &config.Config{
		Environment:    "test",
		JWTSecret:      "test-secret",
		JWTTTL:         time.Hour,
		AllowedOrigins: []string{"http://localhost:5173"},
		RateLimitRPM:   1000,
	}
	registry := prometheus.NewRegistry()
	deps := services.Deps{Store: repository.NewMemory(), Metrics: metrics.New(registry)}

	a := newApp(cfg, zap.NewNop(), deps, nil, registry)
	srv := httptest.NewServer(a.routes())
	t.Cleanup(srv.Close)
	return &client{t: t, srv: srv}
}

// do sends a JSON request and decodes the JSON response into out when non-nil
func (c *client) do(method, path, token string, body, out any) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.srv.URL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (c *client) signup(username string, role models.Role) *models.AuthResponse {
	c.t.Helper()
	var resp models.AuthResponse
	status := c.do(http.MethodPost, "/api/v1/auth/signup", "", models.SignupRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
		Role:     role,
	}, &resp)
	require.Equal(c.t, http.StatusCreated, status)
	return &resp
}

func TestReportLifecycleOverHTTP(t *testing.T) {
	c := newTestServer(t)
	alice := c.signup("alice", models.RoleResearcher)
	acme := c.signup("acme", models.RoleCompany)
	triage := c.signup("triager", models.RoleTriage)

	var program models.Program
	status := c.do(http.MethodPost, "/api/v1/programs", acme.Token, models.ProgramInput{
		Name: "Acme Web",
		RewardStructure: map[models.Severity]string{
			models.SeverityCritical: "$5,000 - $15,000",
			models.SeverityHigh:     "$2,000 - $5,000",
			models.SeverityMedium:   "$500 - $2,000",
			models.SeverityLow:      "$100 - $500",
		},
	}, &program)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int64(100), program.MinBounty)
	assert.Equal(t, int64(15000), program.MaxBounty)

	var report models.Report
	status = c.do(http.MethodPost, "/api/v1/reports", alice.Token, models.ReportSubmission{
		ProgramID:        program.ID,
		Title:            "RCE via image upload",
		Description:      "ImageMagick delegate injection",
		StepsToReproduce: "Upload exploit.mvg",
		Impact:           "Remote code execution",
		Category:         "RCE",
		Severity:         models.SeverityCritical,
	}, &report)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, models.StatusPendingReview, report.Status)

	statusPath := "/api/v1/reports/" + report.ID.String() + "/status"

	t.Run("researchers cannot review", func(t *testing.T) {
		status := c.do(http.MethodPost, statusPath, alice.Token, models.TransitionRequest{Status: models.StatusAccepted}, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("accepting needs a reward", func(t *testing.T) {
		var body map[string]string
		status := c.do(http.MethodPost, statusPath, triage.Token, models.TransitionRequest{Status: models.StatusAccepted}, &body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "validation", body["code"])
	})

	t.Run("accepting pays the researcher", func(t *testing.T) {
		reward := int64(5000)
		var got models.Report
		status := c.do(http.MethodPost, statusPath, triage.Token, models.TransitionRequest{
			Status: models.StatusAccepted, Reward: &reward,
		}, &got)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, models.StatusAccepted, got.Status)

		var stats models.ResearcherStats
		status = c.do(http.MethodGet, "/api/v1/stats/researchers/"+alice.Account.ID.String(), "", nil, &stats)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, int64(5000), stats.TotalEarnings)
		assert.Equal(t, 1, stats.Accepted)
	})

	t.Run("terminal reports stay terminal", func(t *testing.T) {
		var body map[string]string
		status := c.do(http.MethodPost, statusPath, acme.Token, models.TransitionRequest{Status: models.StatusRejected}, &body)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "invalid_transition", body["code"])
	})

	t.Run("history records the review", func(t *testing.T) {
		var events []models.ReportEvent
		status := c.do(http.MethodGet, "/api/v1/reports/"+report.ID.String()+"/events", alice.Token, nil, &events)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, events, 1)
		assert.Equal(t, triage.Account.ID, events[0].ActorID)
	})

	t.Run("leaderboard ranks the researcher", func(t *testing.T) {
		var board []models.LeaderboardEntry
		status := c.do(http.MethodGet, "/api/v1/stats/leaderboard?timeframe=month", "", nil, &board)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, board, 1)
		assert.Equal(t, "alice", board[0].Identity)
		assert.Equal(t, int64(5000), board[0].Earnings)

		status = c.do(http.MethodGet, "/api/v1/stats/leaderboard?timeframe=decade", "", nil, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("counters are consistent", func(t *testing.T) {
		var body struct {
			Consistent bool `json:"consistent"`
		}
		status := c.do(http.MethodGet, "/api/v1/stats/consistency", triage.Token, nil, &body)
		require.Equal(t, http.StatusOK, status)
		assert.True(t, body.Consistent)

		status = c.do(http.MethodGet, "/api/v1/stats/consistency", acme.Token, nil, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("metrics are exposed", func(t *testing.T) {
		resp, err := c.srv.Client().Get(c.srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `bounty_report_transitions_total{from="Pending Review",to="Accepted"} 1`)
	})
}

func TestAuthBoundaries(t *testing.T) {
	c := newTestServer(t)
	alice := c.signup("alice", models.RoleResearcher)

	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/v1/reports", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/v1/reports", "garbage", nil, nil))
	assert.Equal(t, http.StatusForbidden, c.do(http.MethodPost, "/api/v1/programs", alice.Token, models.ProgramInput{Name: "x"}, nil))

	var me models.Account
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/accounts/me", alice.Token, nil, &me))
	assert.Equal(t, alice.Account.ID, me.ID)

	var login models.AuthResponse
	status := c.do(http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{Login: "alice", Password: "password123"}, &login)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, login.Token)

	status = c.do(http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{Login: "alice", Password: "nope-nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestPublicEndpoints(t *testing.T) {
	c := newTestServer(t)

	var rng models.BountyRange
	status := c.do(http.MethodPost, "/api/v1/programs/bounty-range", "", map[string]string{
		"Critical": "$5,000 - $15,000",
		"Low":      "$100 - $500",
	}, &rng)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(100), rng.MinBounty)
	assert.Equal(t, int64(15000), rng.MaxBounty)

	var programs []models.Program
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/programs?active=true", "", nil, &programs))
	assert.Empty(t, programs)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, "/api/v1/programs?min_bounty=lots", "", nil, nil))
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/api/v1/programs/00000000-0000-0000-0000-000000000001", "", nil, nil))
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/health/ready", "", nil, nil))
}
