// Package services contains business logic layers.
// Services are called by handlers and interact with the repository.
package services

import (
	"github.com/bountyboard/bounty-server/internal/metrics"
	"github.com/bountyboard/bounty-server/internal/repository"
)

// Deps are the shared collaborators of the services. Cache and Metrics are optional.
type Deps struct {
	Store   repository.Store
	Cache   LeaderboardCache
	Metrics *metrics.Lifecycle
}
