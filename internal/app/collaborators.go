// Package app wires the collaborators shared by the server and indexer
// commands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/db"
	"github.com/ideaflow/ideaflow/internal/remote"
	"github.com/ideaflow/ideaflow/pkg/config"
)

// HealthChecker is implemented by backends that can report health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Collaborators bundles the fetch, confirm and lineage sides of one backend.
type Collaborators struct {
	Fetcher    collab.Fetcher
	Mutator    collab.Mutator
	Lineage    collab.LineageSource
	Repository *db.Repository // nil when an upstream service is used
	Health     map[string]HealthChecker
	close      func() error
}

// Close releases the backend connections.
func (c *Collaborators) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// Open connects to the upstream JSON-RPC service when one is configured and
// to the database otherwise.
func Open(cfg *config.Config, logger *zap.Logger) (*Collaborators, error) {
	if cfg.Remote.URL != "" {
		client, err := remote.New(&cfg.Remote)
		if err != nil {
			return nil, fmt.Errorf("failed to create remote client: %w", err)
		}
		logger.Info("Using upstream collaborator", zap.String("url", cfg.Remote.URL))
		return &Collaborators{
			Fetcher: client,
			Mutator: client,
			Lineage: client,
			Health:  map[string]HealthChecker{},
		}, nil
	}

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Info("Using database collaborator", zap.String("driver", cfg.Database.Driver))
	repo := db.NewRepository(database.DB)
	return &Collaborators{
		Fetcher:    repo,
		Mutator:    repo,
		Lineage:    repo,
		Repository: repo,
		Health:     map[string]HealthChecker{"database": database},
		close:      database.Close,
	}, nil
}
