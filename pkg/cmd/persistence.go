// Package cmd provides common initialization for the service binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence/memory"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence/postgresql"
)

// NewPersistence picks the store from the database URL scheme. An empty
// URL or the "memory" scheme gets the in-memory store, which only makes
// sense for development and tests.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgresql":
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgresql persistence: %w", err))
		}

		return persist
	default:
		logger.WarnContext(ctx, "Using in-memory persistence, state will not survive a restart")

		return memory.NewPersistence()
	}
}

// NewEntityService returns the entity snapshot/mutation service. When
// the persistence layer shares a Postgres database the entities live in
// the same instance; otherwise an in-memory service is used.
func NewEntityService(logger *slog.Logger, persist persistence.Persistence) entities.Service {
	if pg, ok := persist.(*postgresql.Persistence); ok {
		return entities.NewPostgresService(pg.DB(), logger)
	}

	return entities.NewMemoryService()
}

func parseProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "memory"
	}

	if scheme == "postgres" || scheme == "postgresql" {
		return "postgresql"
	}

	return "memory"
}
