// Package sqlitepath resolves and opens the local state database shared by the
// studio commands.
package sqlitepath

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/studio/pkg/config"
	"github.com/papercomputeco/studio/pkg/persist"
	"github.com/papercomputeco/studio/pkg/storage/sqlite"
)

// ResolveSQLitePath returns override when set and the configured default
// location otherwise.
func ResolveSQLitePath(override string) (string, error) {
	cfg := config.Default()
	cfg.Storage.SQLitePath = override
	return cfg.ResolveSQLitePath()
}

// OpenRepository opens the database at path and wraps it in a repository. The
// returned driver must be closed by the caller.
func OpenRepository(ctx context.Context, path string, logger *zap.Logger) (*persist.Repository, *sqlite.Driver, error) {
	driver, err := sqlite.NewDriver(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open database %s: %w", path, err)
	}
	return persist.NewRepository(driver, logger), driver, nil
}
