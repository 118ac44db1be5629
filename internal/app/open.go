package app

import (
	"context"
	"fmt"

	"github.com/okian/hydropool/internal/adapters/source"
	"github.com/okian/hydropool/internal/adapters/source/archive"
	"github.com/okian/hydropool/internal/adapters/source/clickhouse"
	"github.com/okian/hydropool/internal/adapters/source/postgres"
	"github.com/okian/hydropool/internal/adapters/source/sqlite"
	"github.com/okian/hydropool/internal/config"
)

// OpenSource opens the store a source configuration names.
func OpenSource(ctx context.Context, cfg config.Source) (source.Store, error) {
	switch cfg.Kind {
	case config.SourceMemory, "":
		return source.NewMemory(), nil
	case config.SourceSQLite:
		return opened(sqlite.Open(ctx, cfg.Path))
	case config.SourcePostgres:
		return opened(postgres.Open(ctx, cfg.DSN))
	case config.SourceClickHouse:
		return opened(clickhouse.Open(ctx, cfg.DSN))
	case config.SourceArchive:
		return opened(archive.Open(cfg.Path))
	default:
		return nil, fmt.Errorf("%w: %q", source.ErrUnknownSource, cfg.Kind)
	}
}

// opened keeps a failed open from becoming a non-nil interface.
func opened[S source.Store](store S, err error) (source.Store, error) {
	if err != nil {
		return nil, err
	}
	return store, nil
}
