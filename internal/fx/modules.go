package fx

import (
	"database/sql"

	"engagement-engine/internal/cache"
	"engagement-engine/internal/config"
	"engagement-engine/internal/constants"
	"engagement-engine/internal/database"
	"engagement-engine/internal/db"
	"engagement-engine/internal/lock"
	"engagement-engine/internal/logger"
	"engagement-engine/internal/notify"
	"engagement-engine/internal/repository"
	"engagement-engine/internal/server"
	"engagement-engine/internal/service"
	"engagement-engine/internal/tables"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideQueries(sqlDB *sql.DB) *db.Queries {
	return db.New(sqlDB)
}

func ProvideTables(cfg *config.Config) (*tables.Set, error) {
	return tables.Load(cfg.TablesFile)
}

// ProvideBucketLocker shares ranking locks through redis when it is
// configured; a single process falls back to in-memory locks.
func ProvideBucketLocker(rdb *redis.Client, logger zerolog.Logger) lock.BucketLocker {
	if rdb == nil {
		return lock.NewLocalLocker()
	}
	return lock.NewRedisLocker(rdb, constants.RankingLockTTL, logger)
}

// Core wires storage and the engine services without any transport, so the
// admin CLI can reuse it.
var Core = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	fx.Provide(ProvideQueries),
	fx.Provide(ProvideTables),
	// repos
	fx.Provide(repository.NewProgressRepository),
	fx.Provide(repository.NewPointHistoryRepository),
	fx.Provide(repository.NewStreakRepository),
	fx.Provide(repository.NewCompanionRepository),
	fx.Provide(repository.NewRankingRepository),
	// infra
	fx.Provide(cache.NewRedisClient),
	fx.Provide(cache.NewRankingCache),
	fx.Provide(ProvideBucketLocker),
	fx.Provide(lock.NewKeyedMutex),
	fx.Provide(notify.New),
	// svc
	fx.Provide(service.NewPointLedger),
	fx.Provide(service.NewStreakTracker),
	fx.Provide(service.NewCompanionService),
	fx.Provide(service.NewRankingAggregator),
	fx.Provide(service.NewRankingScheduler),
	fx.Provide(service.NewProgressionService),
	fx.Provide(service.NewAdminService),
)

var Module = fx.Options(
	Core,
	// server
	fx.Provide(server.NewProgressionServer),
	fx.Provide(server.NewAdminServer),
)
