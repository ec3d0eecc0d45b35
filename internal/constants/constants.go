package constants

import (
	"fmt"
	"time"
)

const (
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	NotifyTimeout      = 5 * time.Second
	RankingPassTimeout = 2 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// optimistic write retries per aggregate before giving up
	MaxConflictRetries = 5
	// rows scanned between cancellation checks during aggregation
	AggregationScanChunk = 256
	RankingConcurrency   = 4
	RankingLockTTL       = 5 * time.Minute
	DefaultRankingLimit  = 50
	MaxRankingLimit      = 500
	DefaultHistoryLimit  = 20
	// oldest unclosed periods a tick walks back through per type and scope
	MaxCloseOutBacklog = 400
)

const (
	// largest single point change, positive or negative
	MaxPointDelta = 1_000_000_000
	// ceiling for a user's running total
	MaxTotalPoints = 1 << 53
	// largest companion experience grant carried by one event
	MaxCompanionExperience = 1_000_000_000
	// how far ahead of the server clock an event timestamp may be
	MaxEventClockSkew = 5 * time.Minute
)

const (
	RedisPingTimeout = 3 * time.Second
	RankingCacheTTL  = 10 * time.Minute
)

func RankingBucketKey(rankingType string, periodStart time.Time, department string) string {
	return fmt.Sprintf("ranking:%s:%d:%s", rankingType, periodStart.UTC().UnixMilli(), department)
}

func RankingLockKey(rankingType string, periodStart time.Time, department string) string {
	return "lock:" + RankingBucketKey(rankingType, periodStart, department)
}
