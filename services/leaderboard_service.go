package services

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/arenaworks/wager-arena/repositories"
)

const leaderboardKey = "leaderboard:wins"

type LeaderboardEntry struct {
	UserID   int    `json:"user_id"`
	Nickname string `json:"nickname"`
	Wins     int64  `json:"wins"`
}

// LeaderboardService keeps a win-count ranking in a Redis sorted set.
// It is strictly advisory: a Redis failure is logged and never blocks
// or reverts a settlement. Postgres win counters remain the source of
// truth.
type LeaderboardService struct {
	rdb         *redis.Client
	accountRepo repositories.AccountRepository
	logger      *slog.Logger
}

func NewLeaderboardService(rdb *redis.Client, accountRepo repositories.AccountRepository, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{rdb: rdb, accountRepo: accountRepo, logger: logger}
}

func (s *LeaderboardService) RecordWin(ctx context.Context, userID int) {
	if s.rdb == nil {
		return
	}
	err := s.rdb.ZIncrBy(ctx, leaderboardKey, 1, strconv.Itoa(userID)).Err()
	if err != nil {
		s.logger.Warn("failed to record leaderboard win",
			slog.Int("user_id", userID), slog.Any("error", err))
	}
}

func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	results, err := s.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		userID, err := strconv.Atoi(member)
		if err != nil {
			continue
		}
		entry := LeaderboardEntry{UserID: userID, Wins: int64(z.Score)}
		if account, err := s.accountRepo.GetByID(ctx, nil, userID); err == nil {
			entry.Nickname = account.Nickname
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
