package sqldb

import "github.com/modu-ai/moai-rank/internal/ports"

// Repositories holds all sqldb repository implementations as port interfaces.
type Repositories struct {
	Users      ports.UserRepository
	Usage      ports.UsageRepository
	Rankings   ports.RankingRepository
	Activities ports.ActivityLogRepository
}

// NewRepositories creates all repository implementations from a database connection.
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		Users:      NewUserRepository(db),
		Usage:      NewUsageRepository(db),
		Rankings:   NewRankingRepository(db),
		Activities: NewActivityLogRepository(db),
	}
}
