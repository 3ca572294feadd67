package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestBackfillVoteIdempotencyKeys(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.Exec(`CREATE TABLE votes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		candidate_id INTEGER NOT NULL,
		role_id INTEGER NOT NULL,
		timestamp DATETIME NOT NULL
	)`).Error)
	// 旧数据中同一选民同一职位有两条记录
	for i := 0; i < 2; i++ {
		require.NoError(t, db.Exec(
			"INSERT INTO votes (user_id, candidate_id, role_id, timestamp) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
			"23BCS01", 1, 1,
		).Error)
	}

	require.NoError(t, BackfillVoteIdempotencyKeys(db))

	var keys []string
	require.NoError(t, db.Raw("SELECT idempotency_key FROM votes ORDER BY id").Scan(&keys).Error)
	assert.Equal(t, []string{"legacy:1", "legacy:2"}, keys)

	// 再次执行不做任何事
	require.NoError(t, Run(db))
}

func TestBackfillVoteIdempotencyKeys_NoTable(t *testing.T) {
	db := openDB(t)
	require.NoError(t, Run(db))
	assert.False(t, db.Migrator().HasTable("votes"))
}
