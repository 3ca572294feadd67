package migrations

import (
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Run 执行AutoMigrate之前需要的数据迁移
func Run(db *gorm.DB) error {
	return BackfillVoteIdempotencyKeys(db)
}

// BackfillVoteIdempotencyKeys 为旧的votes表补充idempotency_key字段
// 旧数据可能存在同一(选民, 职位)的重复记录，所以旧行使用legacy:<id>保证唯一
func BackfillVoteIdempotencyKeys(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable(&vote{}) {
		return nil
	}
	if m.HasColumn(&vote{}, "idempotency_key") {
		log.Debug().Msg("迁移跳过: idempotency_key字段已存在")
		return nil
	}

	log.Info().Msg("执行迁移: 为votes表添加idempotency_key字段")

	if err := db.Exec("ALTER TABLE votes ADD COLUMN idempotency_key VARCHAR(96)").Error; err != nil {
		log.Error().Err(err).Msg("迁移失败")
		return err
	}

	backfill := "UPDATE votes SET idempotency_key = CONCAT('legacy:', id)"
	if db.Dialector.Name() == "sqlite" {
		backfill = "UPDATE votes SET idempotency_key = 'legacy:' || id"
	}
	res := db.Exec(backfill)
	if res.Error != nil {
		log.Error().Err(res.Error).Msg("迁移失败")
		return res.Error
	}

	log.Info().Int64("rows", res.RowsAffected).Msg("迁移成功: 已回填idempotency_key")
	return nil
}

// vote 仅用于检查字段
type vote struct{}

// TableName 确保vote结构体映射到votes表
func (vote) TableName() string {
	return "votes"
}
