package database

import (
	"fmt"
	"time"

	"kpr-voting-backend/config"
	"kpr-voting-backend/migrations"
	"kpr-voting-backend/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是全局数据库连接
var DB *gorm.DB

// InitDB 初始化数据库连接
func InitDB(cfg *config.Config) error {
	logLevel := logger.Warn
	if cfg.IsDevelopment() {
		logLevel = logger.Info
	}

	// SQL日志写入zerolog
	newLogger := logger.New(
		&log.Logger,
		logger.Config{
			SlowThreshold:             time.Second, // 慢SQL阈值
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true, // 忽略ErrRecordNotFound错误
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		log.Info().Str("path", cfg.DBPath).Msg("使用SQLite数据库")
		dialector = sqlite.Open(cfg.DBPath)
	default:
		log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("使用MySQL数据库")
		dialector = mysql.Open(cfg.MySQLDSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newLogger,
		TranslateError: true, // 唯一键冲突转换为gorm.ErrDuplicatedKey
	})
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	if err := Migrate(db); err != nil {
		return err
	}

	DB = db

	// 添加一些示例数据（仅在开发模式下）
	if cfg.IsDevelopment() {
		createSampleData(db)
	}

	log.Info().Msg("数据库连接和迁移成功")
	return nil
}

// Migrate 执行补充迁移后自动迁移模型
func Migrate(db *gorm.DB) error {
	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("执行迁移失败: %w", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("迁移模型失败: %w", err)
	}
	return nil
}

// createSampleData 创建示例职位和候选人
func createSampleData(db *gorm.DB) {
	var count int64
	db.Model(&models.Role{}).Count(&count)
	if count > 0 {
		log.Debug().Msg("数据库已有数据，跳过示例数据创建")
		return
	}

	log.Info().Msg("创建示例数据...")

	roles := []models.Role{
		{Name: "President", OrderIndex: 1},
		{Name: "Secretary", OrderIndex: 2},
		{Name: "Treasurer", OrderIndex: 3},
	}
	if err := db.Create(&roles).Error; err != nil {
		log.Error().Err(err).Msg("创建示例职位失败")
		return
	}

	info := func(s string) *string { return &s }
	candidates := []models.Candidate{
		{Name: "Anitha R", StudyInfo: info("III B.E. CSE"), RoleID: roles[0].ID},
		{Name: "Bharath K", StudyInfo: info("III B.E. ECE"), RoleID: roles[0].ID},
		{Name: "Charu M", StudyInfo: info("II B.E. MECH"), RoleID: roles[1].ID},
		{Name: "Dinesh P", StudyInfo: info("II B.E. CSE"), RoleID: roles[1].ID},
		{Name: "Esther J", StudyInfo: info("III B.E. EEE"), RoleID: roles[2].ID},
	}
	if err := db.Create(&candidates).Error; err != nil {
		log.Error().Err(err).Msg("创建示例候选人失败")
		return
	}

	log.Info().Msg("示例数据创建成功")
}

// Ping 检查数据库连接
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CloseDB 关闭数据库连接
func CloseDB() {
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		log.Error().Err(err).Msg("获取数据库连接失败")
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Error().Err(err).Msg("关闭数据库连接失败")
		return
	}

	log.Info().Msg("数据库连接已关闭")
}
