// seed 从TOML文件导入职位和候选人
package main

import (
	"context"
	"flag"

	"kpr-voting-backend/config"
	"kpr-voting-backend/database"
	"kpr-voting-backend/logger"
	"kpr-voting-backend/model"
	"kpr-voting-backend/repository"
	"kpr-voting-backend/service"

	"github.com/rs/zerolog/log"
)

func main() {
	file := flag.String("file", "ballot.toml", "选票定义文件")
	reset := flag.Bool("reset", false, "导入前清空全部选票")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("加载配置失败")
	}
	logger.Configure(logger.ParseLevel(cfg.LogLevel), "")

	ballot, err := loadBallot(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("读取选票文件失败")
	}

	if err := database.InitDB(cfg); err != nil {
		log.Fatal().Err(err).Msg("无法初始化数据库")
	}
	defer database.CloseDB()

	ctx := context.Background()
	repo := repository.NewElectionRepository(database.DB)
	admin := service.NewAdminService(repo, nil, nil, nil)

	if *reset {
		if err := admin.ResetAll(ctx); err != nil {
			log.Fatal().Err(err).Msg("清空选票失败")
		}
	}

	if err := importBallot(ctx, admin, ballot); err != nil {
		log.Fatal().Err(err).Msg("导入失败")
	}
	log.Info().Int("roles", len(ballot.Roles)).Msg("导入完成")
}

func importBallot(ctx context.Context, admin *service.AdminService, ballot *Ballot) error {
	for _, r := range ballot.Roles {
		order := r.OrderIndex
		role, err := admin.CreateRole(ctx, model.RoleRequest{Name: r.Name, OrderIndex: &order})
		if err != nil {
			return err
		}
		for _, c := range r.Candidates {
			info, photo := c.StudyInfo, c.PhotoURL
			if _, err := admin.CreateCandidate(ctx, model.CandidateRequest{
				Name:      c.Name,
				StudyInfo: &info,
				RoleID:    role.ID,
				PhotoURL:  &photo,
			}); err != nil {
				return err
			}
		}
		log.Info().Str("role", role.Name).Int("candidates", len(r.Candidates)).Msg("已导入职位")
	}
	return nil
}
