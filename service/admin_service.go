package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"kpr-voting-backend/model"
	"kpr-voting-backend/models"
	"kpr-voting-backend/mq"
	"kpr-voting-backend/repository"
	"kpr-voting-backend/storage"
	"kpr-voting-backend/voters"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// 投票状态过滤条件
const (
	FilterAll      = "all"
	FilterVoted    = "voted"
	FilterNotVoted = "not-voted"
)

// AdminService 管理职位、候选人和投票数据
type AdminService struct {
	repo      *repository.ElectionRepository
	results   *ResultsService
	publisher mq.Publisher
	photos    storage.Bucket
	now       func() time.Time
}

// NewAdminService 创建管理服务，publisher和photos可以为nil
func NewAdminService(repo *repository.ElectionRepository, results *ResultsService, publisher mq.Publisher, photos storage.Bucket) *AdminService {
	return &AdminService{
		repo:      repo,
		results:   results,
		publisher: publisher,
		photos:    photos,
		now:       time.Now,
	}
}

// ---------- 职位 ----------

// ListRoles 返回全部职位
func (s *AdminService) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, storeErr(err, "roles")
	}
	return roles, nil
}

// CreateRole 创建职位，order_index不能重复
func (s *AdminService) CreateRole(ctx context.Context, req model.RoleRequest) (*models.Role, error) {
	role := &models.Role{}
	if err := s.applyRole(ctx, role, req); err != nil {
		return nil, err
	}
	if err := s.repo.SaveRole(ctx, role); err != nil {
		return nil, roleSaveErr(err, role, "create role")
	}
	log.Info().Uint("role_id", role.ID).Str("name", role.Name).Int("order_index", role.OrderIndex).Msg("创建职位")
	s.changed(ctx, mq.EventBallotChange, "role")
	return role, nil
}

// UpdateRole 更新职位名称或顺序
func (s *AdminService) UpdateRole(ctx context.Context, id uint, req model.RoleRequest) (*models.Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return nil, storeErr(err, "role")
	}
	if err := s.applyRole(ctx, role, req); err != nil {
		return nil, err
	}
	if err := s.repo.SaveRole(ctx, role); err != nil {
		return nil, roleSaveErr(err, role, "update role")
	}
	s.changed(ctx, mq.EventBallotChange, "role")
	return role, nil
}

// DeleteRole 删除职位及其候选人和投票记录
func (s *AdminService) DeleteRole(ctx context.Context, id uint) error {
	if _, err := s.repo.GetRole(ctx, id); err != nil {
		return storeErr(err, "role")
	}
	candidates, err := s.repo.CandidatesByRole(ctx, id)
	if err != nil {
		return storeErr(err, "candidates")
	}
	err = s.repo.Transaction(ctx, func(repo *repository.ElectionRepository) error {
		return repo.DeleteRole(ctx, id)
	})
	if err != nil {
		return storeErr(err, "delete role")
	}
	for i := range candidates {
		s.dropPhoto(ctx, candidates[i].PhotoURL)
	}
	log.Info().Uint("role_id", id).Int("candidates", len(candidates)).Msg("删除职位")
	s.changed(ctx, mq.EventBallotChange, "role")
	return nil
}

func (s *AdminService) applyRole(ctx context.Context, role *models.Role, req model.RoleRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return validationErr("role name is required")
	}
	if req.OrderIndex == nil {
		return validationErr("order_index is required")
	}

	existing, err := s.repo.RoleByOrderIndex(ctx, *req.OrderIndex)
	if err != nil {
		return storeErr(err, "check order_index")
	}
	if existing != nil && existing.ID != role.ID {
		return validationErr("order_index %d is already used by %q", *req.OrderIndex, existing.Name)
	}

	role.Name = name
	role.OrderIndex = *req.OrderIndex
	return nil
}

// roleSaveErr 并发创建时唯一索引兜底，order_index冲突仍按校验错误返回
func roleSaveErr(err error, role *models.Role, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return validationErr("order_index %d is already used", role.OrderIndex)
	}
	return storeErr(err, what)
}

// ---------- 候选人 ----------

// ListCandidates 返回候选人，roleID为0时返回全部
func (s *AdminService) ListCandidates(ctx context.Context, roleID uint) ([]models.Candidate, error) {
	candidates, err := s.repo.ListCandidates(ctx, roleID)
	if err != nil {
		return nil, storeErr(err, "candidates")
	}
	return candidates, nil
}

// CreateCandidate 创建候选人，票数从0开始
func (s *AdminService) CreateCandidate(ctx context.Context, req model.CandidateRequest) (*models.Candidate, error) {
	c := &models.Candidate{}
	if err := s.applyCandidate(ctx, c, req); err != nil {
		return nil, err
	}
	if err := s.repo.SaveCandidate(ctx, c); err != nil {
		return nil, storeErr(err, "create candidate")
	}
	log.Info().Uint("candidate_id", c.ID).Uint("role_id", c.RoleID).Str("name", c.Name).Msg("创建候选人")
	s.changed(ctx, mq.EventBallotChange, "candidate")
	return c, nil
}

// UpdateCandidate 更新候选人信息；已有得票的候选人不能换职位
func (s *AdminService) UpdateCandidate(ctx context.Context, id uint, req model.CandidateRequest) (*models.Candidate, error) {
	c, err := s.repo.GetCandidate(ctx, id)
	if err != nil {
		return nil, storeErr(err, "candidate")
	}
	if req.RoleID != c.RoleID && c.Votes > 0 {
		return nil, validationErr("candidate %q already has votes and cannot change role", c.Name)
	}

	oldPhoto := c.PhotoURL
	if err := s.applyCandidate(ctx, c, req); err != nil {
		return nil, err
	}
	if err := s.repo.SaveCandidate(ctx, c); err != nil {
		return nil, storeErr(err, "update candidate")
	}
	if oldPhoto != nil && (c.PhotoURL == nil || *c.PhotoURL != *oldPhoto) {
		s.dropPhoto(ctx, oldPhoto)
	}
	s.changed(ctx, mq.EventBallotChange, "candidate")
	return c, nil
}

// DeleteCandidate 删除候选人及指向它的投票记录
func (s *AdminService) DeleteCandidate(ctx context.Context, id uint) error {
	c, err := s.repo.GetCandidate(ctx, id)
	if err != nil {
		return storeErr(err, "candidate")
	}
	err = s.repo.Transaction(ctx, func(repo *repository.ElectionRepository) error {
		return repo.DeleteCandidate(ctx, id)
	})
	if err != nil {
		return storeErr(err, "delete candidate")
	}
	s.dropPhoto(ctx, c.PhotoURL)
	log.Info().Uint("candidate_id", id).Msg("删除候选人")
	s.changed(ctx, mq.EventBallotChange, "candidate")
	return nil
}

func (s *AdminService) applyCandidate(ctx context.Context, c *models.Candidate, req model.CandidateRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return validationErr("candidate name is required")
	}
	if _, err := s.repo.GetRole(ctx, req.RoleID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return validationErr("role %d does not exist", req.RoleID)
		}
		return storeErr(err, "role")
	}

	c.Name = name
	c.RoleID = req.RoleID
	c.StudyInfo = trimmedOrNil(req.StudyInfo)
	c.PhotoURL = trimmedOrNil(req.PhotoURL)
	return nil
}

// UploadPhoto 校验并保存候选人照片，返回公开URL
func (s *AdminService) UploadPhoto(ctx context.Context, filename string, r io.Reader) (string, error) {
	if s.photos == nil {
		return "", fmt.Errorf("%w: photo storage is not configured", ErrRemoteUnavailable)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxPhotoSize+1))
	if err != nil {
		return "", validationErr("read photo: %v", err)
	}
	ext, err := ValidatePhoto(filename, data)
	if err != nil {
		return "", err
	}

	url, err := s.photos.Put(ctx, PhotoObjectName(s.now(), ext), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: store photo: %v", ErrRemoteUnavailable, err)
	}
	log.Info().Str("url", url).Int("bytes", len(data)).Msg("照片上传成功")
	return url, nil
}

func (s *AdminService) dropPhoto(ctx context.Context, url *string) {
	if s.photos == nil || url == nil {
		return
	}
	name, ok := s.photos.ObjectName(*url)
	if !ok {
		return
	}
	if err := s.photos.Delete(ctx, name); err != nil {
		log.Warn().Err(err).Str("object", name).Msg("删除照片失败")
	}
}

// ---------- 重置与统计 ----------

// ResetAll 清空全部选票、票数和选民的has_voted标记
func (s *AdminService) ResetAll(ctx context.Context) error {
	err := s.repo.Transaction(ctx, func(repo *repository.ElectionRepository) error {
		return repo.DeleteAllVotes(ctx)
	})
	if err != nil {
		return storeErr(err, "reset votes")
	}
	log.Warn().Msg("已重置全部投票数据")
	s.changed(ctx, mq.EventGlobalReset, "all")
	return nil
}

// ResetVoter 清除单个选民的选票并扣减对应票数
func (s *AdminService) ResetVoter(ctx context.Context, userID string) error {
	userID = voters.NormalizeID(userID)
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return storeErr(err, "voter")
	}

	removed := 0
	err := s.repo.Transaction(ctx, func(repo *repository.ElectionRepository) error {
		votes, err := repo.VotesByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, v := range votes {
			if err := repo.IncrementCandidateVotes(ctx, v.CandidateID, -1); err != nil {
				return err
			}
		}
		removed = len(votes)
		if err := repo.DeleteVotesByUser(ctx, userID); err != nil {
			return err
		}
		return repo.SetHasVoted(ctx, userID, false)
	})
	if err != nil {
		return storeErr(err, "reset voter")
	}
	log.Info().Str("user_id", userID).Int("votes", removed).Msg("已重置选民投票")
	s.changed(ctx, mq.EventVoterReset, userID)
	return nil
}

// Recount 根据审计记录重建缓存票数，返回被修正的候选人数量
func (s *AdminService) Recount(ctx context.Context) (int, error) {
	fixed := 0
	err := s.repo.Transaction(ctx, func(repo *repository.ElectionRepository) error {
		tally, err := repo.TallyByCandidate(ctx)
		if err != nil {
			return err
		}
		candidates, err := repo.ListCandidates(ctx, 0)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if c.Votes == tally[c.ID] {
				continue
			}
			if err := repo.SetCandidateVotes(ctx, c.ID, tally[c.ID]); err != nil {
				return err
			}
			fixed++
		}
		return nil
	})
	if err != nil {
		return 0, storeErr(err, "recount")
	}
	if fixed > 0 {
		log.Warn().Int("candidates", fixed).Msg("重新计票修正了缓存票数")
		s.changed(ctx, mq.EventBallotChange, "recount")
	}
	return fixed, nil
}

// Status 返回选民投票状态，filter为all、voted或not-voted，search按ID模糊匹配
func (s *AdminService) Status(ctx context.Context, filter, search string) (*model.StatusReport, error) {
	if filter == "" {
		filter = FilterAll
	}
	if filter != FilterAll && filter != FilterVoted && filter != FilterNotVoted {
		return nil, validationErr("unknown filter %q", filter)
	}

	users, err := s.repo.ListUsers(ctx, voters.NormalizeID(search))
	if err != nil {
		return nil, storeErr(err, "voters")
	}
	uvs, err := s.repo.UserVotes(ctx, "")
	if err != nil {
		return nil, storeErr(err, "ballots")
	}
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, storeErr(err, "roles")
	}
	candidates, err := s.repo.ListCandidates(ctx, 0)
	if err != nil {
		return nil, storeErr(err, "candidates")
	}

	choices := make(map[string]map[uint]uint)
	for _, uv := range uvs {
		if choices[uv.UserID] == nil {
			choices[uv.UserID] = make(map[uint]uint)
		}
		choices[uv.UserID][uv.RoleID] = uv.CandidateID
	}

	report := &model.StatusReport{
		Voters:     []model.VoterStatus{},
		Roles:      make(map[uint]string, len(roles)),
		Candidates: make(map[uint]string, len(candidates)),
		Total:      len(users),
	}
	for _, r := range roles {
		report.Roles[r.ID] = r.Name
	}
	for _, c := range candidates {
		report.Candidates[c.ID] = c.Name
	}

	for _, u := range users {
		if u.HasVoted {
			report.Voted++
		}
		if (filter == FilterVoted && !u.HasVoted) || (filter == FilterNotVoted && u.HasVoted) {
			continue
		}
		votes := choices[u.ID]
		if votes == nil {
			votes = map[uint]uint{}
		}
		report.Voters = append(report.Voters, model.VoterStatus{
			UserID:   u.ID,
			Name:     u.Name,
			HasVoted: u.HasVoted,
			Votes:    votes,
		})
	}
	return report, nil
}

// Dashboard 返回管理后台的概览数据
func (s *AdminService) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	var stats model.DashboardStats
	counts := []struct {
		dst   *int64
		model interface{}
		query []interface{}
	}{
		{&stats.Roles, &models.Role{}, nil},
		{&stats.Candidates, &models.Candidate{}, nil},
		{&stats.Voters, &models.User{}, nil},
		{&stats.VotersDone, &models.User{}, []interface{}{"has_voted = ?", true}},
		{&stats.VotesCast, &models.Vote{}, nil},
		{&stats.ActiveLocks, &models.ActiveSession{}, nil},
	}
	for _, c := range counts {
		n, err := s.repo.Count(ctx, c.model, c.query...)
		if err != nil {
			return nil, storeErr(err, "dashboard")
		}
		*c.dst = n
	}
	return &stats, nil
}

// changed 丢弃结果缓存并发布事件
func (s *AdminService) changed(ctx context.Context, eventType, key string) {
	if s.results != nil {
		s.results.Invalidate(ctx)
	}
	if s.publisher == nil {
		return
	}
	e := mq.NewEvent(eventType, key)
	if eventType == mq.EventVoterReset {
		e.VoterID = key
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("发布事件失败")
	}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
