package service

import (
	"context"
	"errors"
	"time"

	"kpr-voting-backend/cache"
	"kpr-voting-backend/metrics"
	"kpr-voting-backend/model"
	"kpr-voting-backend/models"
	"kpr-voting-backend/mq"
	"kpr-voting-backend/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// State 投票流程所处的状态
// 返回给客户端的Step只会是AwaitingSelection或Complete；
// Loading、Submitting和Advancing是请求处理期间的服务端阶段，不会出现在响应里
type State string

const (
	StateLoading           State = "loading"
	StateAwaitingSelection State = "awaiting_selection"
	StateSubmitting        State = "submitting"
	StateAdvancing         State = "advancing"
	StateComplete          State = "complete"
)

// submitLockExpiry 提交锁的最长持有时间
const submitLockExpiry = 10 * time.Second

// Step 流程推进后返回给客户端的当前位置
type Step struct {
	State      State              `json:"state"`
	Role       *models.Role       `json:"role,omitempty"`
	Candidates []models.Candidate `json:"candidates,omitempty"`
}

// VotingService 按职位顺序推进选民的投票流程
type VotingService struct {
	repo      *repository.ElectionRepository
	locker    cache.Locker
	results   *ResultsService
	publisher mq.Publisher
	now       func() time.Time
}

// NewVotingService 创建投票服务，results和publisher可以为nil
func NewVotingService(repo *repository.ElectionRepository, locker cache.Locker, results *ResultsService, publisher mq.Publisher) *VotingService {
	return &VotingService{
		repo:      repo,
		locker:    locker,
		results:   results,
		publisher: publisher,
		now:       time.Now,
	}
}

// Start 进入第一个职位；已完成投票的选民直接进入Complete
func (s *VotingService) Start(ctx context.Context, voterID string) (*Step, error) {
	user, err := s.repo.GetUser(ctx, voterID)
	if err != nil {
		return nil, storeErr(err, "voter")
	}
	if user.HasVoted {
		return &Step{State: StateComplete}, nil
	}

	first, err := s.repo.FirstRole(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoRoles
	}
	if err != nil {
		return nil, storeErr(err, "first role")
	}
	return s.Enter(ctx, voterID, first.ID)
}

// Enter 进入指定职位；已在该职位投过票时跳到下一个待投职位
func (s *VotingService) Enter(ctx context.Context, voterID string, roleID uint) (*Step, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return nil, storeErr(err, "role")
	}

	voted, err := s.repo.HasUserVote(ctx, voterID, role.ID)
	if err != nil {
		return nil, storeErr(err, "check ballot")
	}
	if voted {
		return s.advance(ctx, voterID, role.OrderIndex)
	}
	return s.awaiting(ctx, role)
}

// Submit 为当前职位记录一票并推进到下一个职位
// 同一选民的并发提交返回ErrSubmitInProgress；重复提交视为已记录
func (s *VotingService) Submit(ctx context.Context, voterID string, roleID, candidateID uint) (*Step, error) {
	start := time.Now()
	var role *models.Role

	err := s.locker.WithLock(ctx, "vote:submit:"+voterID, submitLockExpiry, func() error {
		var err error
		role, err = s.repo.GetRole(ctx, roleID)
		if err != nil {
			return storeErr(err, "role")
		}
		candidate, err := s.repo.GetCandidate(ctx, candidateID)
		if err != nil {
			return storeErr(err, "candidate")
		}
		if candidate.RoleID != role.ID {
			return validationErr("candidate %d does not stand for role %d", candidate.ID, role.ID)
		}

		vote, err := s.record(ctx, voterID, role.ID, candidate.ID)
		if err != nil {
			return err
		}
		if vote == nil {
			log.Info().Str("user_id", voterID).Uint("role_id", role.ID).Msg("重复提交，选票已记录")
			return nil
		}

		metrics.VotesCastTotal.Inc()
		// 事务已提交，先丢弃结果缓存再通知消费者
		if s.results != nil {
			s.results.Invalidate(ctx)
		}
		s.publish(ctx, vote)
		return nil
	})
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			err = ErrSubmitInProgress
		}
		metrics.VoteSubmitDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.VoteSubmitDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	return s.advance(ctx, voterID, role.OrderIndex)
}

// Continue 跳过没有候选人的职位
func (s *VotingService) Continue(ctx context.Context, voterID string, roleID uint) (*Step, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return nil, storeErr(err, "role")
	}
	n, err := s.repo.Count(ctx, &models.Candidate{}, "role_id = ?", role.ID)
	if err != nil {
		return nil, storeErr(err, "count candidates")
	}
	if n > 0 {
		return nil, validationErr("role %q has candidates, a vote is required", role.Name)
	}
	return s.advance(ctx, voterID, role.OrderIndex)
}

// Receipt 返回选民的投票回执
func (s *VotingService) Receipt(ctx context.Context, voterID string) ([]model.BallotLine, error) {
	lines, err := s.repo.Ballot(ctx, voterID)
	if err != nil {
		return nil, storeErr(err, "ballot")
	}
	return lines, nil
}

// record 在一个事务里写入(选民, 职位)记录、审计记录和票数
// 该职位已有记录时返回nil
func (s *VotingService) record(ctx context.Context, voterID string, roleID, candidateID uint) (*models.Vote, error) {
	var recorded *models.Vote
	err := s.repo.Transaction(ctx, func(repo *repository.ElectionRepository) error {
		inserted, err := repo.InsertUserVote(ctx, &models.UserVote{
			UserID:      voterID,
			RoleID:      roleID,
			CandidateID: candidateID,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		vote := &models.Vote{
			UserID:         voterID,
			CandidateID:    candidateID,
			RoleID:         roleID,
			IdempotencyKey: models.VoteKey(voterID, roleID),
			Timestamp:      s.now(),
		}
		if err := repo.InsertVote(ctx, vote); err != nil {
			return err
		}
		if err := repo.IncrementCandidateVotes(ctx, candidateID, 1); err != nil {
			return err
		}
		recorded = vote
		return nil
	})
	if err != nil {
		return nil, storeErr(err, "record vote")
	}
	return recorded, nil
}

// advance 从afterOrder之后寻找第一个未投票的职位
// 后续职位都已投票时，回头检查之前仍有候选人但未投票的职位，全部完成才结束流程
func (s *VotingService) advance(ctx context.Context, voterID string, afterOrder int) (*Step, error) {
	later, err := s.repo.RolesAfter(ctx, afterOrder)
	if err != nil {
		return nil, storeErr(err, "roles")
	}
	for i := range later {
		voted, err := s.repo.HasUserVote(ctx, voterID, later[i].ID)
		if err != nil {
			return nil, storeErr(err, "check ballot")
		}
		if !voted {
			return s.awaiting(ctx, &later[i])
		}
	}

	all, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, storeErr(err, "roles")
	}
	for i := range all {
		if all[i].OrderIndex > afterOrder {
			break
		}
		voted, err := s.repo.HasUserVote(ctx, voterID, all[i].ID)
		if err != nil {
			return nil, storeErr(err, "check ballot")
		}
		if voted {
			continue
		}
		n, err := s.repo.Count(ctx, &models.Candidate{}, "role_id = ?", all[i].ID)
		if err != nil {
			return nil, storeErr(err, "count candidates")
		}
		if n > 0 {
			return s.awaiting(ctx, &all[i])
		}
	}

	return s.complete(ctx, voterID)
}

func (s *VotingService) awaiting(ctx context.Context, role *models.Role) (*Step, error) {
	candidates, err := s.repo.CandidatesByRole(ctx, role.ID)
	if err != nil {
		return nil, storeErr(err, "candidates")
	}
	return &Step{State: StateAwaitingSelection, Role: role, Candidates: candidates}, nil
}

// complete 标记选民已完成投票并释放会话锁
func (s *VotingService) complete(ctx context.Context, voterID string) (*Step, error) {
	err := s.repo.Transaction(ctx, func(repo *repository.ElectionRepository) error {
		if err := repo.SetHasVoted(ctx, voterID, true); err != nil {
			return err
		}
		return repo.DeleteActiveSession(ctx, voterID)
	})
	if err != nil {
		return nil, storeErr(err, "complete ballot")
	}
	log.Info().Str("user_id", voterID).Msg("选民完成全部投票")
	return &Step{State: StateComplete}, nil
}

func (s *VotingService) publish(ctx context.Context, vote *models.Vote) {
	if s.publisher == nil {
		return
	}
	e := mq.NewVoteCastEvent(vote.IdempotencyKey, vote.ID)
	e.VoterID = vote.UserID
	e.RoleID = vote.RoleID
	e.CandidateID = vote.CandidateID
	if err := s.publisher.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("message_id", e.MessageID).Msg("发布事件失败")
	}
}
