package service

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sort"
	"time"

	"kpr-voting-backend/cache"
	"kpr-voting-backend/model"
	"kpr-voting-backend/models"
	"kpr-voting-backend/mq"
	"kpr-voting-backend/repository"

	"github.com/rs/zerolog/log"
)

// SnapshotStore 结果快照缓存
type SnapshotStore interface {
	Get(ctx context.Context, dst interface{}) error
	Set(ctx context.Context, v interface{}) error
	Invalidate(ctx context.Context) error
}

// ResultsService 计算各职位的排名和得票率
type ResultsService struct {
	repo  *repository.ElectionRepository
	cache SnapshotStore
}

// NewResultsService 创建结果服务，snapshots可以为nil
func NewResultsService(repo *repository.ElectionRepository, snapshots SnapshotStore) *ResultsService {
	return &ResultsService{repo: repo, cache: snapshots}
}

// Snapshot 返回全部职位的结果，职位按order_index排序
func (s *ResultsService) Snapshot(ctx context.Context) ([]model.RoleResult, error) {
	if s.cache != nil {
		var cached []model.RoleResult
		err := s.cache.Get(ctx, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrKeyNotFound) {
			log.Warn().Err(err).Msg("读取结果缓存失败")
		}
	}

	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, storeErr(err, "roles")
	}
	candidates, err := s.repo.ListCandidates(ctx, 0)
	if err != nil {
		return nil, storeErr(err, "candidates")
	}

	byRole := make(map[uint][]models.Candidate, len(roles))
	for _, c := range candidates {
		byRole[c.RoleID] = append(byRole[c.RoleID], c)
	}

	results := make([]model.RoleResult, 0, len(roles))
	for _, role := range roles {
		results = append(results, Rank(role, byRole[role.ID]))
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, results); err != nil {
			log.Warn().Err(err).Msg("写入结果缓存失败")
		}
	}
	return results, nil
}

// Invalidate 丢弃缓存的结果
func (s *ResultsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Warn().Err(err).Msg("清除结果缓存失败")
	}
}

// Rank 按票数降序排列候选人，票数相同保持原有顺序
func Rank(role models.Role, candidates []models.Candidate) model.RoleResult {
	var total int64
	for _, c := range candidates {
		total += c.Votes
	}

	ranked := make([]models.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Votes > ranked[j].Votes
	})

	out := model.RoleResult{
		RoleID:     role.ID,
		RoleName:   role.Name,
		OrderIndex: role.OrderIndex,
		TotalVotes: total,
		Candidates: make([]model.CandidateResult, 0, len(ranked)),
	}
	for _, c := range ranked {
		out.Candidates = append(out.Candidates, model.CandidateResult{
			CandidateID: c.ID,
			Name:        c.Name,
			PhotoURL:    c.PhotoURL,
			Votes:       c.Votes,
			Percentage:  Percentage(c.Votes, total),
		})
	}
	return out
}

// Percentage 保留一位小数的得票率，总票数为0时返回0
func Percentage(votes, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(votes)/float64(total)*1000) / 10
}

// ResultsFeed 实时结果的订阅来源
type ResultsFeed interface {
	// Subscribe 订阅结果更新，返回的函数用于取消订阅
	Subscribe(ctx context.Context) (<-chan []model.RoleResult, func())
}

// ResultsSink 接收刷新后的结果
type ResultsSink interface {
	Publish(results []model.RoleResult)
}

// NewResultsRefresher 返回事件处理函数：丢弃缓存、重新计算并推送结果
func NewResultsRefresher(results *ResultsService, sink ResultsSink) mq.Handler {
	return func(ctx context.Context, e mq.Event) error {
		results.Invalidate(ctx)
		snapshot, err := results.Snapshot(ctx)
		if err != nil {
			return err
		}
		sink.Publish(snapshot)
		log.Debug().Str("event", e.Type).Str("message_id", e.MessageID).Msg("已推送最新结果")
		return nil
	}
}

// PollingFeed 按固定间隔重新读取结果，结果变化时才发送
type PollingFeed struct {
	results  *ResultsService
	interval time.Duration
}

// NewPollingFeed 创建轮询订阅源
func NewPollingFeed(results *ResultsService, interval time.Duration) *PollingFeed {
	return &PollingFeed{results: results, interval: interval}
}

// Subscribe 订阅结果，首个快照立即发送
func (f *PollingFeed) Subscribe(ctx context.Context) (<-chan []model.RoleResult, func()) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan []model.RoleResult, 1)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		var last []model.RoleResult
		poll := func() {
			snapshot, err := f.results.Snapshot(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("轮询结果失败")
				return
			}
			if last != nil && reflect.DeepEqual(last, snapshot) {
				return
			}
			last = snapshot
			offerLatest(ch, snapshot)
		}

		poll()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poll()
			}
		}
	}()

	return ch, cancel
}

// offerLatest 非阻塞发送，缓冲区已满时用新结果替换旧结果
func offerLatest(ch chan []model.RoleResult, v []model.RoleResult) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
