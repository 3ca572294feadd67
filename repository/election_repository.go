package repository

import (
	"context"
	"errors"
	"time"

	"kpr-voting-backend/model"
	"kpr-voting-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ElectionRepository 选举数据访问，所有方法都可以绑定到事务上
type ElectionRepository struct {
	db *gorm.DB
}

// NewElectionRepository 创建数据仓库
func NewElectionRepository(db *gorm.DB) *ElectionRepository {
	return &ElectionRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *ElectionRepository) WithTx(tx *gorm.DB) *ElectionRepository {
	return &ElectionRepository{db: tx}
}

// DB 底层连接
func (r *ElectionRepository) DB() *gorm.DB {
	return r.db
}

// Transaction 在事务中执行fn
func (r *ElectionRepository) Transaction(ctx context.Context, fn func(repo *ElectionRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

// ---------- 职位 ----------

// ListRoles 按order_index升序返回全部职位
func (r *ElectionRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	err := r.db.WithContext(ctx).Order("order_index asc").Find(&roles).Error
	return roles, err
}

// GetRole 按ID获取职位
func (r *ElectionRepository) GetRole(ctx context.Context, id uint) (*models.Role, error) {
	var role models.Role
	if err := r.db.WithContext(ctx).First(&role, id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// FirstRole 获取顺序最靠前的职位
func (r *ElectionRepository) FirstRole(ctx context.Context) (*models.Role, error) {
	var role models.Role
	if err := r.db.WithContext(ctx).Order("order_index asc").First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// RolesAfter 返回order_index大于给定值的职位，升序
func (r *ElectionRepository) RolesAfter(ctx context.Context, orderIndex int) ([]models.Role, error) {
	var roles []models.Role
	err := r.db.WithContext(ctx).
		Where("order_index > ?", orderIndex).
		Order("order_index asc").
		Find(&roles).Error
	return roles, err
}

// RoleByOrderIndex 按order_index查找职位，不存在时返回nil
func (r *ElectionRepository) RoleByOrderIndex(ctx context.Context, orderIndex int) (*models.Role, error) {
	var role models.Role
	err := r.db.WithContext(ctx).Where("order_index = ?", orderIndex).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// SaveRole 创建或更新职位
func (r *ElectionRepository) SaveRole(ctx context.Context, role *models.Role) error {
	return r.db.WithContext(ctx).Save(role).Error
}

// DeleteRole 删除职位及其候选人、相关投票记录
func (r *ElectionRepository) DeleteRole(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("role_id = ?", id).Delete(&models.UserVote{}).Error; err != nil {
		return err
	}
	if err := db.Where("role_id = ?", id).Delete(&models.Vote{}).Error; err != nil {
		return err
	}
	if err := db.Where("role_id = ?", id).Delete(&models.Candidate{}).Error; err != nil {
		return err
	}
	return db.Delete(&models.Role{}, id).Error
}

// ---------- 候选人 ----------

// CandidatesByRole 按创建时间返回某职位的候选人
func (r *ElectionRepository) CandidatesByRole(ctx context.Context, roleID uint) ([]models.Candidate, error) {
	var candidates []models.Candidate
	err := r.db.WithContext(ctx).
		Where("role_id = ?", roleID).
		Order("created_at asc, id asc").
		Find(&candidates).Error
	return candidates, err
}

// ListCandidates 返回全部候选人，按职位和创建时间排序；roleID为0时不过滤
func (r *ElectionRepository) ListCandidates(ctx context.Context, roleID uint) ([]models.Candidate, error) {
	var candidates []models.Candidate
	q := r.db.WithContext(ctx).Order("role_id asc, created_at asc, id asc")
	if roleID != 0 {
		q = q.Where("role_id = ?", roleID)
	}
	err := q.Find(&candidates).Error
	return candidates, err
}

// GetCandidate 按ID获取候选人
func (r *ElectionRepository) GetCandidate(ctx context.Context, id uint) (*models.Candidate, error) {
	var c models.Candidate
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCandidate 创建或更新候选人
func (r *ElectionRepository) SaveCandidate(ctx context.Context, c *models.Candidate) error {
	return r.db.WithContext(ctx).Save(c).Error
}

// DeleteCandidate 删除候选人及指向它的投票记录
func (r *ElectionRepository) DeleteCandidate(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("candidate_id = ?", id).Delete(&models.UserVote{}).Error; err != nil {
		return err
	}
	if err := db.Where("candidate_id = ?", id).Delete(&models.Vote{}).Error; err != nil {
		return err
	}
	return db.Delete(&models.Candidate{}, id).Error
}

// IncrementCandidateVotes 原子调整缓存票数
func (r *ElectionRepository) IncrementCandidateVotes(ctx context.Context, candidateID uint, delta int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Candidate{}).
		Where("id = ?", candidateID).
		UpdateColumn("votes", gorm.Expr("votes + ?", delta)).Error
}

// ---------- 选民 ----------

// GetUser 按ID获取选民
func (r *ElectionRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FirstOrCreateUser 查找选民，不存在时以has_voted=false创建
func (r *ElectionRepository) FirstOrCreateUser(ctx context.Context, id, name string) (*models.User, error) {
	u := models.User{ID: id}
	err := r.db.WithContext(ctx).
		Where(models.User{ID: id}).
		Attrs(models.User{Name: name, HasVoted: false}).
		FirstOrCreate(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers 按ID排序返回选民，search非空时按ID模糊匹配
func (r *ElectionRepository) ListUsers(ctx context.Context, search string) ([]models.User, error) {
	var users []models.User
	q := r.db.WithContext(ctx).Order("id asc")
	if search != "" {
		q = q.Where("id LIKE ?", "%"+search+"%")
	}
	err := q.Find(&users).Error
	return users, err
}

// SetHasVoted 设置选民的has_voted标记
func (r *ElectionRepository) SetHasVoted(ctx context.Context, userID string, voted bool) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("has_voted", voted).Error
}

// ---------- 会话锁 ----------

// ActiveSessionExists 检查选民是否有进行中的会话
func (r *ElectionRepository) ActiveSessionExists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ActiveSession{}).Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}

// CreateActiveSession 创建会话锁
func (r *ElectionRepository) CreateActiveSession(ctx context.Context, userID string, startedAt time.Time) error {
	return r.db.WithContext(ctx).Create(&models.ActiveSession{UserID: userID, StartedAt: startedAt}).Error
}

// DeleteActiveSession 删除会话锁
func (r *ElectionRepository) DeleteActiveSession(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.ActiveSession{}).Error
}

// DeleteSessionsStartedBefore 删除早于给定时间的会话锁，返回删除条数
func (r *ElectionRepository) DeleteSessionsStartedBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("started_at < ?", before).Delete(&models.ActiveSession{})
	return res.RowsAffected, res.Error
}

// ---------- 投票 ----------

// HasUserVote 检查选民是否已在该职位投票
func (r *ElectionRepository) HasUserVote(ctx context.Context, userID string, roleID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UserVote{}).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Count(&count).Error
	return count > 0, err
}

// InsertUserVote 写入(选民, 职位)唯一记录；返回false表示该记录已存在
func (r *ElectionRepository) InsertUserVote(ctx context.Context, uv *models.UserVote) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(uv)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// InsertVote 追加投票审计记录
func (r *ElectionRepository) InsertVote(ctx context.Context, v *models.Vote) error {
	return r.db.WithContext(ctx).Create(v).Error
}

// UserVotes 返回全部(选民, 职位)记录，userID非空时只返回该选民的
func (r *ElectionRepository) UserVotes(ctx context.Context, userID string) ([]models.UserVote, error) {
	var uvs []models.UserVote
	q := r.db.WithContext(ctx).Order("user_id asc, role_id asc")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	err := q.Find(&uvs).Error
	return uvs, err
}

// VotesByUser 返回选民的全部审计记录
func (r *ElectionRepository) VotesByUser(ctx context.Context, userID string) ([]models.Vote, error) {
	var votes []models.Vote
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("timestamp asc").Find(&votes).Error
	return votes, err
}

// DeleteVotesByUser 删除选民的审计记录和(选民, 职位)记录
func (r *ElectionRepository) DeleteVotesByUser(ctx context.Context, userID string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Delete(&models.UserVote{}).Error; err != nil {
		return err
	}
	return db.Where("user_id = ?", userID).Delete(&models.Vote{}).Error
}

// DeleteAllVotes 清空全部投票相关数据
func (r *ElectionRepository) DeleteAllVotes(ctx context.Context) error {
	db := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	if err := db.Delete(&models.UserVote{}).Error; err != nil {
		return err
	}
	if err := db.Delete(&models.Vote{}).Error; err != nil {
		return err
	}
	if err := db.Model(&models.Candidate{}).UpdateColumn("votes", 0).Error; err != nil {
		return err
	}
	return db.Model(&models.User{}).Update("has_voted", false).Error
}

// TallyByCandidate 从审计记录统计每个候选人的票数
func (r *ElectionRepository) TallyByCandidate(ctx context.Context) (map[uint]int64, error) {
	type row struct {
		CandidateID uint
		Total       int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.Vote{}).
		Select("candidate_id, COUNT(*) AS total").
		Group("candidate_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	tally := make(map[uint]int64, len(rows))
	for _, rw := range rows {
		tally[rw.CandidateID] = rw.Total
	}
	return tally, nil
}

// SetCandidateVotes 覆盖缓存票数
func (r *ElectionRepository) SetCandidateVotes(ctx context.Context, candidateID uint, votes int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Candidate{}).
		Where("id = ?", candidateID).
		UpdateColumn("votes", votes).Error
}

// Ballot 返回选民的投票回执，按职位顺序
func (r *ElectionRepository) Ballot(ctx context.Context, userID string) ([]model.BallotLine, error) {
	var lines []model.BallotLine
	err := r.db.WithContext(ctx).
		Table("votes").
		Select("roles.id AS role_id, roles.name AS role_name, roles.order_index AS order_index, "+
			"candidates.id AS candidate_id, candidates.name AS candidate_name, votes.timestamp AS timestamp").
		Joins("JOIN roles ON roles.id = votes.role_id").
		Joins("JOIN candidates ON candidates.id = votes.candidate_id").
		Where("votes.user_id = ?", userID).
		Order("roles.order_index asc").
		Scan(&lines).Error
	return lines, err
}

// Count 统计某模型的行数，可选条件
func (r *ElectionRepository) Count(ctx context.Context, value interface{}, query ...interface{}) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(value)
	if len(query) > 0 {
		q = q.Where(query[0], query[1:]...)
	}
	err := q.Count(&n).Error
	return n, err
}
