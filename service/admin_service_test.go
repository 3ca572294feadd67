package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"kpr-voting-backend/cache"
	"kpr-voting-backend/model"
	"kpr-voting-backend/models"
	"kpr-voting-backend/mq"
	"kpr-voting-backend/repository"
	"kpr-voting-backend/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type adminFixture struct {
	repo   *repository.ElectionRepository
	admin  *AdminService
	voting *VotingService
	pub    *recordingPublisher
	bucket *storage.DiskBucket
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	repo := newTestRepo(t)
	bucket, err := storage.NewDiskBucket(t.TempDir(), storage.PhotoBucket, "http://localhost:8090")
	require.NoError(t, err)
	pub := &recordingPublisher{}
	return &adminFixture{
		repo:   repo,
		admin:  NewAdminService(repo, NewResultsService(repo, nil), pub, bucket),
		voting: NewVotingService(repo, cache.NewLocalLocker(), nil, nil),
		pub:    pub,
		bucket: bucket,
	}
}

func intPtr(v int) *int { return &v }

func TestAdmin_RoleOrderIndexUnique(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	president, err := f.admin.CreateRole(ctx, model.RoleRequest{Name: " President ", OrderIndex: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, "President", president.Name)

	_, err = f.admin.CreateRole(ctx, model.RoleRequest{Name: "Secretary", OrderIndex: intPtr(1)})
	assert.ErrorIs(t, err, ErrValidation)

	// 保持自己的order_index可以更新
	updated, err := f.admin.UpdateRole(ctx, president.ID, model.RoleRequest{Name: "Chairperson", OrderIndex: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, "Chairperson", updated.Name)

	_, err = f.admin.CreateRole(ctx, model.RoleRequest{Name: "  ", OrderIndex: intPtr(2)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.admin.UpdateRole(ctx, 999, model.RoleRequest{Name: "X", OrderIndex: intPtr(3)})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{mq.EventBallotChange, mq.EventBallotChange}, f.pub.types())
}

func TestAdmin_CandidateRequiresRole(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	_, err := f.admin.CreateCandidate(ctx, model.CandidateRequest{Name: "Ghost", RoleID: 42})
	assert.ErrorIs(t, err, ErrValidation)

	role, _ := seedRole(t, f.repo, "President", 1)
	blank := "  "
	c, err := f.admin.CreateCandidate(ctx, model.CandidateRequest{Name: "Anitha", RoleID: role.ID, StudyInfo: &blank})
	require.NoError(t, err)
	assert.Nil(t, c.StudyInfo)
	assert.Zero(t, c.Votes)
}

func TestAdmin_UpdateCandidateKeepsVotedRole(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	president, pc := seedRole(t, f.repo, "President", 1, "Anitha")
	secretary, _ := seedRole(t, f.repo, "Secretary", 2)
	seedVoter(t, f.repo, "23BCS01")
	_, err := f.voting.Submit(ctx, "23BCS01", president.ID, pc[0].ID)
	require.NoError(t, err)

	_, err = f.admin.UpdateCandidate(ctx, pc[0].ID, model.CandidateRequest{Name: "Anitha", RoleID: secretary.ID})
	assert.ErrorIs(t, err, ErrValidation)

	c, err := f.admin.UpdateCandidate(ctx, pc[0].ID, model.CandidateRequest{Name: "Anitha R", RoleID: president.ID})
	require.NoError(t, err)
	assert.Equal(t, "Anitha R", c.Name)
	assert.Equal(t, int64(1), c.Votes)
}

func TestAdmin_DeleteRoleCascades(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	president, pc := seedRole(t, f.repo, "President", 1, "Anitha", "Bharath")
	seedRole(t, f.repo, "Secretary", 2, "Charu")
	seedVoter(t, f.repo, "23BCS01")
	_, err := f.voting.Submit(ctx, "23BCS01", president.ID, pc[0].ID)
	require.NoError(t, err)

	require.NoError(t, f.admin.DeleteRole(ctx, president.ID))

	for _, m := range []interface{}{&models.Vote{}, &models.UserVote{}} {
		n, err := f.repo.Count(ctx, m, "role_id = ?", president.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	n, err := f.repo.Count(ctx, &models.Candidate{}, "role_id = ?", president.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, f.admin.DeleteRole(ctx, president.ID), ErrNotFound)
}

func TestAdmin_DeleteCandidateRemovesVotes(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	president, pc := seedRole(t, f.repo, "President", 1, "Anitha", "Bharath")
	seedVoter(t, f.repo, "23BCS01")
	_, err := f.voting.Submit(ctx, "23BCS01", president.ID, pc[0].ID)
	require.NoError(t, err)

	require.NoError(t, f.admin.DeleteCandidate(ctx, pc[0].ID))

	n, err := f.repo.Count(ctx, &models.Vote{}, "candidate_id = ?", pc[0].ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	voted, err := f.repo.HasUserVote(ctx, "23BCS01", president.ID)
	require.NoError(t, err)
	assert.False(t, voted)
}

func TestAdmin_ResetVoter(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	president, pc := seedRole(t, f.repo, "President", 1, "Anitha")
	secretary, sc := seedRole(t, f.repo, "Secretary", 2, "Charu")
	seedVoter(t, f.repo, "23BCS01")
	seedVoter(t, f.repo, "23BCS02")

	for _, id := range []string{"23BCS01", "23BCS02"} {
		_, err := f.voting.Submit(ctx, id, president.ID, pc[0].ID)
		require.NoError(t, err)
		step, err := f.voting.Submit(ctx, id, secretary.ID, sc[0].ID)
		require.NoError(t, err)
		require.Equal(t, StateComplete, step.State)
	}

	require.NoError(t, f.admin.ResetVoter(ctx, "23bcs01"))

	user, err := f.repo.GetUser(ctx, "23BCS01")
	require.NoError(t, err)
	assert.False(t, user.HasVoted)

	anitha, err := f.repo.GetCandidate(ctx, pc[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), anitha.Votes, "only the reset voter's vote is removed")

	other, err := f.repo.GetUser(ctx, "23BCS02")
	require.NoError(t, err)
	assert.True(t, other.HasVoted)

	// 重置后重新从第一个职位开始
	step, err := f.voting.Start(ctx, "23BCS01")
	require.NoError(t, err)
	assert.Equal(t, president.ID, step.Role.ID)

	assert.ErrorIs(t, f.admin.ResetVoter(ctx, "NOBODY"), ErrNotFound)
	assert.Contains(t, f.pub.types(), mq.EventVoterReset)
}

func TestAdmin_ResetAll(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	president, pc := seedRole(t, f.repo, "President", 1, "Anitha")
	seedVoter(t, f.repo, "23BCS01")
	step, err := f.voting.Submit(ctx, "23BCS01", president.ID, pc[0].ID)
	require.NoError(t, err)
	require.Equal(t, StateComplete, step.State)

	require.NoError(t, f.admin.ResetAll(ctx))

	stats, err := f.admin.Dashboard(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.VotesCast)
	assert.Zero(t, stats.VotersDone)
	assert.Equal(t, int64(1), stats.Voters)

	anitha, err := f.repo.GetCandidate(ctx, pc[0].ID)
	require.NoError(t, err)
	assert.Zero(t, anitha.Votes)
}

func TestAdmin_Recount(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	president, pc := seedRole(t, f.repo, "President", 1, "Anitha", "Bharath")
	seedVoter(t, f.repo, "23BCS01")
	_, err := f.voting.Submit(ctx, "23BCS01", president.ID, pc[0].ID)
	require.NoError(t, err)

	// 人为破坏缓存票数
	require.NoError(t, f.repo.SetCandidateVotes(ctx, pc[0].ID, 7))
	require.NoError(t, f.repo.SetCandidateVotes(ctx, pc[1].ID, 2))

	fixed, err := f.admin.Recount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)

	anitha, err := f.repo.GetCandidate(ctx, pc[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), anitha.Votes)

	fixed, err = f.admin.Recount(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}

func TestAdmin_Status(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	president, pc := seedRole(t, f.repo, "President", 1, "Anitha")
	seedVoter(t, f.repo, "23BCS01")
	seedVoter(t, f.repo, "23ECE01")
	_, err := f.voting.Submit(ctx, "23BCS01", president.ID, pc[0].ID)
	require.NoError(t, err)

	all, err := f.admin.Status(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)
	assert.Equal(t, 1, all.Voted)
	require.Len(t, all.Voters, 2)
	assert.Equal(t, "23BCS01", all.Voters[0].UserID)
	assert.Equal(t, pc[0].ID, all.Voters[0].Votes[president.ID])
	assert.Equal(t, "President", all.Roles[president.ID])
	assert.Equal(t, "Anitha", all.Candidates[pc[0].ID])

	voted, err := f.admin.Status(ctx, FilterVoted, "")
	require.NoError(t, err)
	require.Len(t, voted.Voters, 1)
	assert.Equal(t, "23BCS01", voted.Voters[0].UserID)

	pending, err := f.admin.Status(ctx, FilterNotVoted, "")
	require.NoError(t, err)
	require.Len(t, pending.Voters, 1)
	assert.Equal(t, "23ECE01", pending.Voters[0].UserID)

	search, err := f.admin.Status(ctx, FilterAll, "ece")
	require.NoError(t, err)
	require.Len(t, search.Voters, 1)
	assert.Equal(t, "23ECE01", search.Voters[0].UserID)

	_, err = f.admin.Status(ctx, "maybe", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAdmin_Dashboard(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	seedRole(t, f.repo, "President", 1, "Anitha", "Bharath")
	seedRole(t, f.repo, "Secretary", 2, "Charu")
	seedVoter(t, f.repo, "23BCS01")
	require.NoError(t, f.repo.CreateActiveSession(ctx, "23BCS01", time.Now()))

	stats, err := f.admin.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DashboardStats{Roles: 2, Candidates: 3, Voters: 1, ActiveLocks: 1}, *stats)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestAdmin_UploadPhoto(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	url, err := f.admin.UploadPhoto(ctx, "face.PNG", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8090/uploads/candidate-photos/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	name, ok := f.bucket.ObjectName(url)
	require.True(t, ok)
	assert.Regexp(t, `^\d+-[0-9a-f-]{8}\.png$`, name)

	// 候选人引用照片后删除候选人会删除照片文件
	role, _ := seedRole(t, f.repo, "President", 1)
	c, err := f.admin.CreateCandidate(ctx, model.CandidateRequest{Name: "Anitha", RoleID: role.ID, PhotoURL: &url})
	require.NoError(t, err)
	require.NoError(t, f.admin.DeleteCandidate(ctx, c.ID))

	_, err = f.admin.UploadPhoto(ctx, "face.png", strings.NewReader("GIF89a not a png"))
	assert.ErrorIs(t, err, ErrValidation)

	big := append(append([]byte{}, pngHeader...), make([]byte, MaxPhotoSize)...)
	_, err = f.admin.UploadPhoto(ctx, "face.png", bytes.NewReader(big))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAdmin_UploadPhotoWithoutStorage(t *testing.T) {
	repo := newTestRepo(t)
	admin := NewAdminService(repo, nil, nil, nil)
	_, err := admin.UploadPhoto(context.Background(), "face.png", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
}

func TestRoleSaveErr_DuplicateOrderIndex(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	seedRole(t, f.repo, "President", 1)

	// 绕过预检查直接写入，模拟并发创建时唯一索引拒绝的情况
	dup := &models.Role{Name: "Secretary", OrderIndex: 1}
	err := f.repo.SaveRole(ctx, dup)
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	mapped := roleSaveErr(err, dup, "create role")
	assert.ErrorIs(t, mapped, ErrValidation)
	assert.NotErrorIs(t, mapped, ErrRemoteUnavailable)

	assert.ErrorIs(t, roleSaveErr(errors.New("connection reset"), dup, "create role"), ErrRemoteUnavailable)
}
