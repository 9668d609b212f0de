package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/repository"
)

// seedParticipants inserts n participants with ids 1..n.
func seedParticipants(t *testing.T, dbase *gorm.DB, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		p := newParticipant(fmt.Sprintf("u%d@test.com", i), fmt.Sprintf("User%d", i), "Test", "female")
		p.ID = uint64(i)
		p.Active = true
		p.CreatedAt = time.Now().UTC()
		require.NoError(t, dbase.Create(p).Error)
	}
}

func TestCreateLike(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	seedParticipants(t, dbase, 2)
	repo := repository.NewMatchRepository(dbase)

	m, err := repo.CreateLike(ctx, 1, 2)
	require.NoError(t, err)
	assert.NotZero(t, m.ID)
	assert.Equal(t, uint64(1), m.UserID)
	assert.Equal(t, uint64(2), m.TargetUserID)

	// same ordered pair again
	_, err = repo.CreateLike(ctx, 1, 2)
	assert.ErrorIs(t, err, svcErr.ErrAlreadyLiked)

	// the reverse pair is a different edge
	_, err = repo.CreateLike(ctx, 2, 1)
	assert.NoError(t, err)
}

func TestCreateLikeSelf(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	seedParticipants(t, dbase, 1)
	repo := repository.NewMatchRepository(dbase)

	_, err := repo.CreateLike(ctx, 1, 1)
	assert.ErrorIs(t, err, svcErr.ErrSelfLike)

	var count int64
	dbase.Model(&db.Match{}).Count(&count)
	assert.Zero(t, count)
}

func TestUniqueIndexRejectsDuplicateLike(t *testing.T) {
	dbase := setupTestDB(t)
	seedParticipants(t, dbase, 2)

	require.NoError(t, dbase.Create(&db.Match{UserID: 1, TargetUserID: 2, CreatedAt: time.Now()}).Error)
	err := dbase.Create(&db.Match{UserID: 1, TargetUserID: 2, CreatedAt: time.Now()}).Error
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err))
}

func TestCreateLikeMapsUniqueViolationToAlreadyLiked(t *testing.T) {
	dbase := setupTestDB(t)
	seedParticipants(t, dbase, 2)
	repo := repository.NewMatchRepository(dbase)
	insertBeforeCreate(t, dbase, &db.Match{UserID: 1, TargetUserID: 2, CreatedAt: time.Now().UTC()})

	_, err := repo.CreateLike(context.Background(), 1, 2)
	assert.ErrorIs(t, err, svcErr.ErrAlreadyLiked)
	assert.False(t, svcErr.IsStorage(err))
}

func TestConcurrentCreateSameLike(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	seedParticipants(t, dbase, 2)
	repo := repository.NewMatchRepository(dbase)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		already int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CreateLike(ctx, 1, 2)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
			} else if assert.ErrorIs(t, err, svcErr.ErrAlreadyLiked) {
				already++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, already)
}

func TestIsMutual(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	seedParticipants(t, dbase, 3)
	repo := repository.NewMatchRepository(dbase)

	_, err := repo.CreateLike(ctx, 1, 2)
	require.NoError(t, err)

	mutual, err := repo.IsMutual(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, mutual)

	_, err = repo.CreateLike(ctx, 2, 1)
	require.NoError(t, err)

	mutual, err = repo.IsMutual(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, mutual)

	mutual, err = repo.IsMutual(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, mutual)

	liked, err := repo.HasLiked(ctx, 3, 1)
	require.NoError(t, err)
	assert.False(t, liked)
}

func TestCountTodayRollingWindow(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	seedParticipants(t, dbase, 4)
	clock := newFakeClock()
	repo := repository.NewMatchRepository(dbase, repository.WithClock(clock.Now))

	_, err := repo.CreateLike(ctx, 1, 2)
	require.NoError(t, err)
	clock.Advance(6 * time.Hour)
	_, err = repo.CreateLike(ctx, 1, 3)
	require.NoError(t, err)

	count, err := repo.CountToday(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// likes given by others do not count
	count, err = repo.CountToday(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, count)

	// first like falls out of the trailing 24h window
	clock.Advance(18*time.Hour + time.Second)
	count, err = repo.CountToday(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	clock.Advance(6 * time.Hour)
	count, err = repo.CountToday(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCountTodayCustomWindow(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	seedParticipants(t, dbase, 2)
	clock := newFakeClock()
	repo := repository.NewMatchRepository(dbase, repository.WithClock(clock.Now), repository.WithWindow(time.Hour))
	assert.Equal(t, time.Hour, repo.Window())

	_, err := repo.CreateLike(ctx, 1, 2)
	require.NoError(t, err)
	clock.Advance(61 * time.Minute)

	count, err := repo.CountToday(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListLikersAndPagination(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	seedParticipants(t, dbase, 5)
	clock := newFakeClock()
	repo := repository.NewMatchRepository(dbase, repository.WithClock(clock.Now))

	// 2, 3, 4 like 1 in that order; 5 likes 2
	for _, actor := range []uint64{2, 3, 4} {
		clock.Advance(time.Second)
		_, err := repo.CreateLike(ctx, actor, 1)
		require.NoError(t, err)
	}
	_, err := repo.CreateLike(ctx, 5, 2)
	require.NoError(t, err)

	page1, next, err := repo.ListLikers(ctx, 1, nil, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, uint64(4), page1[0].UserID)
	assert.Equal(t, uint64(3), page1[1].UserID)
	require.NotNil(t, next)

	page2, next2, err := repo.ListLikers(ctx, 1, next, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, uint64(2), page2[0].UserID)
	assert.Nil(t, next2)

	count, err := repo.CountLikers(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestListLikersInvalidToken(t *testing.T) {
	repo := repository.NewMatchRepository(setupTestDB(t))
	bad := "not a token"

	_, _, err := repo.ListLikers(context.Background(), 1, &bad, 10)
	assert.ErrorIs(t, err, svcErr.ErrValidation)
}

func TestListNewLikers(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	seedParticipants(t, dbase, 3)
	repo := repository.NewMatchRepository(dbase)

	// 2 liked 1 and 1 liked back → mutual
	_, err := repo.CreateLike(ctx, 2, 1)
	require.NoError(t, err)
	_, err = repo.CreateLike(ctx, 1, 2)
	require.NoError(t, err)

	// 3 liked 1, not mutual
	_, err = repo.CreateLike(ctx, 3, 1)
	require.NoError(t, err)

	matches, _, err := repo.ListNewLikers(ctx, 1, nil, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint64(3), matches[0].UserID)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	seedParticipants(t, dbase, 2)
	repo := repository.NewMatchRepository(dbase)

	err := dbase.Transaction(func(tx *gorm.DB) error {
		if _, err := repo.WithTx(tx).CreateLike(ctx, 1, 2); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	liked, err := repo.HasLiked(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, liked)
}
