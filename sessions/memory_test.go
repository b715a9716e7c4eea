package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"promo-bot/config"
	"promo-bot/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	now   time.Time
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	s.store = NewMemoryStore(time.Hour)
	s.store.now = func() time.Time { return s.now }
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) TestPendingINN() {
	s.Run("missing entry is not found", func() {
		_, err := s.store.PendingINN(s.ctx, 1)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("set then read", func() {
		s.Require().NoError(s.store.SetPendingINN(s.ctx, 1, "7707083893"))
		inn, err := s.store.PendingINN(s.ctx, 1)
		s.Require().NoError(err)
		s.Equal("7707083893", inn)
	})

	s.Run("clear drops entry", func() {
		s.Require().NoError(s.store.SetPendingINN(s.ctx, 2, "7707083893"))
		s.Require().NoError(s.store.Clear(s.ctx, 2))
		_, err := s.store.PendingINN(s.ctx, 2)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestExpiry() {
	s.Require().NoError(s.store.SetPendingINN(s.ctx, 3, "7707083893"))
	s.now = s.now.Add(time.Hour)
	_, err := s.store.PendingINN(s.ctx, 3)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestAbandonedEntriesAreEvicted() {
	s.Require().NoError(s.store.SetPendingINN(s.ctx, 4, "7707083893"))
	s.Require().NoError(s.store.SetPendingINN(s.ctx, 5, "500100732259"))

	s.now = s.now.Add(30 * time.Minute)
	s.Require().NoError(s.store.SetPendingINN(s.ctx, 6, "7707083893"))
	s.Len(s.store.entries, 3)

	s.now = s.now.Add(45 * time.Minute)
	s.Require().NoError(s.store.SetPendingINN(s.ctx, 7, "7707083893"))
	s.Len(s.store.entries, 2)
	s.Contains(s.store.entries, int64(6))
	s.Contains(s.store.entries, int64(7))
}

func TestNewRedisClientRequiresURL(t *testing.T) {
	client, err := NewRedisClient(context.Background(), config.RedisConfig{})
	require.Error(t, err)
	require.Nil(t, client)
}
