package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/ppiankov/humanloop/internal/model"
)

// StoreSuite exercises the Store contract. Each backend runs the same suite.
type StoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
	store    Store
	ctx      context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore(s.T())
}

func (s *StoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 123456789, time.UTC)

func makeSession(id string, created time.Time) *Session {
	return &Session{
		ID: id,
		Request: model.ActionRequest{
			ActorKind:  model.ActorSystem,
			ActionType: model.ActionWrite,
			TrustZone:  model.ZoneSystem,
			Target:     "db/users",
		},
		State:     model.StateInit,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func (s *StoreSuite) TestCreateAndGet() {
	sess := makeSession("s-1", baseTime)
	s.Require().NoError(s.store.Create(s.ctx, sess))

	got, err := s.store.Get(s.ctx, "s-1")
	s.Require().NoError(err)
	s.Equal(sess.ID, got.ID)
	s.Equal(sess.Request, got.Request)
	s.Equal(model.StateInit, got.State)
	s.Equal(int64(0), got.Version)
	s.Empty(got.Trail)
	s.True(sess.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", sess.CreatedAt, got.CreatedAt)
}

func (s *StoreSuite) TestCreateDuplicate() {
	s.Require().NoError(s.store.Create(s.ctx, makeSession("s-1", baseTime)))
	s.Require().ErrorIs(s.store.Create(s.ctx, makeSession("s-1", baseTime)), ErrExists)
}

func (s *StoreSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "nope")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *StoreSuite) TestUpdateBumpsVersion() {
	sess := makeSession("s-1", baseTime)
	s.Require().NoError(s.store.Create(s.ctx, sess))

	sess.State = model.StateValidated
	sess.UpdatedAt = baseTime.Add(time.Minute)
	sess.Trail = append(sess.Trail, TrailEntry{
		At:                baseTime.Add(time.Minute),
		Transition:        model.TransitionValidate,
		Actor:             model.ActorSystem,
		From:              model.StateInit,
		To:                model.StateValidated,
		Validation:        model.Escalate,
		ValidationRule:    "validate.system_write",
		TransitionAllowed: true,
		TransitionRule:    "workflow.transition",
		Decision:          model.Escalate,
		DecisionRule:      "decision.validation_escalate",
	})
	s.Require().NoError(s.store.Update(s.ctx, sess, 0))
	s.Equal(int64(1), sess.Version)

	got, err := s.store.Get(s.ctx, "s-1")
	s.Require().NoError(err)
	s.Equal(int64(1), got.Version)
	s.Equal(model.StateValidated, got.State)
	s.Require().Len(got.Trail, 1)
	s.True(got.Trail[0].Advanced())
	s.Equal(model.Escalate, got.Trail[0].Decision)
	s.True(got.UpdatedAt.Equal(baseTime.Add(time.Minute)))
}

func (s *StoreSuite) TestUpdateConflict() {
	sess := makeSession("s-1", baseTime)
	s.Require().NoError(s.store.Create(s.ctx, sess))
	s.Require().NoError(s.store.Update(s.ctx, sess, 0))

	stale := makeSession("s-1", baseTime)
	stale.State = model.StateAborted
	s.Require().ErrorIs(s.store.Update(s.ctx, stale, 0), ErrConflict)

	got, err := s.store.Get(s.ctx, "s-1")
	s.Require().NoError(err)
	s.Equal(model.StateInit, got.State)
	s.Equal(int64(1), got.Version)
}

func (s *StoreSuite) TestUpdateMissing() {
	s.Require().ErrorIs(s.store.Update(s.ctx, makeSession("ghost", baseTime), 0), ErrNotFound)
}

func (s *StoreSuite) TestListOrderedByCreation() {
	s.Require().NoError(s.store.Create(s.ctx, makeSession("c", baseTime.Add(2*time.Second))))
	s.Require().NoError(s.store.Create(s.ctx, makeSession("a", baseTime)))
	s.Require().NoError(s.store.Create(s.ctx, makeSession("b", baseTime.Add(time.Second))))

	list, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.Equal([]string{"a", "b", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func (s *StoreSuite) TestListEmpty() {
	list, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *StoreSuite) TestDelete() {
	s.Require().NoError(s.store.Create(s.ctx, makeSession("s-1", baseTime)))
	s.Require().NoError(s.store.Delete(s.ctx, "s-1"))

	_, err := s.store.Get(s.ctx, "s-1")
	s.Require().ErrorIs(err, ErrNotFound)
	s.Require().ErrorIs(s.store.Delete(s.ctx, "s-1"), ErrNotFound)

	list, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *StoreSuite) TestReturnedSessionsAreCopies() {
	sess := makeSession("s-1", baseTime)
	s.Require().NoError(s.store.Create(s.ctx, sess))
	sess.State = model.StateAborted

	got, err := s.store.Get(s.ctx, "s-1")
	s.Require().NoError(err)
	s.Equal(model.StateInit, got.State)

	got.State = model.StateCompleted
	again, err := s.store.Get(s.ctx, "s-1")
	s.Require().NoError(err)
	s.Equal(model.StateInit, again.State)
}

func (s *StoreSuite) TestConcurrentUpdatesOneWins() {
	s.Require().NoError(s.store.Create(s.ctx, makeSession("s-1", baseTime)))

	const writers = 10
	var wg sync.WaitGroup
	var wins, conflicts, other atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := makeSession("s-1", baseTime)
			sess.State = model.StateValidated
			switch err := s.store.Update(s.ctx, sess, 0); {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(writers-1), conflicts.Load())
	s.Equal(int32(0), other.Load())
}

func (s *StoreSuite) TestConcurrentCreateOneWins() {
	const writers = 10
	var wg sync.WaitGroup
	var wins, exists, other atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := s.store.Create(s.ctx, makeSession("s-1", baseTime)); {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrExists):
				exists.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(writers-1), exists.Load())
	s.Equal(int32(0), other.Load())

	list, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("s-1", list[0].ID)
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(*testing.T) Store { return NewMemoryStore() }})
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T) Store {
		st, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return st
	}})
}

func TestRedisStoreSuite(t *testing.T) {
	addr := os.Getenv("HUMANLOOP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HUMANLOOP_TEST_REDIS_ADDR not set")
	}
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T) Store {
		client, err := DialRedis(context.Background(), addr, 0)
		if err != nil {
			t.Fatalf("dial redis: %v", err)
		}
		return NewRedisStore(client, "humanloop-test:"+uuid.NewString()+":")
	}})
}
