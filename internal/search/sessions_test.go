package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadmap/internal/leads"
	"github.com/sells-group/leadmap/internal/model"
)

func TestSessions_CreateAndGet(t *testing.T) {
	s := NewSessions(10)

	sess := s.Create("acct", "pizza")
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, "acct", sess.Account)
	assert.Equal(t, "pizza", sess.Query)
	assert.NotNil(t, sess.Store)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)
}

func TestSessions_IndependentStores(t *testing.T) {
	s := NewSessions(10)
	a := s.Create("acct", "pizza")
	b := s.Create("acct", "tacos")

	a.Store.Upsert(model.PlaceDetail{PlaceID: "p1"})
	assert.Equal(t, 1, a.Store.Len())
	assert.Zero(t, b.Store.Len())
}

func TestSessions_EvictsOldest(t *testing.T) {
	s := NewSessions(2)
	first := s.Create("a", "q1")
	second := s.Create("a", "q2")
	third := s.Create("a", "q3")

	assert.Equal(t, 2, s.Len())
	_, err := s.Get(first.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.Get(second.ID)
	assert.NoError(t, err)
	_, err = s.Get(third.ID)
	assert.NoError(t, err)
}

func TestSessions_EvictsFinishedBeforeRunning(t *testing.T) {
	s := NewSessions(2)
	running := s.Create("a", "q1")
	done := s.Create("a", "q2")
	s.Finish(done.ID)

	third := s.Create("a", "q3")

	assert.Equal(t, 2, s.Len())
	_, err := s.Get(running.ID)
	assert.NoError(t, err, "running search keeps its session")
	_, err = s.Get(done.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.Get(third.ID)
	assert.NoError(t, err)
}

func TestSessions_FinishUnknownIgnored(t *testing.T) {
	s := NewSessions(2)
	s.Finish("missing")
	assert.Zero(t, s.Len())
}

func TestSessions_Delete(t *testing.T) {
	s := NewSessions(5)
	sess := s.Create("a", "q")

	s.Delete(sess.ID)
	s.Delete("unknown")

	_, err := s.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, s.Len())

	// Freed capacity is reusable.
	for range 5 {
		s.Create("a", "q")
	}
	assert.Equal(t, 5, s.Len())
}

func TestSessions_StoreOptions(t *testing.T) {
	s := NewSessions(1, leads.WithKeyPolicy(leads.KeyPolicyDrop))
	sess := s.Create("a", "q")

	assert.False(t, sess.Store.Upsert(model.PlaceDetail{}))
}
