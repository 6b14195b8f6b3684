package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"warden/testutils"
	"warden/waf"
)

func testRule(id int, pattern string) waf.Rule {
	return waf.Rule{
		ID:            id,
		Name:          "test rule",
		Pattern:       pattern,
		AttackType:    waf.AttackSQLInjection,
		MatchLocation: waf.LocationBody,
		Action:        waf.ActionBlock,
		Enabled:       true,
		CreatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestStore(t *testing.T) Store {
	return NewStore(testutils.NewTestLogger(t), &mockRegexEngineFactory{})
}

func TestUpsertAndList(t *testing.T) {
	s := newTestStore(t)

	assert.Nil(t, s.Upsert(testRule(20, "xyz")))
	assert.Nil(t, s.Upsert(testRule(10, "abc")))

	rr := s.List()
	assert.Len(t, rr, 2)
	assert.Equal(t, 10, rr[0].ID)
	assert.Equal(t, 20, rr[1].ID)
}

func TestUpsertRejectsInvalidPattern(t *testing.T) {
	s := newTestStore(t)

	err := s.Upsert(testRule(1, "a(b"))
	assert.True(t, errors.Is(err, waf.ErrInvalidPattern))
	assert.Empty(t, s.List())
}

func TestUpsertRejectsInvalidFields(t *testing.T) {
	s := newTestStore(t)

	r := testRule(1, "abc")
	r.AttackType = "Nonsense"
	assert.NotNil(t, s.Upsert(r))

	r = testRule(0, "abc")
	assert.NotNil(t, s.Upsert(r))

	r = testRule(2, "abc")
	r.MatchLocation = "Everywhere"
	assert.NotNil(t, s.Upsert(r))
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)

	original := testRule(1, "abc")
	assert.Nil(t, s.Upsert(original))

	updated := testRule(1, "def")
	updated.CreatedAt = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Nil(t, s.Upsert(updated))

	got, err := s.Get(1)
	assert.Nil(t, err)
	assert.Equal(t, original.CreatedAt, got.CreatedAt)
	assert.Equal(t, "def", got.Pattern)
}

func TestSetEnabledUnknownRule(t *testing.T) {
	s := newTestStore(t)

	err := s.SetEnabled(99, false)
	assert.True(t, errors.Is(err, waf.ErrUnknownRule))
}

func TestSnapshotOrderedByID(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []int{30, 10, 20} {
		assert.Nil(t, s.Upsert(testRule(id, "abc")))
	}

	rr := s.Snapshot().Rules()
	assert.Len(t, rr, 3)
	assert.Equal(t, 10, rr[0].ID)
	assert.Equal(t, 20, rr[1].ID)
	assert.Equal(t, 30, rr[2].ID)
}

func TestSnapshotExcludesDisabledRules(t *testing.T) {
	s := newTestStore(t)

	assert.Nil(t, s.Upsert(testRule(1, "abc")))
	assert.Nil(t, s.Upsert(testRule(2, "def")))
	assert.Nil(t, s.SetEnabled(1, false))

	rr := s.Snapshot().Rules()
	assert.Len(t, rr, 1)
	assert.Equal(t, 2, rr[0].ID)
}

func TestDisableDoesNotAffectHeldSnapshot(t *testing.T) {
	s := newTestStore(t)
	assert.Nil(t, s.Upsert(testRule(1, "abc")))

	held := s.Snapshot()
	assert.Nil(t, s.SetEnabled(1, false))

	// The old snapshot still carries the rule; the new one does not.
	assert.Len(t, held.Rules(), 1)
	assert.Empty(t, s.Snapshot().Rules())
}

func TestStoreRunsWithoutPrefilter(t *testing.T) {
	s := NewStore(testutils.NewTestLogger(t), &mockRegexEngineFactory{failCompile: true})
	assert.Nil(t, s.Upsert(testRule(1, "abc")))

	// Evaluation still matches through exact verification.
	e := NewEngine(s)
	rc := &waf.RequestContext{Body: "xxABCxx"}
	result := e.Eval(testutils.NewTestLogger(t), rc)
	assert.True(t, result.Block)
	assert.Equal(t, 1, result.RuleID)
}
