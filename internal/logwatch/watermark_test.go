package logwatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"netsentry/internal/notifications"
)

func entries(ids ...string) []Entry {
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = Entry{ID: id, Message: "entry " + id}
	}
	return out
}

func ids(es []Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

func TestNewEntriesSinceReturnsAppendDelta(t *testing.T) {
	fresh, next := NewEntriesSince(entries("1", "2", "3"), At("1"))
	assert.Equal(t, []string{"2", "3"}, ids(fresh))
	assert.Equal(t, At("3"), next)
}

func TestNewEntriesSinceMissingWatermarkResetsToTail(t *testing.T) {
	fresh, next := NewEntriesSince(entries("1", "2", "3"), At("99"))
	assert.Empty(t, fresh)
	assert.Equal(t, At("3"), next)
}

func TestNewEntriesSinceUnsetIsBaseline(t *testing.T) {
	fresh, next := NewEntriesSince(entries("1", "2", "3"), Watermark{})
	assert.Empty(t, fresh)
	assert.True(t, next.IsSet())
	assert.Equal(t, "3", next.ID())
}

func TestNewEntriesSinceEmptySnapshotKeepsWatermark(t *testing.T) {
	fresh, next := NewEntriesSince(nil, At("7"))
	assert.Empty(t, fresh)
	assert.Equal(t, At("7"), next)

	_, next = NewEntriesSince(nil, Watermark{})
	assert.False(t, next.IsSet())
}

func TestNewEntriesSinceAtTailYieldsNothing(t *testing.T) {
	fresh, next := NewEntriesSince(entries("1", "2", "3"), At("3"))
	assert.Empty(t, fresh)
	assert.Equal(t, At("3"), next)
}

func TestNewEntriesSinceNoDuplicatesAcrossCycles(t *testing.T) {
	wm := Watermark{}
	var seen []string

	snapshots := [][]Entry{
		entries("*1", "*2"),
		entries("*1", "*2", "*3"),
		entries("*1", "*2", "*3"),
		entries("*2", "*3", "*4", "*5"), // oldest rotated out, watermark still present
		entries("*9", "*A"),             // rotated past the watermark
		entries("*9", "*A", "*B"),
	}
	for _, snap := range snapshots {
		var fresh []Entry
		fresh, wm = NewEntriesSince(snap, wm)
		seen = append(seen, ids(fresh)...)
	}

	assert.Equal(t, []string{"*3", "*4", "*5", "*B"}, seen)
	assert.Equal(t, "*B", wm.ID())
}

func TestNewEntriesSinceDoesNotAliasSnapshot(t *testing.T) {
	snap := entries("1", "2", "3")
	fresh, _ := NewEntriesSince(snap, At("1"))
	require.Len(t, fresh, 2)
	fresh[0].Message = "changed"
	assert.Equal(t, "entry 2", snap[1].Message)
}

func TestEvaluate(t *testing.T) {
	t.Run("critical topic", func(t *testing.T) {
		ev, ok := Evaluate(Entry{ID: "*1", Topics: []string{"critical", "interface"}, Message: "link down"})
		require.True(t, ok)
		assert.Equal(t, notifications.SeverityCritical, ev.Severity)
		assert.Equal(t, "*1", ev.Source)
		assert.Contains(t, ev.Body, "link down")
	})

	t.Run("error topic", func(t *testing.T) {
		_, ok := Evaluate(Entry{ID: "*2", Topics: []string{"system", "error"}, Message: "disk full"})
		assert.True(t, ok)
	})

	t.Run("login failure regardless of topics", func(t *testing.T) {
		ev, ok := Evaluate(Entry{ID: "*3", Topics: []string{"system", "info", "account"}, Message: "login failure for user admin from 10.0.0.5 via ssh"})
		require.True(t, ok)
		assert.Equal(t, notifications.SeverityCritical, ev.Severity)
		assert.Equal(t, "Router login failure", ev.Title)
	})

	t.Run("neither", func(t *testing.T) {
		_, ok := Evaluate(Entry{ID: "*4", Topics: []string{"system", "info"}, Message: "user admin logged in"})
		assert.False(t, ok)
	})

	t.Run("case sensitive", func(t *testing.T) {
		_, ok := Evaluate(Entry{ID: "*5", Topics: []string{"Critical", "ERROR"}, Message: "Login Failure"})
		assert.False(t, ok)
	})

	t.Run("topic must be exact token", func(t *testing.T) {
		_, ok := Evaluate(Entry{ID: "*6", Topics: []string{"errors", "noncritical"}})
		assert.False(t, ok)
	})
}
