package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhouse-backend/internal/store"
	"clubhouse-backend/internal/testfixtures"
)

func TestAppendAndHistory(t *testing.T) {
	ctx := context.Background()
	s := store.NewGormStore(testfixtures.NewSQLite(t))
	at := time.Date(2024, time.January, 10, 18, 0, 0, 0, time.UTC)

	require.NoError(t, Append(ctx, s, ReservationItem(1), "assign", "manager-1", at, map[string]any{"to": "assigned"}))
	require.NoError(t, Append(ctx, s, ReservationItem(1), "hand_over", "manager-1", at.Add(time.Hour), nil))
	require.NoError(t, Append(ctx, s, ClubState(1), "planned", "manager-1", at, nil))

	history, err := History(ctx, s, ReservationItem(1))
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, int64(1), history[0].Seq)
	assert.Equal(t, "assign", history[0].Type)
	assert.Equal(t, "assigned", history[0].Payload["to"])
	assert.Equal(t, int64(2), history[1].Seq)
	assert.Equal(t, "hand_over", history[1].Type)
	assert.Nil(t, history[1].Payload)
	assert.True(t, history[1].Timestamp.Equal(at.Add(time.Hour)))

	other, err := History(ctx, s, ClubState(1))
	require.NoError(t, err)
	assert.Len(t, other, 1, "histories are kept per entity")

	empty, err := History(ctx, s, Template(99))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHistory_IsRestartable(t *testing.T) {
	ctx := context.Background()
	s := store.NewGormStore(testfixtures.NewSQLite(t))
	at := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, Append(ctx, s, Reservation(5), "note", "visitor", at, map[string]any{"i": i}))
	}

	first, err := History(ctx, s, Reservation(5))
	require.NoError(t, err)
	second, err := History(ctx, s, Reservation(5))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, float64(2), first[2].Payload["i"])
}
