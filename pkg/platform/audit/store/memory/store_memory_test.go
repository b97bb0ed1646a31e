package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "verigate/pkg/platform/audit"
)

func TestRetentionDropsOldest(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(WithRetention(3))

	for i := range 5 {
		require.NoError(t, s.Append(ctx, audit.Event{UserID: 9, Amount: i}))
	}
	require.NoError(t, s.Append(ctx, audit.Event{UserID: 10}))

	trail, err := s.ListByUser(ctx, 9)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, 2, trail[0].Amount)
	assert.Equal(t, 4, trail[2].Amount)

	trail[0].Amount = 99
	again, _ := s.ListByUser(ctx, 9)
	assert.Equal(t, 2, again[0].Amount)

	other, _ := s.ListByUser(ctx, 10)
	assert.Len(t, other, 1)
}
