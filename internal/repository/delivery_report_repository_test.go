package repository

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryReportRepository_Create(t *testing.T) {
	repo := NewDeliveryReportRepository(setupTestStore(t))
	ctx := context.Background()

	t.Run("create delivered report", func(t *testing.T) {
		reported := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		dr, err := repo.Create(ctx, &model.DeliveryReport{
			MessageID:  "msg-1",
			Phone:      "233244111111",
			Status:     "delivered",
			ReportedAt: &reported,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, dr.ID)
		assert.False(t, dr.ReceivedAt.IsZero())
	})

	t.Run("create failed report", func(t *testing.T) {
		_, err := repo.Create(ctx, &model.DeliveryReport{MessageID: "msg-1", Phone: "233244222222", Status: "failed", Error: "absent subscriber"})
		require.NoError(t, err)
	})

	reports, err := repo.ListByMessageID(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "delivered", reports[0].Status)
	require.NotNil(t, reports[0].ReportedAt)
	assert.Equal(t, "absent subscriber", reports[1].Error)

	none, err := repo.ListByMessageID(ctx, "msg-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}
