package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stealwatch/internal/watchlist/models"
	"stealwatch/internal/watchlist/ports"
)

func TestCreateIfAbsentDeduplicates(t *testing.T) {
	store := NewMemory()

	a := &models.Alert{CriterionID: 1, RecordID: 9, MatchedField: models.FieldDomain, Severity: models.SeverityHigh}

	first, inserted, err := store.CreateIfAbsent(context.Background(), a)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NotNil(t, first)

	second, inserted, err := store.CreateIfAbsent(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Nil(t, second)

	// A different criterion over the same record is a separate alert.
	_, inserted, err = store.CreateIfAbsent(context.Background(), &models.Alert{
		CriterionID: 2, RecordID: 9, MatchedField: models.FieldDomain, Severity: models.SeverityHigh,
	})
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestCreateIfAbsentUnderContention(t *testing.T) {
	store := NewMemory()

	var insertedCount atomic.Int64
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, inserted, err := store.CreateIfAbsent(context.Background(), &models.Alert{
				CriterionID: 1, RecordID: 9, MatchedField: models.FieldDomain, Severity: models.SeverityLow,
			})
			assert.NoError(t, err)
			if inserted {
				insertedCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), insertedCount.Load())

	alerts, total, err := store.List(context.Background(), ports.AlertFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, alerts, 1)
}
