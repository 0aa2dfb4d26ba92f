package change

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/schemas"
)

type fakeBackingStore struct {
	samples []schemas.MonitoringSample
	changes []schemas.ChangeRecord
	latest  *schemas.MonitoringSample
}

func (f *fakeBackingStore) SaveMonitoringSample(ctx context.Context, sample schemas.MonitoringSample) error {
	f.samples = append(f.samples, sample)
	return nil
}

func (f *fakeBackingStore) LatestMonitoringSample(ctx context.Context, taskID string) (*schemas.MonitoringSample, error) {
	return f.latest, nil
}

func (f *fakeBackingStore) SaveChangeDetection(ctx context.Context, change schemas.ChangeRecord) error {
	f.changes = append(f.changes, change)
	return nil
}

func TestMonitoringStore_FirstObservationIsNotChanged(t *testing.T) {
	fs := &fakeBackingStore{}
	ms := NewMonitoringStore(fs, NewDetector("roastingDate"), zap.NewNop())

	v, err := ms.Record(context.Background(), "task-1", "https://example.com", map[string]interface{}{"price": 1.0}, "exec-1")
	require.NoError(t, err)
	assert.True(t, v.IsFirstExecution)
	assert.False(t, v.Changed)
	assert.Len(t, fs.samples, 1)
	assert.Empty(t, fs.changes)
}

func TestMonitoringStore_SecondObservationDiffsAgainstPrior(t *testing.T) {
	fs := &fakeBackingStore{
		latest: &schemas.MonitoringSample{
			TaskID:        "task-1",
			ExtractedData: map[string]interface{}{"roastingDate": "2025-07-02", "price": 165.0},
		},
	}
	ms := NewMonitoringStore(fs, NewDetector("roastingDate"), zap.NewNop())

	v, err := ms.Record(context.Background(), "task-1", "https://example.com",
		map[string]interface{}{"roastingDate": "2025-07-10", "price": 170.0}, "exec-2")
	require.NoError(t, err)
	assert.False(t, v.IsFirstExecution)
	assert.True(t, v.Changed)
	assert.True(t, v.IsRestock)
	require.Len(t, fs.changes, 1)
	assert.Equal(t, "task-1", fs.changes[0].TaskID)
	assert.True(t, fs.changes[0].IsRestock)
}
