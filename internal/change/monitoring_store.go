package change

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/schemas"
)

// backingStore is the subset of internal/store.Store that MonitoringStore
// needs, kept narrow so it can be faked in tests without a real pool.
type backingStore interface {
	SaveMonitoringSample(ctx context.Context, sample schemas.MonitoringSample) error
	LatestMonitoringSample(ctx context.Context, taskID string) (*schemas.MonitoringSample, error)
	SaveChangeDetection(ctx context.Context, change schemas.ChangeRecord) error
}

// MonitoringStore appends MonitoringSamples and ChangeRecords, invoking the
// Detector against the immediately prior sample for the same task.
type MonitoringStore struct {
	store    backingStore
	detector *Detector
	logger   *zap.Logger
}

// NewMonitoringStore wires a Detector and a persistence backend together.
func NewMonitoringStore(store backingStore, detector *Detector, logger *zap.Logger) *MonitoringStore {
	return &MonitoringStore{store: store, detector: detector, logger: logger.Named("change.monitoring")}
}

// Record appends one extraction as a MonitoringSample, diffs it against the
// task's previous sample, persists any resulting ChangeRecord, and returns
// the verdict. The first observation for a taskId returns
// {changed:false, isFirstExecution:true} and nothing is diffed.
func (m *MonitoringStore) Record(ctx context.Context, taskID, url string, extracted map[string]interface{}, executionID string) (schemas.ChangeVerdict, error) {
	prev, err := m.store.LatestMonitoringSample(ctx, taskID)
	if err != nil {
		return schemas.ChangeVerdict{}, fmt.Errorf("change: load prior sample: %w", err)
	}

	now := time.Now().UTC()
	sample := schemas.MonitoringSample{
		TaskID:        taskID,
		URL:           url,
		ExtractedData: extracted,
		ExecutionID:   executionID,
		CapturedAt:    now,
	}
	if err := m.store.SaveMonitoringSample(ctx, sample); err != nil {
		return schemas.ChangeVerdict{}, fmt.Errorf("change: save sample: %w", err)
	}

	if prev == nil {
		return schemas.ChangeVerdict{IsFirstExecution: true, DetectedAt: now}, nil
	}

	verdict := m.detector.HasChanged(prev.ExtractedData, extracted)
	verdict.DetectedAt = now

	record := schemas.ChangeRecord{
		TaskID:        taskID,
		ExecutionID:   executionID,
		ChangedFields: verdict.ChangedFields,
		IsRestock:     verdict.IsRestock,
		ChangeDetails: verdict.ChangeDetails,
		DetectedAt:    now,
	}
	if err := m.store.SaveChangeDetection(ctx, record); err != nil {
		m.logger.Warn("failed to persist change detection", zap.Error(err))
		return verdict, fmt.Errorf("change: save change detection: %w", err)
	}
	return verdict, nil
}
