package store

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/schemas"
)

// flexibleSQLMatcher builds a whitespace-insensitive regex so tests aren't
// coupled to the exact formatting of an inline SQL string.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	mock.ExpectPing()
	mock.ExpectExec(flexibleSQLMatcher(schema)).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	s, err := New(context.Background(), mock, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return s, mock
}

func TestNew_AppliesSchema(t *testing.T) {
	_, mock := newTestStore(t)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveExecutionResult_Success(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`INSERT INTO execution_results`).
		WithArgs("plan-1", pgxmock.AnyArg(), "success", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveExecutionResult(context.Background(), schemas.ExecutionResult{
		PlanID:    "plan-1",
		TaskID:    "task-1",
		Status:    schemas.StatusSuccess,
		Logs:      []string{"ok"},
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMonitoringSample_Success(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`INSERT INTO monitoring_data`).
		WithArgs("task-1", "https://example.com", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveMonitoringSample(context.Background(), schemas.MonitoringSample{
		TaskID:        "task-1",
		URL:           "https://example.com",
		ExtractedData: map[string]interface{}{"price": 9.99},
		CapturedAt:    time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestMonitoringSample_NoRows(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT task_id, url, extracted_data, execution_id, captured_at`).
		WithArgs("task-1").
		WillReturnRows(pgxmock.NewRows([]string{"task_id", "url", "extracted_data", "execution_id", "captured_at"}))

	sample, err := s.LatestMonitoringSample(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Nil(t, sample)
}

func TestLatestMonitoringSample_ReturnsMostRecent(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT task_id, url, extracted_data, execution_id, captured_at`).
		WithArgs("task-1").
		WillReturnRows(pgxmock.NewRows([]string{"task_id", "url", "extracted_data", "execution_id", "captured_at"}).
			AddRow("task-1", "https://example.com", []byte(`{"price":9.99}`), (*string)(nil), now))

	sample, err := s.LatestMonitoringSample(context.Background(), "task-1")
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, "https://example.com", sample.URL)
	assert.Equal(t, 9.99, sample.ExtractedData["price"])
}

func TestSaveChangeDetection_Success(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`INSERT INTO change_detections`).
		WithArgs("task-1", pgxmock.AnyArg(), pgxmock.AnyArg(), false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveChangeDetection(context.Background(), schemas.ChangeRecord{
		TaskID:        "task-1",
		ChangedFields: []string{"price"},
		DetectedAt:    time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDueTasks_ReturnsActiveRowsOnly(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT id, creator_id, name, instruction, url, cron, is_active, next_run_at, last_run_at`).
		WithArgs(now, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "creator_id", "name", "instruction", "url", "cron", "is_active", "next_run_at", "last_run_at"}).
			AddRow("task-1", "user-1", "coffee watch", "check the roasting date", "https://example.com", "0 * * * *", true, now, (*time.Time)(nil)))

	tasks, err := s.ListDueTasks(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "task-1", tasks[0].ID)
	assert.True(t, tasks[0].IsActive)
	assert.True(t, tasks[0].LastRunAt.IsZero())
}

func TestMarkTaskRan_Success(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now()
	mock.ExpectExec(`UPDATE task SET last_run_at`).
		WithArgs(now, now.Add(time.Hour), "task-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.MarkTaskRan(context.Background(), "task-1", now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
