package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regflow/internal/flow"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

var runColumns = []string{"run_id", "identity", "status", "message", "url", "duration_seconds", "started_at", "evidence"}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func sampleResult() flow.RunResult {
	return flow.RunResult{
		RunID:           "3f1c9a2e-0000-4000-8000-000000000001",
		Identity:        "forsystemxu+ab12cd@gmail.com",
		Status:          flow.StatusSuccess,
		Message:         "registration succeeded",
		URL:             "https://node1.much-ai.com/dashboard",
		DurationSeconds: 42.5,
		StartedAt:       time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		Evidence:        "reg_fast_20250301_093000_3f1c9a2e.png",
	}
}

// -- Test Cases --

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject a nil pool", func(t *testing.T) {
		_, err := New(context.Background(), nil, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher(schemaSQL)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, s.EnsureSchema(context.Background()))

	mockPool.ExpectExec(flexibleSQLMatcher(schemaSQL)).WillReturnError(errors.New("permission denied"))
	err := s.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create schema")

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveResult(t *testing.T) {
	ctx := context.Background()
	r := sampleResult()
	args := []interface{}{r.RunID, r.Identity, "success", r.Message, r.URL, r.DurationSeconds, r.StartedAt, r.Evidence}

	t.Run("should upsert the result", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
			WithArgs(args...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.SaveResult(ctx, r))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should store the start time in UTC", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		local := r
		local.StartedAt = r.StartedAt.In(time.FixedZone("CST", 8*3600))

		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
			WithArgs(args...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.SaveResult(ctx, local))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap database errors", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		dbErr := errors.New("connection reset")
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
			WithArgs(args...).
			WillReturnError(dbErr)

		err := s.SaveResult(ctx, r)
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), r.RunID)
	})

	t.Run("should fail when no row was written", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
			WithArgs(args...).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		err := s.SaveResult(ctx, r)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected rows affected")
	})
}

func TestRecentResults(t *testing.T) {
	ctx := context.Background()

	t.Run("should return rows newest first", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		newer := sampleResult()
		older := sampleResult()
		older.RunID = "3f1c9a2e-0000-4000-8000-000000000002"
		older.Status = flow.StatusTimeout
		older.Message = "verification code was not entered in time"
		older.Evidence = ""
		older.StartedAt = newer.StartedAt.Add(-time.Hour)

		rows := pgxmock.NewRows(runColumns)
		for _, r := range []flow.RunResult{newer, older} {
			rows.AddRow(r.RunID, r.Identity, string(r.Status), r.Message, r.URL, r.DurationSeconds, r.StartedAt, r.Evidence)
		}
		mockPool.ExpectQuery(flexibleSQLMatcher(recentRunsSQL)).WithArgs(10).WillReturnRows(rows)

		got, err := s.RecentResults(ctx, 10)
		require.NoError(t, err)
		if diff := cmp.Diff([]flow.RunResult{newer, older}, got); diff != "" {
			t.Errorf("RecentResults mismatch (-want +got):\n%s", diff)
		}
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject a non-positive limit", func(t *testing.T) {
		s, _ := newMockStore(t)
		_, err := s.RecentResults(ctx, 0)
		assert.Error(t, err)
	})

	t.Run("should propagate query errors", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(recentRunsSQL)).WithArgs(5).WillReturnError(errors.New("relation does not exist"))

		_, err := s.RecentResults(ctx, 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query runs")
	})

	t.Run("should propagate row errors", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		r := sampleResult()
		rows := pgxmock.NewRows(runColumns).
			AddRow(r.RunID, r.Identity, string(r.Status), r.Message, r.URL, r.DurationSeconds, r.StartedAt, r.Evidence).
			RowError(0, errors.New("network glitch"))
		mockPool.ExpectQuery(flexibleSQLMatcher(recentRunsSQL)).WithArgs(5).WillReturnRows(rows)

		_, err := s.RecentResults(ctx, 5)
		assert.Error(t, err)
	})
}

func TestStatusCounts(t *testing.T) {
	s, mockPool := newMockStore(t)
	rows := pgxmock.NewRows([]string{"status", "count"}).
		AddRow("success", int64(3)).
		AddRow("timeout", int64(1))
	mockPool.ExpectQuery(flexibleSQLMatcher(statusCountsSQL)).WillReturnRows(rows)

	counts, err := s.StatusCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[flow.Status]int{flow.StatusSuccess: 3, flow.StatusTimeout: 1}, counts)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
