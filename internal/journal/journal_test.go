package journal

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symtrace/internal/logger"
)

func TestNew_Validation(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer func() { _ = db.Close() }()
	log := logger.NewDefault()

	tests := []struct {
		name      string
		nilDB     bool
		log       *logger.Logger
		expectErr bool
		errMsg    string
	}{
		{
			name:  "Valid inputs",
			nilDB: false,
			log:   log,
		},
		{
			name:      "Nil database",
			nilDB:     true,
			log:       log,
			expectErr: true,
			errMsg:    "database connection is nil",
		},
		{
			name:  "Nil logger with valid DB",
			nilDB: false,
			log:   nil, // Creates default logger
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var j *Journal
			var err error
			if tt.nilDB {
				j, err = New(nil, tt.log)
			} else {
				j, err = New(db, tt.log)
			}

			if tt.expectErr {
				assert.Error(t, err)
				assert.Nil(t, j)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, j)
			}
		})
	}
}

func TestJournal_InitSchema_Success(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS trace_session").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_trace_session_started").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	err := j.InitSchema(ctx)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_InitSchema_TableError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS trace_session").WillReturnError(assert.AnError)

	ctx := context.Background()
	err := j.InitSchema(ctx)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create trace_session table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_InitSchema_IndexError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS trace_session").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_trace_session_started").WillReturnError(assert.AnError)

	ctx := context.Background()
	err := j.InitSchema(ctx)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create trace_session index")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_Begin_Success(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	mock.ExpectExec("INSERT INTO trace_session").
		WithArgs("sess-1", "java -jar app.jar", "out/symbols.json", StatusRunning, "2026-08-21T10:00:00Z").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ctx := context.Background()
	err := j.Begin(ctx, SessionRecord{
		ID:         "sess-1",
		Target:     "java -jar app.jar",
		OutputPath: "out/symbols.json",
		StartedAt:  time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC),
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_Begin_ExplicitStatus(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	mock.ExpectExec("INSERT INTO trace_session").
		WithArgs("sess-2", "./server", "symbols.json", StatusFailed, "2026-08-21T11:00:00Z").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ctx := context.Background()
	err := j.Begin(ctx, SessionRecord{
		ID:         "sess-2",
		Target:     "./server",
		OutputPath: "symbols.json",
		Status:     StatusFailed,
		StartedAt:  time.Date(2026, 8, 21, 11, 0, 0, 0, time.UTC),
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_Begin_Error(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	mock.ExpectExec("INSERT INTO trace_session").
		WillReturnError(assert.AnError)

	ctx := context.Background()
	err := j.Begin(ctx, SessionRecord{ID: "sess-1", StartedAt: time.Now()})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record session start")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_Finish_Success(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	finished := time.Date(2026, 8, 21, 10, 5, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE trace_session SET session_status").
		WithArgs(StatusCompleted, int64(42), 7, "", "2026-08-21T10:05:00Z", "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	err := j.Finish(ctx, SessionRecord{
		ID:             "sess-1",
		Status:         StatusCompleted,
		EventsCaptured: 42,
		SymbolsEmitted: 7,
		FinishedAt:     &finished,
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_Finish_FailedWithMessage(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	finished := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE trace_session SET session_status").
		WithArgs(StatusFailed, int64(3), 0, "record: connection reset", "2026-08-21T12:00:00Z", "sess-9").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	err := j.Finish(ctx, SessionRecord{
		ID:             "sess-9",
		Status:         StatusFailed,
		EventsCaptured: 3,
		ErrorMessage:   "record: connection reset",
		FinishedAt:     &finished,
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_Finish_Error(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	mock.ExpectExec("UPDATE trace_session SET session_status").
		WillReturnError(assert.AnError)

	ctx := context.Background()
	err := j.Finish(ctx, SessionRecord{ID: "sess-1", Status: StatusCompleted})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record session result")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_Recent_Success(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	columns := []string{
		"session_id", "target", "output_path", "session_status",
		"events_captured", "symbols_emitted", "error_message",
		"started_at", "finished_at",
	}
	rows := sqlmock.NewRows(columns).
		AddRow("sess-2", "./server", "symbols.json", string(StatusRunning),
			int64(0), 0, "", "2026-08-21T11:00:00Z", nil).
		AddRow("sess-1", "java -jar app.jar", "out/symbols.json", string(StatusCompleted),
			int64(42), 7, "", "2026-08-21T10:00:00Z", "2026-08-21T10:05:00Z")

	mock.ExpectQuery("SELECT session_id, target").
		WithArgs(2).
		WillReturnRows(rows)

	ctx := context.Background()
	recs, err := j.Recent(ctx, 2)

	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "sess-2", recs[0].ID)
	assert.Equal(t, StatusRunning, recs[0].Status)
	assert.Nil(t, recs[0].FinishedAt)
	assert.Equal(t, time.Date(2026, 8, 21, 11, 0, 0, 0, time.UTC), recs[0].StartedAt)

	assert.Equal(t, "sess-1", recs[1].ID)
	assert.Equal(t, StatusCompleted, recs[1].Status)
	assert.Equal(t, int64(42), recs[1].EventsCaptured)
	assert.Equal(t, 7, recs[1].SymbolsEmitted)
	require.NotNil(t, recs[1].FinishedAt)
	assert.Equal(t, time.Date(2026, 8, 21, 10, 5, 0, 0, time.UTC), *recs[1].FinishedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_Recent_Empty(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	columns := []string{
		"session_id", "target", "output_path", "session_status",
		"events_captured", "symbols_emitted", "error_message",
		"started_at", "finished_at",
	}
	mock.ExpectQuery("SELECT session_id, target").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(columns))

	ctx := context.Background()
	recs, err := j.Recent(ctx, 0) // Zero limit falls back to the default

	require.NoError(t, err)
	assert.Len(t, recs, 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_Recent_QueryError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	mock.ExpectQuery("SELECT session_id, target").
		WillReturnError(assert.AnError)

	ctx := context.Background()
	recs, err := j.Recent(ctx, 5)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query sessions")
	assert.Nil(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_Counts_Success(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	rows := sqlmock.NewRows([]string{"session_status", "count"}).
		AddRow(string(StatusRunning), 1).
		AddRow(string(StatusCompleted), 12).
		AddRow(string(StatusFailed), 2)

	mock.ExpectQuery("SELECT session_status, COUNT\\(\\*\\) FROM trace_session").
		WillReturnRows(rows)

	ctx := context.Background()
	running, completed, failed, err := j.Counts(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, running)
	assert.Equal(t, 12, completed)
	assert.Equal(t, 2, failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_Counts_Error(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	mock.ExpectQuery("SELECT session_status, COUNT\\(\\*\\) FROM trace_session").
		WillReturnError(assert.AnError)

	ctx := context.Background()
	_, _, _, err := j.Counts(ctx)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count sessions")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournal_Close(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	j, _ := New(db, logger.NewDefault())

	mock.ExpectClose()

	assert.NoError(t, j.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
