package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/regenworks/regenworks-api/internal/models"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
	"github.com/regenworks/regenworks-api/pkg/hashchain"
)

func newLedgerRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestLedgerRepositoryAppendGenesis(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	observer := &queryObserverStub{}
	repo := NewLedgerRepository(db, 3, observer)
	payload := models.JSONMap{"action": "collected", "weight": 500.0}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("proj-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT sequence_no, block_hash FROM project_ledger")).
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows([]string{"sequence_no", "block_hash"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO project_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := repo.Append(context.Background(), AppendParams{
		ProjectID:  "proj-1",
		Status:     models.LedgerStatusCollected,
		VerifiedBy: "user-1",
		Payload:    payload,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.SequenceNo)
	require.Nil(t, entry.PreviousHash)

	want, err := hashchain.Digest(payload, "")
	require.NoError(t, err)
	require.Equal(t, want, entry.BlockHash)
	require.Equal(t, []string{"ledger_append"}, observer.observed())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryAppendLinksToHead(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db, 3, nil)
	payload := models.JSONMap{"action": "allocated"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("proj-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT sequence_no, block_hash FROM project_ledger")).
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows([]string{"sequence_no", "block_hash"}).AddRow(4, "headhash"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO project_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := repo.Append(context.Background(), AppendParams{
		ProjectID:  "proj-1",
		Status:     models.LedgerStatusAllocated,
		VerifiedBy: "user-1",
		Payload:    payload,
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), entry.SequenceNo)
	require.NotNil(t, entry.PreviousHash)
	require.Equal(t, "headhash", *entry.PreviousHash)

	want, err := hashchain.Digest(payload, "headhash")
	require.NoError(t, err)
	require.Equal(t, want, entry.BlockHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryAppendRetriesSerializationFailure(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db, 3, nil)
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
			WithArgs("proj-1").
			WillReturnError(&pq.Error{Code: "40001"})
		mock.ExpectRollback()
	}

	_, err := repo.Append(context.Background(), AppendParams{
		ProjectID: "proj-1",
		Status:    models.LedgerStatusCollected,
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrAppendConflict.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryAppendDoesNotRetryOtherErrors(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db, 3, nil)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("proj-1").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.Append(context.Background(), AppendParams{
		ProjectID: "proj-1",
		Status:    models.LedgerStatusCollected,
	})
	require.Error(t, err)
	require.NotEqual(t, appErrors.ErrAppendConflict.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryLatestEmptyChain(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db, 3, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + ledgerColumns + " FROM project_ledger")).
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	entry, err := repo.Latest(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Nil(t, entry)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryHistoryOrder(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db, 3, nil)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "project_id", "sequence_no", "timestamp", "status", "verified_by", "batch_reference", "payload", "previous_hash", "block_hash", "created_at"}).
		AddRow("e-1", "proj-1", 1, now, "collected", "user-1", nil, []byte(`{}`), nil, "hash-1", now).
		AddRow("e-2", "proj-1", 2, now, "allocated", "user-1", "batch-1", []byte(`{"weight":500}`), "hash-1", "hash-2", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + ledgerColumns + " FROM project_ledger")).
		WithArgs("proj-1").
		WillReturnRows(rows)

	entries, err := repo.History(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(1), entries[0].SequenceNo)
	require.Equal(t, "hash-1", entries[1].PreviousHashValue())
	require.Equal(t, 500.0, entries[1].Payload["weight"])
	require.NoError(t, mock.ExpectationsWereMet())
}
