package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/models"
	"github.com/omega-realm/economy/internal/store"
)

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return New(sqlDB), mock
}

var accountCols = []string{
	"id", "username", "balance", "suspicion_score", "banned", "ban_reason",
	"device_fingerprint", "last_known_address", "created_at",
}

func TestMigrate(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	for _, stmt := range migrations {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	require.NoError(t, db.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS accounts").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := db.Migrate(context.Background())
	assert.ErrorContains(t, err, "migration 0 failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccount(t *testing.T) {
	db, mock := newMock(t)
	ctx := context.Background()
	id := uuid.New()

	t.Run("should scan account row", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(accountCols).
				AddRow(id.String(), "alice", int64(120), int64(2), false, nil, "dev-1", "10.0.0.1", time.Now()))

		a, err := db.GetAccount(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, a.ID)
		assert.Equal(t, int64(120), a.Balance)
		assert.Equal(t, "dev-1", a.DeviceFingerprint)
		assert.Nil(t, a.BanReason)
	})

	t.Run("should map missing row to not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(accountCols))

		_, err := db.GetAccount(ctx, id)
		assert.ErrorIs(t, err, apperr.ErrAccountNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAccounts(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT (.+) FROM accounts ORDER BY created_at DESC, username ASC LIMIT \\$1 OFFSET \\$2").
		WithArgs(2, 4).
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(uuid.NewString(), "carol", int64(10), int64(0), false, nil, "", "", time.Now()).
			AddRow(uuid.NewString(), "bob", int64(20), int64(3), true, "botting", "", "", time.Now()))

	accounts, err := db.ListAccounts(context.Background(), 2, 4)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "carol", accounts[0].Username)
	require.NotNil(t, accounts[1].BanReason)
	assert.Equal(t, "botting", *accounts[1].BanReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccountDuplicate(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("INSERT INTO accounts").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_username_key"})

	err := db.CreateAccount(context.Background(), &models.Account{Username: "alice"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateAccount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommitsLockedUpdate(t *testing.T) {
	db, mock := newMock(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id = ANY\\(\\$1::uuid\\[\\]\\) ORDER BY id FOR UPDATE").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(a.String(), "alice", int64(100), int64(0), false, nil, "", "", time.Now()).
			AddRow(b.String(), "bob", int64(0), int64(0), false, nil, "", "", time.Now()))
	mock.ExpectExec("UPDATE accounts SET balance = \\$2 WHERE id = \\$1").
		WithArgs(a, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE accounts SET balance = \\$2 WHERE id = \\$1").
		WithArgs(b, int64(95)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.WithTx(ctx, func(tx store.Tx) error {
		accts, err := tx.LockAccounts(ctx, a, b)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(100), accts[a].Balance)
		if err := tx.SetBalance(ctx, a, 0); err != nil {
			return err
		}
		return tx.SetBalance(ctx, b, 95)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackWhenAccountMissing(t *testing.T) {
	db, mock := newMock(t)
	ctx := context.Background()
	a := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM accounts WHERE id = ANY").
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(a.String(), "alice", int64(100), int64(0), false, nil, "", "", time.Now()))
	mock.ExpectRollback()

	err := db.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.LockAccounts(ctx, a, uuid.New())
		return err
	})

	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxSurfacesSerializationFailure(t *testing.T) {
	db, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts SET suspicion_score").
		WillReturnError(&pq.Error{Code: "40P01"})
	mock.ExpectRollback()

	err := db.WithTx(ctx, func(tx store.Tx) error {
		return tx.AddSuspicion(ctx, uuid.New(), 1)
	})

	assert.ErrorIs(t, err, apperr.ErrStoreConflict)
	assert.True(t, apperr.Retryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSessionOpenConflict(t *testing.T) {
	db, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO play_sessions").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_play_sessions_open"})
	mock.ExpectRollback()

	err := db.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertSession(ctx, &models.PlaySession{AccountID: uuid.New(), StartTime: time.Now()})
	})

	assert.ErrorIs(t, err, apperr.ErrSessionOpen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecordReturnsTimestamp(t *testing.T) {
	db, mock := newMock(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO ledger_records").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectCommit()

	rec := &models.LedgerRecord{
		SourceID: uuid.New(), DestinationID: uuid.New(),
		Amount: 100, Fee: 5, NetAmount: 95,
		Kind: models.KindTransfer, Status: models.StatusCompleted,
	}
	require.NoError(t, db.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertRecord(ctx, rec)
	}))

	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, created, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopBalancesRanks(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT id, username, balance FROM accounts WHERE NOT banned").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "balance"}).
			AddRow(uuid.NewString(), "bob", int64(500)).
			AddRow(uuid.NewString(), "alice", int64(300)))

	entries, err := db.TopBalances(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Rank)
	assert.Equal(t, "alice", entries[1].Username)
	assert.Equal(t, int64(2), entries[1].Rank)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"serialization failure", &pq.Error{Code: "40001"}, apperr.KindStoreConflict},
		{"deadlock", &pq.Error{Code: "40P01"}, apperr.KindStoreConflict},
		{"connection failure", &pq.Error{Code: "08006"}, apperr.KindUnavailable},
		{"admin shutdown", &pq.Error{Code: "57P01"}, apperr.KindUnavailable},
		{"check violation", &pq.Error{Code: "23514"}, apperr.KindInternal},
		{"cancelled", context.Canceled, apperr.KindUnavailable},
		{"unknown", errors.New("boom"), apperr.KindInternal},
		{"already mapped", apperr.ErrInsufficientFunds, apperr.KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.KindOf(mapError("op", tt.err)))
		})
	}
	assert.NoError(t, mapError("op", nil))
}
