package repository

import (
	"context"
	"testing"
	"time"

	"memonote/pkg/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*MemoRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMemoRepository(db), mock
}

func expectLockMemo(mock sqlmock.Sqlmock, memoID string) {
	mock.ExpectQuery(`SELECT id FROM memos WHERE id = \$1 FOR UPDATE`).
		WithArgs(memoID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(memoID))
}

func expectCountPages(mock sqlmock.Sqlmock, memoID string, n int) {
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM memo_pages WHERE memo_id = \$1`).
		WithArgs(memoID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
}

func TestAppendPageAssignsNextOrdinal(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectLockMemo(mock, "memo-1")
	expectCountPages(mock, "memo-1", 2)
	mock.ExpectExec(`INSERT INTO memo_pages`).
		WithArgs(sqlmock.AnyArg(), "memo-1", 3, "third page", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	page, err := repo.AppendPage(context.Background(), "memo-1", "third page")
	require.NoError(t, err)
	assert.Equal(t, 3, page.PageNumber)
	assert.Equal(t, "memo-1", page.MemoID)
	assert.NotEmpty(t, page.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendPageAtCapacity(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectLockMemo(mock, "memo-1")
	expectCountPages(mock, "memo-1", 10)
	mock.ExpectRollback()

	_, err := repo.AppendPage(context.Background(), "memo-1", "one too many")
	assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendPageMemoMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM memos WHERE id = \$1 FOR UPDATE`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.AppendPage(context.Background(), "ghost", "content")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendPageUniqueViolationIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectLockMemo(mock, "memo-1")
	expectCountPages(mock, "memo-1", 1)
	mock.ExpectExec(`INSERT INTO memo_pages`).
		WithArgs(sqlmock.AnyArg(), "memo-1", 2, "dup", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.AppendPage(context.Background(), "memo-1", "dup")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePageRenumbersInOneTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectLockMemo(mock, "memo-1")
	mock.ExpectExec(`DELETE FROM memo_pages WHERE memo_id = \$1 AND page_number = \$2`).
		WithArgs("memo-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET CONSTRAINTS uix_memo_page_number DEFERRED`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE memo_pages SET page_number = page_number - 1 WHERE memo_id = \$1 AND page_number > \$2`).
		WithArgs("memo-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.DeletePage(context.Background(), "memo-1", 2)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePageMissingRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectLockMemo(mock, "memo-1")
	mock.ExpectExec(`DELETE FROM memo_pages WHERE memo_id = \$1 AND page_number = \$2`).
		WithArgs("memo-1", 7).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.DeletePage(context.Background(), "memo-1", 7)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPageRejectsGapOrdinal(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectLockMemo(mock, "memo-1")
	expectCountPages(mock, "memo-1", 2)
	mock.ExpectRollback()

	_, err := repo.UpsertPage(context.Background(), "memo-1", 5, "gap")
	assert.ErrorIs(t, err, apperr.ErrInvalidOrdinal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPageInsertsAtNextOrdinal(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectLockMemo(mock, "memo-1")
	expectCountPages(mock, "memo-1", 2)
	mock.ExpectExec(`INSERT INTO memo_pages`).
		WithArgs(sqlmock.AnyArg(), "memo-1", 3, "new page", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	page, err := repo.UpsertPage(context.Background(), "memo-1", 3, "new page")
	require.NoError(t, err)
	assert.Equal(t, 3, page.PageNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPageInsertAtCapacity(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectLockMemo(mock, "memo-1")
	expectCountPages(mock, "memo-1", 10)
	mock.ExpectRollback()

	_, err := repo.UpsertPage(context.Background(), "memo-1", 11, "overflow")
	assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPageUpdatesInPlaceOverCap(t *testing.T) {
	// Pre-existing data may exceed the cap; in-place updates must still
	// work there, only the insert branch is capped.
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectLockMemo(mock, "memo-1")
	expectCountPages(mock, "memo-1", 12)
	mock.ExpectQuery(`UPDATE memo_pages SET content = \$1, updated_at = \$2 WHERE memo_id = \$3 AND page_number = \$4`).
		WithArgs("still editable", sqlmock.AnyArg(), "memo-1", 11).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("page-11", time.Now()))
	mock.ExpectCommit()

	page, err := repo.UpsertPage(context.Background(), "memo-1", 11, "still editable")
	require.NoError(t, err)
	assert.Equal(t, 11, page.PageNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPageUpdatesInPlace(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectLockMemo(mock, "memo-1")
	expectCountPages(mock, "memo-1", 3)
	mock.ExpectQuery(`UPDATE memo_pages SET content = \$1, updated_at = \$2 WHERE memo_id = \$3 AND page_number = \$4`).
		WithArgs("edited", sqlmock.AnyArg(), "memo-1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("page-2", time.Now()))
	mock.ExpectCommit()

	page, err := repo.UpsertPage(context.Background(), "memo-1", 2, "edited")
	require.NoError(t, err)
	assert.Equal(t, "page-2", page.ID)
	assert.Equal(t, 2, page.PageNumber)
	assert.Equal(t, "edited", page.Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMemoRemovesPagesFirst(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM memo_pages WHERE memo_id = \$1`).
		WithArgs("memo-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM memos WHERE id = \$1`).
		WithArgs("memo-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteMemo(context.Background(), "memo-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMemoMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM memo_pages WHERE memo_id = \$1`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM memos WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.DeleteMemo(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMemoOwner(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT user_id FROM memos WHERE id = \$1`).
		WithArgs("memo-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("alice"))

	owner, err := repo.GetMemoOwner(context.Background(), "memo-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	mock.ExpectQuery(`SELECT user_id FROM memos WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	_, err = repo.GetMemoOwner(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSerializationFailureIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectLockMemo(mock, "memo-1")
	mock.ExpectExec(`DELETE FROM memo_pages WHERE memo_id = \$1 AND page_number = \$2`).
		WithArgs("memo-1", 1).
		WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()

	err := repo.DeletePage(context.Background(), "memo-1", 1)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
