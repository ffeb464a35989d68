package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"memonote/internal/memo/model"
	"memonote/pkg/apperr"
	"memonote/pkg/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// MemoRepository persists memos and their page sequences in Postgres.
//
// Every page mutation runs inside a single transaction that first takes a
// row lock on the parent memo. That lock is the per-memo serialization
// point: appends cannot double-assign a page number and deletes cannot
// interleave with the renumbering pass. Operations on different memos
// never contend.
type MemoRepository struct {
	DB *sql.DB
}

func NewMemoRepository(db *sql.DB) *MemoRepository {
	return &MemoRepository{DB: db}
}

// classify maps a database error onto the apperr taxonomy.
// Serialization failures, deadlocks, and unique violations on
// (memo_id, page_number) are retryable conflicts; anything else from the
// driver counts as the backend being unavailable.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return apperr.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperr.ErrUnavailable
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "23505":
			return apperr.ErrConflict
		}
	}
	return apperr.ErrUnavailable
}

// fail logs unexpected database errors and returns the classified form.
// Plain misses (sql.ErrNoRows) are not worth a log line.
func fail(op string, err error) error {
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		logger.Sugar.Errorf("%s: %v", op, err)
	}
	return classify(err)
}

// withTx runs fn inside a transaction, rolling back on error or
// cancellation. fn returns taxonomy errors only.
func (r *MemoRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fail("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fail("commit tx", err)
	}
	return nil
}

// lockMemo takes the per-memo row lock, or reports ErrNotFound.
func lockMemo(ctx context.Context, tx *sql.Tx, memoID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM memos WHERE id = $1 FOR UPDATE`, memoID).Scan(&id)
	return fail("lock memo", err)
}

func countPages(ctx context.Context, tx *sql.Tx, memoID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM memo_pages WHERE memo_id = $1`, memoID).Scan(&n)
	if err != nil {
		return 0, fail("count pages", err)
	}
	return n, nil
}

func insertPage(ctx context.Context, tx *sql.Tx, p *model.Page) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO memo_pages (id, memo_id, page_number, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		p.ID, p.MemoID, p.PageNumber, p.Content, p.CreatedAt)
	return fail("insert page", err)
}

func newPage(memoID string, ordinal int, content string) model.Page {
	now := time.Now().UTC()
	return model.Page{
		ID:         uuid.NewString(),
		MemoID:     memoID,
		PageNumber: ordinal,
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// InsertMemo stores a new memo row. The caller supplies the id and owner;
// timestamps are set here.
func (r *MemoRepository) InsertMemo(ctx context.Context, m *model.Memo) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO memos (id, user_id, title, content, main_category, sub_category, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		m.ID, m.UserID, m.Title, m.Content, m.MainCategory, m.SubCategory, now)
	return fail("insert memo", err)
}

// GetMemoOwner returns the owning user id, or ErrNotFound. The service's
// ownership check runs on this before any other statement touches the memo.
func (r *MemoRepository) GetMemoOwner(ctx context.Context, memoID string) (string, error) {
	var ownerID string
	err := r.DB.QueryRowContext(ctx, `SELECT user_id FROM memos WHERE id = $1`, memoID).Scan(&ownerID)
	if err != nil {
		return "", fail("get memo owner", err)
	}
	return ownerID, nil
}

func (r *MemoRepository) GetMemo(ctx context.Context, memoID string) (model.Memo, error) {
	var m model.Memo
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, title, content, main_category, sub_category, created_at, updated_at
		 FROM memos WHERE id = $1`, memoID).
		Scan(&m.ID, &m.UserID, &m.Title, &m.Content, &m.MainCategory, &m.SubCategory, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return model.Memo{}, fail("get memo", err)
	}
	return m, nil
}

func (r *MemoRepository) ListMemos(ctx context.Context, userID string) ([]model.Memo, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, title, content, main_category, sub_category, created_at, updated_at
		 FROM memos WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fail("list memos", err)
	}
	defer rows.Close()

	memos := []model.Memo{}
	for rows.Next() {
		var m model.Memo
		if err := rows.Scan(&m.ID, &m.UserID, &m.Title, &m.Content, &m.MainCategory, &m.SubCategory, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fail("scan memo", err)
		}
		memos = append(memos, m)
	}
	return memos, fail("list memos", rows.Err())
}

// UpdateMemo applies the non-nil fields of req under the memo row lock and
// returns the updated memo.
func (r *MemoRepository) UpdateMemo(ctx context.Context, memoID string, req model.UpdateMemoRequest) (model.Memo, error) {
	var m model.Memo
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT id, user_id, title, content, main_category, sub_category, created_at, updated_at
			 FROM memos WHERE id = $1 FOR UPDATE`, memoID).
			Scan(&m.ID, &m.UserID, &m.Title, &m.Content, &m.MainCategory, &m.SubCategory, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return fail("get memo for update", err)
		}
		if req.Title != nil {
			m.Title = *req.Title
		}
		if req.Content != nil {
			m.Content = *req.Content
		}
		if req.MainCategory != nil {
			m.MainCategory = *req.MainCategory
		}
		if req.SubCategory != nil {
			m.SubCategory = *req.SubCategory
		}
		m.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			`UPDATE memos SET title = $1, content = $2, main_category = $3, sub_category = $4, updated_at = $5 WHERE id = $6`,
			m.Title, m.Content, m.MainCategory, m.SubCategory, m.UpdatedAt, memoID)
		return fail("update memo", err)
	})
	if err != nil {
		return model.Memo{}, err
	}
	return m, nil
}

// DeleteMemo removes the memo and all of its pages in one transaction.
// The schema also cascades, but deleting the pages explicitly keeps the
// invariant independent of the schema being in place.
func (r *MemoRepository) DeleteMemo(ctx context.Context, memoID string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memo_pages WHERE memo_id = $1`, memoID); err != nil {
			return fail("delete memo pages", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM memos WHERE id = $1`, memoID)
		if err != nil {
			return fail("delete memo", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.ErrNotFound
		}
		return nil
	})
}

func (r *MemoRepository) ListPages(ctx context.Context, memoID string) ([]model.Page, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, memo_id, page_number, content, created_at, updated_at
		 FROM memo_pages WHERE memo_id = $1 ORDER BY page_number ASC`, memoID)
	if err != nil {
		return nil, fail("list pages", err)
	}
	defer rows.Close()

	pages := []model.Page{}
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.ID, &p.MemoID, &p.PageNumber, &p.Content, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fail("scan page", err)
		}
		pages = append(pages, p)
	}
	return pages, fail("list pages", rows.Err())
}

// AppendPage inserts a page at the current count + 1. The count and the
// insert happen under the memo row lock so concurrent appends serialize.
func (r *MemoRepository) AppendPage(ctx context.Context, memoID, content string) (model.Page, error) {
	var page model.Page
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockMemo(ctx, tx, memoID); err != nil {
			return err
		}
		n, err := countPages(ctx, tx, memoID)
		if err != nil {
			return err
		}
		if n >= model.MaxPages {
			return apperr.ErrCapacityExceeded
		}
		page = newPage(memoID, n+1, content)
		return insertPage(ctx, tx, &page)
	})
	if err != nil {
		return model.Page{}, err
	}
	return page, nil
}

func (r *MemoRepository) GetPage(ctx context.Context, memoID string, ordinal int) (model.Page, error) {
	var p model.Page
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, memo_id, page_number, content, created_at, updated_at
		 FROM memo_pages WHERE memo_id = $1 AND page_number = $2`, memoID, ordinal).
		Scan(&p.ID, &p.MemoID, &p.PageNumber, &p.Content, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Page{}, fail("get page", err)
	}
	return p, nil
}

// UpsertPage updates the page at ordinal in place, or creates it when
// ordinal is exactly one past the end. Ordinals outside [1, N+1] would
// leave a gap and are rejected.
func (r *MemoRepository) UpsertPage(ctx context.Context, memoID string, ordinal int, content string) (model.Page, error) {
	var page model.Page
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockMemo(ctx, tx, memoID); err != nil {
			return err
		}
		n, err := countPages(ctx, tx, memoID)
		if err != nil {
			return err
		}
		if ordinal < 1 || ordinal > n+1 {
			return apperr.ErrInvalidOrdinal
		}
		if ordinal == n+1 {
			// Instantiating the next ordinal is an append and honors
			// the cap; in-place updates below work even on memos that
			// exceeded the cap before it existed.
			if n >= model.MaxPages {
				return apperr.ErrCapacityExceeded
			}
			page = newPage(memoID, ordinal, content)
			return insertPage(ctx, tx, &page)
		}
		now := time.Now().UTC()
		err = tx.QueryRowContext(ctx,
			`UPDATE memo_pages SET content = $1, updated_at = $2 WHERE memo_id = $3 AND page_number = $4
			 RETURNING id, created_at`,
			content, now, memoID, ordinal).Scan(&page.ID, &page.CreatedAt)
		if err != nil {
			return fail("update page", err)
		}
		page.MemoID = memoID
		page.PageNumber = ordinal
		page.Content = content
		page.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.Page{}, err
	}
	return page, nil
}

// DeletePage removes the page at ordinal and decrements every later page
// number by one in the same transaction, keeping the sequence dense. The
// unique constraint on (memo_id, page_number) is deferred for the bulk
// decrement so row update order inside the statement cannot trip it.
func (r *MemoRepository) DeletePage(ctx context.Context, memoID string, ordinal int) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockMemo(ctx, tx, memoID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM memo_pages WHERE memo_id = $1 AND page_number = $2`, memoID, ordinal)
		if err != nil {
			return fail("delete page", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `SET CONSTRAINTS uix_memo_page_number DEFERRED`); err != nil {
			return fail("defer page constraint", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE memo_pages SET page_number = page_number - 1 WHERE memo_id = $1 AND page_number > $2`,
			memoID, ordinal)
		return fail("renumber pages", err)
	})
}
