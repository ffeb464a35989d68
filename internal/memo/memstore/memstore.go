// Package memstore is an in-memory implementation of the service's Store
// interface. It backs the service and handler tests, where it stands in
// for Postgres; the mutex plays the role of the per-memo row lock.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"memonote/internal/memo/model"
	"memonote/pkg/apperr"

	"github.com/google/uuid"
)

type memoRecord struct {
	memo  model.Memo
	pages []model.Page // index i holds page number i+1
	seq   int
}

type MemStore struct {
	mu    sync.Mutex
	memos map[string]*memoRecord
	next  int
}

func New() *MemStore {
	return &MemStore{memos: make(map[string]*memoRecord)}
}

func (s *MemStore) InsertMemo(_ context.Context, m *model.Memo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	s.next++
	s.memos[m.ID] = &memoRecord{memo: *m, seq: s.next}
	return nil
}

func (s *MemStore) GetMemoOwner(_ context.Context, memoID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.memos[memoID]
	if !ok {
		return "", apperr.ErrNotFound
	}
	return rec.memo.UserID, nil
}

func (s *MemStore) GetMemo(_ context.Context, memoID string) (model.Memo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.memos[memoID]
	if !ok {
		return model.Memo{}, apperr.ErrNotFound
	}
	return rec.memo, nil
}

func (s *MemStore) ListMemos(_ context.Context, userID string) ([]model.Memo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Newest first, matching the repository's ORDER BY created_at DESC.
	recs := []*memoRecord{}
	for _, rec := range s.memos {
		if rec.memo.UserID == userID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })

	memos := make([]model.Memo, 0, len(recs))
	for _, rec := range recs {
		memos = append(memos, rec.memo)
	}
	return memos, nil
}

func (s *MemStore) UpdateMemo(_ context.Context, memoID string, req model.UpdateMemoRequest) (model.Memo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.memos[memoID]
	if !ok {
		return model.Memo{}, apperr.ErrNotFound
	}
	if req.Title != nil {
		rec.memo.Title = *req.Title
	}
	if req.Content != nil {
		rec.memo.Content = *req.Content
	}
	if req.MainCategory != nil {
		rec.memo.MainCategory = *req.MainCategory
	}
	if req.SubCategory != nil {
		rec.memo.SubCategory = *req.SubCategory
	}
	rec.memo.UpdatedAt = time.Now().UTC()
	return rec.memo, nil
}

func (s *MemStore) DeleteMemo(_ context.Context, memoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memos[memoID]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.memos, memoID)
	return nil
}

func (s *MemStore) ListPages(_ context.Context, memoID string) ([]model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.memos[memoID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	pages := make([]model.Page, len(rec.pages))
	copy(pages, rec.pages)
	return pages, nil
}

func (s *MemStore) AppendPage(_ context.Context, memoID, content string) (model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.memos[memoID]
	if !ok {
		return model.Page{}, apperr.ErrNotFound
	}
	if len(rec.pages) >= model.MaxPages {
		return model.Page{}, apperr.ErrCapacityExceeded
	}
	page := newPage(memoID, len(rec.pages)+1, content)
	rec.pages = append(rec.pages, page)
	return page, nil
}

func (s *MemStore) GetPage(_ context.Context, memoID string, ordinal int) (model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.memos[memoID]
	if !ok {
		return model.Page{}, apperr.ErrNotFound
	}
	if ordinal < 1 || ordinal > len(rec.pages) {
		return model.Page{}, apperr.ErrNotFound
	}
	return rec.pages[ordinal-1], nil
}

func (s *MemStore) UpsertPage(_ context.Context, memoID string, ordinal int, content string) (model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.memos[memoID]
	if !ok {
		return model.Page{}, apperr.ErrNotFound
	}
	if ordinal < 1 || ordinal > len(rec.pages)+1 {
		return model.Page{}, apperr.ErrInvalidOrdinal
	}
	if ordinal == len(rec.pages)+1 {
		if len(rec.pages) >= model.MaxPages {
			return model.Page{}, apperr.ErrCapacityExceeded
		}
		page := newPage(memoID, ordinal, content)
		rec.pages = append(rec.pages, page)
		return page, nil
	}
	rec.pages[ordinal-1].Content = content
	rec.pages[ordinal-1].UpdatedAt = time.Now().UTC()
	return rec.pages[ordinal-1], nil
}

func (s *MemStore) DeletePage(_ context.Context, memoID string, ordinal int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.memos[memoID]
	if !ok {
		return apperr.ErrNotFound
	}
	if ordinal < 1 || ordinal > len(rec.pages) {
		return apperr.ErrNotFound
	}
	rec.pages = append(rec.pages[:ordinal-1], rec.pages[ordinal:]...)
	for i := range rec.pages {
		rec.pages[i].PageNumber = i + 1
	}
	return nil
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
