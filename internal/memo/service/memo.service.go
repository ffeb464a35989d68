package service

import (
	"context"
	"encoding/json"
	"errors"

	"memonote/internal/memo/model"
	"memonote/pkg/apperr"
	"memonote/pkg/logger"
	"memonote/socket"

	"github.com/google/uuid"
)

// conflictRetries is how many extra attempts a conflicted mutation gets
// before the conflict is surfaced to the caller.
const conflictRetries = 2

// Store is the storage backend the service runs against. The Postgres
// implementation lives in internal/memo/repository; tests use an
// in-memory one. Implementations return apperr taxonomy errors.
type Store interface {
	InsertMemo(ctx context.Context, m *model.Memo) error
	GetMemoOwner(ctx context.Context, memoID string) (string, error)
	GetMemo(ctx context.Context, memoID string) (model.Memo, error)
	ListMemos(ctx context.Context, userID string) ([]model.Memo, error)
	UpdateMemo(ctx context.Context, memoID string, req model.UpdateMemoRequest) (model.Memo, error)
	DeleteMemo(ctx context.Context, memoID string) error
	ListPages(ctx context.Context, memoID string) ([]model.Page, error)
	AppendPage(ctx context.Context, memoID, content string) (model.Page, error)
	GetPage(ctx context.Context, memoID string, ordinal int) (model.Page, error)
	UpsertPage(ctx context.Context, memoID string, ordinal int, content string) (model.Page, error)
	DeletePage(ctx context.Context, memoID string, ordinal int) error
}

// EventPublisher receives a change event after each successful mutation.
type EventPublisher interface {
	Publish(evt socket.Event)
}

// MemoService is the operation surface of the memo core. Every operation
// except CreateMemo authorizes the caller against the memo's owner before
// touching storage; page operations inherit ownership from the memo.
type MemoService struct {
	store Store
	hub   EventPublisher
}

func NewMemoService(store Store, hub EventPublisher) *MemoService {
	return &MemoService{store: store, hub: hub}
}

// authorize allows the operation iff the memo exists and userID owns it.
// A missing memo stays ErrNotFound so callers can tell "doesn't exist"
// from "exists but not yours".
func (s *MemoService) authorize(ctx context.Context, userID, memoID string) error {
	ownerID, err := s.store.GetMemoOwner(ctx, memoID)
	if err != nil {
		return err
	}
	if ownerID != userID {
		return apperr.ErrForbidden
	}
	return nil
}

// retryConflict re-runs fn with fresh reads while it reports ErrConflict,
// up to conflictRetries extra attempts.
func retryConflict(fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if !errors.Is(err, apperr.ErrConflict) || attempt >= conflictRetries {
			return err
		}
		logger.Sugar.Debugf("Retrying after conflict (attempt %d)", attempt+1)
	}
}

func (s *MemoService) publish(evtType, userID, memoID string, payload any) {
	if s.hub == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	s.hub.Publish(socket.Event{Type: evtType, MemoID: memoID, UserID: userID, Payload: raw})
}

// CreateMemo stores a new memo owned by userID and its first page holding
// the initial content. If the page insert fails the memo is still
// returned, with an empty page list; the caller can add pages later.
func (s *MemoService) CreateMemo(ctx context.Context, userID string, req model.CreateMemoRequest) (model.MemoWithPages, error) {
	title := req.Title
	if title == "" {
		title = "Untitled"
	}
	memo := model.Memo{
		ID:           uuid.NewString(),
		UserID:       userID,
		Title:        title,
		Content:      req.Content,
		MainCategory: req.MainCategory,
		SubCategory:  req.SubCategory,
	}
	if err := s.store.InsertMemo(ctx, &memo); err != nil {
		return model.MemoWithPages{}, err
	}

	pages := []model.Page{}
	firstPage, err := s.store.AppendPage(ctx, memo.ID, req.Content)
	if err != nil {
		logger.Sugar.Warnf("Failed to create initial page for memo %s: %v", memo.ID, err)
	} else {
		pages = append(pages, firstPage)
	}

	result := model.MemoWithPages{Memo: memo, Pages: pages}
	s.publish(socket.MemoCreatedType, userID, memo.ID, result.Memo)
	return result, nil
}

func (s *MemoService) ListMemos(ctx context.Context, userID string) ([]model.Memo, error) {
	return s.store.ListMemos(ctx, userID)
}

func (s *MemoService) GetMemo(ctx context.Context, userID, memoID string) (model.Memo, error) {
	if err := s.authorize(ctx, userID, memoID); err != nil {
		return model.Memo{}, err
	}
	return s.store.GetMemo(ctx, memoID)
}

func (s *MemoService) UpdateMemo(ctx context.Context, userID, memoID string, req model.UpdateMemoRequest) (model.Memo, error) {
	if err := s.authorize(ctx, userID, memoID); err != nil {
		return model.Memo{}, err
	}
	var memo model.Memo
	err := retryConflict(func() error {
		var err error
		memo, err = s.store.UpdateMemo(ctx, memoID, req)
		return err
	})
	if err != nil {
		return model.Memo{}, err
	}
	s.publish(socket.MemoUpdatedType, userID, memoID, memo)
	return memo, nil
}

// DeleteMemo removes the memo and every page it owns. Pages never outlive
// their memo.
func (s *MemoService) DeleteMemo(ctx context.Context, userID, memoID string) error {
	if err := s.authorize(ctx, userID, memoID); err != nil {
		return err
	}
	err := retryConflict(func() error {
		return s.store.DeleteMemo(ctx, memoID)
	})
	if err != nil {
		return err
	}
	s.publish(socket.MemoDeletedType, userID, memoID, nil)
	return nil
}

func (s *MemoService) ListPages(ctx context.Context, userID, memoID string) ([]model.Page, error) {
	if err := s.authorize(ctx, userID, memoID); err != nil {
		return nil, err
	}
	return s.store.ListPages(ctx, memoID)
}

// CreatePage appends a page at the next free page number. Fails with
// ErrCapacityExceeded once the memo holds model.MaxPages pages.
func (s *MemoService) CreatePage(ctx context.Context, userID, memoID, content string) (model.Page, error) {
	if err := s.authorize(ctx, userID, memoID); err != nil {
		return model.Page{}, err
	}
	var page model.Page
	err := retryConflict(func() error {
		var err error
		page, err = s.store.AppendPage(ctx, memoID, content)
		return err
	})
	if err != nil {
		return model.Page{}, err
	}
	s.publish(socket.PageChangedType, userID, memoID, page)
	return page, nil
}

func (s *MemoService) GetPage(ctx context.Context, userID, memoID string, ordinal int) (model.Page, error) {
	if err := s.authorize(ctx, userID, memoID); err != nil {
		return model.Page{}, err
	}
	return s.store.GetPage(ctx, memoID, ordinal)
}

// UpdatePage writes content at ordinal, creating the page when ordinal is
// exactly one past the current end. Callers may address a not-yet-created
// page; only ordinals that would leave a gap are rejected.
func (s *MemoService) UpdatePage(ctx context.Context, userID, memoID string, ordinal int, content string) (model.Page, error) {
	if err := s.authorize(ctx, userID, memoID); err != nil {
		return model.Page{}, err
	}
	var page model.Page
	err := retryConflict(func() error {
		var err error
		page, err = s.store.UpsertPage(ctx, memoID, ordinal, content)
		return err
	})
	if err != nil {
		return model.Page{}, err
	}
	s.publish(socket.PageChangedType, userID, memoID, page)
	return page, nil
}

// DeletePage removes the page at ordinal; later pages shift down by one
// so the sequence stays 1..N.
func (s *MemoService) DeletePage(ctx context.Context, userID, memoID string, ordinal int) error {
	if err := s.authorize(ctx, userID, memoID); err != nil {
		return err
	}
	err := retryConflict(func() error {
		return s.store.DeletePage(ctx, memoID, ordinal)
	})
	if err != nil {
		return err
	}
	s.publish(socket.PageChangedType, userID, memoID, nil)
	return nil
}
