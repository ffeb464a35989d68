package memo

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"memonote/internal/memo/model"
	"memonote/internal/memo/service"
	"memonote/middleware"
	"memonote/pkg/apperr"
	"memonote/pkg/logger"
)

// requestTimeout bounds every storage-touching request so a stuck backend
// surfaces as 503 instead of hanging the caller.
const requestTimeout = 5 * time.Second

type MemoHandler struct {
	Service *service.MemoService
}

func NewMemoHandler(service *service.MemoService) *MemoHandler {
	return &MemoHandler{Service: service}
}

func opContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), apperr.HTTPStatus(err))
}

func (h *MemoHandler) CreateMemo(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(middleware.UserIDKey).(string)

	var req model.CreateMemoRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // Ignore error, all fields default

	ctx, cancel := opContext(r)
	defer cancel()

	memo, err := h.Service.CreateMemo(ctx, userID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create memo: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, memo)
}

func (h *MemoHandler) ListMemos(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(middleware.UserIDKey).(string)

	ctx, cancel := opContext(r)
	defer cancel()

	memos, err := h.Service.ListMemos(ctx, userID)
	if err != nil {
		logger.Sugar.Errorf("Error fetching memos: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memos)
}

func (h *MemoHandler) GetMemo(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(middleware.UserIDKey).(string)
	memoID := r.PathValue("memoId")

	ctx, cancel := opContext(r)
	defer cancel()

	memo, err := h.Service.GetMemo(ctx, userID, memoID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memo)
}

func (h *MemoHandler) UpdateMemo(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(middleware.UserIDKey).(string)
	memoID := r.PathValue("memoId")

	var req model.UpdateMemoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := opContext(r)
	defer cancel()

	memo, err := h.Service.UpdateMemo(ctx, userID, memoID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to update memo %s: %v", memoID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memo)
}

func (h *MemoHandler) DeleteMemo(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(middleware.UserIDKey).(string)
	memoID := r.PathValue("memoId")

	ctx, cancel := opContext(r)
	defer cancel()

	if err := h.Service.DeleteMemo(ctx, userID, memoID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to delete memo %s: %v", memoID, err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemoHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(middleware.UserIDKey).(string)
	memoID := r.PathValue("memoId")

	ctx, cancel := opContext(r)
	defer cancel()

	pages, err := h.Service.ListPages(ctx, userID, memoID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pages)
}

func (h *MemoHandler) CreatePage(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(middleware.UserIDKey).(string)
	memoID := r.PathValue("memoId")

	var req model.PageRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	ctx, cancel := opContext(r)
	defer cancel()

	page, err := h.Service.CreatePage(ctx, userID, memoID, req.Content)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create page for memo %s: %v", memoID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, page)
}

func pageNumber(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(r.PathValue("pageNumber"))
	return n, err == nil
}

func (h *MemoHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(middleware.UserIDKey).(string)
	memoID := r.PathValue("memoId")
	ordinal, ok := pageNumber(r)
	if !ok {
		http.Error(w, "Invalid page number", http.StatusBadRequest)
		return
	}

	ctx, cancel := opContext(r)
	defer cancel()

	page, err := h.Service.GetPage(ctx, userID, memoID, ordinal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *MemoHandler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(middleware.UserIDKey).(string)
	memoID := r.PathValue("memoId")
	ordinal, ok := pageNumber(r)
	if !ok {
		http.Error(w, "Invalid page number", http.StatusBadRequest)
		return
	}

	var req model.PageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := opContext(r)
	defer cancel()

	page, err := h.Service.UpdatePage(ctx, userID, memoID, ordinal, req.Content)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to update page %d of memo %s: %v", ordinal, memoID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *MemoHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(middleware.UserIDKey).(string)
	memoID := r.PathValue("memoId")
	ordinal, ok := pageNumber(r)
	if !ok {
		http.Error(w, "Invalid page number", http.StatusBadRequest)
		return
	}

	ctx, cancel := opContext(r)
	defer cancel()

	if err := h.Service.DeletePage(ctx, userID, memoID, ordinal); err != nil {
		logger.Sugar.Errorf("Handler: Failed to delete page %d of memo %s: %v", ordinal, memoID, err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
