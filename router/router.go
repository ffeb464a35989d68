package router

import (
	"database/sql"
	"net/http"

	memoHandler "memonote/internal/memo"
	"memonote/internal/memo/repository"
	"memonote/internal/memo/service"
	"memonote/middleware"
	"memonote/socket"
)

func Setup(db *sql.DB, hub *socket.Hub) http.Handler {
	mux := http.NewServeMux()

	// WebSocket change stream
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(middleware.UserIDKey).(string)
		socket.ServeWs(hub, w, r, userID)
	})
	mux.Handle("/ws", middleware.AuthMiddleware(wsHandler))

	// REST API
	memoRepo := repository.NewMemoRepository(db)
	memoService := service.NewMemoService(memoRepo, hub)
	handler := memoHandler.NewMemoHandler(memoService)
	auth := middleware.AuthMiddleware

	mux.Handle("POST /api/memos", auth(http.HandlerFunc(handler.CreateMemo)))
	mux.Handle("GET /api/memos", auth(http.HandlerFunc(handler.ListMemos)))
	mux.Handle("GET /api/memos/{memoId}", auth(http.HandlerFunc(handler.GetMemo)))
	mux.Handle("PUT /api/memos/{memoId}", auth(http.HandlerFunc(handler.UpdateMemo)))
	mux.Handle("DELETE /api/memos/{memoId}", auth(http.HandlerFunc(handler.DeleteMemo)))
	mux.Handle("GET /api/memos/{memoId}/pages", auth(http.HandlerFunc(handler.ListPages)))
	mux.Handle("POST /api/memos/{memoId}/pages", auth(http.HandlerFunc(handler.CreatePage)))
	mux.Handle("GET /api/memos/{memoId}/pages/{pageNumber}", auth(http.HandlerFunc(handler.GetPage)))
	mux.Handle("PUT /api/memos/{memoId}/pages/{pageNumber}", auth(http.HandlerFunc(handler.UpdatePage)))
	mux.Handle("DELETE /api/memos/{memoId}/pages/{pageNumber}", auth(http.HandlerFunc(handler.DeletePage)))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	return middleware.CORSMiddleware(mux)
}
