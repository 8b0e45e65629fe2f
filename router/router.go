package router

import (
	"net/http"
	"time"

	"docshare/internal/auth/token"
	docHandler "docshare/internal/document"
	docService "docshare/internal/document/service"
	authHandler "docshare/internal/user"
	userService "docshare/internal/user/service"
	"docshare/middleware"
	"docshare/pkg/metrics"
	"docshare/pkg/respond"
	"docshare/socket"

	"github.com/gorilla/mux"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Users      *userService.UserService
	Documents  *docService.DocumentService
	Tokens     *token.Manager
	Hub        *socket.Hub
	Metrics    *metrics.Registry
	CORSOrigin string
}

func Setup(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(d.Metrics))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]any{"ok": true, "service": "docshare", "time": time.Now().UTC()})
	}).Methods(http.MethodGet)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	auth := middleware.AuthMiddleware(d.Tokens)

	// Public
	authH := authHandler.NewAuthHandler(d.Users)
	api.HandleFunc("/auth/register", authH.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", authH.Login).Methods(http.MethodPost)

	docH := docHandler.NewDocumentHandler(d.Documents)
	api.HandleFunc("/public/{token}", docH.GetPublicDocument).Methods(http.MethodGet)

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())
		socket.ServeWs(d.Hub, d.Documents, w, r, userID)
	})
	api.Handle("/ws", middleware.WebSocketAuthMiddleware(d.Tokens)(wsHandler)).Methods(http.MethodGet)

	// Authenticated REST API
	api.Handle("/me", auth(http.HandlerFunc(authH.Me))).Methods(http.MethodGet)

	docs := api.PathPrefix("/docs").Subrouter()
	docs.Use(auth)
	docs.HandleFunc("", docH.CreateDocument).Methods(http.MethodPost)
	docs.HandleFunc("", docH.GetDocuments).Methods(http.MethodGet)
	docs.HandleFunc("/{id}", docH.GetDocument).Methods(http.MethodGet)
	docs.HandleFunc("/{id}", docH.UpdateDocument).Methods(http.MethodPatch)
	docs.HandleFunc("/{id}", docH.DeleteDocument).Methods(http.MethodDelete)
	docs.HandleFunc("/{id}/share", docH.ShareDocument).Methods(http.MethodPost)
	docs.HandleFunc("/{id}/editors", docH.AddEditor).Methods(http.MethodPost)
	docs.HandleFunc("/{id}/editors/{editorId}", docH.RemoveEditor).Methods(http.MethodDelete)
	docs.HandleFunc("/{id}/lock", docH.LockDocument).Methods(http.MethodPost)
	docs.HandleFunc("/{id}/unlock", docH.UnlockDocument).Methods(http.MethodPost)

	return middleware.CORSMiddleware(d.CORSOrigin)(r)
}
