// Package api exposes accounts, chats and messages over HTTP and upgrades websocket connections for the hub.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru"
	"github.com/tcriess/bingo-chat/accounts"
	"github.com/tcriess/bingo-chat/config"
	"github.com/tcriess/bingo-chat/directory"
	"github.com/tcriess/bingo-chat/messagelog"
	"github.com/tcriess/bingo-chat/ws"
)

const defaultUserCacheSize = 1024

// Sessions verifies and revokes bearer tokens.
type Sessions interface {
	Verify(token string) (string, error)
	Revoke(token string) error
}

type Server struct {
	accounts  *accounts.Service
	directory *directory.Directory
	messages  *messagelog.Log
	sessions  Sessions
	hub       *ws.Hub

	// authenticated users by id
	users *lru.Cache

	corsOrigins  []string
	requireToken bool
	upgrader     websocket.Upgrader
}

func NewServer(cfg *config.Config, accountService *accounts.Service, dir *directory.Directory, messages *messagelog.Log, sessions Sessions, hub *ws.Hub) (*Server, error) {
	size := cfg.CacheConfig.UserCacheSize
	if size <= 0 {
		size = defaultUserCacheSize
	}
	users, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	s := &Server{
		accounts:     accountService,
		directory:    dir,
		messages:     messages,
		sessions:     sessions,
		hub:          hub,
		users:        users,
		corsOrigins:  cfg.HTTPConfig.CORSOrigins,
		requireToken: cfg.RealtimeConfig.RequireToken,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(s.corsOrigins, origin)
		},
	}
	return s, nil
}

// Router returns the routes of the server without the outer middlewares.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	router.HandleFunc("/ws", s.websocketHandler).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/user", s.registerHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/user/login", s.loginHandler).Methods(http.MethodPost)

	authRouter := apiRouter.PathPrefix("").Subrouter()
	authRouter.Use(s.authMiddleware)
	authRouter.HandleFunc("/user", s.searchUsersHandler).Methods(http.MethodGet)
	authRouter.HandleFunc("/user/logout", s.logoutHandler).Methods(http.MethodPost)
	authRouter.HandleFunc("/user/password", s.changePasswordHandler).Methods(http.MethodPut)

	authRouter.HandleFunc("/chat", s.accessChatHandler).Methods(http.MethodPost)
	authRouter.HandleFunc("/chat", s.fetchChatsHandler).Methods(http.MethodGet)
	authRouter.HandleFunc("/chat/group", s.createGroupHandler).Methods(http.MethodPost)
	authRouter.HandleFunc("/chat/rename", s.renameGroupHandler).Methods(http.MethodPut)
	authRouter.HandleFunc("/chat/groupadd", s.addToGroupHandler).Methods(http.MethodPut)
	authRouter.HandleFunc("/chat/groupremove", s.removeFromGroupHandler).Methods(http.MethodPut)
	authRouter.HandleFunc("/chat/leave", s.leaveGroupHandler).Methods(http.MethodPut)

	authRouter.HandleFunc("/message", s.sendMessageHandler).Methods(http.MethodPost)
	authRouter.HandleFunc("/message/{chatId}", s.allMessagesHandler).Methods(http.MethodGet)
	return router
}

// Handler returns the complete HTTP handler, including CORS and the access log.
func (s *Server) Handler() http.Handler {
	return loggingMiddleware(corsMiddleware(s.corsOrigins)(s.Router()))
}
