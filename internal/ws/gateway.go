package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"poker-service/internal/config"
	"poker-service/internal/presence"
	"poker-service/internal/service/poker"
	"poker-service/internal/telemetry"
	pkgAuth "poker-service/pkg/auth"
	"poker-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// hard cap enforced by gorilla itself; frames above MaxFrameBytes but below
// this are rejected by the session so the error frame precedes the close.
const hardReadLimit = 1 << 20

type TokenVerifier interface {
	ParseUserToken(token string) (*pkgAuth.Claims, error)
}

// Presence is the slice of the presence registry the gateway drives.
type Presence interface {
	Attach(sub presence.Subscriber)
	Join(tableID, userID, sessionID string) (presence.TableState, bool, error)
	Leave(tableID, userID string) (presence.TableState, error)
	Snapshot(tableID string) presence.TableState
	Disconnect(sessionID string)
}

// TableReader backs resync with the caller's private view.
type TableReader interface {
	GetTable(ctx context.Context, userID, tableID string) (poker.GetTableResponse, error)
}

type Gateway struct {
	cfg      config.ProtocolConfig
	verifier TokenVerifier
	presence Presence
	tables   TableReader
	upgrader websocket.Upgrader
	routes   map[string]route

	mu       sync.Mutex
	sessions map[string]*session
}

func NewGateway(cfg config.ProtocolConfig, verifier TokenVerifier, reg Presence, tables TableReader) *Gateway {
	if len(cfg.SupportedVersions) == 0 {
		cfg.SupportedVersions = []string{"1.0"}
	}
	if cfg.HeartbeatMs <= 0 {
		cfg.HeartbeatMs = 25000
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 32 * 1024
	}
	if cfg.MaxViolations <= 0 {
		cfg.MaxViolations = 3
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 5 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	g := &Gateway{
		cfg:      cfg,
		verifier: verifier,
		presence: reg,
		tables:   tables,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sessions: make(map[string]*session),
	}
	g.routes = g.buildRoutes()
	return g
}

// Handle upgrades the request. Authentication happens in-band with auth.
func (g *Gateway) Handle(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("Failed to upgrade websocket", zap.Error(err))
		return
	}
	s := g.newSession(conn)
	g.mu.Lock()
	g.sessions[s.id] = s
	g.mu.Unlock()
	g.presence.Attach(s)
	telemetry.M().WSConnections.Add(context.Background(), 1)

	logger.Log.Info("New WebSocket connection",
		zap.String("sessionId", s.id),
		zap.String("remote", c.ClientIP()),
	)
	s.run()
}

func (g *Gateway) newSession(conn *websocket.Conn) *session {
	limit := int64(hardReadLimit)
	if g.cfg.MaxFrameBytes*2 > limit {
		limit = g.cfg.MaxFrameBytes * 2
	}
	conn.SetReadLimit(limit)
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:     uuid.NewString(),
		gw:     g,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, g.cfg.SendBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (g *Gateway) detach(s *session) {
	g.mu.Lock()
	delete(g.sessions, s.id)
	g.mu.Unlock()
}

// Shutdown closes every live session with 1001.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	live := make([]*session, 0, len(g.sessions))
	for _, s := range g.sessions {
		live = append(live, s)
	}
	g.mu.Unlock()
	for _, s := range live {
		s.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}

// Sessions reports the number of live connections.
func (g *Gateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *Gateway) heartbeat() time.Duration {
	return g.cfg.HeartbeatInterval()
}

// a peer that answers neither pings nor sends frames for two heartbeats is gone
func (g *Gateway) readTimeout() time.Duration {
	return 2*g.heartbeat() + g.cfg.WriteWait
}

func (g *Gateway) defaultVersion() string {
	return g.cfg.SupportedVersions[0]
}
