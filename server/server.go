package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/liarsbar/apperr"
	"github.com/wfunc/liarsbar/broadcast"
	"github.com/wfunc/liarsbar/config"
	"github.com/wfunc/liarsbar/logger"
	"github.com/wfunc/liarsbar/models"
	"github.com/wfunc/liarsbar/monitor"
	"github.com/wfunc/liarsbar/network"
	gamerpc "github.com/wfunc/liarsbar/rpc"
	"github.com/wfunc/liarsbar/services"
	"github.com/wfunc/liarsbar/session"
)

// heartbeatInterval 客户端需在两个间隔内至少发送一个包
const heartbeatInterval = 30 * time.Second

type GameServer struct {
	cfg            config.ServerConfig
	upgrader       websocket.Upgrader
	router         *gin.Engine
	sessionManager *session.Manager
	games          *services.GameService
	broadcaster    *broadcast.Broadcaster
	monitor        *monitor.Monitor
	heartbeat      time.Duration
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

func NewGameServer(cfg config.ServerConfig, games *services.GameService, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		sessionManager: session.NewManager(),
		games:          games,
		monitor:        mon,
		heartbeat:      heartbeatInterval,
		shutdownChan:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.broadcaster = broadcast.NewBroadcaster(s.sessionManager)
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler serving /ws, the REST API and /metrics.
func (s *GameServer) Handler() http.Handler {
	return s.router
}

func (s *GameServer) allowAllOrigins() bool {
	return len(s.cfg.AllowedOrigins) == 0 || slices.Contains(s.cfg.AllowedOrigins, "*")
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.allowAllOrigins() || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *GameServer) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if s.allowAllOrigins() {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/ws", func(c *gin.Context) {
		s.handleWebSocket(c.Writer, c.Request)
	})
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.monitor.Handler()))

	api := r.Group("/api")
	api.GET("/rooms", s.handleListRooms)
	api.GET("/rooms/:id", s.handleGetRoom)
	return r
}

// Start serves HTTP and the admin RPC listener until ctx ends or one of them
// fails, then shuts both down.
func (s *GameServer) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var rpcServer *gamerpc.Server
	if s.cfg.RPCAddress != "" {
		var err error
		rpcServer, err = gamerpc.NewServer(s.cfg.RPCAddress)
		if err != nil {
			return err
		}
		if err := rpcServer.Register(gamerpc.NewAdminService(s.games)); err != nil {
			rpcServer.Stop()
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log.Infof("Game server listening on %s", s.cfg.HTTPAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if rpcServer != nil {
		g.Go(rpcServer.Start)
	}
	g.Go(func() error {
		<-ctx.Done()
		logger.Log.Info("Shutting down game server")
		if rpcServer != nil {
			rpcServer.Stop()
		}
		s.Shutdown()

		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown closes every websocket connection. Hijacked connections are not
// tracked by http.Server.
func (s *GameServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		for _, sess := range s.sessionManager.All() {
			sess.Close()
		}
	})
}

func (s *GameServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"rooms":    len(s.games.ListRooms()),
		"sessions": s.sessionManager.Count(),
	})
}

func (s *GameServer) handleListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, network.RoomsData{Rooms: s.games.ListRooms()})
}

func (s *GameServer) handleGetRoom(c *gin.Context) {
	r, err := s.games.GetRoom(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), network.Fail("", err))
		return
	}
	c.JSON(http.StatusOK, network.RoomData{Room: models.NewRoomView(r, "")})
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindRoomNotFound, apperr.KindPlayerNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
