package ops

import (
	"context"
	"expvar"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/replicate"
	"github.com/betbot/copybot/internal/store"
	"github.com/betbot/copybot/pkg/config"
	"github.com/betbot/copybot/pkg/logger"
)

// Server 运维 HTTP 接口
// 只监听本机地址，不做鉴权，不对外暴露
type Server struct {
	cfg         config.OpsConfig
	coordinator *replicate.Coordinator
	history     *store.HistoryStore

	srv *http.Server
	log *logrus.Entry
}

func New(cfg config.OpsConfig, coordinator *replicate.Coordinator, history *store.HistoryStore) *Server {
	return &Server{
		cfg:         cfg,
		coordinator: coordinator,
		history:     history,
		log:         logger.WithField("component", "ops"),
	}
}

// Start 启动监听，失败不影响主流程
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.router(),
	}

	go func() {
		s.log.Infof("运维接口监听 %s", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("运维接口退出: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)

	traders := api.Group("/traders")
	traders.GET("", s.handleTradersList)
	traders.POST("", s.handleTraderAdd)
	traders.DELETE("/:address", s.handleTraderRemove)

	api.GET("/fills", s.handleFills)
	api.GET("/report", s.handleReport)

	return r
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"traders": s.coordinator.Status()})
}

func (s *Server) handleTradersList(c *gin.Context) {
	statuses := s.coordinator.Status()
	c.JSON(http.StatusOK, gin.H{"traders": statuses, "count": len(statuses)})
}

func (s *Server) handleTraderAdd(c *gin.Context) {
	var tc domain.TraderConfig
	if err := c.ShouldBindJSON(&tc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.coordinator.AddTrader(tc); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	s.log.Infof("新增交易员 %s", tc.Address)
	c.JSON(http.StatusCreated, gin.H{"address": tc.Address})
}

func (s *Server) handleTraderRemove(c *gin.Context) {
	address := c.Param("address")
	if !s.coordinator.RemoveTrader(address) {
		c.JSON(http.StatusNotFound, gin.H{"error": "trader not found: " + address})
		return
	}
	s.log.Infof("移除交易员 %s", address)
	c.JSON(http.StatusOK, gin.H{"address": address})
}

func (s *Server) handleFills(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "历史存储未启用"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	fills, err := s.history.RecentFills(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fills": fills, "count": len(fills)})
}

func (s *Server) handleReport(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "历史存储未启用"})
		return
	}

	// 默认统计最近 7 天
	since := time.Now().AddDate(0, 0, -7)
	if raw := c.Query("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			since = time.Now().AddDate(0, 0, -n)
		}
	}

	reports, err := s.history.Report(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "traders": reports})
}
