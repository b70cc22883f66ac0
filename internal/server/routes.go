package server

import (
	"net/http"
	"time"

	"github.com/danmuck/cardtable/internal/observability"
	"github.com/danmuck/cardtable/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type adminPlayer struct {
	protocol.PlayerInfo
	OfflineSince *time.Time `json:"offline_since,omitempty"`
}

// AdminRouter builds the read-only admin HTTP surface.
func (s *Service) AdminRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		gin.Recovery(),
		observability.RequestLogger(observability.ComponentLogger(s.cfg.NodeName, "admin")),
		observability.RequestMetricsMiddleware(s.cfg.NodeName),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.started).String(),
			"component": s.cfg.NodeName,
			"clients":   s.clients.Load(),
			"phase":     s.engine.Phase().String(),
		})
	})

	r.GET("/players", func(c *gin.Context) {
		players, err := s.reg.Snapshot()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		out := make([]adminPlayer, 0, len(players))
		for _, p := range players {
			ap := adminPlayer{PlayerInfo: p.Info()}
			if !p.OfflineSince.IsZero() {
				since := p.OfflineSince
				ap.OfflineSince = &since
			}
			out = append(out, ap)
		}
		c.JSON(http.StatusOK, gin.H{"players": out})
	})

	r.GET("/game", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.engine.State())
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
