package slotd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/msgslot/internal/auth"
	"github.com/danmuck/msgslot/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// Route groups label admin traffic in logs and metrics.
const (
	groupProbe     = "probe"
	groupInventory = "inventory"
	groupUnrouted  = "unrouted"

	groupKey = "slotd.route_group"
)

// Admin is the read-only HTTP surface of a Service.
type Admin struct {
	svc    *Service
	router *gin.Engine
}

func NewAdmin(svc *Service) *Admin {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	a := &Admin{svc: svc, router: r}
	r.Use(a.observeRequests())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(svc.cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a.RegisterRoutes()
	return a
}

func (a *Admin) HTTPRouter() *gin.Engine {
	return a.router
}

func (a *Admin) RegisterRoutes() {
	probe := a.router.Group("/", tagGroup(groupProbe))
	probe.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.svc.started).String(),
			"service": a.svc.cfg.Name,
			"version": version,
		})
	})

	probe.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !a.svc.Ready() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   a.svc.Ready(),
			"uptime":  time.Since(a.svc.started).String(),
			"service": a.svc.cfg.Name,
			"version": version,
		})
	})

	probe.GET("/metrics", gin.WrapH(promhttp.Handler()))

	private := a.router.Group("/", tagGroup(groupInventory))
	if a.svc.cfg.AdminToken != "" {
		private.Use(auth.RequireBearer(auth.StaticToken{Token: a.svc.cfg.AdminToken}))
	}

	private.GET("/devices", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"major":   a.svc.dev.Major(),
			"devices": a.svc.devices.List(),
		})
	})

	private.GET("/slots", func(c *gin.Context) {
		slots, channels := a.svc.dev.Registry().Counts()
		c.JSON(http.StatusOK, gin.H{
			"slots":      a.svc.dev.Registry().Snapshot(),
			"slot_count": slots,
			"channels":   channels,
			"open_files": a.svc.dev.OpenFiles(),
		})
	})
}

// Serve runs the admin surface on ln until ctx is done.
func (a *Admin) Serve(ctx context.Context, ln net.Listener) error {
	log.Info().Str("addr", ln.Addr().String()).Msg("slotd admin listening")
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	err := a.router.RunListener(ln)
	if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func tagGroup(group string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(groupKey, group)
		c.Next()
	}
}

// observeRequests logs and counts each admin request with the device state
// it observed on completion.
func (a *Admin) observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		group := c.GetString(groupKey)
		if group == "" {
			group = groupUnrouted
		}
		observability.RecordHTTPRequest(a.svc.cfg.Name, group, c.Request.Method, path, status, elapsed)

		// Probes are polled constantly; keep them below the default level.
		event := log.Debug()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		case group == groupInventory:
			event = log.Info()
		}
		slots, channels := a.svc.dev.Registry().Counts()
		event.
			Str("group", group).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Int64("open_files", a.svc.dev.OpenFiles()).
			Int("slot_count", slots).
			Int("channels", channels).
			Int64("active_clients", a.svc.sessionClientCount.Load()).
			Msg("slotd admin request")
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
