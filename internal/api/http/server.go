// Package httpapi — HTTP-интерфейс оператора: здоровье, статус миссии, посадка, метрики.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	app "beacon-pilot/internal/application"
	"beacon-pilot/internal/infrastructure/metrics"
)

// MissionControl — то, что HTTP-интерфейс знает о миссии.
type MissionControl interface {
	Status() app.MissionStatus
	RequestShutdown(reason string)
}

// NewRouter собирает маршруты.
func NewRouter(mission MissionControl) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", Health)
	r.HEAD("/healthz", Health)

	h := &missionHandler{mission: mission}
	r.GET("/status", h.Status)
	r.POST("/land", h.Land)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	return r
}

// Health отвечает на /healthz и запрещает кэширование.
func Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type missionHandler struct {
	mission MissionControl
}

func (h *missionHandler) Status(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, h.mission.Status())
}

// Land запрашивает завершение миссии и посадку.
func (h *missionHandler) Land(c *gin.Context) {
	if !h.mission.Status().Running {
		c.JSON(http.StatusConflict, gin.H{"error": "mission is not running"})
		return
	}
	h.mission.RequestShutdown("landing requested over http from " + c.ClientIP())
	c.JSON(http.StatusAccepted, gin.H{"status": "landing requested"})
}

// Server — HTTP-сервер с остановкой по контексту.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Run обслуживает запросы до отмены ctx.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", s.srv.Addr).Info("http server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logrus.Info("http server stopped")
	return nil
}
