// Package controlplane exposes a small local HTTP API for inspecting and
// steering workers at runtime. It binds to loopback by default and carries no
// auth; do not expose it publicly.
package controlplane

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "controlplane")

// ManagedWorker 控制面可操作的 worker 视图
type ManagedWorker interface {
	Name() string
	MarketSymbol() string
	Account() string
	Disabled() bool
	Paused() bool

	Pause(ctx context.Context) error
	Resume()
	Purge(ctx context.Context) error
}

type Server struct {
	srv     *http.Server
	workers map[string]ManagedWorker
}

func NewServer(listen string, workers []ManagedWorker) *Server {
	byName := make(map[string]ManagedWorker, len(workers))
	for _, w := range workers {
		byName[w.Name()] = w
	}
	s := &Server{workers: byName}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/workers", s.listWorkers)
	r.POST("/workers/:name/pause", s.pauseWorker)
	r.POST("/workers/:name/resume", s.resumeWorker)
	r.POST("/workers/:name/purge", s.purgeWorker)

	s.srv = &http.Server{Addr: listen, Handler: r}
	return s
}

// Start 在后台启动监听；端口被占等错误直接打日志，不拖垮主进程。
func (s *Server) Start() {
	go func() {
		log.Infof("control plane listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("control plane stopped: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) {
	_ = s.srv.Shutdown(ctx)
}

type workerView struct {
	Name     string `json:"name"`
	Market   string `json:"market"`
	Account  string `json:"account"`
	Paused   bool   `json:"paused"`
	Disabled bool   `json:"disabled"`
}

func (s *Server) listWorkers(c *gin.Context) {
	out := make([]workerView, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, workerView{
			Name:     w.Name(),
			Market:   w.MarketSymbol(),
			Account:  w.Account(),
			Paused:   w.Paused(),
			Disabled: w.Disabled(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"workers": out})
}

func (s *Server) find(c *gin.Context) (ManagedWorker, bool) {
	w, ok := s.workers[c.Param("name")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such worker"})
	}
	return w, ok
}

func (s *Server) pauseWorker(c *gin.Context) {
	w, ok := s.find(c)
	if !ok {
		return
	}
	if err := w.Pause(c.Request.Context()); err != nil {
		log.Errorf("pause %s: %v", w.Name(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (s *Server) resumeWorker(c *gin.Context) {
	w, ok := s.find(c)
	if !ok {
		return
	}
	w.Resume()
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

func (s *Server) purgeWorker(c *gin.Context) {
	w, ok := s.find(c)
	if !ok {
		return
	}
	if err := w.Purge(c.Request.Context()); err != nil {
		log.Errorf("purge %s: %v", w.Name(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "purged"})
}
