package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/han-fei/redismon/agent/internal/models"
	"github.com/han-fei/redismon/internal/utils"
)

// Dashboard HTTP 输出端：最新快照、错误统计、Prometheus 指标和 WebSocket 推送
type Dashboard struct {
	addr     string
	router   *mux.Router
	hub      *Hub
	registry *prometheus.Registry
	metrics  *snapshotMetrics
	errors   *utils.ErrorHandler

	mu     sync.RWMutex
	latest *models.Snapshot
}

// NewDashboard 创建仪表盘，errs 可以为 nil
func NewDashboard(addr string, bufferSize int, errs *utils.ErrorHandler) *Dashboard {
	registry := prometheus.NewRegistry()
	d := &Dashboard{
		addr:     addr,
		router:   mux.NewRouter(),
		hub:      NewHub(bufferSize),
		registry: registry,
		metrics:  newSnapshotMetrics(registry),
		errors:   errs,
	}
	d.setupRoutes()
	return d
}

func (d *Dashboard) setupRoutes() {
	d.router.HandleFunc("/healthz", d.handleHealth).Methods("GET")
	d.router.HandleFunc("/api/snapshot", d.handleSnapshot).Methods("GET")
	d.router.HandleFunc("/api/errors", d.handleErrors).Methods("GET")
	d.router.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})).Methods("GET")
	d.router.HandleFunc("/ws", d.hub.HandleWebSocket)
}

// Handler 返回 HTTP 处理器
func (d *Dashboard) Handler() http.Handler {
	return d.router
}

// Hub 返回 WebSocket Hub
func (d *Dashboard) Hub() *Hub {
	return d.hub
}

// Accept 实现 Sink
func (d *Dashboard) Accept(_ context.Context, snap *models.Snapshot) error {
	d.mu.Lock()
	d.latest = snap
	d.mu.Unlock()

	d.metrics.observe(snap)

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	d.hub.Broadcast(data)
	return nil
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消
func (d *Dashboard) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              d.addr,
		Handler:           d.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go d.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Infof("仪表盘服务启动: %s", d.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	}
}

func (d *Dashboard) handleHealth(w http.ResponseWriter, r *http.Request) {
	d.mu.RLock()
	latest := d.latest
	d.mu.RUnlock()

	status := map[string]interface{}{"status": "starting"}
	if latest != nil {
		status["status"] = latest.Status
		status["alive"] = latest.Alive
		status["timestamp"] = latest.Timestamp
	}
	writeJSON(w, http.StatusOK, status)
}

func (d *Dashboard) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	d.mu.RLock()
	latest := d.latest
	d.mu.RUnlock()

	if latest == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (d *Dashboard) handleErrors(w http.ResponseWriter, r *http.Request) {
	details := []utils.ErrorDetail{}
	byKind := map[utils.Kind]int{}
	if d.errors != nil {
		details = d.errors.GetErrors()
		byKind = d.errors.CountByKind()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"errors":  details,
		"by_kind": byKind,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("写入响应失败")
	}
}
