// Command gateway-bridge is the gateway's process entrypoint: it wires
// environment configuration into a single session and serves it over
// a TCP listener (the classic textual transport) and a WebSocket
// listener (browser-reachable, same wire grammar) side by side.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helixml/deskgate/pkg/gwconfig"
	"github.com/helixml/deskgate/pkg/gwlog"
	"github.com/helixml/deskgate/pkg/gwmetrics"
	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/session"
)

func main() {
	logger := gwlog.New(os.Stdout, "gateway-bridge")
	logger.Info("starting gateway-bridge")

	cfg := gwconfig.FromEnv()

	sess := session.New("session-1", "conn-1", 1024, 768,
		time.Duration(cfg.PromotionIntervalMS)*time.Millisecond)
	sess.SetArgs([]string{"width", "height", "dpi"})

	registry := prometheus.NewRegistry()
	metrics := gwmetrics.NewRecorder(registry)
	sess.SetMetrics(metrics)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup

	sess.RunPendingLoop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runTCPListener(ctx, cfg.TCPAddr, cfg.RecordingDir, sess, logger)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runWSListener(ctx, cfg.WSAddr, cfg.RecordingDir, sess, logger)
	}()

	if cfg.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runMetricsServer(ctx, cfg.MetricsAddr, registry, logger)
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
	sess.Stop()
	sess.Wait()
	wg.Wait()
}

func runTCPListener(ctx context.Context, addr, recordingDir string, sess *session.Client, logger gwlog.Logger) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("tcp listen failed", "addr", addr, "err", err.Error())
		return
	}
	defer ln.Close()
	logger.Info("tcp listener started", "addr", addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("tcp accept failed", "err", err.Error())
			continue
		}
		sock := wrapRecording(gwsocket.NewConn(conn), recordingDir, logger)
		go serveConnection(sess, sock, conn, false, logger)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func runWSListener(ctx context.Context, addr, recordingDir string, sess *session.Client, logger gwlog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "err", err.Error())
			return
		}
		sock := wrapRecording(gwsocket.NewWSConn(conn), recordingDir, logger)
		go serveConnection(sess, sock, &wsMessageReader{conn: conn}, false, logger)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("websocket listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("websocket listener failed", "err", err.Error())
	}
}

func runMetricsServer(ctx context.Context, addr string, registry *prometheus.Registry, logger gwlog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "err", err.Error())
	}
}
