// Command agencyd runs one cloud-mediator agency process: it loads
// configuration, boots the actor graph, and exposes the single public
// HTTP endpoint a counterparty agency or client posts wire messages to.
package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/vault-mesh/agency/internal/agency"
	"github.com/vault-mesh/agency/internal/config"
)

func main() {
	configName := flag.String("config", "agency", "config file name (without extension), searched under ./configs and .")
	flag.Parse()
	defer glog.Flush()

	cfg, err := config.Load(*configName)
	if err != nil {
		glog.Fatalf("agencyd: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := agency.Boot(ctx, cfg)
	if err != nil {
		glog.Fatalf("agencyd: boot: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		out, err := a.HandleIncoming(r.Context(), body)
		if err != nil {
			glog.Warningf("agencyd: handle incoming: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/ssi-agent-wire")
		_, _ = w.Write(out)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		glog.Infof("agencyd: listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("agencyd: listen: %v", err)
		}
	}()

	<-quit
	glog.Info("agencyd: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("agencyd: shutdown: %v", err)
	}
}
