/******************************************************************************
 *
 *  Description :
 *
 *    Admin HTTP surface: health and Prometheus metrics. This is not the
 *    client wire protocol (that is raw TCP, see session.go) — it is a
 *    small net/http mux bound to ADMIN_ADDR, wrapped in gorilla/handlers
 *    logging and panic-recovery middleware the way the teacher wraps its
 *    own client-facing listener.
 *
 *****************************************************************************/

package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riverline-chat/riverline/server/coordinator"
	"github.com/riverline-chat/riverline/server/store"
)

const healthCheckTimeout = 2 * time.Second

// newAdminMux builds the /healthz and /metrics handlers. coord is probed
// with a cheap Coordinator round trip; Persistence is probed via
// IsOpen() rather than a query, since a pooled connection that answers
// IsOpen is the same liveness signal the teacher's own adapters expose.
func newAdminMux(coord coordinator.Coordinator) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !store.Adapter().IsOpen() {
			http.Error(w, "persistence not open", http.StatusServiceUnavailable)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if _, err := coord.OnlineUserCount(ctx); err != nil {
			http.Error(w, "coordinator unreachable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// serveAdmin runs the admin mux until ctx is cancelled. It never returns
// an error on its own accord — a listener failure is logged and the
// process continues serving client connections, since the admin surface
// is ops tooling, not a dependency of the chat protocol itself.
func serveAdmin(ctx context.Context, addr string, coord coordinator.Coordinator) {
	srv := &http.Server{
		Addr:    addr,
		Handler: handlers.RecoveryHandler()(handlers.CombinedLoggingHandler(log.Writer(), newAdminMux(coord))),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("admin: shutdown: %v", err)
		}
	}()

	log.Printf("admin: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("admin: ListenAndServe: %v", err)
	}
}
