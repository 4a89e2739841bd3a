package httpserver

import (
	"net/http"
	"time"
)

// Timeouts sized for the watchlist API: listing alerts with details is
// the slowest endpoint, and it pages, so a minute of write headroom is
// plenty. Idle keep-alive connections from sweep-triggering clients are
// recycled after two minutes.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 2 * time.Minute
)

// New builds the API server with the project's standard timeouts.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
