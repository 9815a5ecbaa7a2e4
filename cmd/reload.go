package cmd

import (
	"net/http"
	"sync"
)

// reloadableHandler lets the serve loop swap the whole handler chain while
// connections are being accepted. net/http reads Server.Handler from every
// connection goroutine, so the handler itself must never be reassigned;
// requests instead go through this stable indirection.
type reloadableHandler struct {
	mu sync.RWMutex
	h  http.Handler
}

func newReloadableHandler(h http.Handler) *reloadableHandler {
	return &reloadableHandler{h: h}
}

func (rh *reloadableHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rh.mu.RLock()
	h := rh.h
	rh.mu.RUnlock()
	h.ServeHTTP(w, r)
}

// Swap installs a new handler chain. In-flight requests keep the chain they
// started with.
func (rh *reloadableHandler) Swap(h http.Handler) {
	rh.mu.Lock()
	rh.h = h
	rh.mu.Unlock()
}
