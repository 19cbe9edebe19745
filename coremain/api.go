package coremain

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/pmkol/sharedlru/pkg/kv"
	"github.com/pmkol/sharedlru/pkg/lru_cache"
	"github.com/pmkol/sharedlru/pkg/utils"
)

const maxValueSize = 1 << 20

type pinger interface {
	Ping(ctx context.Context) error
}

type apiHandler struct {
	c      *lru_cache.Cache
	b      kv.Backend
	logger *zap.Logger
}

func registerAPI(mux *http.ServeMux, c *lru_cache.Cache, b kv.Backend, lg *zap.Logger) {
	h := &apiHandler{c: c, b: b, logger: lg}
	mux.HandleFunc("GET /cache/{key}", h.get)
	mux.HandleFunc("PUT /cache/{key}", h.put)
	mux.HandleFunc("DELETE /cache/{key}", h.remove)
	mux.HandleFunc("DELETE /cache", h.clear)
	mux.HandleFunc("POST /capacity", h.setCapacity)
	mux.HandleFunc("GET /healthz", h.health)
}

func (h *apiHandler) get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var v string
	var ok bool
	if len(r.URL.Query().Get("peek")) > 0 {
		v, ok = h.c.Peek(key)
	} else {
		var err error
		v, ok, err = h.c.Get(r.Context(), key)
		if err != nil {
			h.writeErr(w, err)
			return
		}
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	io.WriteString(w, v)
}

func (h *apiHandler) put(w http.ResponseWriter, r *http.Request) {
	var ttl int
	if s := r.URL.Query().Get("ttl"); len(s) > 0 {
		var err error
		if ttl, err = strconv.Atoi(s); err != nil || ttl < 0 {
			http.Error(w, "invalid ttl", http.StatusBadRequest)
			return
		}
	}
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxValueSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	v, err := h.c.Put(r.Context(), r.PathValue("key"), string(b), utils.Seconds(ttl))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	io.WriteString(w, v)
}

func (h *apiHandler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.c.Remove(r.Context(), r.PathValue("key")); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.c.ClearCacheInstance(r.Context()); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) setCapacity(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	if err != nil {
		http.Error(w, "invalid capacity", http.StatusBadRequest)
		return
	}
	if err := h.c.SetCapacity(r.Context(), n); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.b.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.writeErr(w, err)
			return
		}
	}
	io.WriteString(w, "ok")
}

func (h *apiHandler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lru_cache.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, kv.ErrUnavailable), errors.Is(err, lru_cache.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.Warn("api internal error", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
