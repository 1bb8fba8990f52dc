package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lkarlslund/tokensync/pkg/telemetry"
	"github.com/lkarlslund/tokensync/pkg/usagedb"
	"github.com/lkarlslund/tokensync/pkg/version"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{
		Status:  "healthy",
		Message: "tokensync server is running",
		Data: map[string]any{
			"version":   version.Current().Version,
			"timestamp": s.now().Format(time.RFC3339),
		},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	info := version.Current()
	if schema, err := s.store.SchemaVersion(r.Context()); err == nil {
		info = info.WithSchema(schema)
	} else {
		slog.Warn("read schema version", "error", err)
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var raw telemetry.RawSnapshot
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeDecodeError(w, err)
		return
	}
	snap, err := telemetry.Validate(raw)
	if err != nil {
		writeStoreError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	if err := s.store.SaveSnapshot(r.Context(), snap); err != nil {
		writeStoreError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	s.hub.publish(SyncEvent{
		Type:          "sync",
		AccountPrefix: accountPrefix(snap.AccountKey),
		Hostname:      snap.Hostname,
		TotalTokens:   snap.Usage.TotalTokens,
		Timestamp:     snap.Timestamp,
		ReceivedAt:    s.now(),
	})
	writeSuccess(w, fmt.Sprintf("Data synced successfully for %s", snap.Hostname), map[string]any{
		"hostname":  snap.Hostname,
		"tokens":    snap.Usage.TotalTokens,
		"timestamp": snap.Timestamp.Format(time.RFC3339Nano),
	})
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", fmt.Sprintf("limit is %d bytes", tooLarge.Limit))
	case errors.As(err, &typeErr):
		writeError(w, http.StatusUnprocessableEntity, "Invalid "+typeErr.Field, fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value))
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "Invalid JSON", "empty body")
	default:
		writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sum, err := s.store.AccountSummary(r.Context(), key)
	if err != nil {
		writeStoreError(w, r, err, http.StatusBadRequest)
		return
	}
	if len(sum.Devices) == 0 {
		writeStoreError(w, r, &usagedb.NotFoundError{AccountKey: key}, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.Devices(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeStoreError(w, r, err, http.StatusBadRequest)
		return
	}
	writeSuccess(w, "", map[string]any{"devices": devices})
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	hostname, err := pathParam(r, "hostname")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hostname", err.Error())
		return
	}
	n, err := s.store.DeleteDevice(r.Context(), chi.URLParam(r, "key"), hostname)
	if err != nil {
		writeStoreError(w, r, err, http.StatusBadRequest)
		return
	}
	writeSuccess(w, fmt.Sprintf("Device %s removed", hostname), map[string]any{"snapshots": n})
}

// pathParam returns a decoded URL parameter. chi matches on RawPath when the
// request carried escapes that Path cannot represent, and on the already
// decoded Path otherwise.
func pathParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

func accountPrefix(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
