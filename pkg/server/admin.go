package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lkarlslund/tokensync/pkg/retention"
	"github.com/lkarlslund/tokensync/pkg/usagedb"
)

type loginRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if !adminKeyMatches(req.Key, s.cfg.AdminKey) {
		slog.Warn("admin login rejected", "remote", remoteHost(r))
		writeError(w, http.StatusUnauthorized, "Invalid admin key", "")
		return
	}
	token, err := s.sessions.Create(s.now())
	if err != nil {
		writeStoreError(w, r, err, http.StatusBadRequest)
		return
	}
	http.SetCookie(w, sessionCookie(r, token, s.sessions.TTL()))
	slog.Info("admin login", "remote", remoteHost(r))
	writeJSON(w, http.StatusOK, apiResponse{Status: "success"})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(adminSessionCookie); err == nil {
		s.sessions.Revoke(c.Value)
	}
	http.SetCookie(w, sessionCookie(r, "", 0))
	writeJSON(w, http.StatusOK, apiResponse{Status: "success"})
}

type retentionStatus struct {
	Days     int               `json:"days"`
	Schedule string            `json:"schedule"`
	NextRun  time.Time         `json:"nextRun"`
	LastRun  *retention.Result `json:"lastRun,omitempty"`
}

type adminStatsResponse struct {
	usagedb.SystemStats
	LiveClients int              `json:"liveClients"`
	Retention   *retentionStatus `json:"retention,omitempty"`
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.SystemStats(r.Context(), s.cfg.ActiveWindow())
	if err != nil {
		writeStoreError(w, r, err, http.StatusBadRequest)
		return
	}
	out := adminStatsResponse{SystemStats: stats, LiveClients: s.hub.count()}
	if s.sweeper != nil {
		settings := s.sweeper.Settings()
		rs := &retentionStatus{
			Days:     settings.Days,
			Schedule: settings.Schedule,
			NextRun:  s.sweeper.Next(s.now()),
		}
		if last, ok := s.sweeper.Last(); ok {
			rs.LastRun = &last
		}
		out.Retention = rs
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err.Error())
		return
	}
	offset, err := queryInt(q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid offset", err.Error())
		return
	}
	filter := usagedb.AccountListFilter{Search: q.Get("search"), Limit: limit, Offset: offset}.Normalized()
	users, err := s.store.ListAccounts(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":  users,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", v)
	}
	if n < 0 {
		return 0, fmt.Errorf("must be >= 0, got %d", n)
	}
	return n, nil
}

func (s *Server) handleAdminUser(w http.ResponseWriter, r *http.Request) {
	detail, err := s.store.AccountDetail(r.Context(), chi.URLParam(r, "key"), 0)
	if err != nil {
		writeStoreError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.store.DeleteAccount(r.Context(), key); err != nil {
		writeStoreError(w, r, err, http.StatusBadRequest)
		return
	}
	writeSuccess(w, "Account removed", nil)
}

func (s *Server) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("tokensync-%s.jsonl.zst", s.now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	n, err := s.store.Export(r.Context(), w)
	if err != nil {
		// Headers are already sent; the truncated stream fails zstd decoding.
		slog.Error("admin export failed", "rows", n, "error", err)
		return
	}
	slog.Info("admin export", "rows", n, "remote", remoteHost(r))
}
