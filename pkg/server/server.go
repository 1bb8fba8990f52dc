// Package server is the HTTP transport in front of the usage store: the device
// sync and read API, the operator admin API and the live sync feed.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lkarlslund/tokensync/pkg/config"
	"github.com/lkarlslund/tokensync/pkg/logutil"
	"github.com/lkarlslund/tokensync/pkg/retention"
	"github.com/lkarlslund/tokensync/pkg/telemetry"
	"github.com/lkarlslund/tokensync/pkg/usagedb"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"
)

const (
	requestTimeout       = 30 * time.Second
	shutdownTimeout      = 10 * time.Second
	sessionSweepInterval = 10 * time.Minute
)

// UsageStore is the part of usagedb.Store the handlers use.
type UsageStore interface {
	SaveSnapshot(ctx context.Context, snap telemetry.Snapshot) error
	AccountSummary(ctx context.Context, key string) (usagedb.AccountSummary, error)
	Devices(ctx context.Context, key string) ([]usagedb.Device, error)
	DeleteDevice(ctx context.Context, key, hostname string) (int64, error)
	DeleteAccount(ctx context.Context, key string) error
	SystemStats(ctx context.Context, activeWindow time.Duration) (usagedb.SystemStats, error)
	ListAccounts(ctx context.Context, filter usagedb.AccountListFilter) ([]usagedb.AccountListItem, error)
	AccountDetail(ctx context.Context, key string, hourlyLimit int) (usagedb.AccountDetail, error)
	Export(ctx context.Context, w io.Writer) (int64, error)
	Ping(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
}

type Server struct {
	cfg      config.ServerConfig
	store    UsageStore
	sweeper  *retention.Sweeper
	sessions *SessionStore
	hub      *liveHub
	handler  http.Handler
	now      func() time.Time
}

// NewServer wires the routes. sweeper may be nil, in which case no scheduled
// purge runs and the admin stats omit retention details.
func NewServer(cfg config.ServerConfig, store UsageStore, sweeper *retention.Sweeper) (*Server, error) {
	if store == nil {
		return nil, errors.New("server: nil usage store")
	}
	s := &Server{
		cfg:      cfg,
		store:    store,
		sweeper:  sweeper,
		sessions: NewSessionStore(cfg.SessionTTL()),
		hub:      newLiveHub(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  logutil.StandardLog(log.InfoLevel),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(requestTimeout))
			g.Get("/version", s.handleVersion)
			g.Post("/sync", s.handleSync)
			g.Get("/stats/{key}", s.handleStats)
			g.Get("/devices/{key}", s.handleDevices)
			g.Delete("/device/{key}/{hostname}", s.handleDeleteDevice)
			g.Post("/admin/login", s.handleAdminLogin)
			g.Post("/admin/logout", s.handleAdminLogout)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.requireAdmin)
			admin.Group(func(g chi.Router) {
				g.Use(middleware.Timeout(requestTimeout))
				g.Get("/stats", s.handleAdminStats)
				g.Get("/users", s.handleAdminUsers)
				g.Get("/user/{key}", s.handleAdminUser)
				g.Delete("/user/{key}", s.handleAdminDeleteUser)
			})
			// Streaming endpoints are not bound by the request timeout.
			admin.Get("/export", s.handleAdminExport)
			admin.Get("/ws", s.handleLive)
		})
	})
	return r
}

func (s *Server) httpServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          logutil.StandardLog(log.WarnLevel),
	}
}

// Run listens on the configured address (or the TLS setup) and serves until
// ctx is done. The retention sweeper and session sweep run alongside.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.TLS.Enabled {
		return s.runWith(ctx, s.serveTLS)
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. It always serves plain HTTP.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	return s.runWith(ctx, func(ctx context.Context) error {
		return s.servePlain(ctx, ln)
	})
}

func (s *Server) runWith(ctx context.Context, serve func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(gctx)
	})
	if s.sweeper != nil {
		g.Go(func() error {
			return s.sweeper.Run(gctx)
		})
	}
	g.Go(func() error {
		s.sweepSessions(gctx)
		return nil
	})
	return g.Wait()
}

func (s *Server) servePlain(ctx context.Context, ln net.Listener) error {
	srv := s.httpServer(ln.Addr().String(), s.handler)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("tokensync listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()
	return s.awaitShutdown(ctx, errCh, srv)
}

func (s *Server) serveTLS(ctx context.Context) error {
	tlsCfg := s.cfg.TLS
	httpsSrv := s.httpServer(tlsCfg.ListenAddr, s.handler)
	httpsSrv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	var servers []*http.Server
	errCh := make(chan error, 2)

	switch tlsCfg.Mode {
	case config.TLSModeLetsEncrypt:
		mgr := &autocert.Manager{
			Cache:      autocert.DirCache(tlsCfg.CacheDir),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(tlsCfg.Domain),
			Email:      tlsCfg.Email,
		}
		httpsSrv.TLSConfig.GetCertificate = mgr.GetCertificate
		challenge := s.httpServer(":80", mgr.HTTPHandler(http.HandlerFunc(redirectHTTPS)))
		servers = append(servers, challenge)
		go func() {
			slog.Info("http challenge/redirect listening", "addr", challenge.Addr)
			errCh <- challenge.ListenAndServe()
		}()
		go func() {
			slog.Info("https listening", "addr", httpsSrv.Addr, "domain", tlsCfg.Domain)
			errCh <- httpsSrv.ListenAndServeTLS("", "")
		}()
	case config.TLSModePEM:
		go func() {
			slog.Info("https listening", "addr", httpsSrv.Addr, "cert", tlsCfg.CertFile)
			errCh <- httpsSrv.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
		}()
	default:
		return fmt.Errorf("unsupported tls mode %q", tlsCfg.Mode)
	}
	servers = append(servers, httpsSrv)
	return s.awaitShutdown(ctx, errCh, servers...)
}

// awaitShutdown returns the first serve error, or shuts the servers down once
// ctx is done.
func (s *Server) awaitShutdown(ctx context.Context, errCh <-chan error, servers ...*http.Server) error {
	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	s.hub.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown", "addr", srv.Addr, "error", err)
		}
	}
	slog.Info("tokensync stopped")
	return serveErr
}

func (s *Server) sweepSessions(ctx context.Context) {
	t := time.NewTicker(sessionSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.sessions.Sweep(s.now()); n > 0 {
				slog.Debug("expired admin sessions removed", "count", n)
			}
		}
	}
}

func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "https://"+r.Host+r.RequestURI, http.StatusMovedPermanently)
}
