// Package api assembles the HTTP server: the route table, the middleware
// chain and the listener lifecycle.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/config"
	"github.com/latticesocial/lattice/internal/content"
	"github.com/latticesocial/lattice/internal/events"
	"github.com/latticesocial/lattice/internal/exp"
	"github.com/latticesocial/lattice/internal/feed"
	"github.com/latticesocial/lattice/internal/handlers"
	"github.com/latticesocial/lattice/internal/httputil"
	"github.com/latticesocial/lattice/internal/identity"
	"github.com/latticesocial/lattice/internal/metrics"
	"github.com/latticesocial/lattice/internal/middleware"
	"github.com/latticesocial/lattice/internal/spam"
	"github.com/latticesocial/lattice/internal/store"
)

// Deps carries everything the route table consumes.
type Deps struct {
	Store    *store.Store
	Identity *identity.Service
	Content  *content.Service
	Feed     *feed.Service
	Reports  *spam.ReportService
	EXP      *exp.Service
	Auth     *middleware.Authenticator
	Stream   *events.Stream
	Metrics  *metrics.Metrics
}

// Server is the HTTP front of the system.
type Server struct {
	http *http.Server
	log  *logrus.Entry
}

// New wires the router and the listener. Timeouts come from configuration;
// the websocket route survives them because the upgrade hijacks the
// connection out of the server's control.
func New(cfg *config.Config, d Deps, log *logrus.Entry) *Server {
	s := &Server{log: log}
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router(d, log),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) router(d Deps, log *logrus.Entry) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Instrument(d.Metrics, log))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, log, apperr.New(apperr.CodeNotFound, "route not found"))
	})

	required := d.Auth.Require
	optional := d.Auth.Optional

	// Operational surface.
	r.Handle("/health", handlers.Health(d.Store, log)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/ws/events", d.Stream).Methods(http.MethodGet)

	// Agents and the social graph.
	r.Handle("/agents", handlers.RegisterAgent(d.Identity, log)).Methods(http.MethodPost)
	r.Handle("/agents/{did}", handlers.GetAgent(d.Identity, log)).Methods(http.MethodGet)
	r.Handle("/agents/{did}/pubkey", handlers.GetAgentPublicKey(d.Identity, log)).Methods(http.MethodGet)
	r.Handle("/agents/{did}/attestation", handlers.GetAgentAttestation(d.Identity, log)).Methods(http.MethodGet)
	r.Handle("/agents/{did}/follow", required(handlers.FollowAgent(d.Identity, log))).Methods(http.MethodPost)
	r.Handle("/agents/{did}/follow", required(handlers.UnfollowAgent(d.Identity, log))).Methods(http.MethodDelete)
	r.Handle("/agents/{did}/followers", handlers.ListFollowers(d.Identity, log)).Methods(http.MethodGet)
	r.Handle("/agents/{did}/following", handlers.ListFollowing(d.Identity, log)).Methods(http.MethodGet)
	r.Handle("/attestations", required(handlers.CreateAttestation(d.Identity, log))).Methods(http.MethodPost)

	// Content.
	r.Handle("/posts", required(handlers.CreatePost(d.Content, log))).Methods(http.MethodPost)
	r.Handle("/posts/{id}", handlers.GetPost(d.Content, log)).Methods(http.MethodGet)
	r.Handle("/posts/{id}", required(handlers.EditPost(d.Content, log))).Methods(http.MethodPatch)
	r.Handle("/posts/{id}", required(handlers.DeletePost(d.Content, log))).Methods(http.MethodDelete)
	r.Handle("/posts/{id}/replies", handlers.ListReplies(d.Feed, log)).Methods(http.MethodGet)
	r.Handle("/posts/{id}/votes", required(handlers.CastVote(d.Content, log))).Methods(http.MethodPost)
	r.Handle("/reports", required(handlers.CreateReport(d.Reports, log))).Methods(http.MethodPost)

	// Feeds.
	r.Handle("/feed", optional(handlers.Feed(d.Feed, log))).Methods(http.MethodGet)
	r.Handle("/feed/home", required(handlers.HomeFeed(d.Feed, log))).Methods(http.MethodGet)
	r.Handle("/feed/discover", handlers.DiscoverFeed(d.Feed, log)).Methods(http.MethodGet)
	r.Handle("/feed/hot", handlers.HotFeed(d.Feed, log)).Methods(http.MethodGet)

	// Ledger and topics.
	r.Handle("/exp/{did}", handlers.GetBalance(d.EXP, log)).Methods(http.MethodGet)
	r.Handle("/exp/{did}/history", handlers.GetHistory(d.EXP, log)).Methods(http.MethodGet)
	r.Handle("/topics/trending", handlers.TrendingTopics(d.Store, log)).Methods(http.MethodGet)
	r.Handle("/topics/search", handlers.SearchTopics(d.Store, log)).Methods(http.MethodGet)

	return r
}

// Start blocks serving requests until Shutdown or a listener failure.
func (s *Server) Start() error {
	s.log.WithField("addr", s.http.Addr).Info("http server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the composed router; tests drive it directly.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
