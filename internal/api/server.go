// Package api serves the HTTP command and status interface of the daemon.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/bbernstein/lacylights-dmx/internal/database/models"
	"github.com/bbernstein/lacylights-dmx/internal/logger"
	"github.com/bbernstein/lacylights-dmx/internal/services/command"
	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
	"github.com/bbernstein/lacylights-dmx/internal/services/network"
	"github.com/bbernstein/lacylights-dmx/internal/services/patch"
	"github.com/bbernstein/lacylights-dmx/internal/services/pubsub"
	"github.com/bbernstein/lacylights-dmx/internal/services/serialport"
)

// Engine is the part of *dmx.Engine the API drives.
type Engine interface {
	Config() dmx.Config
	State() dmx.State
	Stats() dmx.Stats
	Snapshot(dst []byte) int
	Registrations() []dmx.Registration
	Start() error
	Stop() error
}

// Commander applies fixture commands. *command.Dispatcher satisfies it.
type Commander interface {
	Dispatch(name string, cmd command.Command) error
	Broadcast(cmd command.Command) ([]string, error)
}

// IdleWatch is the part of *idlewatch.Watch the API reads and tunes.
type IdleWatch interface {
	Duration() time.Duration
	SetDuration(d time.Duration)
	Idle() bool
}

// Settings persists operator settings. *repositories.SettingRepository satisfies it.
type Settings interface {
	Upsert(ctx context.Context, key, value string) (*models.Setting, error)
}

// Deps are the collaborators behind the routes. Bus, Settings and Patch may be nil.
type Deps struct {
	Engine   Engine
	Commands Commander
	Idle     IdleWatch
	Settings Settings
	Patch    patch.Store
	Bus      *pubsub.PubSub
	Log      *logger.Log

	Version    string
	CORSOrigin string
	Debug      bool

	// Interfaces and SerialPorts default to network.List and serialport.Ports.
	Interfaces  func() ([]network.Interface, error)
	SerialPorts func() ([]string, error)
}

// Server holds the HTTP handlers.
type Server struct {
	deps    Deps
	log     *logger.Log
	started time.Time
}

// New creates a Server.
func New(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = logger.Discard()
	}
	if deps.Interfaces == nil {
		deps.Interfaces = network.List
	}
	if deps.SerialPorts == nil {
		deps.SerialPorts = serialport.Ports
	}
	return &Server{
		deps:    deps,
		log:     deps.Log.Module("api"),
		started: time.Now(),
	}
}

// Router builds the chi router with middleware and routes.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	origins := []string{"http://localhost:3000", "http://localhost:4000"}
	if s.deps.CORSOrigin != "" {
		origins = append(origins, s.deps.CORSOrigin)
	}
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		Debug:            s.deps.Debug,
	})
	router.Use(corsMiddleware.Handler)

	router.Get("/health", s.health)
	router.Get("/ws/stats", s.streamStats)

	// Websocket connections outlive any request timeout.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/fixtures", s.listFixtures)
		r.Post("/fixtures/commands", s.broadcastCommand)
		r.Post("/fixtures/{name}/commands", s.fixtureCommand)

		r.Get("/stats", s.stats)
		r.Get("/universe", s.universe)

		r.Post("/engine/start", s.startEngine)
		r.Post("/engine/stop", s.stopEngine)

		r.Get("/settings/idle-shutdown", s.getIdleShutdown)
		r.Put("/settings/idle-shutdown", s.putIdleShutdown)

		r.Get("/patch", s.exportPatch)
		r.Get("/network/interfaces", s.networkInterfaces)
		r.Get("/serial/ports", s.serialPorts)
	})

	return router
}
