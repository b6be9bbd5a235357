package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-overlay/internal/api"
	"github.com/joeblew999/plat-overlay/internal/api/editor"
	"github.com/joeblew999/plat-overlay/internal/config"
	"github.com/joeblew999/plat-overlay/internal/db"
	"github.com/joeblew999/plat-overlay/internal/mapstate"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/session"
	"github.com/joeblew999/plat-overlay/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Path to web/ directory for static files, styles and page templates
	// Domain is the loaded domain configuration. Nil means config.Default().
	Domain *config.Config
	// Extensions are the DuckDB extensions loaded at startup.
	Extensions []string
	Logger     *zap.Logger
}

// Server is the overlay HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	bus      *service.EventBus
	renderer *templates.Renderer
	log      *zap.Logger
}

// New creates a new overlay server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Domain == nil {
		cfg.Domain = config.Default()
	}
	log := cfg.Logger
	domain := cfg.Domain

	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-overlay API", "1.0.0")
	humaConfig.Info.Description = "Map overlay API: shape geometry, data layers, basemap sessions and choropleth presets."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	shapes := service.NewShapeService(cfg.DataDir, domain.SiteURL)
	datalayers := service.NewDataLayerService(cfg.DataDir)
	services := &api.Services{
		Presets:    service.NewPresetService(cfg.DataDir, domain.Presets),
		Shapes:     shapes,
		DataLayers: datalayers,
		Search:     service.NewSearchService(shapes, datalayers),
		Styles:     domain.Styles,
		Simplify:   domain.Simplify,
	}

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		services: services,
		bus:      service.NewEventBus(),
		log:      log,
	}

	conn, err := db.Get(db.Config{
		DataDir:    cfg.DataDir,
		DBName:     "overlay",
		Extensions: cfg.Extensions,
		Logger:     log,
	})
	if err != nil {
		log.Warn("DuckDB unavailable, data layer ranges disabled", zap.Error(err))
	} else {
		values := service.NewValueStore(conn)
		if err := values.Init(context.Background()); err != nil {
			log.Warn("Value store not initialised", zap.Error(err))
		} else {
			services.Values = values
		}
		s.db = conn
	}

	services.Sessions = session.NewManager(session.Options{
		Styles:       domain.Styles,
		StyleLoader:  &mapstate.HTTPLoader{Client: &http.Client{Timeout: 30 * time.Second}, Dir: cfg.WebDir},
		Fetcher:      s.fetcher(),
		Prefix:       domain.CustomSourcePrefix,
		Transparency: domain.DefaultTransparency,
		Bus:          s.bus,
		Logger:       log.Named("session"),
	})

	s.renderer = s.loadRenderer()
	s.routes()
	return s
}

// publicFiles allows cross-origin reads of static files and style documents.
// The API stays same-origin.
var publicFiles = cors.Handler(cors.Options{
	AllowedOrigins:   []string{"*"},
	AllowedMethods:   []string{http.MethodGet, http.MethodHead},
	AllowedHeaders:   []string{"Range"},
	ExposedHeaders:   []string{"Content-Length", "Content-Range", "Accept-Ranges"},
	AllowCredentials: false,
	MaxAge:           300,
})

// fetcher picks where overlay geometry comes from: a remote geometry service
// when configured, otherwise this server's own shape and data layer services.
func (s *Server) fetcher() overlay.Fetcher {
	if url := s.config.Domain.GeometryURL; url != "" {
		s.log.Info("Fetching overlays from remote geometry service", zap.String("url", url))
		return overlay.NewHTTPFetcher(url, &http.Client{Timeout: 60 * time.Second})
	}
	return &service.LocalFetcher{
		Shapes:     s.services.Shapes,
		DataLayers: s.services.DataLayers,
		Simplify:   s.services.Simplify,
	}
}

// loadRenderer prefers fragment templates under the web directory so they can
// be edited without a rebuild, and falls back to the embedded ones.
func (s *Server) loadRenderer() *templates.Renderer {
	if s.config.WebDir != "" {
		fragmentsDir := filepath.Join(s.config.WebDir, "templates", "fragments")
		if _, err := os.Stat(fragmentsDir); err == nil {
			r, err := templates.NewDir(fragmentsDir)
			if err == nil {
				s.log.Info("Loaded fragment templates", zap.String("dir", fragmentsDir))
				return r
			}
			s.log.Warn("Fragment templates not loaded", zap.String("dir", fragmentsDir), zap.Error(err))
		}
	}
	r, err := templates.New()
	if err != nil {
		panic(fmt.Sprintf("parsing embedded templates: %v", err))
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the OpenAPI document of the API.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Close closes server resources.
func (s *Server) Close() error {
	return db.Close()
}

func (s *Server) routes() {
	// Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.config.DataDir, s.db != nil, s.config.Domain.GeometryURL).RegisterRoutes(s.humaAPI)
	if s.db != nil {
		api.NewDBHandler(s.db, s.config.Domain.QueryAPI).RegisterRoutes(s.humaAPI)
	}

	// Map page SSE routes using Huma + Datastar SDK
	editor.NewEventHandler(s.services.Sessions, s.bus, s.renderer).RegisterRoutes(s.humaAPI)
	editor.NewPresetHandler(s.services.Sessions, s.services.Presets, s.services.Values, s.renderer).RegisterRoutes(s.humaAPI)

	// Static files and local style documents
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", publicFiles(http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir)))))

		stylesDir := filepath.Join(s.config.WebDir, "styles")
		s.mux.Handle("/styles/", publicFiles(http.StripPrefix("/styles/", http.FileServer(http.Dir(stylesDir)))))
	}

	// Page routes
	s.mux.HandleFunc("/map", s.handleMap)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-overlay",
		"status":  "running",
	})
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	if s.config.WebDir == "" {
		http.NotFound(w, r)
		return
	}
	templatePath := filepath.Join(s.config.WebDir, "templates", "map.html")
	http.ServeFile(w, r, templatePath)
}
