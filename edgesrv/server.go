package edgesrv

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"home.systems/common"
	"home.systems/config"
	home "home.systems/http"
	"home.systems/livereload"
	"home.systems/objectstore"
)

// Server bundles an edge's HTTP surface, its per-tenant live revision
// directory, its secondary derivation cache, and its view of the origin.
type Server struct {
	Echo *echo.Echo

	cfg     *config.CubConfig
	store   objectstore.Store
	origin  *originClient
	tenants *tenantRegistry

	derivations *derivationCache

	// reload is non-nil only when EnableDevMode has been called.
	reload *livereload.Hub
}

// New wires an edge service. store is used for direct-bucket asset reads
// when configured (otherwise a read-only fsstore mirror in development);
// cfg.OriginBaseURL points at the origin this edge follows.
func New(cfg *config.CubConfig, store objectstore.Store) (*Server, error) {
	mem := newMemCache(cfg.Cache.MemoryBudgetBytes)
	disk, err := newDiskCache(cfg.Cache.DiskPath, cfg.Cache.DiskBudgetBytes)
	if err != nil {
		return nil, err
	}
	fetcher := newDerivationFetcher(cfg.OriginBaseURL)

	s := &Server{
		cfg:         cfg,
		store:       store,
		origin:      newOriginClient(cfg.OriginBaseURL),
		tenants:     newTenantRegistry(),
		derivations: newDerivationCache(mem, disk, fetcher),
	}

	e := home.NewEchoServer(home.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Debug:           cfg.Server.Debug,
	})
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORS.AllowedOrigins,
		AllowMethods: cfg.CORS.AllowedMethods,
		AllowHeaders: cfg.CORS.AllowedHeaders,
	}))
	s.Echo = e
	s.routes()
	s.watchOriginCert()

	logger.WithFields(map[string]interface{}{
		"api_key": common.MaskSecret(cfg.Auth.APIKey),
		"origin":  cfg.OriginBaseURL,
		"port":    cfg.Server.Port,
	}).Info("edge server configured")

	return s, nil
}

func (s *Server) routes() {
	s.Echo.GET("/healthz", home.HealthCheckHandler("cub", s.cfg.Service.Version))

	s.Echo.GET("/derivations/:fingerprint", s.handleDerivation)
	s.Echo.GET("/assets/*", s.handleAsset)
	s.Echo.GET("/*", s.handlePage)
}
