// Package originsrv implements mom, the origin service: deploy ingest,
// revision promotion, derivation dispatch, identity exchange, the
// subscription stream, and tenant registry administration — spec §4.7.
package originsrv

import (
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"home.systems/auth"
	"home.systems/common"
	boltdb "home.systems/db/bolt"
	"home.systems/config"
	"home.systems/derivation"
	"home.systems/derive"
	"home.systems/fingerprint"
	home "home.systems/http"
	"home.systems/objectstore"
	"home.systems/revstore"
	"home.systems/security"
	"home.systems/tenant"
	"home.systems/worker"
)

var logger = common.ServiceLogger("originsrv", "")

// Server bundles every collaborator an origin HTTP handler needs.
type Server struct {
	Echo *echo.Echo

	cfg      *config.MomConfig
	store    objectstore.Store
	revs     *revstore.Store
	tenants  *tenant.Registry
	registry *fingerprint.Registry
	dispatch *derive.Dispatcher
	sessions *auth.SessionSigner
	db       *boltdb.DB

	idpMu sync.Mutex
	idps  map[string]*security.OIDCProvider // provider name -> provider
}

// New wires every collaborator and registers routes. store is the
// authoritative object store backend (s3 or fsstore); db is the bbolt
// database mom opens at cfg.BoltPath, shared by the tenant registry, the
// revision store's metadata tables, and the derivation index.
func New(cfg *config.MomConfig, store objectstore.Store, db *boltdb.DB, sessionSecret string) (*Server, error) {
	revs, err := revstore.OpenWithDB(store, db)
	if err != nil {
		return nil, err
	}
	tenants, err := tenant.Open(db)
	if err != nil {
		return nil, err
	}
	if err := newDerivationIndex(db); err != nil {
		return nil, err
	}

	sessions, err := auth.NewSessionSigner(sessionSecret)
	if err != nil {
		return nil, err
	}

	registry := fingerprint.DefaultRegistry()
	cache := derivation.New(store)
	blocking := worker.NewBlockingPool(cfg.MaxConcurrentJobs)
	dispatch := derive.NewDispatcher(store, cache, registry, blocking)

	s := &Server{
		cfg:      cfg,
		store:    store,
		revs:     revs,
		tenants:  tenants,
		registry: registry,
		dispatch: dispatch,
		sessions: sessions,
		db:       db,
		idps:     make(map[string]*security.OIDCProvider),
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

	logger.WithFields(map[string]interface{}{
		"api_key":        common.MaskSecret(cfg.Auth.APIKey),
		"session_secret": common.MaskSecret(sessionSecret),
		"port":           cfg.Server.Port,
	}).Info("origin server configured")

	return s, nil
}

func (s *Server) routes() {
	s.Echo.GET("/healthz", home.HealthCheckHandler("mom", s.cfg.Service.Version))
	s.Echo.GET("/docs", home.DocumentationHandler(home.ServiceDocConfig{
		ServiceID:    "mom",
		ServiceName:  "home origin",
		Description:  "Deploy ingest, revision promotion, derivation dispatch, and identity exchange for home's tenants.",
		Version:      s.cfg.Service.Version,
		Port:         s.cfg.Server.Port,
		Capabilities: []string{"deploy", "promote", "derive", "subscribe", "identity"},
		Endpoints: []home.EndpointDoc{
			{Method: "POST", Path: "/v1/deploy/:tenant", Description: "Ingest a new revision bundle as a streamed ndjson upload."},
			{Method: "POST", Path: "/v1/tenants/:tenant/revisions/:revid/promote", Description: "Promote a stored revision to live."},
			{Method: "POST", Path: "/v1/tenants/:tenant/revisions/:revid/derive", Description: "Request a transform derivation for an asset in a revision."},
			{Method: "GET", Path: "/v1/tenants/:tenant/revisions/:revid", Description: "Fetch a stored revision's metadata and bundle."},
			{Method: "GET", Path: "/v1/tenants/:tenant/current", Description: "Fetch the id of a tenant's currently promoted revision."},
			{Method: "GET", Path: "/v1/tenants/:tenant/subscribe", Description: "Long-poll ndjson stream of promotion events."},
			{Method: "GET", Path: "/derive/:fingerprint", Description: "Fetch a produced derivation by its fingerprint."},
			{Method: "GET", Path: "/v1/tenants/:tenant/identity/:provider/login", Description: "Begin an OIDC login for a tenant identity provider."},
		},
	}))

	admin := s.Echo.Group("/v1/admin", home.APIKeyMiddleware(s.cfg.Auth.APIKey))
	admin.POST("/tenants", s.handleCreateTenant)
	admin.POST("/tenants/:tenant/rotate-key", s.handleRotateKey)
	admin.POST("/tenants/:tenant/identity-providers/:provider", s.handleEnableProvider)

	s.Echo.POST("/v1/deploy/:tenant", s.handleDeploy, s.requireTenantAPIKey)
	s.Echo.POST("/v1/tenants/:tenant/revisions/:revid/promote", s.handlePromote, s.requireTenantAPIKey)
	s.Echo.POST("/v1/tenants/:tenant/revisions/:revid/derive", s.handleRequestDerivation, s.requireTenantAPIKey)
	s.Echo.GET("/v1/tenants/:tenant/revisions/:revid", s.handleGetRevision)
	s.Echo.GET("/v1/tenants/:tenant/current", s.handleGetCurrentRevision)
	s.Echo.GET("/v1/tenants/:tenant/subscribe", s.handleSubscribe)

	s.Echo.GET("/derive/:fingerprint", s.handleDerive)

	s.Echo.GET("/v1/tenants/:tenant/identity/:provider/login", s.handleIdentityLogin)
	s.Echo.GET("/v1/tenants/:tenant/identity/:provider/callback", s.handleIdentityCallback)
}
