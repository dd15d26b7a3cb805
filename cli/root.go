// Package cli provides the command-line entry points for home's two
// services: mom (the origin) and cub (the edge). Configuration is loaded
// entirely from the environment via the config package's per-service
// loaders; cobra here only dispatches between the two service commands
// and handles graceful shutdown.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"home.systems/common"
	boltdb "home.systems/db/bolt"
	"home.systems/config"
	"home.systems/edgesrv"
	"home.systems/originsrv"
)

var logger = common.ServiceLogger("cli", "")

// RootCmd is the top-level command; MomCmd and CubCmd are its two
// subcommands, each starting one of home's services.
var RootCmd = &cobra.Command{
	Use:   "home",
	Short: "home: a multi-tenant content publishing platform",
	Long: `home splits into two cooperating services:

  mom — the origin: deploy ingest, revision storage, derivation
        production, and identity exchange.
  cub — the edge: host-routed page serving, asset and derivation
        proxying, and a local byte-budgeted cache.

Both read their configuration from the environment (MOM_* and CUB_*
prefixed variables respectively); see config.LoadMomConfig and
config.LoadCubConfig.`,
}

var MomCmd = &cobra.Command{
	Use:   "mom",
	Short: "run the origin service",
	RunE:  runMom,
}

var CubCmd = &cobra.Command{
	Use:   "cub",
	Short: "run the edge service",
	RunE:  runCub,
}

var devRoot string
var devTenant string

func init() {
	CubCmd.Flags().StringVar(&devRoot, "dev-watch", "", "enable development mode, watching this working tree for changes")
	CubCmd.Flags().StringVar(&devTenant, "dev-tenant", "dev", "tenant label to serve the watched working tree under")

	RootCmd.AddCommand(MomCmd, CubCmd)
}

func runMom(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadMomConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		return err
	}

	db, err := boltdb.Open(cfg.BoltPath)
	if err != nil {
		return err
	}
	defer db.Close()

	sessionSecret := os.Getenv("MOM_SESSION_SECRET")
	if sessionSecret == "" {
		return errRequiredEnv("MOM_SESSION_SECRET")
	}

	srv, err := originsrv.New(cfg, store, db, sessionSecret)
	if err != nil {
		return err
	}

	if cfg.RedisURL != "" {
		pool, err := srv.StartAsyncDispatch(ctx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("async dispatch disabled, continuing with synchronous resolve only")
		} else {
			defer pool.Stop()
		}
	}

	return serveAndWait(srv.Echo, cfg.Server.Port, cfg.Server.ShutdownTimeout)
}

func runCub(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadCubConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	edgeStore, err := openObjectStore(ctx, config.ObjectStoreConfig{Backend: "local", LocalPath: cfg.Cache.DiskPath + "/mirror"})
	if err != nil {
		return err
	}

	srv, err := edgesrv.New(cfg, edgeStore)
	if err != nil {
		return err
	}

	if devRoot != "" {
		if err := srv.EnableDevMode(devRoot, devTenant); err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{"root": devRoot, "tenant": devTenant}).Info("development mode watching working tree")
	}

	return serveAndWait(srv.Echo, cfg.Server.Port, cfg.Server.ShutdownTimeout)
}

// serveAndWait starts e in the background and blocks until SIGINT/SIGTERM,
// then shuts it down gracefully — the same lifecycle pattern every
// long-running service in this module follows.
func serveAndWait(e interface {
	Start(address string) error
	Shutdown(ctx context.Context) error
}, port int, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(portAddress(port)); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(ctx)
}

func portAddress(port int) string {
	return ":" + strconv.Itoa(port)
}

func errRequiredEnv(name string) error {
	return fmt.Errorf("cli: required environment variable %s is not set", name)
}
