package edgesrv

import (
	"time"

	"github.com/labstack/echo/v4"

	"home.systems/livereload"
	"home.systems/revision"
	"home.systems/revload"
	"home.systems/watcher"
)

// EnableDevMode starts a watcher over root for tenant and wires its
// rebuilds into a live-reload hub, per spec §4.6/§4.9. It is never called
// in a production deployment; the cub command gates this behind its
// --dev-watch flag.
func (s *Server) EnableDevMode(root, tenant string) error {
	hub := livereload.NewHub()
	s.reload = hub
	s.Echo.GET("/__livereload", func(c echo.Context) error {
		return hub.Serve(c.Response(), c.Request())
	})

	t, _ := s.tenants.getOrCreate(tenant)

	rebuild := func(root string) error {
		hub.Broadcast(livereload.BuildProgress("rebuild", "rebuilding"))

		bundle, err := watcher.BuildBundle(root, tenant)
		if err != nil {
			hub.Broadcast(livereload.BuildError(err.Error()))
			return err
		}
		graph, err := revload.Load(bundle)
		if err != nil {
			hub.Broadcast(livereload.BuildError(err.Error()))
			return err
		}

		id, err := revision.NewID(time.Now())
		if err != nil {
			hub.Broadcast(livereload.BuildError(err.Error()))
			return err
		}
		t.live.Store(&liveRevision{id: id, graph: graph})
		hub.Broadcast(livereload.NewRevision(string(id)))
		return nil
	}

	w, err := watcher.New(root, rebuild)
	if err != nil {
		return err
	}
	go w.Run(t.stop)

	return rebuild(root)
}
