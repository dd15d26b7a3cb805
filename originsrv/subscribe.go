package originsrv

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleSubscribe streams newline-delimited JSON promotion notifications
// for one tenant over a long-lived chunked response, per §4.7's
// subscription stream. The connection stays open until the client
// disconnects or the edge's own context is cancelled.
func (s *Server) handleSubscribe(c echo.Context) error {
	tenantLabel := c.Param("tenant")
	if _, err := s.tenants.Get(tenantLabel); err != nil {
		return err
	}

	ch, cancel := s.revs.Subscribe(tenantLabel)
	defer cancel()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	resp.WriteHeader(http.StatusOK)
	encoder := json.NewEncoder(resp)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case id, ok := <-ch:
			if !ok {
				return nil
			}
			if err := encoder.Encode(map[string]string{"revid": string(id)}); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
