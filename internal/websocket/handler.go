package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// Handler upgrades requests to the live feed. originPatterns restricts
// cross-origin browsers; empty means same-origin only.
func Handler(hub *Hub, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			hub.logger.Warn("accept live feed", "error", err)
			return
		}

		NewClient(hub, conn).Run(r.Context())
	}
}
