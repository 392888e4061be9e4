package websocket

import (
	"log/slog"
	"net/http"
	"strings"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades the connection and streams ledger changes to it.
// An optional ?entity=food,meal query narrows the feed.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entities := parseEntities(r.URL.Query().Get("entity"))
		for _, e := range entities {
			if e != EntityFood && e != EntityMeal && e != EntityHistory && e != EntityBackup {
				http.Error(w, "unknown entity "+e, http.StatusBadRequest)
				return
			}
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		client := NewClient(hub, conn, entities...)
		client.Run(r.Context())
	}
}

func parseEntities(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
