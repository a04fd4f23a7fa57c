package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes mounts the hub's endpoints on mux:
//
//	/ws           WebSocket stream; ?last_ts=RFC3339 skips older latest values
//	/api/latest   latest payload per channel
//	/api/missed   ?channel=&from=&to= replays buffered envelopes; gap is true
//	              when envelopes before oldest were already evicted
func RegisterRoutes(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		var since time.Time
		if v := r.URL.Query().Get("last_ts"); v != "" {
			ts, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				http.Error(w, "invalid last_ts", http.StatusBadRequest)
				return
			}
			since = ts
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn().Err(err).Msg("ws upgrade failed")
			return
		}
		conn.EnableWriteCompression(true)
		hub.Register(conn, since)
	})

	mux.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, hub.Latest())
	})

	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		q := r.URL.Query()
		channel := q.Get("channel")
		from, errFrom := strconv.ParseInt(q.Get("from"), 10, 64)
		if channel == "" || errFrom != nil {
			http.Error(w, "channel and from are required", http.StatusBadRequest)
			return
		}
		to := hub.ChannelSeq(channel)
		if v := q.Get("to"); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				http.Error(w, "invalid to", http.StatusBadRequest)
				return
			}
			to = parsed
		}

		envs := hub.ReplayRange(channel, from, to)
		out := make([]json.RawMessage, len(envs))
		for i, e := range envs {
			out[i] = e
		}
		oldest, _ := hub.OldestSeq(channel)
		writeJSON(w, map[string]any{
			"channel":  channel,
			"from":     from,
			"to":       to,
			"oldest":   oldest,
			"gap":      oldest > from,
			"messages": out,
		})
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
