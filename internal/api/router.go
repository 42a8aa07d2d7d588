// Package api exposes the Trading Bot's REST surface: positions, orders,
// funds, and bot lifecycle control, backed directly by the Paper Engine
// and the Trading Bot.
package api

import (
	"encoding/json"
	"net/http"

	"tradingcore/internal/paperengine"
	"tradingcore/internal/tradingbot"
)

// Dependencies are the components the router's handlers read from and act on.
type Dependencies struct {
	Paper *paperengine.Engine
	Bot   *tradingbot.Bot
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// NewRouter builds the HTTP mux for the bot's control and read surface.
func NewRouter(deps Dependencies) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		writeJSON(w, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/v1/positions", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		writeJSON(w, deps.Paper.Positions())
	})

	mux.HandleFunc("/api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		writeJSON(w, deps.Paper.Orders())
	})

	mux.HandleFunc("/api/v1/funds", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		writeJSON(w, deps.Paper.Funds())
	})

	mux.HandleFunc("/api/v1/bot/status", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		writeJSON(w, deps.Bot.Stats())
	})

	mux.HandleFunc("/api/v1/bot/pause", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := deps.Bot.Pause(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, deps.Bot.Stats())
	})

	mux.HandleFunc("/api/v1/bot/resume", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := deps.Bot.Resume(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, deps.Bot.Stats())
	})

	return mux
}
