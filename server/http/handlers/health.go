package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

var started = time.Now()

// Health: простая проверка живости для балансировщика/UI.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(started).Round(time.Second).String(),
	})
}
