package handler

import (
	"net/http"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}
