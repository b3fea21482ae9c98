package utils

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// ErrorEvent 与 WebSocket 事件同构的错误响应体
type ErrorEvent struct {
	Type string    `json:"type"`
	Data ErrorData `json:"data"`
}

// ErrorData 错误详情
type ErrorData struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// RespondJSON 发送JSON响应（no-store）
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Str("module", "pkg.utils").Err(err).Msg("failed to encode response")
	}
}

// RespondError 发送 {type:"error", data:{...}} 错误响应，并带上请求 ID
func RespondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	reqID := middleware.GetReqID(r.Context())

	evt := log.Debug()
	if status >= http.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Str("module", "pkg.utils").Str("request_id", reqID).Str("path", r.URL.Path).
		Int("status", status).Str("error", message).Msg("request failed")

	RespondJSON(w, status, ErrorEvent{
		Type: "error",
		Data: ErrorData{Status: status, Message: message, RequestID: reqID},
	})
}
