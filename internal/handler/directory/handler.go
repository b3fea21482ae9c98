package directory

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	debateservice "github.com/zhouzirui/debate-arena/backend/internal/service/debate"
	"github.com/zhouzirui/debate-arena/backend/pkg/utils"
)

// Handler 辩论目录的只读 HTTP 处理器
type Handler struct {
	registry *debateservice.Registry
}

// New 创建目录处理器
func New(registry *debateservice.Registry) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes 注册目录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/debates", h.handleListDebates)
	r.Get("/debates/{roomID}/messages", h.handleMessages)
}

// handleListDebates 返回当前房间目录
func (h *Handler) handleListDebates(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.registry.Directory())
}

// handleMessages 返回房间的消息树
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	snap, err := h.registry.Messages(roomID)
	if err != nil {
		if errors.Is(err, debateservice.ErrRoomNotFound) {
			utils.RespondError(w, r, http.StatusNotFound, "debate not found")
			return
		}
		utils.RespondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}
