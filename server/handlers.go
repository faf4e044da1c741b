package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zg04ckpt/listenE-sub002/config"
	"github.com/zg04ckpt/listenE-sub002/core/dictation"
	"github.com/zg04ckpt/listenE-sub002/repository"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	trackService *dictation.Service
	userRepo     repository.UserRepository
	cfg          *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(trackService *dictation.Service, userRepo repository.UserRepository, cfg *config.Config) *APIHandler {
	return &APIHandler{
		trackService: trackService,
		userRepo:     userRepo,
		cfg:          cfg,
	}
}

// writeJSON 输出JSON响应
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError 把编排层错误分类映射为HTTP状态码。
// 调用方输入错误原样透出，基础设施错误对外统一提示。
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dictation.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, dictation.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, dictation.ErrBadRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}
