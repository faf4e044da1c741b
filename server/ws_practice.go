package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/zg04ckpt/listenE-sub002/core/dictation"
	"github.com/zg04ckpt/listenE-sub002/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var practiceUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// practiceMessage 学习者发来的一次输入草稿
type practiceMessage struct {
	Text string `json:"text"`
}

// PracticeHandler 实时听写练习通道。
// 学习者每发送一次键入草稿，服务端就用判分器重新判分并推回结果；
// 判分是纯函数，相同输入总是得到相同结果。
func (h *APIHandler) PracticeHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	segmentID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid segment id"})
		return
	}

	// 建立连接前先确认分段存在
	if _, err := h.trackService.CheckSegment(r.Context(), segmentID, ""); err != nil {
		writeServiceError(w, err)
		return
	}

	conn, err := practiceUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket升级失败", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	sessionID := uuid.New().String()
	logger.Info("练习会话开始",
		logger.String("sessionId", sessionID),
		logger.Int64("segmentId", segmentID))

	for {
		var msg practiceMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("练习会话异常关闭",
					logger.String("sessionId", sessionID),
					logger.ErrorField(err))
			}
			break
		}

		result, err := h.trackService.CheckSegment(r.Context(), segmentID, msg.Text)
		if err != nil {
			if errors.Is(err, dictation.ErrNotFound) {
				// 练习期间分段被删除
				conn.WriteJSON(map[string]string{"error": "segment no longer exists"})
				break
			}
			conn.WriteJSON(map[string]string{"error": "scoring failed"})
			continue
		}

		if err := conn.WriteJSON(result); err != nil {
			break
		}
	}

	logger.Info("练习会话结束", logger.String("sessionId", sessionID))
}
