package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/zg04ckpt/listenE-sub002/core/dictation"
	"github.com/zg04ckpt/listenE-sub002/logger"

	"github.com/gorilla/mux"
)

// maxUploadSize 上传的完整音频大小上限
const maxUploadSize = 100 << 20 // 100MB

// parseTrackID 从路由变量中解析音轨ID
func parseTrackID(r *http.Request) (int64, error) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid track id: %q", vars["id"])
	}
	return id, nil
}

// CreateTrackHandler 处理音轨创建。
// multipart表单：name、fullTranscript、segments（JSON数组）、audio（文件）。
func (h *APIHandler) CreateTrackHandler(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxUploadSize {
		writeJSON(w, http.StatusRequestEntityTooLarge,
			map[string]string{"error": fmt.Sprintf("Request too large. Maximum size is %d MB", maxUploadSize>>20)})
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		logger.Warn("解析上传表单失败", logger.ErrorField(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid multipart form"})
		return
	}

	name := r.FormValue("name")
	fullTranscript := r.FormValue("fullTranscript")

	var segments []dictation.SegmentRequest
	if raw := r.FormValue("segments"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &segments); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid segments JSON"})
			return
		}
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Audio file is required"})
		return
	}
	defer file.Close()

	audioBytes, err := io.ReadAll(file)
	if err != nil {
		logger.Error("读取上传音频失败", logger.String("filename", header.Filename), logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	logger.Info("开始创建音轨",
		logger.String("name", name),
		logger.String("filename", header.Filename),
		logger.Int("audioSize", len(audioBytes)),
		logger.Int("segmentCount", len(segments)))

	summary, err := h.trackService.CreateTrack(r.Context(), dictation.CreateTrackRequest{
		Name:           name,
		FullTranscript: fullTranscript,
		FullAudio:      audioBytes,
		Segments:       segments,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, summary)
}

// updateTrackPayload 更新请求体。
// 注意：payload 中省略的已有分段会被删除，这是公开契约。
type updateTrackPayload struct {
	FullTranscript string                     `json:"fullTranscript"`
	Segments       []dictation.SegmentRequest `json:"segments"`
}

// UpdateTrackHandler 处理音轨更新
func (h *APIHandler) UpdateTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := parseTrackID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var payload updateTrackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	summary, err := h.trackService.UpdateTrack(r.Context(), dictation.UpdateTrackRequest{
		TrackID:        trackID,
		FullTranscript: payload.FullTranscript,
		Segments:       payload.Segments,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// DeleteTrackHandler 处理音轨删除
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := parseTrackID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.trackService.DeleteTrack(r.Context(), trackID); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Track deleted"})
}

// GetTracksHandler 列出全部音轨
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackService.ListTracks(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// GetTrackContentHandler 获取音轨及其全部分段
func (h *APIHandler) GetTrackContentHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := parseTrackID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	content, err := h.trackService.GetTrackContent(r.Context(), trackID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

// checkSegmentPayload 判分请求体
type checkSegmentPayload struct {
	Text string `json:"text"`
}

// CheckSegmentHandler 对学习者键入的文本判分
func (h *APIHandler) CheckSegmentHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	segmentID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid segment id"})
		return
	}

	var payload checkSegmentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	result, err := h.trackService.CheckSegment(r.Context(), segmentID, payload.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
