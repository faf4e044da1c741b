// Package dictation 是听写内容管线的编排层：协调音频切片引擎、
// 判分器、对象存储和持久层，实现音轨及其分段的创建、更新、删除
// 与听写判分。
package dictation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zg04ckpt/listenE-sub002/cache"
	"github.com/zg04ckpt/listenE-sub002/core/audio"
	"github.com/zg04ckpt/listenE-sub002/core/scoring"
	"github.com/zg04ckpt/listenE-sub002/logger"
	"github.com/zg04ckpt/listenE-sub002/model"
	"github.com/zg04ckpt/listenE-sub002/repository"
	"github.com/zg04ckpt/listenE-sub002/storage"
)

// maxConcurrentCuts 单次创建操作内并发切片+上传的上限。
// 切片是同一只读源文件上的独立ffmpeg进程，可以安全并行。
const maxConcurrentCuts = 4

// Service 听写内容管线编排器。
// 每次操作打开、使用并关闭自己的切片会话，会话绝不跨请求共享。
type Service struct {
	repo    repository.TrackRepository
	store   storage.AudioStore
	clipper audio.Clipper
	cache   *cache.TrackCache
}

// NewService 创建编排器
func NewService(repo repository.TrackRepository, store storage.AudioStore, clipper audio.Clipper, trackCache *cache.TrackCache) *Service {
	return &Service{
		repo:    repo,
		store:   store,
		clipper: clipper,
		cache:   trackCache,
	}
}

// validateRanges 校验分段时间范围的基本约束
func validateRanges(segments []SegmentRequest, totalDuration float64) error {
	for i, seg := range segments {
		if seg.StartSec < 0 || seg.EndSec <= seg.StartSec {
			return fmt.Errorf("%w: segment %d has invalid range [%.3f, %.3f]", ErrBadRequest, i, seg.StartSec, seg.EndSec)
		}
		if seg.EndSec > totalDuration {
			return fmt.Errorf("%w: segment %d range [%.3f, %.3f] exceeds duration %.3f", ErrBadRequest, i, seg.StartSec, seg.EndSec, totalDuration)
		}
		if seg.Position <= 0 {
			return fmt.Errorf("%w: segment %d has non-positive position", ErrBadRequest, i)
		}
	}
	return nil
}

// cutAndUpload 切出一个时间窗口并上传为独立音频对象，返回持久URL
func (s *Service) cutAndUpload(ctx context.Context, session audio.Session, startSec, endSec float64) (string, error) {
	clip, err := session.Cut(ctx, startSec, endSec)
	if err != nil {
		if errors.Is(err, audio.ErrInvalidRange) {
			return "", fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		logger.Error("分段切片失败",
			logger.Float64("startSec", startSec),
			logger.Float64("endSec", endSec),
			logger.ErrorField(err))
		return "", fmt.Errorf("%w: clip failed", ErrServer)
	}

	url, err := s.store.SaveAudio(ctx, clip)
	if err != nil || url == "" {
		logger.Error("分段音频上传失败", logger.ErrorField(err))
		return "", fmt.Errorf("%w: audio upload failed", ErrServer)
	}
	return url, nil
}

// CreateTrack 创建音轨：切出全部分段、上传音频、落库。
// 音轨序号追加在现有序列末尾。切片会话在所有退出路径上都会被关闭。
func (s *Service) CreateTrack(ctx context.Context, req CreateTrackRequest) (*model.TrackSummary, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: track name is required", ErrBadRequest)
	}
	if len(req.Segments) == 0 {
		return nil, fmt.Errorf("%w: at least one segment is required", ErrBadRequest)
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name)
	if err != nil {
		logger.Error("查询音轨名称失败", logger.ErrorField(err))
		return nil, fmt.Errorf("%w: name lookup failed", ErrServer)
	}
	if exists {
		return nil, fmt.Errorf("%w: track name %q", ErrConflict, req.Name)
	}

	session, err := s.clipper.Open(ctx, req.FullAudio)
	if err != nil {
		logger.Error("打开音频解码会话失败", logger.ErrorField(err))
		return nil, fmt.Errorf("%w: audio decode failed", ErrServer)
	}
	defer session.Close()

	if err := validateRanges(req.Segments, session.Duration()); err != nil {
		return nil, err
	}

	// 各分段时间范围独立，在有界工作池上并发切片+上传
	segments := make([]*model.Segment, len(req.Segments))
	cutCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, maxConcurrentCuts)

	for i, segReq := range req.Segments {
		wg.Add(1)
		go func(i int, segReq SegmentRequest) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-cutCtx.Done():
				return
			}

			url, err := s.cutAndUpload(cutCtx, session, segReq.StartSec, segReq.EndSec)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
				return
			}

			segments[i] = &model.Segment{
				Transcript: segReq.Transcript,
				AudioURL:   url,
				StartSec:   segReq.StartSec,
				EndSec:     segReq.EndSec,
				Position:   segReq.Position,
			}
		}(i, segReq)
	}
	wg.Wait()

	if firstErr != nil {
		// 同一操作中已上传的对象不回滚，见错误处理策略
		return nil, firstErr
	}

	// 完整音频统一转码后上传，作为音轨自身的播放源
	fullAudio, err := session.EncodeDelivery(ctx)
	if err != nil {
		logger.Error("完整音频转码失败", logger.ErrorField(err))
		return nil, fmt.Errorf("%w: full audio encode failed", ErrServer)
	}
	fullURL, err := s.store.SaveAudio(ctx, fullAudio)
	if err != nil || fullURL == "" {
		logger.Error("完整音频上传失败", logger.ErrorField(err))
		return nil, fmt.Errorf("%w: full audio upload failed", ErrServer)
	}

	count, err := s.repo.CountTracks(ctx)
	if err != nil {
		logger.Error("统计音轨数量失败", logger.ErrorField(err))
		return nil, fmt.Errorf("%w: track count failed", ErrServer)
	}

	track := &model.Track{
		Name:           req.Name,
		FullAudioURL:   fullURL,
		FullTranscript: req.FullTranscript,
		Duration:       session.Duration(),
		Position:       int(count) + 1,
	}

	if err := s.repo.CreateTrackWithSegments(ctx, track, segments); err != nil {
		logger.Error("音轨落库失败", logger.String("name", req.Name), logger.ErrorField(err))
		return nil, fmt.Errorf("%w: track persist failed", ErrServer)
	}

	logger.Info("音轨创建成功",
		logger.Int64("trackId", track.ID),
		logger.String("name", track.Name),
		logger.Int("segmentCount", len(segments)),
		logger.Float64("duration", track.Duration))

	return &model.TrackSummary{
		ID:           track.ID,
		Name:         track.Name,
		Duration:     track.Duration,
		Position:     track.Position,
		SegmentCount: len(segments),
	}, nil
}

// UpdateTrack 更新音轨及其分段。
// 请求中未出现的已有分段会被隐式删除；窗口变化的分段以已持久化的
// 完整音频为源重新切片。全部行变更在一个事务中提交。
func (s *Service) UpdateTrack(ctx context.Context, req UpdateTrackRequest) (*model.TrackSummary, error) {
	if len(req.Segments) == 0 {
		return nil, fmt.Errorf("%w: at least one segment is required", ErrBadRequest)
	}

	track, err := s.repo.GetTrackByID(ctx, req.TrackID)
	if err != nil {
		logger.Error("查询音轨失败", logger.Int64("trackId", req.TrackID), logger.ErrorField(err))
		return nil, fmt.Errorf("%w: track lookup failed", ErrServer)
	}
	if track == nil {
		return nil, fmt.Errorf("%w: track %d", ErrNotFound, req.TrackID)
	}

	existing, err := s.repo.GetSegmentsByTrackID(ctx, req.TrackID)
	if err != nil {
		logger.Error("查询分段失败", logger.Int64("trackId", req.TrackID), logger.ErrorField(err))
		return nil, fmt.Errorf("%w: segment lookup failed", ErrServer)
	}

	existingByID := make(map[int64]*model.Segment, len(existing))
	for _, seg := range existing {
		existingByID[seg.ID] = seg
	}
	// 请求中带ID的分段必须存在
	for _, segReq := range req.Segments {
		if segReq.ID != nil {
			if _, ok := existingByID[*segReq.ID]; !ok {
				return nil, fmt.Errorf("%w: segment %d", ErrNotFound, *segReq.ID)
			}
		}
	}

	// 以已持久化的完整音频为重切源
	source, err := s.store.LoadAudio(ctx, track.FullAudioURL)
	if err != nil {
		logger.Error("读取完整音频失败", logger.String("url", track.FullAudioURL), logger.ErrorField(err))
		return nil, fmt.Errorf("%w: full audio load failed", ErrServer)
	}

	session, err := s.clipper.Open(ctx, source)
	if err != nil {
		logger.Error("打开音频解码会话失败", logger.ErrorField(err))
		return nil, fmt.Errorf("%w: audio decode failed", ErrServer)
	}
	defer session.Close()

	if err := validateRanges(req.Segments, session.Duration()); err != nil {
		return nil, err
	}

	update := &repository.TrackUpdate{
		TrackID: req.TrackID,
		Fields:  map[string]interface{}{},
	}
	if req.FullTranscript != track.FullTranscript {
		update.Fields["full_transcript"] = req.FullTranscript
	}

	requested := make(map[int64]bool, len(req.Segments))
	for _, segReq := range req.Segments {
		if segReq.ID == nil {
			// 新增分段：切片、上传、随音轨ID入库
			url, err := s.cutAndUpload(ctx, session, segReq.StartSec, segReq.EndSec)
			if err != nil {
				return nil, err
			}
			update.InsertSegments = append(update.InsertSegments, &model.Segment{
				Transcript: segReq.Transcript,
				AudioURL:   url,
				StartSec:   segReq.StartSec,
				EndSec:     segReq.EndSec,
				Position:   segReq.Position,
			})
			continue
		}

		old := existingByID[*segReq.ID]
		requested[old.ID] = true
		fields := map[string]interface{}{}

		if segReq.StartSec != old.StartSec || segReq.EndSec != old.EndSec {
			// 窗口变化：重切、删旧对象、传新对象
			url, err := s.cutAndUpload(ctx, session, segReq.StartSec, segReq.EndSec)
			if err != nil {
				return nil, err
			}
			if !s.store.RemoveAudio(ctx, old.AudioURL) {
				logger.Warn("旧分段音频删除失败，继续更新",
					logger.Int64("segmentId", old.ID),
					logger.String("url", old.AudioURL))
			}
			fields["audio_url"] = url
			fields["start_sec"] = segReq.StartSec
			fields["end_sec"] = segReq.EndSec
		}
		if segReq.Transcript != old.Transcript {
			fields["transcript"] = segReq.Transcript
		}
		if segReq.Position != old.Position {
			fields["position"] = segReq.Position
		}
		if len(fields) > 0 {
			update.UpdateSegments = append(update.UpdateSegments, repository.SegmentPatch{
				ID:     old.ID,
				Fields: fields,
			})
		}
	}

	// 请求中省略的已有分段：隐式删除
	for _, old := range existing {
		if requested[old.ID] {
			continue
		}
		if !s.store.RemoveAudio(ctx, old.AudioURL) {
			logger.Warn("被移除分段的音频删除失败，继续删除行",
				logger.Int64("segmentId", old.ID),
				logger.String("url", old.AudioURL))
		}
		update.DeleteSegmentIDs = append(update.DeleteSegmentIDs, old.ID)
	}

	if err := s.repo.ApplyTrackUpdate(ctx, update); err != nil {
		logger.Error("音轨更新落库失败", logger.Int64("trackId", req.TrackID), logger.ErrorField(err))
		return nil, fmt.Errorf("%w: track update failed", ErrServer)
	}

	s.cache.Invalidate(ctx, req.TrackID)

	logger.Info("音轨更新成功",
		logger.Int64("trackId", req.TrackID),
		logger.Int("inserted", len(update.InsertSegments)),
		logger.Int("updated", len(update.UpdateSegments)),
		logger.Int("deleted", len(update.DeleteSegmentIDs)))

	return &model.TrackSummary{
		ID:           track.ID,
		Name:         track.Name,
		Duration:     track.Duration,
		Position:     track.Position,
		SegmentCount: len(req.Segments),
	}, nil
}

// DeleteTrack 删除音轨。对象删除是尽力而为的：任何一个音频对象
// 删除失败都不会阻止行删除；序号序列在删除后保持稠密。
func (s *Service) DeleteTrack(ctx context.Context, trackID int64) error {
	track, err := s.repo.GetTrackByID(ctx, trackID)
	if err != nil {
		logger.Error("查询音轨失败", logger.Int64("trackId", trackID), logger.ErrorField(err))
		return fmt.Errorf("%w: track lookup failed", ErrServer)
	}
	if track == nil {
		return fmt.Errorf("%w: track %d", ErrNotFound, trackID)
	}

	segments, err := s.repo.GetSegmentsByTrackID(ctx, trackID)
	if err != nil {
		logger.Error("查询分段失败", logger.Int64("trackId", trackID), logger.ErrorField(err))
		return fmt.Errorf("%w: segment lookup failed", ErrServer)
	}

	failed := 0
	if track.FullAudioURL != "" && !s.store.RemoveAudio(ctx, track.FullAudioURL) {
		failed++
	}
	for _, seg := range segments {
		if seg.AudioURL != "" && !s.store.RemoveAudio(ctx, seg.AudioURL) {
			failed++
		}
	}
	if failed > 0 {
		logger.Warn("部分音频对象删除失败，行删除照常进行",
			logger.Int64("trackId", trackID),
			logger.Int("failed", failed))
	}

	if err := s.repo.DeleteTrack(ctx, track); err != nil {
		logger.Error("音轨删除落库失败", logger.Int64("trackId", trackID), logger.ErrorField(err))
		return fmt.Errorf("%w: track delete failed", ErrServer)
	}

	s.cache.Invalidate(ctx, trackID)

	logger.Info("音轨删除成功",
		logger.Int64("trackId", trackID),
		logger.Int("segmentCount", len(segments)))
	return nil
}

// GetTrackContent 获取音轨及其全部分段，优先走缓存
func (s *Service) GetTrackContent(ctx context.Context, trackID int64) (*model.TrackContent, error) {
	if content, err := s.cache.GetContent(ctx, trackID); err == nil && content != nil {
		return content, nil
	} else if err != nil {
		logger.Warn("读取音轨缓存失败", logger.Int64("trackId", trackID), logger.ErrorField(err))
	}

	track, err := s.repo.GetTrackByID(ctx, trackID)
	if err != nil {
		logger.Error("查询音轨失败", logger.Int64("trackId", trackID), logger.ErrorField(err))
		return nil, fmt.Errorf("%w: track lookup failed", ErrServer)
	}
	if track == nil {
		return nil, fmt.Errorf("%w: track %d", ErrNotFound, trackID)
	}

	segments, err := s.repo.GetSegmentsByTrackID(ctx, trackID)
	if err != nil {
		logger.Error("查询分段失败", logger.Int64("trackId", trackID), logger.ErrorField(err))
		return nil, fmt.Errorf("%w: segment lookup failed", ErrServer)
	}

	content := &model.TrackContent{Track: *track}
	content.Track.Segments = nil
	for _, seg := range segments {
		content.Segments = append(content.Segments, *seg)
	}

	if err := s.cache.SetContent(ctx, content); err != nil {
		logger.Warn("写入音轨缓存失败", logger.Int64("trackId", trackID), logger.ErrorField(err))
	}

	return content, nil
}

// ListTracks 按序号列出全部音轨
func (s *Service) ListTracks(ctx context.Context) ([]*model.Track, error) {
	tracks, err := s.repo.ListTracks(ctx)
	if err != nil {
		logger.Error("查询音轨列表失败", logger.ErrorField(err))
		return nil, fmt.Errorf("%w: track list failed", ErrServer)
	}
	return tracks, nil
}

// CheckSegment 对指定分段判分。判分器是纯函数，
// 相同输入重复调用得到相同结果。
func (s *Service) CheckSegment(ctx context.Context, segmentID int64, typedText string) (*model.ScoringResult, error) {
	segment, err := s.repo.GetSegmentByID(ctx, segmentID)
	if err != nil {
		logger.Error("查询分段失败", logger.Int64("segmentId", segmentID), logger.ErrorField(err))
		return nil, fmt.Errorf("%w: segment lookup failed", ErrServer)
	}
	if segment == nil {
		return nil, fmt.Errorf("%w: segment %d", ErrNotFound, segmentID)
	}

	result := scoring.Score(typedText, segment.Transcript)
	result.SegmentID = segmentID
	return result, nil
}
