package dictation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/zg04ckpt/listenE-sub002/cache"
	"github.com/zg04ckpt/listenE-sub002/core/audio"
	"github.com/zg04ckpt/listenE-sub002/model"
	"github.com/zg04ckpt/listenE-sub002/repository"
)

// ---------- fakes ----------

// fakeSession 固定时长的假切片会话
type fakeSession struct {
	duration   float64
	mu         sync.Mutex
	cutCount   int
	closeCount int
	failCuts   bool
}

func (s *fakeSession) Duration() float64 { return s.duration }

func (s *fakeSession) Cut(ctx context.Context, startSec, endSec float64) ([]byte, error) {
	if startSec < 0 || endSec <= startSec || endSec > s.duration {
		return nil, fmt.Errorf("%w: [%f, %f]", audio.ErrInvalidRange, startSec, endSec)
	}
	s.mu.Lock()
	s.cutCount++
	fail := s.failCuts
	s.mu.Unlock()
	if fail {
		return nil, errors.New("boom")
	}
	return []byte(fmt.Sprintf("clip %.1f-%.1f", startSec, endSec)), nil
}

func (s *fakeSession) EncodeDelivery(ctx context.Context) ([]byte, error) {
	return []byte("full audio"), nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closeCount++
	s.mu.Unlock()
	return nil
}

type fakeClipper struct {
	session  *fakeSession
	openErr  error
	opened   int
	lastSrc  []byte
	duration float64
}

func (c *fakeClipper) Open(ctx context.Context, source []byte) (audio.Session, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.opened++
	c.lastSrc = source
	d := c.duration
	if d == 0 {
		d = 30.0
	}
	c.session = &fakeSession{duration: d}
	return c.session, nil
}

// fakeStore 内存对象存储
type fakeStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	saved    []string
	removed  []string
	saveErr  bool
	denyDel  bool
	seq      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) SaveAudio(ctx context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr {
		return "", errors.New("upload failed")
	}
	s.seq++
	url := fmt.Sprintf("/static/audio/fake-%d.mp3", s.seq)
	s.objects[url] = data
	s.saved = append(s.saved, url)
	return url, nil
}

func (s *fakeStore) LoadAudio(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[url]
	if !ok {
		return nil, fmt.Errorf("object %s not found", url)
	}
	return data, nil
}

func (s *fakeStore) RemoveAudio(ctx context.Context, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, url)
	if s.denyDel {
		return false
	}
	delete(s.objects, url)
	return true
}

// fakeRepo 内存持久层
type fakeRepo struct {
	mu         sync.Mutex
	tracks     map[int64]*model.Track
	segments   map[int64]*model.Segment
	nextID     int64
	lastUpdate *repository.TrackUpdate
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tracks:   map[int64]*model.Track{},
		segments: map[int64]*model.Segment{},
	}
}

func (r *fakeRepo) nextIdentity() int64 {
	r.nextID++
	return r.nextID
}

func (r *fakeRepo) CreateTrackWithSegments(ctx context.Context, track *model.Track, segments []*model.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	track.ID = r.nextIdentity()
	r.tracks[track.ID] = track
	for _, seg := range segments {
		seg.TrackID = track.ID
		seg.ID = r.nextIdentity()
		r.segments[seg.ID] = seg
	}
	return nil
}

func (r *fakeRepo) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracks[id], nil
}

func (r *fakeRepo) GetSegmentsByTrackID(ctx context.Context, trackID int64) ([]*model.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Segment
	for _, seg := range r.segments {
		if seg.TrackID == trackID {
			out = append(out, seg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *fakeRepo) GetSegmentByID(ctx context.Context, id int64) (*model.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.segments[id], nil
}

func (r *fakeRepo) ListTracks(ctx context.Context) ([]*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Track
	for _, tr := range r.tracks {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *fakeRepo) ExistsByName(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tr := range r.tracks {
		if tr.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) CountTracks(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.tracks)), nil
}

func (r *fakeRepo) ApplyTrackUpdate(ctx context.Context, update *repository.TrackUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUpdate = update

	if tr, ok := r.tracks[update.TrackID]; ok {
		if v, ok := update.Fields["full_transcript"]; ok {
			tr.FullTranscript = v.(string)
		}
	}
	for _, seg := range update.InsertSegments {
		seg.TrackID = update.TrackID
		seg.ID = r.nextIdentity()
		r.segments[seg.ID] = seg
	}
	for _, patch := range update.UpdateSegments {
		seg, ok := r.segments[patch.ID]
		if !ok {
			continue
		}
		if v, ok := patch.Fields["transcript"]; ok {
			seg.Transcript = v.(string)
		}
		if v, ok := patch.Fields["audio_url"]; ok {
			seg.AudioURL = v.(string)
		}
		if v, ok := patch.Fields["start_sec"]; ok {
			seg.StartSec = v.(float64)
		}
		if v, ok := patch.Fields["end_sec"]; ok {
			seg.EndSec = v.(float64)
		}
		if v, ok := patch.Fields["position"]; ok {
			seg.Position = v.(int)
		}
	}
	for _, id := range update.DeleteSegmentIDs {
		delete(r.segments, id)
	}
	return nil
}

func (r *fakeRepo) DeleteTrack(ctx context.Context, track *model.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, seg := range r.segments {
		if seg.TrackID == track.ID {
			delete(r.segments, id)
		}
	}
	delete(r.tracks, track.ID)
	for _, tr := range r.tracks {
		if tr.Position > track.Position {
			tr.Position--
		}
	}
	return nil
}

// ---------- helpers ----------

func newTestService(repo *fakeRepo, store *fakeStore, clipper *fakeClipper) *Service {
	return NewService(repo, store, clipper, cache.NewTrackCache(nil))
}

func idPtr(id int64) *int64 { return &id }

func createSampleTrack(t *testing.T, svc *Service, name string, ranges [][2]float64) *model.TrackSummary {
	t.Helper()
	var segs []SegmentRequest
	for i, r := range ranges {
		segs = append(segs, SegmentRequest{
			Transcript: fmt.Sprintf("segment %d text", i+1),
			StartSec:   r[0],
			EndSec:     r[1],
			Position:   i + 1,
		})
	}
	summary, err := svc.CreateTrack(context.Background(), CreateTrackRequest{
		Name:           name,
		FullTranscript: "full transcript",
		FullAudio:      []byte("source audio"),
		Segments:       segs,
	})
	if err != nil {
		t.Fatalf("CreateTrack(%q) failed: %v", name, err)
	}
	return summary
}

// ---------- create ----------

func TestCreateTrack(t *testing.T) {
	repo := newFakeRepo()
	store := newFakeStore()
	clipper := &fakeClipper{}
	svc := newTestService(repo, store, clipper)

	summary := createSampleTrack(t, svc, "lesson 1", [][2]float64{{0, 5}, {5, 12.5}, {12.5, 30}})

	if summary.Position != 1 {
		t.Errorf("first track position = %d, want 1", summary.Position)
	}
	if summary.SegmentCount != 3 {
		t.Errorf("segment count = %d, want 3", summary.SegmentCount)
	}
	if summary.Duration != 30.0 {
		t.Errorf("duration = %v, want 30", summary.Duration)
	}

	segs, _ := repo.GetSegmentsByTrackID(context.Background(), summary.ID)
	if len(segs) != 3 {
		t.Fatalf("persisted segments = %d, want 3", len(segs))
	}
	for _, seg := range segs {
		if seg.TrackID != summary.ID {
			t.Errorf("segment %d has trackId %d, want %d", seg.ID, seg.TrackID, summary.ID)
		}
		if seg.AudioURL == "" {
			t.Errorf("segment %d has no audio URL", seg.ID)
		}
	}

	// 3个分段 + 1个完整音频
	if len(store.saved) != 4 {
		t.Errorf("uploaded objects = %d, want 4", len(store.saved))
	}

	if clipper.session.closeCount != 1 {
		t.Errorf("session close count = %d, want exactly 1", clipper.session.closeCount)
	}

	// 第二条音轨序号追加
	second := createSampleTrack(t, svc, "lesson 2", [][2]float64{{0, 10}})
	if second.Position != 2 {
		t.Errorf("second track position = %d, want 2", second.Position)
	}
}

func TestCreateTrackValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateTrackRequest
		wantErr error
	}{
		{
			name:    "empty_name",
			req:     CreateTrackRequest{Segments: []SegmentRequest{{StartSec: 0, EndSec: 1, Position: 1}}},
			wantErr: ErrBadRequest,
		},
		{
			name:    "no_segments",
			req:     CreateTrackRequest{Name: "x", FullAudio: []byte("a")},
			wantErr: ErrBadRequest,
		},
		{
			name: "inverted_range",
			req: CreateTrackRequest{
				Name:      "x",
				FullAudio: []byte("a"),
				Segments:  []SegmentRequest{{StartSec: 5, EndSec: 2, Position: 1}},
			},
			wantErr: ErrBadRequest,
		},
		{
			name: "range_past_duration",
			req: CreateTrackRequest{
				Name:      "x",
				FullAudio: []byte("a"),
				Segments:  []SegmentRequest{{StartSec: 0, EndSec: 31, Position: 1}},
			},
			wantErr: ErrBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newFakeRepo(), newFakeStore(), &fakeClipper{})
			_, err := svc.CreateTrack(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateTrack error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateTrackNameConflict(t *testing.T) {
	repo := newFakeRepo()
	store := newFakeStore()
	clipper := &fakeClipper{}
	svc := newTestService(repo, store, clipper)

	createSampleTrack(t, svc, "dup", [][2]float64{{0, 5}})

	_, err := svc.CreateTrack(context.Background(), CreateTrackRequest{
		Name:      "dup",
		FullAudio: []byte("a"),
		Segments:  []SegmentRequest{{StartSec: 0, EndSec: 1, Position: 1}},
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate name error = %v, want ErrConflict", err)
	}
}

func TestCreateTrackUploadFailureClosesSession(t *testing.T) {
	repo := newFakeRepo()
	store := newFakeStore()
	store.saveErr = true
	clipper := &fakeClipper{}
	svc := newTestService(repo, store, clipper)

	_, err := svc.CreateTrack(context.Background(), CreateTrackRequest{
		Name:      "broken",
		FullAudio: []byte("a"),
		Segments:  []SegmentRequest{{StartSec: 0, EndSec: 5, Position: 1}},
	})
	if !errors.Is(err, ErrServer) {
		t.Fatalf("upload failure error = %v, want ErrServer", err)
	}
	if clipper.session.closeCount != 1 {
		t.Errorf("session close count = %d, want exactly 1 on error path", clipper.session.closeCount)
	}
	if len(repo.tracks) != 0 {
		t.Errorf("no track row should be persisted after upload failure")
	}
}

// ---------- update ----------

func TestUpdateTrack(t *testing.T) {
	repo := newFakeRepo()
	store := newFakeStore()
	clipper := &fakeClipper{}
	svc := newTestService(repo, store, clipper)

	summary := createSampleTrack(t, svc, "lesson", [][2]float64{{0, 5}, {5, 10}, {10, 20}})
	segs, _ := repo.GetSegmentsByTrackID(context.Background(), summary.ID)
	keep, resize, omitted := segs[0], segs[1], segs[2]
	oldResizeURL := resize.AudioURL
	omittedURL := omitted.AudioURL

	_, err := svc.UpdateTrack(context.Background(), UpdateTrackRequest{
		TrackID:        summary.ID,
		FullTranscript: "revised transcript",
		Segments: []SegmentRequest{
			// 未变化的窗口：只改文字，不动音频
			{ID: idPtr(keep.ID), Transcript: "edited text", StartSec: keep.StartSec, EndSec: keep.EndSec, Position: 1},
			// 窗口变化：重切+换对象
			{ID: idPtr(resize.ID), Transcript: resize.Transcript, StartSec: 5, EndSec: 12, Position: 2},
			// 省略 omitted → 隐式删除
			// 新分段
			{ID: nil, Transcript: "brand new", StartSec: 20, EndSec: 25, Position: 3},
		},
	})
	if err != nil {
		t.Fatalf("UpdateTrack failed: %v", err)
	}

	upd := repo.lastUpdate
	if upd == nil {
		t.Fatal("no unit of work recorded")
	}
	if got := upd.Fields["full_transcript"]; got != "revised transcript" {
		t.Errorf("full_transcript field = %v", got)
	}
	if len(upd.InsertSegments) != 1 || upd.InsertSegments[0].Transcript != "brand new" {
		t.Errorf("insert segments = %+v, want the one new segment", upd.InsertSegments)
	}
	if len(upd.DeleteSegmentIDs) != 1 || upd.DeleteSegmentIDs[0] != omitted.ID {
		t.Errorf("delete ids = %v, want [%d] (implicit delete by omission)", upd.DeleteSegmentIDs, omitted.ID)
	}

	// keep：只有 transcript patch；resize：含新 audio_url 和窗口字段
	var keepPatched, resizePatched bool
	for _, patch := range upd.UpdateSegments {
		switch patch.ID {
		case keep.ID:
			keepPatched = true
			if _, ok := patch.Fields["audio_url"]; ok {
				t.Errorf("unchanged window must not touch audio, got fields %v", patch.Fields)
			}
			if patch.Fields["transcript"] != "edited text" {
				t.Errorf("keep patch fields = %v", patch.Fields)
			}
		case resize.ID:
			resizePatched = true
			if _, ok := patch.Fields["audio_url"]; !ok {
				t.Errorf("resized window must replace audio, got fields %v", patch.Fields)
			}
		}
	}
	if !keepPatched || !resizePatched {
		t.Errorf("expected patches for both kept and resized segments, got %+v", upd.UpdateSegments)
	}

	// 旧对象删除：resize 的旧音频 + omitted 的音频
	removed := map[string]bool{}
	for _, url := range store.removed {
		removed[url] = true
	}
	if !removed[oldResizeURL] {
		t.Errorf("old blob of resized segment %q was not removed", oldResizeURL)
	}
	if !removed[omittedURL] {
		t.Errorf("blob of omitted segment %q was not removed", omittedURL)
	}

	if clipper.session.closeCount != 1 {
		t.Errorf("update session close count = %d, want exactly 1", clipper.session.closeCount)
	}
}

func TestUpdateTrackErrors(t *testing.T) {
	repo := newFakeRepo()
	store := newFakeStore()
	clipper := &fakeClipper{}
	svc := newTestService(repo, store, clipper)

	summary := createSampleTrack(t, svc, "lesson", [][2]float64{{0, 5}})

	t.Run("empty_segments", func(t *testing.T) {
		_, err := svc.UpdateTrack(context.Background(), UpdateTrackRequest{TrackID: summary.ID})
		if !errors.Is(err, ErrBadRequest) {
			t.Errorf("error = %v, want ErrBadRequest", err)
		}
	})

	t.Run("missing_track", func(t *testing.T) {
		_, err := svc.UpdateTrack(context.Background(), UpdateTrackRequest{
			TrackID:  9999,
			Segments: []SegmentRequest{{StartSec: 0, EndSec: 1, Position: 1}},
		})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("unknown_segment_id", func(t *testing.T) {
		_, err := svc.UpdateTrack(context.Background(), UpdateTrackRequest{
			TrackID: summary.ID,
			Segments: []SegmentRequest{
				{ID: idPtr(12345), StartSec: 0, EndSec: 1, Position: 1},
			},
		})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

// ---------- delete ----------

func TestDeleteTrackRepacksOrdinals(t *testing.T) {
	repo := newFakeRepo()
	store := newFakeStore()
	clipper := &fakeClipper{}
	svc := newTestService(repo, store, clipper)

	var ids []int64
	for i := 1; i <= 5; i++ {
		s := createSampleTrack(t, svc, fmt.Sprintf("t%d", i), [][2]float64{{0, 5}})
		ids = append(ids, s.ID)
	}

	// 删除序号为3的音轨
	if err := svc.DeleteTrack(context.Background(), ids[2]); err != nil {
		t.Fatalf("DeleteTrack failed: %v", err)
	}

	tracks, _ := repo.ListTracks(context.Background())
	if len(tracks) != 4 {
		t.Fatalf("remaining tracks = %d, want 4", len(tracks))
	}
	for i, tr := range tracks {
		if tr.Position != i+1 {
			t.Errorf("track %q position = %d, want %d (dense sequence)", tr.Name, tr.Position, i+1)
		}
	}
	// 原序号4、5的音轨现在是3、4
	if tracks[2].Name != "t4" || tracks[3].Name != "t5" {
		t.Errorf("tracks after re-pack = [%s %s %s %s], want t4 at 3 and t5 at 4",
			tracks[0].Name, tracks[1].Name, tracks[2].Name, tracks[3].Name)
	}
}

func TestDeleteTrackBestEffortBlobRemoval(t *testing.T) {
	repo := newFakeRepo()
	store := newFakeStore()
	clipper := &fakeClipper{}
	svc := newTestService(repo, store, clipper)

	summary := createSampleTrack(t, svc, "doomed", [][2]float64{{0, 5}, {5, 10}})

	// 对象删除全部失败，行删除必须照常进行
	store.denyDel = true
	if err := svc.DeleteTrack(context.Background(), summary.ID); err != nil {
		t.Fatalf("DeleteTrack must not fail on blob removal failure: %v", err)
	}

	if tr, _ := repo.GetTrackByID(context.Background(), summary.ID); tr != nil {
		t.Error("track row still present after delete")
	}
	// 完整音频 + 2个分段都尝试过删除
	if len(store.removed) != 3 {
		t.Errorf("blob delete attempts = %d, want 3", len(store.removed))
	}
}

func TestDeleteTrackNotFound(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeStore(), &fakeClipper{})
	if err := svc.DeleteTrack(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// ---------- content & scoring ----------

func TestGetTrackContent(t *testing.T) {
	repo := newFakeRepo()
	store := newFakeStore()
	clipper := &fakeClipper{}
	svc := newTestService(repo, store, clipper)

	summary := createSampleTrack(t, svc, "lesson", [][2]float64{{0, 5}, {5, 10}})

	content, err := svc.GetTrackContent(context.Background(), summary.ID)
	if err != nil {
		t.Fatalf("GetTrackContent failed: %v", err)
	}
	if content.Name != "lesson" || len(content.Segments) != 2 {
		t.Errorf("content = %+v, want lesson with 2 segments", content)
	}

	if _, err := svc.GetTrackContent(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing track error = %v, want ErrNotFound", err)
	}
}

func TestCheckSegment(t *testing.T) {
	repo := newFakeRepo()
	store := newFakeStore()
	clipper := &fakeClipper{}
	svc := newTestService(repo, store, clipper)

	summary := createSampleTrack(t, svc, "lesson", [][2]float64{{0, 5}})
	segs, _ := repo.GetSegmentsByTrackID(context.Background(), summary.ID)
	segs[0].Transcript = "the quick brown fox"

	result, err := svc.CheckSegment(context.Background(), segs[0].ID, "the kwik brown fox")
	if err != nil {
		t.Fatalf("CheckSegment failed: %v", err)
	}
	if result.SegmentID != segs[0].ID {
		t.Errorf("SegmentID = %d, want %d", result.SegmentID, segs[0].ID)
	}
	if result.CorrectRate != 75 {
		t.Errorf("CorrectRate = %v, want 75", result.CorrectRate)
	}
	if result.Transcript != "the quick brown fox" {
		t.Errorf("Transcript = %q, want reference text", result.Transcript)
	}

	// 幂等：相同输入重复判分结果一致
	again, _ := svc.CheckSegment(context.Background(), segs[0].ID, "the kwik brown fox")
	if again.Score != result.Score || again.CorrectRate != result.CorrectRate {
		t.Errorf("repeated check differs: %+v vs %+v", result, again)
	}

	if _, err := svc.CheckSegment(context.Background(), 9999, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing segment error = %v, want ErrNotFound", err)
	}
}
