package repository

import (
	"context"
	"errors"

	"github.com/zg04ckpt/listenE-sub002/model"

	"gorm.io/gorm"
)

// SegmentPatch describes the changed fields of one existing segment.
// Only the listed fields are written, no full-object snapshot diffing.
type SegmentPatch struct {
	ID     int64
	Fields map[string]interface{}
}

// TrackUpdate is the unit of work applied by UpdateTrack in one transaction.
type TrackUpdate struct {
	TrackID          int64
	Fields           map[string]interface{} // track-level changed fields
	InsertSegments   []*model.Segment
	UpdateSegments   []SegmentPatch
	DeleteSegmentIDs []int64
}

// TrackRepository defines the interface for track and segment data operations.
type TrackRepository interface {
	CreateTrackWithSegments(ctx context.Context, track *model.Track, segments []*model.Segment) error
	GetTrackByID(ctx context.Context, id int64) (*model.Track, error)
	GetSegmentsByTrackID(ctx context.Context, trackID int64) ([]*model.Segment, error)
	GetSegmentByID(ctx context.Context, id int64) (*model.Segment, error)
	ListTracks(ctx context.Context) ([]*model.Track, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	CountTracks(ctx context.Context) (int64, error)
	ApplyTrackUpdate(ctx context.Context, update *TrackUpdate) error
	DeleteTrack(ctx context.Context, track *model.Track) error
}

// gormTrackRepository implements TrackRepository with GORM.
type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository creates a GORM-backed track repository.
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// CreateTrackWithSegments inserts the track first to obtain its identity,
// stamps that identity onto every segment, then bulk-inserts the segments.
// Everything runs in a single transaction.
func (r *gormTrackRepository) CreateTrackWithSegments(ctx context.Context, track *model.Track, segments []*model.Segment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(track).Error; err != nil {
			return err
		}
		for _, seg := range segments {
			seg.TrackID = track.ID
		}
		if len(segments) > 0 {
			if err := tx.Create(segments).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetTrackByID retrieves a track by its ID, (nil, nil) when not found.
func (r *gormTrackRepository) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).First(&track, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

// GetSegmentsByTrackID retrieves all segments of a track ordered by position.
func (r *gormTrackRepository) GetSegmentsByTrackID(ctx context.Context, trackID int64) ([]*model.Segment, error) {
	var segments []*model.Segment
	err := r.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("position ASC").
		Find(&segments).Error
	return segments, err
}

// GetSegmentByID retrieves a segment by its ID, (nil, nil) when not found.
func (r *gormTrackRepository) GetSegmentByID(ctx context.Context, id int64) (*model.Segment, error) {
	var segment model.Segment
	err := r.db.WithContext(ctx).First(&segment, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &segment, nil
}

// ListTracks retrieves all tracks ordered by their dense ordinal position.
func (r *gormTrackRepository) ListTracks(ctx context.Context) ([]*model.Track, error) {
	var tracks []*model.Track
	err := r.db.WithContext(ctx).Order("position ASC").Find(&tracks).Error
	return tracks, err
}

// ExistsByName checks whether a track name is already in use.
func (r *gormTrackRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Track{}).
		Where("name = ?", name).
		Count(&count).Error
	return count > 0, err
}

// CountTracks returns the number of tracks.
func (r *gormTrackRepository) CountTracks(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Track{}).Count(&count).Error
	return count, err
}

// ApplyTrackUpdate persists all buffered changes of one update pipeline
// as a single transaction: track patch, segment inserts, segment patches
// and segment deletes.
func (r *gormTrackRepository) ApplyTrackUpdate(ctx context.Context, update *TrackUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(update.Fields) > 0 {
			if err := tx.Model(&model.Track{}).
				Where("id = ?", update.TrackID).
				Updates(update.Fields).Error; err != nil {
				return err
			}
		}

		for _, seg := range update.InsertSegments {
			seg.TrackID = update.TrackID
		}
		if len(update.InsertSegments) > 0 {
			if err := tx.Create(update.InsertSegments).Error; err != nil {
				return err
			}
		}

		for _, patch := range update.UpdateSegments {
			if len(patch.Fields) == 0 {
				continue
			}
			if err := tx.Model(&model.Segment{}).
				Where("id = ? AND track_id = ?", patch.ID, update.TrackID).
				Updates(patch.Fields).Error; err != nil {
				return err
			}
		}

		if len(update.DeleteSegmentIDs) > 0 {
			if err := tx.Where("id IN ? AND track_id = ?", update.DeleteSegmentIDs, update.TrackID).
				Delete(&model.Segment{}).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// DeleteTrack removes the track row (segments cascade at the database
// layer) and re-packs the ordinal sequence: every sibling above the
// deleted position shifts down by one, keeping positions dense.
func (r *gormTrackRepository) DeleteTrack(ctx context.Context, track *model.Track) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 显式删除子分段，避免依赖迁移时的外键配置
		if err := tx.Where("track_id = ?", track.ID).Delete(&model.Segment{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.Track{}, track.ID).Error; err != nil {
			return err
		}
		return tx.Model(&model.Track{}).
			Where("position > ?", track.Position).
			UpdateColumn("position", gorm.Expr("position - 1")).Error
	})
}
