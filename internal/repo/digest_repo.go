package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-digest-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateDigest persists a new digest. ID, PublicID and CreatedAt are
// assigned here when unset so callers only supply content fields.
func CreateDigest(ctx context.Context, db *gorm.DB, d *domain.Digest) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.PublicID == "" {
		d.PublicID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = d.CreatedAt
	return db.WithContext(ctx).Create(d).Error
}

// GetDigest returns a digest by primary id.
func GetDigest(ctx context.Context, db *gorm.DB, id string) (*domain.Digest, error) {
	var d domain.Digest
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDigestByPublicID returns a digest by its share token. Only digests
// marked public are visible through this lookup.
func GetDigestByPublicID(ctx context.Context, db *gorm.DB, publicID string) (*domain.Digest, error) {
	var d domain.Digest
	err := db.WithContext(ctx).
		Where("public_id = ? AND is_public = ?", publicID, true).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CountDigests returns the total number of digests.
func CountDigests(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Digest{}).
		Count(&n).Error
	return n, err
}

// ListDigestsPage returns one page of digests, newest first.
// skip is the number of records to pass over; limit caps the page size.
func ListDigestsPage(ctx context.Context, db *gorm.DB, skip, limit int) ([]domain.Digest, int64, error) {
	if skip < 0 {
		skip = 0
	}
	if limit < 1 {
		limit = 1
	}

	total, err := CountDigests(ctx, db)
	if err != nil {
		return nil, 0, err
	}

	var out []domain.Digest
	err = db.WithContext(ctx).
		Order("created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateDigestContent replaces the generated fields of an existing digest,
// bumping updated_at. The transcript, id, public_id and created_at are
// left untouched.
func UpdateDigestContent(ctx context.Context, db *gorm.DB, d *domain.Digest) error {
	res := db.WithContext(ctx).
		Model(&domain.Digest{}).
		Where("id = ?", d.ID).
		Updates(map[string]any{
			"original_transcript": d.OriginalTranscript,
			"overview":            d.Overview,
			"key_decisions":       d.KeyDecisions,
			"action_items":        d.ActionItems,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDigestVisibility toggles the public share flag on a digest.
func UpdateDigestVisibility(ctx context.Context, db *gorm.DB, id string, isPublic bool) (*domain.Digest, error) {
	res := db.WithContext(ctx).
		Model(&domain.Digest{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_public":  isPublic,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return GetDigest(ctx, db, id)
}

// DeleteDigest soft-deletes a digest by id.
func DeleteDigest(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.Digest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
