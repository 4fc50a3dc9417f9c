// Package domain defines the persistence models for meeting digests. These
// types are mapped with GORM and form the core data layer of the application.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// StringList is a sequence of strings stored as a JSON-encoded text column.
// A nil list serializes as "[]" so that persisted rows never carry NULL and
// API responses never render a missing field.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner. Empty or NULL columns scan to an empty list.
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("domain: cannot scan %T into StringList", value)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("domain: decode StringList: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

// MarshalJSON renders a nil list as [] instead of null.
func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal([]string(l))
}

// Digest represents one structured meeting summary derived from a transcript.
// The summary fields (overview, key decisions, action items) are produced by
// the generation pipeline; the transcript is kept verbatim so the digest can
// be regenerated later.
//
// Fields:
//   - ID: stable UUID primary key (char(36)), assigned once at creation.
//   - PublicID: second unguessable UUID used for unauthenticated sharing;
//     only honored on the share path while IsPublic is true.
//   - OriginalTranscript: the input text, immutable apart from an explicit
//     regenerate operation.
//   - Overview: short natural-language summary paragraph.
//   - KeyDecisions / ActionItems: ordered lists; empty means "none found",
//     never NULL.
//   - IsPublic: gates visibility through the share-by-public-id path.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type Digest struct {
	ID                 string         `json:"id"                  gorm:"type:char(36);primaryKey"`
	PublicID           string         `json:"public_id"           gorm:"type:char(36);not null;uniqueIndex:ux_digest_public_id"`
	OriginalTranscript string         `json:"original_transcript" gorm:"type:text;not null"`
	Overview           string         `json:"overview"            gorm:"type:text;not null"`
	KeyDecisions       StringList     `json:"key_decisions"       gorm:"type:text;not null"`
	ActionItems        StringList     `json:"action_items"        gorm:"type:text;not null"`
	IsPublic           bool           `json:"is_public"           gorm:"not null;default:false;index"`
	CreatedAt          time.Time      `json:"created_at"          gorm:"index"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `json:"-"                   gorm:"index"`
}

// TableName returns the database table name for Digest.
func (Digest) TableName() string { return "digests" }
