// Package repo implements the offline persistence layer for channel state,
// backed by GORM. This file provides the record types and the OfflineStore
// consumed by the in-memory state engine.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/driftlabs/go-chat-sdk/internal/domain"
)

// ChannelRecord is the cached channel snapshot. The full snapshot is stored
// as a JSON payload; indexed columns exist only for lookup and ordering.
type ChannelRecord struct {
	CID           string `gorm:"primaryKey"`
	Type          string `gorm:"index"`
	LastMessageAt time.Time
	Payload       []byte
	UpdatedAt     time.Time
}

// MessageRecord is one cached message. DisplayAt mirrors the message's
// display time so pages read back in conversation order without decoding
// payloads.
type MessageRecord struct {
	ID         string    `gorm:"primaryKey"`
	CID        string    `gorm:"index:idx_messages_cid_display"`
	DisplayAt  time.Time `gorm:"index:idx_messages_cid_display"`
	SyncStatus int
	Payload    []byte
	UpdatedAt  time.Time
}

// ReadRecord is one per-user read marker within a channel.
type ReadRecord struct {
	CID       string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
	LastRead  time.Time
	Payload   []byte
	UpdatedAt time.Time
}

// OfflineStore persists channel state through GORM. It implements the
// state.Store contract; all methods honor ctx through gorm's WithContext.
type OfflineStore struct {
	db *gorm.DB
}

// NewOfflineStore wraps an opened database.
func NewOfflineStore(db *gorm.DB) *OfflineStore {
	return &OfflineStore{db: db}
}

// UpsertChannel writes a channel snapshot, replacing any previous row.
func (s *OfflineStore) UpsertChannel(ctx context.Context, ch domain.Channel) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("repo: encode channel %s: %w", ch.CID, err)
	}
	rec := ChannelRecord{
		CID:           ch.CID,
		Type:          ch.Type,
		LastMessageAt: ch.LastMessageAt,
		Payload:       payload,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// Channel reads one cached channel snapshot; gorm.ErrRecordNotFound when the
// channel has never been cached.
func (s *OfflineStore) Channel(ctx context.Context, cid string) (*domain.Channel, error) {
	var rec ChannelRecord
	if err := s.db.WithContext(ctx).Where("cid = ?", cid).First(&rec).Error; err != nil {
		return nil, err
	}
	var ch domain.Channel
	if err := json.Unmarshal(rec.Payload, &ch); err != nil {
		return nil, fmt.Errorf("repo: decode channel %s: %w", cid, err)
	}
	return &ch, nil
}

// Channels returns cached channels ordered by recent activity.
func (s *OfflineStore) Channels(ctx context.Context, limit int) ([]domain.Channel, error) {
	var recs []ChannelRecord
	q := s.db.WithContext(ctx).Order("last_message_at DESC, cid ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Channel, 0, len(recs))
	for _, rec := range recs {
		var ch domain.Channel
		if err := json.Unmarshal(rec.Payload, &ch); err != nil {
			return nil, fmt.Errorf("repo: decode channel %s: %w", rec.CID, err)
		}
		out = append(out, ch)
	}
	return out, nil
}

// UpsertMessages writes a batch of messages for one channel in a single
// transaction.
func (s *OfflineStore) UpsertMessages(ctx context.Context, cid string, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	recs := make([]MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("repo: encode message %s: %w", m.ID, err)
		}
		recs = append(recs, MessageRecord{
			ID:         m.ID,
			CID:        cid,
			DisplayAt:  m.DisplayTime(),
			SyncStatus: int(m.SyncStatus),
			Payload:    payload,
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&recs).Error
}

// Messages returns the newest cached messages for cid in conversation order
// (oldest first within the returned page).
func (s *OfflineStore) Messages(ctx context.Context, cid string, limit int) ([]domain.Message, error) {
	var recs []MessageRecord
	q := s.db.WithContext(ctx).
		Where("cid = ?", cid).
		Order("display_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		var m domain.Message
		if err := json.Unmarshal(recs[i].Payload, &m); err != nil {
			return nil, fmt.Errorf("repo: decode message %s: %w", recs[i].ID, err)
		}
		m.SyncStatus = domain.SyncStatus(recs[i].SyncStatus)
		out = append(out, m)
	}
	return out, nil
}

// PendingMessages returns messages across all channels still awaiting a
// successful send, oldest first, for the background retry pass.
func (s *OfflineStore) PendingMessages(ctx context.Context) ([]domain.Message, error) {
	var recs []MessageRecord
	err := s.db.WithContext(ctx).
		Where("sync_status IN ?", []int{
			int(domain.SyncStatusPending),
			int(domain.SyncStatusSyncNeeded),
		}).
		Order("display_at ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(recs))
	for _, rec := range recs {
		var m domain.Message
		if err := json.Unmarshal(rec.Payload, &m); err != nil {
			return nil, fmt.Errorf("repo: decode message %s: %w", rec.ID, err)
		}
		m.SyncStatus = domain.SyncStatus(rec.SyncStatus)
		out = append(out, m)
	}
	return out, nil
}

// UpsertRead writes one per-user read marker.
func (s *OfflineStore) UpsertRead(ctx context.Context, cid string, read domain.ChannelRead) error {
	payload, err := json.Marshal(read)
	if err != nil {
		return fmt.Errorf("repo: encode read %s/%s: %w", cid, read.User.ID, err)
	}
	rec := ReadRecord{
		CID:      cid,
		UserID:   read.User.ID,
		LastRead: read.LastRead,
		Payload:  payload,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// Reads returns all read markers cached for cid.
func (s *OfflineStore) Reads(ctx context.Context, cid string) ([]domain.ChannelRead, error) {
	var recs []ReadRecord
	if err := s.db.WithContext(ctx).Where("cid = ?", cid).Order("user_id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ChannelRead, 0, len(recs))
	for _, rec := range recs {
		var r domain.ChannelRead
		if err := json.Unmarshal(rec.Payload, &r); err != nil {
			return nil, fmt.Errorf("repo: decode read %s/%s: %w", rec.CID, rec.UserID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// DeleteChannel removes the channel snapshot and everything hanging off it.
func (s *OfflineStore) DeleteChannel(ctx context.Context, cid string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cid = ?", cid).Delete(&MessageRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("cid = ?", cid).Delete(&ReadRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("cid = ?", cid).Delete(&ChannelRecord{}).Error
	})
}
