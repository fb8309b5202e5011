package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/planetterp/planetterp/internal/models"
)

// DBStore persists sessions in the sessions table.
type DBStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewDBStore returns a store backed by db.
func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db, clock: db.NowFunc}
}

// Load decodes the unexpired session stored under key.
func (s *DBStore) Load(ctx context.Context, key string) (Data, error) {
	var row models.Session
	err := s.db.WithContext(ctx).
		Where("session_key = ? AND expire_date > ?", key, s.clock()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	data := Data{}
	if err := json.Unmarshal([]byte(row.SessionData), &data); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return data, nil
}

// Save inserts or replaces the session row.
func (s *DBStore) Save(ctx context.Context, key string, data Data, expiry time.Time) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	row := models.Session{
		SessionKey:  key,
		SessionData: string(payload),
		ExpireDate:  expiry.In(s.clock().Location()),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// Delete removes the session row.
func (s *DBStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&models.Session{}, "session_key = ?", key).Error
}

// ClearExpired removes every expired session row.
func (s *DBStore) ClearExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expire_date <= ?", s.clock()).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}
