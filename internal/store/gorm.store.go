package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/congregation-messenger/pkg/logger"
	"github.com/nimasrn/congregation-messenger/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocumentEntity struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	DocID      string    `gorm:"column:doc_id;size:64;uniqueIndex;not null"`
	Collection string    `gorm:"size:64;index;not null"`
	Data       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

func (DocumentEntity) TableName() string { return "documents" }

type CounterEntity struct {
	Name      string `gorm:"primaryKey;size:64"`
	Value     int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (CounterEntity) TableName() string { return "counters" }

var fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// GormStore keeps every collection in one documents table with a JSON payload.
type GormStore struct {
	db   *pg.DB
	feed Feed
}

func NewGormStore(db *pg.DB, feed Feed) *GormStore {
	if feed == nil {
		feed = NewLocalFeed()
	}
	return &GormStore{db: db, feed: feed}
}

// Models lists the tables GormStore needs, for auto migration in tests.
func Models() []any {
	return []any{&DocumentEntity{}, &CounterEntity{}}
}

func (s *GormStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if collection == "" {
		return "", ErrEmptyCollection
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fields: %w", err)
	}

	e := &DocumentEntity{
		DocID:      uuid.NewString(),
		Collection: collection,
		Data:       string(data),
	}
	if err := s.db.Write(ctx).Create(e).Error; err != nil {
		return "", fmt.Errorf("failed to create %s record: %w", collection, err)
	}

	s.publish(ctx, ChangeAdded, e)
	return e.DocID, nil
}

func (s *GormStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	var updated DocumentEntity
	err := s.db.WithinTransaction(ctx, func(ctx context.Context) error {
		var e DocumentEntity
		q := s.db.Write(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
		if err := q.Where("collection = ? AND doc_id = ?", collection, id).First(&e).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		current, err := decodeFields(e.Data)
		if err != nil {
			return err
		}
		data, err := json.Marshal(Merge(current, fields))
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}

		e.Data = string(data)
		if err := s.db.Write(ctx).Save(&e).Error; err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, ChangeModified, &updated)
	return nil
}

func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	e, err := s.find(ctx, collection, id)
	if err != nil {
		return err
	}
	res := s.db.Write(ctx).Where("id = ?", e.ID).Delete(&DocumentEntity{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	s.publish(ctx, ChangeRemoved, e)
	return nil
}

func (s *GormStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	e, err := s.find(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	r, err := toRecord(e)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *GormStore) List(ctx context.Context, collection string, q Query) ([]Record, error) {
	tx := s.db.Read(ctx).Model(&DocumentEntity{}).Where("collection = ?", collection)
	for _, f := range q.Where {
		if !fieldNameRe.MatchString(f.Field) {
			return nil, fmt.Errorf("invalid filter field %q", f.Field)
		}
		tx = tx.Where(jsonFieldExpr(s.db.Read(ctx).Dialector.Name(), f.Field)+" = ?", f.Value)
	}
	if q.Desc {
		tx = tx.Order("created_at DESC, id DESC")
	} else {
		tx = tx.Order("created_at ASC, id ASC")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}

	var rows []DocumentEntity
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	out := make([]Record, 0, len(rows))
	for i := range rows {
		r, err := toRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *GormStore) Subscribe(ctx context.Context, collection string, onChange func(Change)) (func(), error) {
	return s.feed.Subscribe(ctx, collection, onChange)
}

func (s *GormStore) Increment(ctx context.Context, counter string, delta int64) (int64, error) {
	var value int64
	err := s.db.WithinTransaction(ctx, func(ctx context.Context) error {
		upsert := clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":      gorm.Expr("counters.value + ?", delta),
				"updated_at": time.Now(),
			}),
		}
		if err := s.db.Write(ctx).Clauses(upsert).Create(&CounterEntity{Name: counter, Value: delta}).Error; err != nil {
			return err
		}
		var c CounterEntity
		if err := s.db.Write(ctx).Where("name = ?", counter).First(&c).Error; err != nil {
			return err
		}
		value = c.Value
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", counter, err)
	}
	return value, nil
}

func (s *GormStore) find(ctx context.Context, collection, id string) (*DocumentEntity, error) {
	var e DocumentEntity
	err := s.db.Read(ctx).Where("collection = ? AND doc_id = ?", collection, id).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *GormStore) publish(ctx context.Context, kind ChangeKind, e *DocumentEntity) {
	r, err := toRecord(e)
	if err != nil {
		logger.Warn("failed to decode record for change feed", "collection", e.Collection, "id", e.DocID, "error", err)
		return
	}
	if err := s.feed.Publish(ctx, e.Collection, Change{Kind: kind, Record: r}); err != nil {
		logger.Warn("failed to publish change", "collection", e.Collection, "id", e.DocID, "error", err)
	}
}

func jsonFieldExpr(dialect, field string) string {
	if dialect == "sqlite" {
		return "json_extract(data, '$." + field + "')"
	}
	return "(data::jsonb ->> '" + field + "')"
}

func toRecord(e *DocumentEntity) (Record, error) {
	fields, err := decodeFields(e.Data)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:         e.DocID,
		Collection: e.Collection,
		Fields:     fields,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}, nil
}

func decodeFields(data string) (Fields, error) {
	fields := Fields{}
	if data == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return fields, nil
}
