// Package gormstore implements store.DocumentStore on top of gorm: one `documents` table
// keyed by (collection, doc_id) with a JSON body and an optimistic-concurrency version.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schoolrecords_backend/internals/store"
)

var fieldNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Store is a gorm-backed document store (postgres in production, sqlite locally).
type Store struct {
	db     *gorm.DB
	maxOps int
	nowFn  func() time.Time
	log    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

func WithMaxBatchOps(n int) Option { return func(s *Store) { s.maxOps = n } }

func WithClock(fn func() time.Time) Option { return func(s *Store) { s.nowFn = fn } }

func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

// New wraps db. Call Migrate once before use.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		maxOps: store.DefaultMaxBatchOps,
		nowFn:  func() time.Time { return time.Now().UTC() },
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.Named("gormstore")
	return s
}

var _ store.DocumentStore = (*Store)(nil)

// Migrate creates the documents table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&DocumentModel{}); err != nil {
		return fmt.Errorf("migrate documents: %w", err)
	}
	return nil
}

func (s *Store) MaxBatchOps() int { return s.maxOps }

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	var m DocumentModel
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.Document{}, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		return store.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return toDocument(m)
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	tx := s.db.WithContext(ctx).Model(&DocumentModel{}).Where("collection = ?", q.Collection)
	for _, f := range q.Filters {
		if f.Field == store.DocIDField {
			if f.Op == store.FilterEq {
				tx = tx.Where("doc_id = ?", f.Value)
			} else {
				tx = tx.Where("doc_id IN ?", f.Values)
			}
			continue
		}
		if !fieldNameRe.MatchString(f.Field) {
			return nil, fmt.Errorf("%w: field %q", store.ErrInvalidQuery, f.Field)
		}
		if f.Op == store.FilterEq {
			tx = tx.Where(datatypes.JSONQuery("data").Equals(f.Value, f.Field))
			continue
		}
		group := s.db.Where(datatypes.JSONQuery("data").Equals(f.Values[0], f.Field))
		for _, v := range f.Values[1:] {
			group = group.Or(datatypes.JSONQuery("data").Equals(v, f.Field))
		}
		tx = tx.Where(group)
	}
	if q.OrderBy != "" {
		if !fieldNameRe.MatchString(q.OrderBy) {
			return nil, fmt.Errorf("%w: order field %q", store.ErrInvalidQuery, q.OrderBy)
		}
		tx = tx.Order(clause.OrderByColumn{
			Column: clause.Column{Name: s.jsonPath(q.OrderBy), Raw: true},
			Desc:   q.Desc,
		})
	}
	tx = tx.Order("doc_id")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []DocumentModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	out := make([]store.Document, 0, len(rows))
	for _, m := range rows {
		d, err := toDocument(m)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields store.Fields, merge bool) error {
	op := store.SetOp(collection, id, fields)
	op.Merge = merge
	return s.commit(ctx, []store.Op{op})
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.commit(ctx, []store.Op{store.DeleteOp(collection, id)})
}

func (s *Store) BatchCommit(ctx context.Context, ops []store.Op) error {
	if err := s.commit(ctx, ops); err != nil {
		s.log.Warn("batch commit failed", zap.Int("ops", len(ops)), zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) commit(ctx context.Context, ops []store.Op) error {
	if err := store.ValidateOps(ops, s.maxOps); err != nil {
		return err
	}
	now := s.nowFn()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			if err := s.applyOp(tx, op, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) RunTransaction(ctx context.Context, keys []store.Key, fn store.TxFunc) error {
	reads := make([]store.Document, len(keys))
	for i, k := range keys {
		d, err := s.Get(ctx, k.Collection, k.ID)
		switch {
		case err == nil:
			reads[i] = d
		case errors.Is(err, store.ErrNotFound):
			reads[i] = store.Document{Collection: k.Collection, ID: k.ID}
		default:
			return err
		}
	}

	ops, err := fn(reads)
	if err != nil {
		return err
	}
	if err := store.ValidateOps(ops, s.maxOps); err != nil {
		return err
	}

	now := s.nowFn()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range reads {
			var cur DocumentModel
			err := s.locked(tx).
				Where("collection = ? AND doc_id = ?", r.Collection, r.ID).
				Take(&cur).Error
			exists := true
			if errors.Is(err, gorm.ErrRecordNotFound) {
				exists = false
			} else if err != nil {
				return fmt.Errorf("recheck %s/%s: %w", r.Collection, r.ID, err)
			}
			if exists != r.Exists || (exists && cur.Version != r.Version) {
				s.log.Info("transaction contention",
					zap.String("collection", r.Collection), zap.String("id", r.ID))
				return fmt.Errorf("%s/%s: %w", r.Collection, r.ID, store.ErrContention)
			}
		}
		for _, op := range ops {
			if err := s.applyOp(tx, op, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) applyOp(tx *gorm.DB, op store.Op, now time.Time) error {
	var cur DocumentModel
	err := s.locked(tx.Unscoped()).
		Where("collection = ? AND doc_id = ?", op.Collection, op.ID).
		Take(&cur).Error
	found := true
	if errors.Is(err, gorm.ErrRecordNotFound) {
		found = false
	} else if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	exists := found && !cur.DeletedAt.Valid

	if op.Kind == store.OpDelete {
		if !exists {
			return nil
		}
		if err := tx.Where("collection = ? AND doc_id = ?", op.Collection, op.ID).
			Delete(&DocumentModel{}).Error; err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	fields := store.ResolveTimestamps(op.Fields, now)
	if op.Merge && exists {
		base, err := store.DecodeJSON(cur.Data)
		if err != nil {
			return err
		}
		fields = store.MergeFields(base, fields)
	}
	raw, err := store.EncodeJSON(fields)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !found {
		m := DocumentModel{
			Collection: op.Collection,
			DocID:      op.ID,
			Data:       datatypes.JSON(raw),
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}
	updates := map[string]any{
		"data":       datatypes.JSON(raw),
		"version":    cur.Version + 1,
		"updated_at": now,
	}
	if !exists {
		updates["deleted_at"] = nil
		updates["created_at"] = now
	}
	res := tx.Unscoped().Model(&DocumentModel{}).
		Where("collection = ? AND doc_id = ? AND version = ?", op.Collection, op.ID, cur.Version).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("%s: %w", op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, store.ErrContention)
	}
	return nil
}

// locked adds SELECT ... FOR UPDATE where the dialect supports row locks.
func (s *Store) locked(tx *gorm.DB) *gorm.DB {
	if s.db.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func (s *Store) jsonPath(field string) string {
	if s.db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("data->>'%s'", field)
	}
	return fmt.Sprintf("json_extract(data, '$.%s')", field)
}

func toDocument(m DocumentModel) (store.Document, error) {
	fields, err := store.DecodeJSON(m.Data)
	if err != nil {
		return store.Document{}, fmt.Errorf("%s/%s: %w", m.Collection, m.DocID, err)
	}
	return store.Document{
		Collection: m.Collection,
		ID:         m.DocID,
		Fields:     fields,
		Version:    m.Version,
		Exists:     true,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}
