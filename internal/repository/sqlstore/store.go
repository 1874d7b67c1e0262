// Package sqlstore is a seed.Repository over database/sql. Statements are
// built with squirrel; postgres, sqlite and mysql are supported.
//
// Staged entities are inserted on SaveChanges in one transaction, parents
// before the entities that reference them. Queried rows are kept in an
// identity map so repeated lookups return the same instance.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/seedling/internal/orm/query"
	"github.com/conduit-lang/seedling/internal/orm/schema"
	"github.com/conduit-lang/seedling/internal/orm/tracking"
	"github.com/conduit-lang/seedling/internal/seed"
)

// Store is a SQL seed.Repository
type Store struct {
	db      *sql.DB
	dialect Dialect
	models  *schema.Registry
	tracker *tracking.Tracker
	logger  *zap.Logger
	retry   RetryConfig

	mu       sync.Mutex
	identity map[identityKey]any
}

type identityKey struct {
	typ reflect.Type
	key string
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegistry sets the model registry
func WithRegistry(models *schema.Registry) Option {
	return func(s *Store) {
		if models != nil {
			s.models = models
		}
	}
}

// WithRetry sets how deadlocked saves are retried
func WithRetry(config RetryConfig) Option {
	return func(s *Store) {
		s.retry = config
	}
}

// New creates a store over an open database
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:       db,
		dialect:  dialect,
		models:   schema.Default,
		tracker:  tracking.New(),
		logger:   zap.NewNop(),
		retry:    DefaultRetryConfig(),
		identity: make(map[identityKey]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens a database with the given driver and creates a store over it
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return New(db, dialect, opts...), nil
}

// DB returns the underlying database
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Query selects the rows of t's table matching pred. Conditions on columns
// become the WHERE clause; the rest (nested paths, funcs) are evaluated on
// the loaded entities after their navigations are fetched.
func (s *Store) Query(ctx context.Context, t reflect.Type, pred query.Predicate) ([]any, error) {
	m, err := s.models.Get(t)
	if err != nil {
		return nil, err
	}

	where, residual := pred.SQL(func(field string) (string, bool) {
		f, ok := m.Field(field)
		if !ok {
			return "", false
		}
		return f.Column, true
	})

	b := sq.Select(m.Columns()...).From(m.TableName).PlaceholderFormat(s.dialect.Placeholder)
	if where != nil {
		b = b.Where(where)
	}
	for _, k := range m.PrimaryKey {
		b = b.OrderBy(k.Column)
	}

	entities, err := s.selectRows(ctx, m, b)
	if err != nil {
		return nil, err
	}
	if residual.IsAll() {
		return entities, nil
	}

	depth := residualDepth(residual)
	out := entities[:0]
	for _, e := range entities {
		if err := s.loadNavigations(ctx, m, reflect.ValueOf(e), depth); err != nil {
			return nil, err
		}
		if residual.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) selectRows(ctx context.Context, m *schema.Model, b sq.SelectBuilder) ([]any, error) {
	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select %s: %w", m.TableName, err)
	}
	s.logger.Debug("query", zap.String("sql", stmt), zap.Int("args", len(args)))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", m.TableName, ConvertDBError(err))
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		v := reflect.New(m.Type)
		targets, err := m.ScanTargets(v, m.Columns())
		if err != nil {
			return nil, err
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", m.TableName, err)
		}
		out = append(out, s.remember(m, v))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", m.TableName, ConvertDBError(err))
	}
	return out, nil
}

// remember returns the instance already loaded for v's key, or records v
func (s *Store) remember(m *schema.Model, v reflect.Value) any {
	if len(m.PrimaryKey) == 0 {
		return v.Interface()
	}
	key := identityKey{typ: m.Type, key: fmt.Sprint(m.KeyValues(v))}

	s.mu.Lock()
	defer s.mu.Unlock()

	if known, ok := s.identity[key]; ok {
		return known
	}
	s.identity[key] = v.Interface()
	_, _ = s.tracker.Track(v.Interface(), tracking.StateUnchanged)
	return v.Interface()
}

// loadNavigations fetches unset belongs_to navigations from their foreign
// keys, depth hops deep
func (s *Store) loadNavigations(ctx context.Context, m *schema.Model, entity reflect.Value, depth int) error {
	if depth == 0 {
		return nil
	}
	for _, rel := range m.BelongsTo() {
		if rel.ForeignKey == nil {
			continue
		}
		if _, set := m.Navigation(entity, rel); set {
			continue
		}
		fk := reflect.Indirect(m.Value(entity, rel.ForeignKey))
		if !fk.IsValid() || fk.IsZero() {
			continue
		}

		tm, err := s.models.Get(rel.Target)
		if err != nil {
			return err
		}
		if len(tm.PrimaryKey) != 1 {
			continue
		}
		found, err := s.Query(ctx, rel.Target, query.Eq(tm.PrimaryKey[0].Name, fk.Interface()))
		if err != nil {
			return err
		}
		if len(found) == 0 {
			continue
		}

		target := reflect.ValueOf(found[0])
		reflect.Indirect(entity).FieldByIndex(rel.Index).Set(target)
		if err := s.loadNavigations(ctx, tm, target, depth-1); err != nil {
			return err
		}
	}
	return nil
}

// residualDepth is the number of navigation hops the residual conditions reach
func residualDepth(p query.Predicate) int {
	depth := 1
	for _, c := range p.Conditions() {
		if n := strings.Count(c.Field, "."); n > depth {
			depth = n
		}
	}
	return depth
}

// Add stages entity for insertion
func (s *Store) Add(_ context.Context, entity any) error {
	_, err := s.tracker.Track(entity, tracking.StateAdded)
	return err
}

// FindLocal returns the first staged entity of type t matching pred
func (s *Store) FindLocal(t reflect.Type, pred query.Predicate) (any, bool) {
	return s.tracker.Find(t, pred.Match, tracking.StateAdded)
}

// ModelInfo describes t
func (s *Store) ModelInfo(t reflect.Type) (*schema.Model, error) {
	return s.models.Get(t)
}

// SetPrimaryKey assigns an explicit key; it is inserted as given
func (s *Store) SetPrimaryKey(entity any, value any) error {
	m, err := s.models.Get(reflect.TypeOf(entity))
	if err != nil {
		return err
	}
	return m.SetKey(reflect.ValueOf(entity), value)
}

// PrepareToSet needs no preparation: related entities are resolved on save
func (s *Store) PrepareToSet(any) error {
	return nil
}

// DiscardChanges drops every staged entity
func (s *Store) DiscardChanges() {
	s.tracker.RejectChanges()
}

// SaveChanges inserts every staged entity, and the untracked entities
// reachable from them, in one transaction
func (s *Store) SaveChanges(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tracker.Cascade(s.models); err != nil {
		return err
	}
	order, err := s.tracker.InsertOrder(s.models)
	if err != nil {
		return err
	}
	if len(order) == 0 {
		return nil
	}

	err = withRetry(ctx, s.db, s.retry, func(tx *sql.Tx) error {
		var generated []reflect.Value
		if err := s.insertAll(ctx, tx, order, &generated); err != nil {
			for _, key := range generated {
				key.Set(reflect.Zero(key.Type()))
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, e := range order {
		m, err := s.models.Get(e.Type)
		if err != nil {
			return err
		}
		if len(m.PrimaryKey) > 0 {
			key := identityKey{typ: m.Type, key: fmt.Sprint(m.KeyValues(reflect.ValueOf(e.Entity)))}
			s.identity[key] = e.Entity
		}
	}
	s.tracker.AcceptChanges()
	s.logger.Debug("saved", zap.Int("inserted", len(order)))
	return nil
}

// insertAll inserts order and then patches the foreign keys of entities
// inserted before the parent they reference. Keys generated by the attempt
// are appended to generated.
func (s *Store) insertAll(ctx context.Context, tx *sql.Tx, order []*tracking.Entry, generated *[]reflect.Value) error {
	position := make(map[any]int, len(order))
	for i, e := range order {
		position[e.Entity] = i
	}

	var patch []*tracking.Entry
	for i, e := range order {
		m, err := s.models.Get(e.Type)
		if err != nil {
			return err
		}
		v := reflect.ValueOf(e.Entity)
		if err := s.models.SyncForeignKeys(v); err != nil {
			return err
		}
		if err := s.insert(ctx, tx, m, v, generated); err != nil {
			return err
		}

		for _, rel := range m.BelongsTo() {
			nav, ok := m.Navigation(v, rel)
			if !ok || rel.ForeignKey == nil {
				continue
			}
			if j, pending := position[nav.Interface()]; pending && j >= i {
				patch = append(patch, e)
				break
			}
		}
	}

	for _, e := range patch {
		if err := s.patchForeignKeys(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, m *schema.Model, v reflect.Value, generated *[]reflect.Value) error {
	if m.AutoKey && m.HasZeroKey(v) {
		key := m.Value(v, m.PrimaryKey[0])
		switch {
		case key.Type() == reflect.TypeOf(uuid.UUID{}):
			key.Set(reflect.ValueOf(uuid.New()))
			*generated = append(*generated, key)
		case key.Kind() == reflect.String:
			key.SetString(uuid.NewString())
			*generated = append(*generated, key)
		}
	}

	cols, vals := m.InsertValues(v)
	b := sq.Insert(m.TableName).Columns(cols...).Values(vals...).PlaceholderFormat(s.dialect.Placeholder)
	serverKey := m.AutoKey && m.HasZeroKey(v)

	if serverKey && s.dialect.Returning {
		key := m.Value(v, m.PrimaryKey[0])
		stmt, args, err := b.Suffix("RETURNING " + m.PrimaryKey[0].Column).ToSql()
		if err != nil {
			return fmt.Errorf("build insert %s: %w", m.TableName, err)
		}
		s.logger.Debug("insert", zap.String("sql", stmt))
		if err := tx.QueryRowContext(ctx, stmt, args...).Scan(key.Addr().Interface()); err != nil {
			return fmt.Errorf("insert %s: %w", m.TableName, ConvertDBError(err))
		}
		*generated = append(*generated, key)
		return nil
	}

	stmt, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build insert %s: %w", m.TableName, err)
	}
	s.logger.Debug("insert", zap.String("sql", stmt))
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", m.TableName, ConvertDBError(err))
	}
	if !serverKey {
		return nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert %s: read generated key: %w", m.TableName, err)
	}
	if err := m.SetKey(v, id); err != nil {
		return err
	}
	*generated = append(*generated, m.Value(v, m.PrimaryKey[0]))
	return nil
}

// patchForeignKeys writes the foreign keys of an entity whose parents were
// inserted after it
func (s *Store) patchForeignKeys(ctx context.Context, tx *sql.Tx, e *tracking.Entry) error {
	m, err := s.models.Get(e.Type)
	if err != nil {
		return err
	}
	if len(m.PrimaryKey) == 0 {
		return fmt.Errorf("update %s: %w", m.TableName, schema.ErrNoPrimaryKey)
	}

	v := reflect.ValueOf(e.Entity)
	if err := s.models.SyncForeignKeys(v); err != nil {
		return err
	}

	b := sq.Update(m.TableName).PlaceholderFormat(s.dialect.Placeholder)
	for _, rel := range m.BelongsTo() {
		if rel.ForeignKey == nil {
			continue
		}
		if _, ok := m.Navigation(v, rel); ok {
			b = b.Set(rel.ForeignKey.Column, m.Value(v, rel.ForeignKey).Interface())
		}
	}
	where := sq.Eq{}
	for _, k := range m.PrimaryKey {
		where[k.Column] = m.Value(v, k).Interface()
	}

	stmt, args, err := b.Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("build update %s: %w", m.TableName, err)
	}
	s.logger.Debug("patch foreign keys", zap.String("sql", stmt))
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("update %s: %w", m.TableName, ConvertDBError(err))
	}
	return nil
}

var (
	_ seed.Repository = (*Store)(nil)
	_ seed.Discarder  = (*Store)(nil)
)
