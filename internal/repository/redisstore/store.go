// Package redisstore is a seed.Repository keeping entities as JSON documents
// in Redis. Each entity is stored under <prefix><table>:<key>; the keys of a
// table are listed in insertion order under <prefix><table>:ids and integer
// keys are generated from the <prefix><table>:seq counter.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/conduit-lang/seedling/internal/orm/query"
	"github.com/conduit-lang/seedling/internal/orm/schema"
	"github.com/conduit-lang/seedling/internal/orm/tracking"
	"github.com/conduit-lang/seedling/internal/seed"
)

// Config holds Redis connection settings
type Config struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Prefix is prepended to every key
	Prefix string
}

// DefaultConfig returns a default Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:   "localhost:6379",
		Prefix: "seed:",
	}
}

// Store is a Redis seed.Repository
type Store struct {
	client  *redis.Client
	prefix  string
	models  *schema.Registry
	tracker *tracking.Tracker
	logger  *zap.Logger

	mu       sync.Mutex
	identity map[string]any
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

// Open connects to Redis and checks the connection
func Open(config Config, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", config.Addr, err)
	}
	return NewWithClient(client, config.Prefix, opts...), nil
}

// NewWithClient creates a store over an existing client
func NewWithClient(client *redis.Client, prefix string, opts ...Option) *Store {
	s := &Store{
		client:   client,
		prefix:   prefix,
		models:   schema.Default,
		tracker:  tracking.New(),
		logger:   zap.NewNop(),
		identity: make(map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) docKey(m *schema.Model, key string) string {
	return s.prefix + m.TableName + ":" + key
}

func (s *Store) idsKey(m *schema.Model) string {
	return s.prefix + m.TableName + ":ids"
}

func (s *Store) seqKey(m *schema.Model) string {
	return s.prefix + m.TableName + ":seq"
}

// keyString renders the primary key of entity; composite keys are joined with ':'
func keyString(m *schema.Model, entity reflect.Value) string {
	parts := make([]string, len(m.PrimaryKey))
	for i, v := range m.KeyValues(entity) {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ":")
}

// Query loads the documents of t's table and returns those matching pred,
// in insertion order. Navigations are loaded when pred reaches through them.
func (s *Store) Query(ctx context.Context, t reflect.Type, pred query.Predicate) ([]any, error) {
	m, err := s.models.Get(t)
	if err != nil {
		return nil, err
	}

	ids, err := s.client.LRange(ctx, s.idsKey(m), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", m.TableName, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(m, id)
	}
	docs, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", m.TableName, err)
	}

	depth := navigationDepth(pred)
	var out []any
	for i, doc := range docs {
		raw, ok := doc.(string)
		if !ok {
			continue
		}
		entity, err := s.decode(m, keys[i], raw)
		if err != nil {
			return nil, err
		}
		if err := s.loadNavigations(ctx, m, reflect.ValueOf(entity), depth); err != nil {
			return nil, err
		}
		if pred.Match(entity) {
			out = append(out, entity)
		}
	}
	return out, nil
}

// decode returns the instance already loaded for key, or decodes raw
func (s *Store) decode(m *schema.Model, key, raw string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if known, ok := s.identity[key]; ok {
		return known, nil
	}

	var columns map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &columns); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	v := reflect.New(m.Type)
	for _, f := range m.Fields {
		value, ok := columns[f.Column]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, m.Value(v, f).Addr().Interface()); err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", key, f.Column, err)
		}
	}

	s.identity[key] = v.Interface()
	_, _ = s.tracker.Track(v.Interface(), tracking.StateUnchanged)
	return v.Interface(), nil
}

func encode(m *schema.Model, entity reflect.Value) (string, error) {
	columns := make(map[string]any, len(m.Fields))
	for _, f := range m.Fields {
		columns[f.Column] = m.Value(entity, f).Interface()
	}
	raw, err := json.Marshal(columns)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", m.Name, err)
	}
	return string(raw), nil
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
		key := s.docKey(tm, fmt.Sprint(fk.Interface()))
		raw, err := s.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}
		target, err := s.decode(tm, key, raw)
		if err != nil {
			return err
		}

		tv := reflect.ValueOf(target)
		reflect.Indirect(entity).FieldByIndex(rel.Index).Set(tv)
		if err := s.loadNavigations(ctx, tm, tv, depth-1); err != nil {
			return err
		}
	}
	return nil
}

// navigationDepth is the number of navigation hops pred reaches through
func navigationDepth(pred query.Predicate) int {
	if pred.IsAll() {
		return 0
	}
	depth := 0
	for _, c := range pred.Conditions() {
		if n := strings.Count(c.Field, "."); n > depth {
			depth = n
		}
	}
	if depth == 0 && len(pred.Conditions()) == 0 {
		// only funcs, which may look anywhere
		depth = 1
	}
	return depth
}

// Add stages entity
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

// SetPrimaryKey assigns an explicit key
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

// SaveChanges writes every staged entity, and the untracked entities
// reachable from them, in one MULTI/EXEC. Keys are generated first so that
// every foreign key is known before anything is written.
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

	for _, e := range order {
		if err := s.assignKey(ctx, e); err != nil {
			return err
		}
	}

	type write struct {
		m   *schema.Model
		key string
		doc string
	}
	writes := make([]write, 0, len(order))
	for _, e := range order {
		m, err := s.models.Get(e.Type)
		if err != nil {
			return err
		}
		if len(m.PrimaryKey) == 0 {
			return fmt.Errorf("save %s: %w", m.Name, schema.ErrNoPrimaryKey)
		}
		v := reflect.ValueOf(e.Entity)
		if err := s.models.SyncForeignKeys(v); err != nil {
			return err
		}
		doc, err := encode(m, v)
		if err != nil {
			return err
		}
		writes = append(writes, write{m: m, key: keyString(m, v), doc: doc})
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, w := range writes {
			pipe.Set(ctx, s.docKey(w.m, w.key), w.doc, 0)
			pipe.RPush(ctx, s.idsKey(w.m), w.key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	for i, e := range order {
		s.identity[s.docKey(writes[i].m, writes[i].key)] = e.Entity
	}
	s.tracker.AcceptChanges()
	s.logger.Debug("saved", zap.Int("written", len(writes)))
	return nil
}

// assignKey generates a key for an entity whose auto key is still zero
func (s *Store) assignKey(ctx context.Context, e *tracking.Entry) error {
	m, err := s.models.Get(e.Type)
	if err != nil {
		return err
	}
	v := reflect.ValueOf(e.Entity)
	if !m.AutoKey || !m.HasZeroKey(v) {
		return nil
	}

	key := m.PrimaryKey[0]
	var value any
	switch {
	case key.Type == reflect.TypeOf(uuid.UUID{}):
		value = uuid.New()
	case key.Type.Kind() == reflect.String:
		value = uuid.NewString()
	default:
		next, err := s.client.Incr(ctx, s.seqKey(m)).Result()
		if err != nil {
			return fmt.Errorf("next key for %s: %w", m.TableName, err)
		}
		value = next
	}
	return m.SetKey(v, value)
}

var (
	_ seed.Repository = (*Store)(nil)
	_ seed.Discarder  = (*Store)(nil)
)
