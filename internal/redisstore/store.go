// Package redisstore keeps models in Redis so several engine processes can
// share one model set. Writes are published on a channel; Watch turns the
// writes of other processes into local change notifications.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/store"
)

// Store implements store.ModelStore on Redis.
//
// Each model is a hash under <prefix>model:<id>. A sorted set with equal
// scores at <prefix>index keeps ids in lexical order.
type Store struct {
	client *backend.Client
	prefix string
	origin string
	logger *slog.Logger
	store.Notifier
}

var _ store.ModelStore = (*Store)(nil)

type Option func(*Store)

// WithPrefix sets the key prefix. Stores sharing a prefix share models.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithLogger sets the logger used by Watch.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a store connected to address.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: "eca:",
		origin: uuid.NewString(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string {
	return s.prefix + "model:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

func (s *Store) channel() string {
	return s.prefix + "changes"
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// PutModel inserts or replaces a model. Identical content is a no-op.
func (s *Store) PutModel(ctx context.Context, raw compiler.RawModel) (bool, error) {
	data, rec, err := store.MarshalModel(raw)
	if err != nil {
		return false, fmt.Errorf("put model: %w", err)
	}

	key := s.key(rec.ID)
	changed := false
	err = s.client.Watch(ctx, func(tx *backend.Tx) error {
		old, err := tx.HGet(ctx, key, "hash").Result()
		if err != nil && !errors.Is(err, backend.Nil) {
			return err
		}
		if old == rec.Hash {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.HSet(ctx, key,
				"label", rec.Label,
				"status", string(rec.Status),
				"source", data,
				"hash", rec.Hash)
			pipe.HIncrBy(ctx, key, "revision", 1)
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: 0, Member: rec.ID})
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	}, key)
	if err != nil {
		return false, fmt.Errorf("put model %s: %w", rec.ID, err)
	}
	if changed {
		s.publish(ctx, store.Change{Kind: store.ChangePut, ModelID: rec.ID})
	}
	return changed, nil
}

// GetModel returns one model.
func (s *Store) GetModel(ctx context.Context, id string) (compiler.RawModel, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return compiler.RawModel{}, fmt.Errorf("get model %s: %w", id, err)
	}
	if len(fields) == 0 {
		return compiler.RawModel{}, fmt.Errorf("get model: %w", notFound(id))
	}
	raw, err := store.UnmarshalModel(fields["source"], ir.Status(fields["status"]))
	if err != nil {
		return compiler.RawModel{}, fmt.Errorf("get model %s: %w", id, err)
	}
	return raw, nil
}

// ListModels returns every model record ordered by id.
func (s *Store) ListModels(ctx context.Context) ([]store.ModelRecord, error) {
	rows, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	records := make([]store.ModelRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.rec)
	}
	return records, nil
}

// ListEnabledModels returns the enabled models ordered by id.
func (s *Store) ListEnabledModels(ctx context.Context) ([]compiler.RawModel, error) {
	rows, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled models: %w", err)
	}
	models := make([]compiler.RawModel, 0, len(rows))
	for _, r := range rows {
		if r.rec.Status != ir.StatusEnabled {
			continue
		}
		raw, err := store.UnmarshalModel(r.source, r.rec.Status)
		if err != nil {
			return nil, fmt.Errorf("list enabled models: %s: %w", r.rec.ID, err)
		}
		models = append(models, raw)
	}
	return models, nil
}

type row struct {
	rec    store.ModelRecord
	source string
}

// load reads every indexed model in one pipeline. Ids whose hash has
// vanished between the two round trips are skipped.
func (s *Store) load(ctx context.Context) ([]row, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []row{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*backend.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	rows := make([]row, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rev, _ := strconv.ParseInt(fields["revision"], 10, 64)
		rows = append(rows, row{
			rec: store.ModelRecord{
				ID:       ids[i],
				Label:    fields["label"],
				Status:   ir.Status(fields["status"]),
				Hash:     fields["hash"],
				Revision: rev,
			},
			source: fields["source"],
		})
	}
	return rows, nil
}

// SetStatus enables or disables a model.
func (s *Store) SetStatus(ctx context.Context, id string, status ir.Status) error {
	if _, err := store.NormalizeStatus(string(status)); err != nil || status == "" {
		return fmt.Errorf("set status %s: invalid status %q", id, status)
	}

	key := s.key(id)
	changed := false
	err := s.client.Watch(ctx, func(tx *backend.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return notFound(id)
		}
		if fields["status"] == string(status) {
			return nil
		}
		raw, err := store.UnmarshalModel(fields["source"], status)
		if err != nil {
			return err
		}
		data, rec, err := store.MarshalModel(raw)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.HSet(ctx, key,
				"status", string(status),
				"source", data,
				"hash", rec.Hash)
			pipe.HIncrBy(ctx, key, "revision", 1)
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	if changed {
		s.publish(ctx, store.Change{Kind: store.ChangeStatus, ModelID: id})
	}
	return nil
}

// DeleteModel removes a model.
func (s *Store) DeleteModel(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("delete model: %w", notFound(id))
	}
	s.publish(ctx, store.Change{Kind: store.ChangeDelete, ModelID: id})
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", store.ErrNotFound, id)
}

// message is the payload published for every committed write.
type message struct {
	Origin string `json:"origin"`
	store.Change
}

// publish notifies local listeners, then other processes. A failed publish
// is logged; the write itself has already committed.
func (s *Store) publish(ctx context.Context, c store.Change) {
	s.Notify(c)

	data, err := json.Marshal(message{Origin: s.origin, Change: c})
	if err != nil {
		s.logger.Error("failed to encode model change", "model", c.ModelID, "error", err)
		return
	}
	if err := s.client.Publish(ctx, s.channel(), data).Err(); err != nil {
		s.logger.Error("failed to publish model change",
			"model", c.ModelID,
			"kind", c.Kind,
			"error", err)
	}
}

// Watch subscribes to changes made through other stores sharing the
// prefix and delivers them to OnChange listeners. The subscription is
// active when Watch returns. It ends when ctx is done or stop is called.
func (s *Store) Watch(ctx context.Context) (stop func() error, err error) {
	pubsub := s.client.Subscribe(ctx, s.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel(), err)
	}

	var once sync.Once
	var closeErr error
	closeSub := func() {
		once.Do(func() { closeErr = pubsub.Close() })
	}

	done := make(chan struct{})
	ch := pubsub.Channel()
	go func() {
		defer close(done)
		for msg := range ch {
			s.deliver(msg.Payload)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			closeSub()
		case <-done:
		}
	}()

	return func() error {
		closeSub()
		<-done
		return closeErr
	}, nil
}

func (s *Store) deliver(payload string) {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		s.logger.Warn("ignoring malformed model change", "payload", payload, "error", err)
		return
	}
	if m.Origin == s.origin {
		return
	}
	s.logger.Debug("model changed elsewhere", "model", m.ModelID, "kind", m.Kind)
	s.Notify(m.Change)
}
