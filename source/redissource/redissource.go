// Package redissource is a Source over Redis hashes.
//
// A row of target t with id i is the hash "<prefix>:t:i". Querying "t"
// scans every row of t; querying "t/i" reads one row. The key column holds
// the id and every other column is a hash field; a field missing from a
// hash reads as nil.
//
// Change notifications travel over a pub/sub channel whose messages are
// changed targets, so writes made by other processes are observed as long
// as they publish. Put and Remove publish "t/i"; an empty message notifies
// every listener.
package redissource

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/queryflow/errors"
	"github.com/kbukum/queryflow/logger"
	"github.com/kbukum/queryflow/resilience"
	"github.com/kbukum/queryflow/source"
)

var segment = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Source is a Redis-backed, observable Source.
type Source struct {
	*source.Hub

	rdb    *goredis.Client
	pubsub *goredis.PubSub
	cfg    Config
	closed atomic.Bool
	done   chan struct{}
	log    *logger.Logger
}

var _ source.Source = (*Source)(nil)

// Open connects to Redis, retrying failed attempts, and subscribes to the
// change channel.
func Open(ctx context.Context, cfg Config) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Get("redissource")

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.ConnectAttempts
	retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		log.Warn("redis ping failed, retrying", logger.Fields(
			"attempt", attempt, logger.FieldError, err.Error(), "backoff", backoff.String(),
		))
	}
	if _, err := resilience.Retry(ctx, retry, func() (string, error) {
		return rdb.Ping(ctx).Result()
	}); err != nil {
		_ = rdb.Close()
		return nil, errors.ConnectionFailed("redis", err)
	}

	ps := rdb.Subscribe(ctx, cfg.Channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		_ = rdb.Close()
		return nil, errors.ConnectionFailed("redis", fmt.Errorf("subscribe %s: %w", cfg.Channel, err))
	}

	s := &Source{
		Hub:    source.NewHub("redissource"),
		rdb:    rdb,
		pubsub: ps,
		cfg:    cfg,
		done:   make(chan struct{}),
		log:    log,
	}
	go s.dispatch(ps.Channel())

	log.Info("redis source opened", logger.Fields("addr", cfg.Addr, "channel", cfg.Channel))
	return s, nil
}

// Client returns the underlying go-redis client.
func (s *Source) Client() *goredis.Client { return s.rdb }

func (s *Source) dispatch(ch <-chan *goredis.Message) {
	defer close(s.done)
	for msg := range ch {
		var n int
		if msg.Payload == "" {
			n = s.NotifyAll()
		} else {
			n = s.Notify(msg.Payload)
		}
		s.log.Debug("change notified", logger.Fields(logger.FieldTarget, msg.Payload, logger.FieldSubscribers, n))
	}
}

func (s *Source) key(table, id string) string {
	return s.cfg.Prefix + ":" + table + ":" + id
}

func parseTarget(target string) (table, id string, hasID bool, err error) {
	table, id, hasID = strings.Cut(target, "/")
	if !segment.MatchString(table) {
		return "", "", false, errors.InvalidInput("target", fmt.Sprintf("%q is not a valid table name", table))
	}
	if hasID && !segment.MatchString(id) {
		return "", "", false, errors.InvalidInput("target", fmt.Sprintf("%q is not a valid row id", id))
	}
	return table, id, hasID, nil
}

// Query reads the rows of q's target and applies its selection, sort order
// and projection. Rows are ordered by the key column unless q names a sort
// order.
func (s *Source) Query(ctx context.Context, q source.Query) (source.Cursor, error) {
	if s.closed.Load() {
		return nil, errors.Closed("redis source")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	table, id, hasID, err := parseTarget(q.Target)
	if err != nil {
		return nil, err
	}

	if q.SortOrder == "" {
		q.SortOrder = s.cfg.KeyColumn
	}
	columns := newColumnSet(s.cfg.KeyColumn)
	if err := columns.addReferenced(q); err != nil {
		return nil, err
	}

	var keys []string
	if hasID {
		keys = []string{s.key(table, id)}
	} else {
		iter := s.rdb.Scan(ctx, 0, s.key(table, "*"), s.cfg.ScanCount).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Target, err)
		}
	}

	hashes, err := s.readHashes(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", q.Target, err)
	}

	prefix := s.key(table, "")
	rows := make([]map[string]any, 0, len(hashes))
	for i, h := range hashes {
		if len(h) == 0 {
			continue
		}
		row := make(map[string]any, len(h)+1)
		for f, v := range h {
			if f == s.cfg.KeyColumn {
				continue
			}
			row[f] = v
			columns.add(f)
		}
		row[s.cfg.KeyColumn] = strings.TrimPrefix(keys[i], prefix)
		rows = append(rows, row)
	}

	cols := columns.list()
	values := make([][]any, len(rows))
	for r, row := range rows {
		vals := make([]any, len(cols))
		for i, c := range cols {
			vals[i] = row[c]
		}
		values[r] = vals
	}
	return source.Apply(cols, values, q)
}

func (s *Source) readHashes(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]*goredis.MapStringStringCmd, len(keys))
	if _, err := s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.HGetAll(ctx, k)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	out := make([]map[string]string, len(cmds))
	for i, cmd := range cmds {
		out[i] = cmd.Val()
	}
	return out, nil
}

// Put writes fields into the row id of table and publishes "table/id".
// The key column, if present in fields, is ignored.
func (s *Source) Put(ctx context.Context, table, id string, fields map[string]any) error {
	if _, _, _, err := parseTarget(table + "/" + id); err != nil {
		return err
	}
	values := make(map[string]any, len(fields))
	for f, v := range fields {
		if f != s.cfg.KeyColumn {
			values[f] = v
		}
	}
	if len(values) == 0 {
		return errors.MissingField("fields")
	}
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, s.key(table, id), values)
		p.Publish(ctx, s.cfg.Channel, table+"/"+id)
		return nil
	})
	if err != nil {
		return errors.ExternalServiceError("redis", err)
	}
	return nil
}

// Remove deletes the row id of table and publishes "table/id".
func (s *Source) Remove(ctx context.Context, table, id string) error {
	if _, _, _, err := parseTarget(table + "/" + id); err != nil {
		return err
	}
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, s.key(table, id))
		p.Publish(ctx, s.cfg.Channel, table+"/"+id)
		return nil
	})
	if err != nil {
		return errors.ExternalServiceError("redis", err)
	}
	return nil
}

// Publish announces a change to target on the change channel. An empty
// target notifies every listener of every subscribed source.
func (s *Source) Publish(ctx context.Context, target string) error {
	if err := s.rdb.Publish(ctx, s.cfg.Channel, target).Err(); err != nil {
		return errors.ExternalServiceError("redis", err)
	}
	return nil
}

// Close stops change dispatch and closes the client.
func (s *Source) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.pubsub.Close()
	<-s.done
	if cerr := s.rdb.Close(); err == nil {
		err = cerr
	}
	s.log.Info("redis source closed")
	return err
}

// columnSet keeps the key column first and the rest sorted by name.
type columnSet struct {
	key  string
	seen map[string]bool
}

func newColumnSet(key string) *columnSet {
	return &columnSet{key: key, seen: map[string]bool{key: true}}
}

func (c *columnSet) add(col string) { c.seen[col] = true }

// addReferenced adds the columns q names, so a field absent from every
// row reads as nil instead of being unknown.
func (c *columnSet) addReferenced(q source.Query) error {
	for _, col := range q.Projection {
		c.add(col)
	}
	terms, err := source.ParseSortOrder(q.SortOrder)
	if err != nil {
		return err
	}
	for _, t := range terms {
		c.add(t.Column)
	}
	conds, err := source.ParseSelection(q.Selection, q.SelectionArgs)
	if err != nil {
		return err
	}
	for _, cond := range conds {
		c.add(cond.Column)
	}
	return nil
}

func (c *columnSet) list() []string {
	out := make([]string, 0, len(c.seen))
	for col := range c.seen {
		if col != c.key {
			out = append(out, col)
		}
	}
	sort.Strings(out)
	return append([]string{c.key}, out...)
}
