// Package sqlsource is a Source over a SQL database accessed through GORM.
//
// Queries map onto GORM's query builder. Change notifications come from
// GORM callbacks: a create, update or delete on table t notifies target t,
// and a raw statement notifies every target because its scope is unknown.
// Only writes made through the same *gorm.DB are observed.
package sqlsource

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kbukum/queryflow/errors"
	"github.com/kbukum/queryflow/logger"
	"github.com/kbukum/queryflow/resilience"
	"github.com/kbukum/queryflow/source"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Source is a SQL-backed, observable Source.
type Source struct {
	*source.Hub

	db        *gorm.DB
	keyColumn string
	owned     bool
	closed    atomic.Bool
	log       *logger.Logger
}

var _ source.Source = (*Source)(nil)

// Open connects to the SQLite database in cfg, retrying failed attempts,
// and returns a Source that owns the connection.
func Open(ctx context.Context, cfg Config) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Get("sqlsource")

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries
	retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		log.Warn("database connection attempt failed, retrying", logger.Fields(
			"attempt", attempt, logger.FieldError, err.Error(), "backoff", backoff.String(),
		))
	}
	db, err := resilience.Retry(ctx, retry, func() (*gorm.DB, error) {
		return connect(ctx, cfg, log)
	})
	if err != nil {
		return nil, errors.ConnectionFailed("database", err)
	}

	s, err := newSource(db, cfg.KeyColumn, log)
	if err != nil {
		return nil, err
	}
	s.owned = true
	log.Info("database connection established", logger.Fields("dsn", cfg.DSN))
	return s, nil
}

func connect(ctx context.Context, cfg Config, log *logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: newGormLogger(log, cfg.SlowQueryThreshold, parseLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// New observes an existing GORM connection. The caller keeps ownership of
// db; Close only stops notifications.
func New(db *gorm.DB) (*Source, error) {
	if db == nil {
		return nil, errors.MissingField("db")
	}
	return newSource(db, "id", logger.Get("sqlsource"))
}

func newSource(db *gorm.DB, keyColumn string, log *logger.Logger) (*Source, error) {
	s := &Source{
		Hub:       source.NewHub("sqlsource"),
		db:        db,
		keyColumn: keyColumn,
		log:       log,
	}

	// GORM has no way to remove a callback, so Close only disables it.
	name := "queryflow:notify:" + uuid.NewString()
	cb := db.Callback()
	for _, err := range []error{
		cb.Create().After("gorm:commit_or_rollback_transaction").Register(name, s.afterWrite),
		cb.Update().After("gorm:commit_or_rollback_transaction").Register(name, s.afterWrite),
		cb.Delete().After("gorm:commit_or_rollback_transaction").Register(name, s.afterWrite),
		cb.Raw().After("gorm:raw").Register(name, s.afterRaw),
	} {
		if err != nil {
			return nil, fmt.Errorf("register change callback: %w", err)
		}
	}
	return s, nil
}

// DB returns the underlying connection. Writes made through it are
// observed.
func (s *Source) DB() *gorm.DB { return s.db }

// Query runs q against the table named by its target. A "<table>/<id>"
// target selects the row whose key column equals id.
func (s *Source) Query(ctx context.Context, q source.Query) (source.Cursor, error) {
	if s.closed.Load() {
		return nil, errors.Closed("sql source")
	}
	table, key, hasKey := strings.Cut(q.Target, "/")
	if !identifier.MatchString(table) {
		return nil, errors.InvalidInput("target", fmt.Sprintf("%q is not a table name", table))
	}
	for _, col := range q.Projection {
		if !identifier.MatchString(col) {
			return nil, errors.InvalidInput("projection", fmt.Sprintf("%q is not a column name", col))
		}
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	tx := s.db.WithContext(ctx).Table(table)
	if len(q.Projection) > 0 {
		tx = tx.Select(q.Projection)
	}
	if hasKey {
		tx = tx.Where(s.keyColumn+" = ?", key)
	}
	if q.Selection != "" {
		tx = tx.Where(q.Selection, q.SelectionArgs...)
	}
	if q.SortOrder != "" {
		tx = tx.Order(q.SortOrder)
	}

	rows, err := tx.Rows()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Target, err)
	}
	return rows, nil
}

// Close stops change notifications and, for a source created by Open,
// closes the connection.
func (s *Source) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !s.owned {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Source) afterWrite(tx *gorm.DB) {
	if s.closed.Load() || tx.Error != nil || tx.Statement.Table == "" {
		return
	}
	n := s.Notify(tx.Statement.Table)
	s.log.Debug("change notified", logger.Fields(logger.FieldTarget, tx.Statement.Table, logger.FieldSubscribers, n))
}

func (s *Source) afterRaw(tx *gorm.DB) {
	if s.closed.Load() || tx.Error != nil {
		return
	}
	n := s.NotifyAll()
	s.log.Debug("raw statement notified all targets", logger.Fields(logger.FieldSubscribers, n))
}
