// Package filesource is a Source over CSV files in a directory tree.
//
// A target is a slash separated path relative to the root. Querying a file
// target reads its header row as the column names and every other record
// as a row; a missing or empty file yields no rows. Subscribing watches the
// target's directory with fsnotify: a file target is notified when it is
// written, created, renamed or removed, and a directory target with
// notifyForDescendants hears about every file inside it.
package filesource

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/kbukum/queryflow/errors"
	"github.com/kbukum/queryflow/logger"
	"github.com/kbukum/queryflow/source"
)

// Source is an observable source of CSV files.
type Source struct {
	hub     *source.Hub
	cfg     Config
	root    string
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string]int

	closed atomic.Bool
	done   chan struct{}
	log    *logger.Logger
}

var _ source.Source = (*Source)(nil)

// Open starts watching for changes below cfg.Root.
func Open(cfg Config) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, errors.InvalidInput("root", err.Error())
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.NotFound("directory", root)
	}
	if !info.IsDir() {
		return nil, errors.InvalidInput("root", fmt.Sprintf("%s is not a directory", root))
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	s := &Source{
		hub:     source.NewHub("filesource"),
		cfg:     cfg,
		root:    root,
		watcher: w,
		watched: make(map[string]int),
		done:    make(chan struct{}),
		log:     logger.Get("filesource"),
	}
	go s.watch()

	s.log.Info("file source opened", logger.Fields("root", root))
	return s, nil
}

// Root returns the absolute root directory.
func (s *Source) Root() string { return s.root }

func (s *Source) resolve(target string) (string, error) {
	if target == "" {
		return "", errors.MissingField("target")
	}
	rel := filepath.Clean(filepath.FromSlash(target))
	if rel == "." || !filepath.IsLocal(rel) {
		return "", errors.InvalidInput("target", fmt.Sprintf("%q is not a path below the root", target))
	}
	return filepath.Join(s.root, rel), nil
}

// Query reads the CSV file named by q.Target and applies q's selection,
// sort order and projection.
func (s *Source) Query(ctx context.Context, q source.Query) (source.Cursor, error) {
	if s.closed.Load() {
		return nil, errors.Closed("file source")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	path, err := s.resolve(q.Target)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	header, records, err := s.read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", q.Target, err)
	}
	if header == nil {
		return nil, nil
	}
	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		rows[i] = row
	}
	return source.Apply(header, rows, q)
}

func (s *Source) read(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = firstRune(s.cfg.Comma)
	if s.cfg.Comment != "" {
		r.Comment = firstRune(s.cfg.Comment)
	}
	r.TrimLeadingSpace = s.cfg.TrimLeadingSpace

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return header, records, nil
}

// Subscribe registers listener for changes to target and starts watching
// the directory it lives in. The directory must exist; the file need not.
func (s *Source) Subscribe(target string, notifyForDescendants bool, listener func()) (source.Subscription, error) {
	if s.closed.Load() {
		return nil, errors.Closed("file source")
	}
	path, err := s.resolve(target)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		dir = path
	}
	if err := s.addWatch(dir); err != nil {
		return nil, err
	}
	rel, _ := filepath.Rel(s.root, path)
	sub, err := s.hub.Subscribe(filepath.ToSlash(rel), notifyForDescendants, listener)
	if err != nil {
		s.removeWatch(dir)
		return nil, err
	}
	return &subscription{Subscription: sub, s: s, dir: dir}, nil
}

func (s *Source) addWatch(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watched[dir] == 0 {
		if err := s.watcher.Add(dir); err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return errors.NotFound("directory", dir)
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		s.log.Debug("watching directory", logger.Fields("dir", dir))
	}
	s.watched[dir]++
	return nil
}

func (s *Source) removeWatch(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched[dir]--
	if s.watched[dir] > 0 {
		return
	}
	delete(s.watched, dir)
	if s.closed.Load() {
		return
	}
	if err := s.watcher.Remove(dir); err != nil {
		s.log.Debug("unwatch failed", logger.Fields("dir", dir, logger.FieldError, err.Error()))
	}
}

// Watched returns the number of directories being watched.
func (s *Source) Watched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watched)
}

type subscription struct {
	source.Subscription
	s    *Source
	dir  string
	once sync.Once
}

func (sub *subscription) Cancel() {
	sub.once.Do(func() {
		sub.Subscription.Cancel()
		sub.s.removeWatch(sub.dir)
	})
}

const changeOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

func (s *Source) watch() {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&changeOps == 0 {
				continue
			}
			rel, err := filepath.Rel(s.root, ev.Name)
			if err != nil || !filepath.IsLocal(rel) {
				continue
			}
			target := filepath.ToSlash(rel)
			n := s.hub.Notify(target)
			s.log.Debug("change notified", logger.Fields(
				logger.FieldTarget, target, "op", ev.Op.String(), logger.FieldSubscribers, n,
			))
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("watcher error", logger.Fields(logger.FieldError, err.Error()))
		}
	}
}

// Close stops watching. Registered listeners are no longer called.
func (s *Source) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.watcher.Close()
	<-s.done
	s.log.Info("file source closed", logger.Fields("root", s.root))
	return err
}
