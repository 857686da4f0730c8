package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
)

// AppendResult is the outcome of RecordStore.Append. Rejections are normal
// traffic, not errors.
type AppendResult int

const (
	Stored AppendResult = iota
	DuplicateRejected
	StaleRejected
)

func (r AppendResult) String() string {
	switch r {
	case Stored:
		return "stored"
	case DuplicateRejected:
		return "duplicate"
	case StaleRejected:
		return "stale"
	default:
		return "unknown"
	}
}

// IDExtractor returns the natural id of a record.
type IDExtractor func(models.Record) string

const delimiter = ','

// ErrMirror marks an Append whose log write succeeded but whose mirror failed.
var ErrMirror = errors.New("mirror failed")

// ErrEmptyID rejects records whose id sanitizes to nothing.
var ErrEmptyID = errors.New("record has empty id")

// StoreConfig locates one (exchange, symbol, metric) log.
type StoreConfig struct {
	Dir           string
	Exchange      string
	Symbol        string
	Metric        models.Metric
	IntervalToken string // kline logs only
	Capacity      int    // recency buffer size
	Truncate      bool   // empty a pre-existing log on open
}

// LogPath is <dir>/<exchange>/<metric>/<symbol>[_<interval>].csv.
func LogPath(cfg StoreConfig) string {
	name := strings.ToLower(cfg.Symbol)
	if cfg.IntervalToken != "" {
		name += "_" + cfg.IntervalToken
	}
	return filepath.Join(cfg.Dir, cfg.Exchange, string(cfg.Metric), sanitizeName(name)+".csv")
}

// RecordStore is an append-only CSV log with windowed duplicate suppression.
// One store belongs to exactly one task.
type RecordStore struct {
	cfg    StoreConfig
	path   string
	mirror drepo.RecordMirror

	mu      sync.Mutex
	f       *os.File
	w       *csv.Writer
	seen    *RecencyBuffer
	lastSeq int64
	hasSeq  bool
	rows    int64
}

// OpenRecordStore creates the log if absent. An existing log is kept and its
// newest ids seed the recency buffer, unless cfg.Truncate is set.
// mirror may be nil.
func OpenRecordStore(cfg StoreConfig, mirror drepo.RecordMirror) (*RecordStore, error) {
	s := &RecordStore{
		cfg:    cfg,
		path:   LogPath(cfg),
		mirror: mirror,
		seen:   NewRecencyBuffer(cfg.Capacity),
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if !cfg.Truncate {
		if err := s.seed(); err != nil {
			return nil, err
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if cfg.Truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(s.path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	s.f = f
	s.w = csv.NewWriter(f)
	s.w.Comma = delimiter
	return s, nil
}

// seed replays the tail of an existing log into the recency buffer.
func (s *RecordStore) seed() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read log %s: %w", s.path, err)
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}
		s.seen.Add(row[0])
		s.rows++
		if s.cfg.Metric == models.MetricKlines {
			if seq, err := strconv.ParseInt(row[0], 10, 64); err == nil && (!s.hasSeq || seq > s.lastSeq) {
				s.lastSeq, s.hasSeq = seq, true
			}
		}
	}
}

func (s *RecordStore) Path() string { return s.path }

// Rows is the number of rows in the log, including rows found on open.
func (s *RecordStore) Rows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Append writes rec unless its id is in the recency window or, for
// sequenced records, it is older than the last stored one.
// The id is registered before the write is attempted.
func (s *RecordStore) Append(ctx context.Context, rec models.Record, idOf IDExtractor) (AppendResult, error) {
	if idOf == nil {
		idOf = models.RecordID
	}
	id := sanitize(idOf(rec))

	s.mu.Lock()
	if s.f == nil {
		s.mu.Unlock()
		return Stored, errors.New("record store closed")
	}
	if id == "" {
		s.mu.Unlock()
		return Stored, ErrEmptyID
	}
	if s.seen.Contains(id) {
		s.mu.Unlock()
		return DuplicateRejected, nil
	}
	sq, sequenced := rec.(models.Sequenced)
	if sequenced && s.hasSeq && sq.SequenceKey() < s.lastSeq {
		s.mu.Unlock()
		return StaleRejected, nil
	}

	s.seen.Add(id)
	if sequenced {
		s.lastSeq, s.hasSeq = sq.SequenceKey(), true
	}
	fields := sanitizeFields(rec.Fields())
	err := s.w.Write(fields)
	if err == nil {
		s.w.Flush()
		err = s.w.Error()
	}
	if err == nil {
		s.rows++
	}
	s.mu.Unlock()

	if err != nil {
		return Stored, fmt.Errorf("append %s: %w", s.path, err)
	}

	if s.mirror != nil {
		env := models.Envelope{
			Exchange: s.cfg.Exchange,
			Symbol:   s.cfg.Symbol,
			Metric:   s.cfg.Metric,
			Interval: s.cfg.IntervalToken,
			ID:       id,
			Time:     models.RecordTime(rec),
			Fields:   fields,
		}
		if err := s.mirror.Mirror(ctx, env); err != nil {
			return Stored, fmt.Errorf("%w: %w", ErrMirror, err)
		}
	}
	return Stored, nil
}

// Close flushes and closes the log. The recency buffer is dropped.
func (s *RecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	s.w.Flush()
	werr := s.w.Error()
	cerr := s.f.Close()
	s.f, s.w, s.seen = nil, nil, nil
	return errors.Join(werr, cerr)
}

var fieldReplacer = strings.NewReplacer("\n", "", "\r", "", string(delimiter), "")

// sanitize keeps a value on one row and inside one column.
func sanitize(v string) string {
	return strings.TrimSpace(fieldReplacer.Replace(v))
}

func sanitizeFields(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = sanitize(v)
	}
	return out
}

func sanitizeName(v string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '-'
		}
		return r
	}, v)
}
