package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"missionline/internal/domain"
)

// StreamMissions is the canonical mission stream. Artifacts and revenue
// signals follow the same append-only pattern as independent streams.
const (
	StreamMissions  = "missions"
	StreamArtifacts = "artifacts"
	StreamSignals   = "signals"
)

// maxLine bounds a single record on read. A record larger than this is
// treated as malformed and skipped.
const maxLine = 1 << 20

// Store manages the append-only JSON Lines streams under one directory.
// It is the single owner of durability: every append is flushed before the
// call returns, and nothing ever rewrites a stream file in place.
type Store struct {
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	streams map[string]*Stream
}

// Open creates the log directory if missing and returns a store over it.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:     dir,
		logger:  logger,
		streams: make(map[string]*Stream),
	}, nil
}

// Stream returns the named stream, creating its handle on first use.
// The stream file itself is created on the first append.
func (s *Store) Stream(name string) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streams[name]; ok {
		return st
	}
	st := &Stream{
		name:   name,
		path:   filepath.Join(s.dir, name+".jsonl"),
		logger: s.logger.With(zap.String("stream", name)),
	}
	s.streams[name] = st
	return st
}

// Missions is shorthand for the canonical mission stream.
func (s *Store) Missions() *Stream { return s.Stream(StreamMissions) }

// Dir returns the directory holding the stream files.
func (s *Store) Dir() string { return s.dir }

// Stream is one append-only JSON Lines file. Appends are serialized behind
// the stream mutex; reads re-scan the file from the start and may run
// concurrently with a writer, observing a prefix of the stream.
type Stream struct {
	name   string
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// Name returns the stream name.
func (st *Stream) Name() string { return st.name }

// Append serializes v as a single line and durably writes it. On success the
// record is visible to subsequent reads; on failure no partial record is
// visible (the line is written in one write call and synced).
func (st *Stream) Append(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if strings.ContainsRune(string(data), '\n') {
		return errors.New("record serializes across lines")
	}
	line := append(data, '\n')

	st.mu.Lock()
	defer st.mu.Unlock()
	f, err := os.OpenFile(st.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open stream %s: %w", st.name, err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append to stream %s: %w", st.name, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync stream %s: %w", st.name, err)
	}
	return nil
}

// Scan reads the stream from the start, calling fn with each raw line in
// append order. A missing stream file yields zero lines. An unterminated
// final line (a write in flight) is not surfaced.
func (st *Stream) Scan(ctx context.Context, fn func(line []byte) error) error {
	f, err := os.Open(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open stream %s: %w", st.name, err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := r.ReadBytes('\n')
		if err != nil {
			// Partial trailing line: a concurrent append not yet
			// terminated. Readers see a clean prefix.
			return nil
		}
		line = line[:len(line)-1]
		if len(line) == 0 {
			continue
		}
		if len(line) > maxLine {
			st.logger.Warn("skipping oversized log line", zap.Int("bytes", len(line)))
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}

// ReadRecords returns every well-formed mission record in append order.
// A line that fails to decode is skipped with a warning; one corrupt entry
// must never make the whole stream unreadable.
func (st *Stream) ReadRecords(ctx context.Context) ([]domain.MissionRecord, error) {
	var records []domain.MissionRecord
	lineNo := 0
	err := st.Scan(ctx, func(line []byte) error {
		lineNo++
		var rec domain.MissionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			st.logger.Warn("skipping malformed record",
				zap.Int("line", lineNo),
				zap.Error(err))
			return nil
		}
		if rec.MissionID == "" {
			st.logger.Warn("skipping record without mission_id", zap.Int("line", lineNo))
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ReadFor returns the records for one mission in append order.
func (st *Stream) ReadFor(ctx context.Context, missionID string) ([]domain.MissionRecord, error) {
	all, err := st.ReadRecords(ctx)
	if err != nil {
		return nil, err
	}
	var records []domain.MissionRecord
	for _, rec := range all {
		if rec.MissionID == missionID {
			records = append(records, rec)
		}
	}
	return records, nil
}

// Tail returns the raw JSON for the last n lines of the stream.
func (st *Stream) Tail(ctx context.Context, n int) ([]json.RawMessage, error) {
	var lines []json.RawMessage
	err := st.Scan(ctx, func(line []byte) error {
		cp := make([]byte, len(line))
		copy(cp, line)
		lines = append(lines, cp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
