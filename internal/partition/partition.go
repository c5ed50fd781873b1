// Package partition implements one shard's storage engine: a bounded
// in-memory hot write buffer backed by a crash-recoverable append-only
// cold log on disk, per the self-describing binary record format in
// internal/serializer.
package partition

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mrfiwd/tieredkv/internal/serializer"
)

// HotStorageLimit is the number of distinct keys the hot buffer may hold
// before a put triggers a flush to the cold log.
const HotStorageLimit = 5

// Role is whether this replica of a partition accepts writes directly
// (Leader) or only receives them via replication (Follower).
type Role int

const (
	RoleLeader Role = iota
	RoleFollower
)

func (r Role) String() string {
	if r == RoleLeader {
		return "leader"
	}
	return "follower"
}

// Location is where a key currently lives, as observed by Location().
type Location int

const (
	NotFound Location = iota
	Hot
	Cold
)

// ReplicationSink is how a leader partition asks its owning node to fan
// a write out to followers, without the partition importing the node
// package.
type ReplicationSink interface {
	Replicate(partitionID int, key string, value serializer.Value)
}

// ErrNotFound is returned by Get and RawBytes when a key has never been
// put (or was only ever put in a segment this partition didn't recover).
// RawBytes also returns it for a key that is only in the hot buffer.
var ErrNotFound = errors.New("partition: key not found")

// Partition owns one shard's hot map, cold index, and log file. All
// exported methods are safe for concurrent use.
type Partition struct {
	id      int
	role    Role
	dataDir string
	logPath string
	sink    ReplicationSink
	logger  zerolog.Logger

	mu     sync.Mutex
	hot    *orderedValues
	cold   map[string]int64 // key -> frame start offset in the log
	closed bool
}

// New constructs a partition rooted at <dataDir>/partition_<id>, creating
// the directory if needed and rebuilding the cold index from any
// existing segment.log (see recovery.go).
func New(id int, dataDir string, role Role, sink ReplicationSink, logger zerolog.Logger) (*Partition, error) {
	dir := filepath.Join(dataDir, fmt.Sprintf("partition_%d", id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("partition %d: create data dir: %w", id, err)
	}
	p := &Partition{
		id:      id,
		role:    role,
		dataDir: dir,
		logPath: filepath.Join(dir, "segment.log"),
		sink:    sink,
		logger:  logger.With().Int("partition_id", id).Str("role", role.String()).Logger(),
		hot:     newOrderedValues(),
		cold:    make(map[string]int64),
	}
	if err := p.recover(); err != nil {
		return nil, err
	}
	return p, nil
}

// ID returns the partition's id.
func (p *Partition) ID() int { return p.id }

// Role reports whether this replica is a leader or follower.
func (p *Partition) Role() Role {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.role
}

// Put inserts (key, value) into the hot buffer, flushing to cold storage
// if the buffer has reached HotStorageLimit. If this partition is a
// leader, the write is fanned out to followers asynchronously after the
// local write lands in the hot buffer.
func (p *Partition) Put(key string, value serializer.Value) error {
	p.mu.Lock()
	p.hot.put(key, value)
	shouldFlush := p.hot.len() >= HotStorageLimit
	role := p.role
	p.mu.Unlock()

	if shouldFlush {
		if err := p.Flush(); err != nil {
			return err
		}
	}

	if role == RoleLeader && p.sink != nil {
		p.sink.Replicate(p.id, key, value)
	}
	return nil
}

// Get looks up key: hot first, then cold. It returns the decoded logical
// value, not the raw tagged wrapper bytes.
func (p *Partition) Get(key string) (serializer.Value, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.hot.get(key); ok {
		return v, nil
	}
	offset, ok := p.cold[key]
	if !ok {
		return serializer.Value{}, ErrNotFound
	}
	f, err := p.readFrameLocked(offset)
	if err != nil {
		return serializer.Value{}, err
	}
	return serializer.Decode(f.valueBytes)
}

// Location reports whether key is currently in hot storage, cold
// storage, or has never been put.
func (p *Partition) Location(key string) Location {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.hot.get(key); ok {
		return Hot
	}
	if _, ok := p.cold[key]; ok {
		return Cold
	}
	return NotFound
}

// RawBytes returns the raw encoded value bytes (schema version byte plus
// payload) for key as they sit in the cold log, with no decoding. Unlike
// Get, it only consults cold storage: it is an inspection hook onto the
// on-disk format, not a general read path.
func (p *Partition) RawBytes(key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset, ok := p.cold[key]
	if !ok {
		return nil, ErrNotFound
	}
	f, err := p.readFrameLocked(offset)
	if err != nil {
		return nil, err
	}
	return f.valueBytes, nil
}

// readFrameLocked reads the frame at offset. Caller must hold p.mu.
func (p *Partition) readFrameLocked(offset int64) (frame, error) {
	file, err := os.Open(p.logPath)
	if err != nil {
		return frame{}, fmt.Errorf("partition %d: open log for read: %w", p.id, err)
	}
	defer file.Close()
	return readFrameAt(file, offset)
}

// HotKeys returns a snapshot of the keys currently in the hot buffer, in
// insertion order. Used by the node's INSPECT command.
func (p *Partition) HotKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hot.keysSnapshot()
}

// Flush is idempotent: if hot is empty it returns immediately. Otherwise
// it drains a snapshot of hot into the cold log and clears hot. The
// snapshot-and-clear happens under the lock; the disk writes happen
// without holding it, and the lock is reacquired briefly after each
// per-key append to record its offset, so reads stay non-blocking
// during a long flush.
func (p *Partition) Flush() error {
	p.mu.Lock()
	if p.hot.len() == 0 {
		p.mu.Unlock()
		return nil
	}
	snapshot := p.hot.snapshot()
	p.hot.clear()
	p.mu.Unlock()

	file, err := os.OpenFile(p.logPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("partition %d: open log for flush: %w", p.id, err)
	}
	defer file.Close()
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("partition %d: seek to end of log: %w", p.id, err)
	}

	for _, kv := range snapshot {
		encoded, err := serializer.Encode(kv.value)
		if err != nil {
			p.logger.Error().Err(err).Str("key", kv.key).Msg("flush: encode failed, key dropped from this batch")
			continue
		}
		offset, err := writeFrame(file, frame{key: kv.key, valueBytes: encoded})
		if err != nil {
			return fmt.Errorf("partition %d: flush: %w", p.id, err)
		}
		p.mu.Lock()
		p.cold[kv.key] = offset
		p.mu.Unlock()
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("partition %d: fsync log: %w", p.id, err)
	}
	p.logger.Debug().Int("count", len(snapshot)).Msg("flushed hot buffer to cold log")
	return nil
}

// Close flushes any remaining hot entries and marks the partition
// closed. It is safe to call once; a second call is a no-op.
func (p *Partition) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.logger.Info().Msg("flushing remaining data before close")
	return p.Flush()
}
