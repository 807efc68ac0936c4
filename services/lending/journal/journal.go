package journal

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"

	"creditpool/core/events"
	"creditpool/core/types"
)

var (
	bucketEntries = []byte("entries")
	bucketMeta    = []byte("meta")
	keyHead       = []byte("head")

	// ErrChainBroken is returned by Verify when a stored entry does not link to
	// its predecessor.
	ErrChainBroken = errors.New("journal: hash chain broken")
)

// DefaultListLimit bounds List when the caller does not supply a limit.
const DefaultListLimit = 100

// Entry is a committed event together with its position in the hash chain.
type Entry struct {
	Seq        uint64            `json:"seq"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
	PrevHash   string            `json:"prevHash"`
	Hash       string            `json:"hash"`
}

// Journal is an append-only event log persisted in bbolt. Every entry commits
// to the hash of the previous one so tampering is detectable with Verify.
type Journal struct {
	db     *bolt.DB
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	head [32]byte
}

// Open creates or reopens the journal stored at path.
func Open(path string, options *bolt.Options) (*Journal, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	j := &Journal{db: db, logger: slog.Default(), now: time.Now}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntries, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		if raw := tx.Bucket(bucketMeta).Get(keyHead); len(raw) == len(j.head) {
			copy(j.head[:], raw)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// SetLogger overrides the logger used to report append failures from Emit.
func (j *Journal) SetLogger(logger *slog.Logger) {
	if logger != nil {
		j.logger = logger
	}
}

// Close releases the underlying bbolt handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Emit implements events.Emitter. Append failures are logged because emitters
// cannot report errors back to the engine.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || evt == nil {
		return
	}
	if _, err := j.Append(evt.Event()); err != nil {
		j.logger.Error("journal append failed", "type", evt.EventType(), "error", err)
	}
}

// Append stores the flattened event and returns the resulting entry.
func (j *Journal) Append(evt *types.Event) (Entry, error) {
	if evt == nil {
		return Entry{}, fmt.Errorf("journal: nil event")
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	var (
		entry Entry
		next  [32]byte
	)
	err := j.db.Update(func(tx *bolt.Tx) error {
		var err error
		entry, next, err = j.put(tx, evt)
		return err
	})
	if err != nil {
		return Entry{}, fmt.Errorf("journal: append %s: %w", evt.Type, err)
	}
	j.head = next
	return entry, nil
}

// put writes the next chained entry inside tx. The cached head is left alone
// so a rolled back transaction cannot desynchronise it.
func (j *Journal) put(tx *bolt.Tx, evt *types.Event) (Entry, [32]byte, error) {
	bucket := tx.Bucket(bucketEntries)
	seq, err := bucket.NextSequence()
	if err != nil {
		return Entry{}, [32]byte{}, err
	}
	entry := Entry{
		Seq:        seq,
		ID:         uuid.NewString(),
		Type:       evt.Type,
		Attributes: copyAttributes(evt.Attributes),
		RecordedAt: j.now().UTC(),
		PrevHash:   hex.EncodeToString(j.head[:]),
	}
	sum, err := chainHash(j.head, entry)
	if err != nil {
		return Entry{}, [32]byte{}, err
	}
	entry.Hash = hex.EncodeToString(sum[:])
	encoded, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, [32]byte{}, err
	}
	if err := bucket.Put(seqKey(seq), encoded); err != nil {
		return Entry{}, [32]byte{}, err
	}
	if err := tx.Bucket(bucketMeta).Put(keyHead, sum[:]); err != nil {
		return Entry{}, [32]byte{}, err
	}
	return entry, sum, nil
}

// List returns up to limit entries with a sequence strictly greater than after.
func (j *Journal) List(after uint64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	out := make([]Entry, 0)
	err := j.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketEntries).Cursor()
		for k, v := cursor.Seek(seqKey(after + 1)); k != nil && len(out) < limit; k, v = cursor.Next() {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Head returns the hex-encoded hash of the most recent entry.
func (j *Journal) Head() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return hex.EncodeToString(j.head[:])
}

// Verify walks the full journal and recomputes every link of the hash chain.
func (j *Journal) Verify() error {
	return j.db.View(func(tx *bolt.Tx) error {
		var prev [32]byte
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if entry.PrevHash != hex.EncodeToString(prev[:]) {
				return fmt.Errorf("%w at seq %d", ErrChainBroken, entry.Seq)
			}
			sum, err := chainHash(prev, entry)
			if err != nil {
				return err
			}
			if entry.Hash != hex.EncodeToString(sum[:]) {
				return fmt.Errorf("%w at seq %d", ErrChainBroken, entry.Seq)
			}
			prev = sum
			return nil
		})
	})
}

type hashInput struct {
	Seq        uint64            `json:"seq"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt int64             `json:"recordedAt"`
}

func chainHash(prev [32]byte, entry Entry) ([32]byte, error) {
	payload, err := json.Marshal(hashInput{
		Seq:        entry.Seq,
		ID:         entry.ID,
		Type:       entry.Type,
		Attributes: entry.Attributes,
		RecordedAt: entry.RecordedAt.UnixNano(),
	})
	if err != nil {
		return [32]byte{}, err
	}
	buf := make([]byte, 0, len(prev)+len(payload))
	buf = append(buf, prev[:]...)
	buf = append(buf, payload...)
	return blake3.Sum256(buf), nil
}

func seqKey(seq uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	return key[:]
}

func copyAttributes(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
