// Package store persists registered users and extraction history in Bolt.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/boltdb/bolt"
)

var (
	usersBucket   = []byte("users")   // user id -> User
	historyBucket = []byte("history") // user id -> nested bucket of sequence -> HistoryRecord
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("store: closed")

// User is a registered chat user.
type User struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Username     string    `json:"username"`
	RegisteredAt time.Time `json:"registered_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Stats summarizes the user registry.
type Stats struct {
	Total           int
	WithUsername    int
	WithoutUsername int
}

// HistoryRecord is one extraction request outcome.
type HistoryRecord struct {
	UserID    int64         `json:"user_id"`
	FileName  string        `json:"file_name"`
	Digest    string        `json:"digest,omitempty"`
	Success   bool          `json:"success"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Files     int           `json:"files"`
	Videos    int           `json:"videos"`
	Images    int           `json:"images"`
	Sent      int           `json:"sent"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// Store wraps a Bolt database.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens or creates the database at path and ensures its buckets exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{usersBucket, historyBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure buckets: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Register records u if unseen. It reports whether the user is new and the
// total number of registered users afterwards.
func (s *Store) Register(u User) (created bool, total int, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(usersBucket)
		key := id2key(u.ID)
		if b.Get(key) == nil {
			if u.RegisteredAt.IsZero() {
				u.RegisteredAt = s.now().UTC()
			}
			data, err := json.Marshal(u)
			if err != nil {
				return err
			}
			if err := b.Put(key, data); err != nil {
				return err
			}
			created = true
		}
		total = countKeys(b)
		return nil
	})
	if err != nil {
		return false, 0, translate(err)
	}
	return created, total, nil
}

// User returns a registered user.
func (s *Store) User(id int64) (User, bool, error) {
	var u User
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(usersBucket).Get(id2key(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &u)
	})
	return u, found, translate(err)
}

// Count returns the number of registered users.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = countKeys(tx.Bucket(usersBucket))
		return nil
	})
	return n, translate(err)
}

// Stats counts users with and without a username.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(usersBucket).ForEach(func(_, v []byte) error {
			var u User
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			st.Total++
			if u.Username != "" {
				st.WithUsername++
			} else {
				st.WithoutUsername++
			}
			return nil
		})
	})
	return st, translate(err)
}

// RecordExtraction appends rec to the user's history.
func (s *Store) RecordExtraction(rec HistoryRecord) error {
	if rec.At.IsZero() {
		rec.At = s.now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return translate(s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(historyBucket).CreateBucketIfNotExists(id2key(rec.UserID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seq2key(seq), data)
	}))
}

// History returns up to limit records for userID, newest first. A limit of
// zero or less returns everything.
func (s *Store) History(userID int64, limit int) ([]HistoryRecord, error) {
	var out []HistoryRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(historyBucket).Bucket(id2key(userID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var rec HistoryRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, translate(err)
}

// countKeys walks the bucket; Bucket.Stats misses uncommitted writes.
func countKeys(b *bolt.Bucket) int {
	var n int
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

func translate(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

func id2key(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}

// seq2key encodes big-endian so cursor order is insertion order.
func seq2key(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
