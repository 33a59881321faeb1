package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/ledger-upload/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.ledger-upload/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	resultsBucket       = []byte("results")
	verificationsBucket = []byte("verifications")
)

// ResultRecord is one file's upload result as it was recorded after its
// batch completed.
type ResultRecord struct {
	Seq          uint64              `json:"seq"`
	SubmissionID string              `json:"submission_id"`
	RecordedAt   time.Time           `json:"recorded_at"`
	Result       models.UploadResult `json:"result"`
}

// VerificationRecord is one verification verdict.
type VerificationRecord struct {
	Seq        uint64                    `json:"seq"`
	FileName   string                    `json:"file_name"`
	RecordedAt time.Time                 `json:"recorded_at"`
	Result     models.VerificationResult `json:"result"`
}

// State wraps a bbolt database holding local upload and verification
// history. The backend remains the source of truth; this is a log of
// what this client saw.
type State struct {
	db  *bolt.DB
	now func() time.Time
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(resultsBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(verificationsBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// seqKey encodes a bucket sequence as a big-endian key so cursor order
// matches insertion order.
func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)

	return k
}

// AppendResults records every result of a completed batch under
// submissionID. All results are written in one transaction.
func (s *State) AppendResults(submissionID string, results []models.UploadResult) error {
	if len(results) == 0 {
		return nil
	}

	at := s.now().UTC()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(resultsBucket)

		for _, r := range results {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}

			data, err := json.Marshal(ResultRecord{
				Seq:          seq,
				SubmissionID: submissionID,
				RecordedAt:   at,
				Result:       r,
			})
			if err != nil {
				return err
			}

			if err := b.Put(seqKey(seq), data); err != nil {
				return err
			}
		}

		return nil
	})
}

// Results returns up to limit records, newest first. A limit of zero or
// less returns everything.
func (s *State) Results(limit int) ([]ResultRecord, error) {
	var out []ResultRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		return newestFirst(tx.Bucket(resultsBucket), limit, func(v []byte) error {
			var r ResultRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}

			out = append(out, r)

			return nil
		})
	})

	return out, err
}

// RecordVerification stores a verification verdict for fileName.
func (s *State) RecordVerification(fileName string, res models.VerificationResult) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(verificationsBucket)

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		data, err := json.Marshal(VerificationRecord{
			Seq:        seq,
			FileName:   fileName,
			RecordedAt: s.now().UTC(),
			Result:     res,
		})
		if err != nil {
			return err
		}

		return b.Put(seqKey(seq), data)
	})
}

// Verifications returns up to limit verification records, newest first.
func (s *State) Verifications(limit int) ([]VerificationRecord, error) {
	var out []VerificationRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		return newestFirst(tx.Bucket(verificationsBucket), limit, func(v []byte) error {
			var r VerificationRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}

			out = append(out, r)

			return nil
		})
	})

	return out, err
}

// ResultCount returns the number of recorded upload results.
func (s *State) ResultCount() int {
	count := 0
	_ = s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(resultsBucket).Stats().KeyN
		return nil
	})

	return count
}

func newestFirst(b *bolt.Bucket, limit int, fn func(v []byte) error) error {
	c := b.Cursor()
	n := 0

	for k, v := c.Last(); k != nil; k, v = c.Prev() {
		if limit > 0 && n >= limit {
			break
		}

		if err := fn(v); err != nil {
			return err
		}

		n++
	}

	return nil
}
