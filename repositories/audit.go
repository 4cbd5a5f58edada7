package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"capital-bot/domain"
	"capital-bot/domain/event"
)

type AuditEntry struct {
	ID      string           `json:"id"`
	Type    event.Type       `json:"type"`
	GroupID string           `json:"groupId,omitempty"`
	Action  string           `json:"action,omitempty"`
	User    *domain.UserInfo `json:"user,omitempty"`
	Detail  string           `json:"detail,omitempty"`
	At      time.Time        `json:"at"`
}

// AuditRepository keeps a queryable trail of operations and rejected access
// attempts in BadgerDB.
type AuditRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewAuditRepository(db *badger.DB, log *slog.Logger) AuditRepository {
	return AuditRepository{db: db, log: log}
}

// Store persists an entry under "audit:{timestamp_padded}:{uuid}".
// The 19-digit zero padding keeps keys in chronological lexicographical
// order; the UUID disambiguates entries written in the same nanosecond.
func (r AuditRepository) Store(entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	key := fmt.Sprintf("audit:%019d:%s", entry.At.UnixNano(), entry.ID)
	bytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// Recent returns up to limit entries, newest first, using a reverse prefix
// scan.
func (r AuditRepository) Recent(limit int) ([]AuditEntry, error) {
	var raw [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("audit:")
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(raw) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]AuditEntry, 0, len(raw))
	for _, b := range raw {
		var entry AuditEntry
		if err := json.Unmarshal(b, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
