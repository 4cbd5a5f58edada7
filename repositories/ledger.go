package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"capital-bot/calc"
	"capital-bot/domain"
	apperrors "capital-bot/errors"
)

// descriptionKey is a reserved top-level key of the ledger file; every other
// key is a group id.
const descriptionKey = "_description"

const descriptionValue = "资金管理数据文件 2.0"

// LedgerRepository persists every group ledger in one JSON file. Each call
// re-reads the whole store, mutates one group and atomically rewrites the
// file (temp + rename), so the last successful write wins. The mutex
// serializes the read-modify-write cycle across goroutines.
type LedgerRepository struct {
	path       string
	maxHistory int
	log        *slog.Logger
	mu         sync.Mutex
	now        func() time.Time
}

func NewLedgerRepository(path string, maxHistory int, log *slog.Logger) *LedgerRepository {
	return &LedgerRepository{path: path, maxHistory: maxHistory, log: log, now: time.Now}
}

// Get returns the ledger for a group, lazily creating and persisting a
// zeroed one on first access.
func (r *LedgerRepository) Get(groupID string) (domain.GroupLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	store := r.load()
	ledger, ok, err := decodeGroup(store, groupID)
	if err != nil {
		return domain.GroupLedger{}, err
	}
	if !ok {
		ledger = domain.NewGroupLedger(r.now().UTC())
		if err := r.saveGroup(store, groupID, ledger); err != nil {
			return domain.GroupLedger{}, err
		}
	}
	return ledger, nil
}

// UpdateCapital is the only mutation primitive: it appends a history record,
// trims history from the front, updates capital and statistics, and persists
// the whole store. All balance changes funnel through here.
func (r *LedgerRepository) UpdateCapital(groupID string, newValue float64, operation string, user *domain.UserInfo) (domain.HistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	store := r.load()
	ledger, ok, err := decodeGroup(store, groupID)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	if !ok {
		ledger = domain.NewGroupLedger(r.now().UTC())
	}

	newValue = calc.Round4(newValue)
	record := domain.HistoryRecord{
		ID:        uuid.NewString(),
		Timestamp: r.now().UTC(),
		Operation: operation,
		OldValue:  ledger.Capital,
		NewValue:  newValue,
		Change:    calc.Round4(newValue - ledger.Capital),
		User:      user,
	}

	ledger.History = append(ledger.History, record)
	if len(ledger.History) > r.maxHistory {
		ledger.History = ledger.History[len(ledger.History)-r.maxHistory:]
	}
	ledger.Capital = newValue
	ledger.Statistics.TotalOperations++
	ledger.Statistics.LastOperation = &record

	if err := r.saveGroup(store, groupID, ledger); err != nil {
		return domain.HistoryRecord{}, err
	}
	return record, nil
}

// History returns the last limit records, oldest to newest.
func (r *LedgerRepository) History(groupID string, limit int) ([]domain.HistoryRecord, error) {
	ledger, err := r.Get(groupID)
	if err != nil {
		return nil, err
	}
	history := ledger.History
	if limit >= 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

// Clear resets capital to 0, empties history and resets statistics.
func (r *LedgerRepository) Clear(groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	store := r.load()
	ledger, ok, err := decodeGroup(store, groupID)
	if err != nil {
		return err
	}
	if !ok {
		ledger = domain.NewGroupLedger(r.now().UTC())
	} else {
		ledger.Capital = 0
		ledger.History = []domain.HistoryRecord{}
		ledger.Statistics.TotalOperations = 0
		ledger.Statistics.LastOperation = nil
	}
	return r.saveGroup(store, groupID, ledger)
}

// GroupIDs lists every group present in the store, sorted.
func (r *LedgerRepository) GroupIDs() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	store := r.load()
	ids := make([]string, 0, len(store))
	for id := range store {
		if id != descriptionKey {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// load reads the whole backing file. A missing or unreadable file yields an
// empty store: the next successful write recreates it.
func (r *LedgerRepository) load() map[string]json.RawMessage {
	store := map[string]json.RawMessage{}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Error("Failed to read ledger store", "path", r.path, "err", err)
		}
		return store
	}
	if err := json.Unmarshal(data, &store); err != nil {
		r.log.Error("Ledger store is corrupt, starting from empty", "path", r.path, "err", err)
		return map[string]json.RawMessage{}
	}
	return store
}

func decodeGroup(store map[string]json.RawMessage, groupID string) (domain.GroupLedger, bool, error) {
	raw, ok := store[groupID]
	if !ok || groupID == descriptionKey {
		return domain.GroupLedger{}, false, nil
	}
	var ledger domain.GroupLedger
	if err := json.Unmarshal(raw, &ledger); err != nil {
		return domain.GroupLedger{}, false, fmt.Errorf("decode group %s: %w", groupID, err)
	}
	return ledger, true, nil
}

// saveGroup rewrites the whole store with one group replaced, via a temp
// file and rename so readers never observe a partial write.
func (r *LedgerRepository) saveGroup(store map[string]json.RawMessage, groupID string, ledger domain.GroupLedger) error {
	raw, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreWrite, err)
	}
	store[groupID] = raw
	if _, ok := store[descriptionKey]; !ok {
		description, _ := json.Marshal(descriptionValue)
		store[descriptionKey] = description
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreWrite, err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, "capital-*.json")
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreWrite, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", apperrors.ErrStoreWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", apperrors.ErrStoreWrite, err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", apperrors.ErrStoreWrite, err)
	}
	return nil
}
