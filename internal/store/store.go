// Package store provides crash-safe checkpointing of the order registry
// using JSON files.
//
// The checkpoint is written as a single file: registry.json. Writes use
// atomic file replacement (write to .tmp, then rename) to prevent
// corruption from partial writes or crashes mid-save. The engine saves a
// checkpoint after every tick and loads it on startup so a restart doesn't
// begin from a cold registry before the exchange reconciliation pass
// (Registry.Refresh) completes — this is an operational recovery aid, not
// a trade-history archive.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spotmaker/internal/order"
	"spotmaker/internal/registry"
	"spotmaker/pkg/types"
)

// Store persists registry checkpoints to a JSON file in a designated
// directory. All operations are mutex-protected to prevent concurrent file
// corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// orderRecord is the on-disk shape of an order.Order. OppositeID resolves
// the opposite link by id on load, since order.Order holds a live pointer.
type orderRecord struct {
	ID         string           `json:"id"`
	ClientRef  string           `json:"client_ref"`
	Side       types.Side       `json:"side"`
	Price      decimal.Decimal  `json:"price"`
	Size       decimal.Decimal  `json:"size"`
	State      types.OrderState `json:"state"`
	OppositeID string           `json:"opposite_id,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Checkpoint is the persisted snapshot of Registry + Fills.
type Checkpoint struct {
	Orders []orderRecord `json:"orders"`
	Fills  []orderRecord `json:"fills"`
}

func toRecord(o *order.Order) orderRecord {
	rec := orderRecord{
		ID:        o.ID,
		ClientRef: o.ClientRef,
		Side:      o.Side,
		Price:     o.Price,
		Size:      o.Size,
		State:     o.State,
		CreatedAt: o.CreatedAt,
	}
	if o.Opposite != nil {
		rec.OppositeID = o.Opposite.ID
	}
	return rec
}

func fromRecord(rec orderRecord) *order.Order {
	o := order.New(rec.Side, rec.Price, rec.Size)
	o.ID = rec.ID
	o.ClientRef = rec.ClientRef
	o.State = rec.State
	o.CreatedAt = rec.CreatedAt
	return o
}

// Save atomically writes a checkpoint of reg's current orders and fills.
func (s *Store) Save(reg *registry.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := reg.All()
	cp := Checkpoint{Orders: make([]orderRecord, 0, len(all))}
	for _, o := range all {
		cp.Orders = append(cp.Orders, toRecord(o))
	}
	for _, f := range reg.AllFills() {
		cp.Fills = append(cp.Fills, toRecord(f))
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	path := filepath.Join(s.dir, "registry.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores a checkpoint into reg. Returns without error (a no-op) if
// no checkpoint file exists yet. Opposite links are resolved in a second
// pass once every order has been reconstructed, so link order doesn't
// matter.
func (s *Store) Load(reg *registry.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, "registry.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("unmarshal checkpoint: %w", err)
	}

	byID := make(map[string]*order.Order, len(cp.Orders)+len(cp.Fills))
	for _, rec := range cp.Orders {
		byID[rec.ID] = fromRecord(rec)
	}
	for _, rec := range cp.Fills {
		if _, exists := byID[rec.ID]; !exists {
			byID[rec.ID] = fromRecord(rec)
		}
	}

	link := func(recs []orderRecord) {
		for _, rec := range recs {
			if rec.OppositeID == "" {
				continue
			}
			if o, ok := byID[rec.ID]; ok {
				if opp, ok := byID[rec.OppositeID]; ok {
					o.Opposite = opp
				}
			}
		}
	}
	link(cp.Orders)
	link(cp.Fills)

	for _, rec := range cp.Orders {
		reg.Add(byID[rec.ID])
	}
	for _, rec := range cp.Fills {
		reg.AddFill(byID[rec.ID])
	}
	return nil
}
