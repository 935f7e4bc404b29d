package simstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bfxgate/internal/domain"
)

const defaultStateDir = "./wal/simulate"

// Store persists paper trading state per market so restarts keep balances and resting orders.
type Store struct {
	path string
}

// NewStore creates a state store under dir for the pair traded against venue's market data.
func NewStore(dir, venue string, pair domain.Pair) (*Store, error) {
	if dir == "" {
		dir = defaultStateDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create simulate state dir")
	}

	name := sanitizeScope(venue + "_" + pair.String())
	if name == "" {
		return nil, fmt.Errorf("empty simulate state name for %q %q", venue, pair)
	}

	return &Store{path: filepath.Join(dir, name+".json")}, nil
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// State all persisted paper trading data. Decimals are stored as strings.
type State struct {
	Pair   string                 `json:"pair"`
	Wallet map[string]string      `json:"wallet"`
	Orders map[string]StoredOrder `json:"orders,omitempty"`
	NextID uint64                 `json:"next_id"`
}

// StoredOrder a resting paper order.
type StoredOrder struct {
	Side   domain.Side `json:"side"`
	Amount string      `json:"amount"`
	Price  string      `json:"price"`
	Placed time.Time   `json:"placed"`
}

// NewStoredOrder converts order fields into their stored representation.
func NewStoredOrder(side domain.Side, amount, price decimal.Decimal, placed time.Time) StoredOrder {
	return StoredOrder{Side: side, Amount: amount.String(), Price: price.String(), Placed: placed}
}

// Decode parses the stored amount and price.
func (o StoredOrder) Decode() (amount, price decimal.Decimal, err error) {
	if !o.Side.IsValid() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid order side %q", o.Side)
	}
	amount, err = decimal.NewFromString(o.Amount)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "decode order amount")
	}
	price, err = decimal.NewFromString(o.Price)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "decode order price")
	}
	return amount, price, nil
}

// Load reads state from disk. A missing or empty file yields nil state.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read simulate state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode simulate state")
	}

	return &state, nil
}

// Save writes state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode simulate state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write simulate state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist simulate state")
	}

	return nil
}

func sanitizeScope(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder

	prevUnderscore := false

	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)

			prevUnderscore = false

			continue
		}

		if !prevUnderscore {
			b.WriteByte('_')

			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
