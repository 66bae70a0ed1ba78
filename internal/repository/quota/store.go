// Package quota persists the ledger state as a single JSON document.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kotoba-cloud/lingorelay/internal/db"
	quotauc "github.com/kotoba-cloud/lingorelay/internal/usecase/quota"
)

// store is the consumer interface for quota persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store implements usecase/quota.Store on top of the KV facade.
type Store struct {
	store store
	key   string
}

// New creates a quota store. keyPrefix is the storage namespace prefix.
func New(s store, keyPrefix string) *Store {
	return &Store{store: s, key: keyPrefix + "quota:primary"}
}

type stateDoc struct {
	UsedCharacters int64  `json:"used_characters"`
	PeriodKey      string `json:"period_key"`
	WarningSent    bool   `json:"warning_sent"`
}

// Load reads the saved quota state. A missing key yields the zero state,
// which the ledger treats as a fresh period.
func (s *Store) Load(ctx context.Context) (quotauc.State, error) {
	raw, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return quotauc.State{}, nil
		}
		return quotauc.State{}, fmt.Errorf("quota GET %s: %w", s.key, err)
	}

	var doc stateDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return quotauc.State{}, fmt.Errorf("quota GET %s parse: %w", s.key, err)
	}
	return quotauc.State{
		UsedCharacters: doc.UsedCharacters,
		PeriodKey:      doc.PeriodKey,
		WarningSent:    doc.WarningSent,
	}, nil
}

// Save writes the quota state document.
func (s *Store) Save(ctx context.Context, st quotauc.State) error {
	data, err := json.Marshal(stateDoc{
		UsedCharacters: st.UsedCharacters,
		PeriodKey:      st.PeriodKey,
		WarningSent:    st.WarningSent,
	})
	if err != nil {
		return fmt.Errorf("marshal quota state: %w", err)
	}
	if err := s.store.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("quota SET %s: %w", s.key, err)
	}
	return nil
}
