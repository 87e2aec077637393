package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// GetAccounts returns the company's accounts among ids.
func (tx *Tx) GetAccounts(_ context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]accounting.Account, error) {
	if err := tx.read(); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]accounting.Account, len(ids))
	tx.s.lockedRead(func() {
		for _, id := range ids {
			if acc, ok := tx.s.accounts[id]; ok && acc.CompanyID == companyID {
				out[id] = copyAccount(acc)
			}
		}
	})
	return out, nil
}

// GetAccount returns one account of the company.
func (tx *Tx) GetAccount(_ context.Context, companyID, id uuid.UUID) (accounting.Account, error) {
	if err := tx.read(); err != nil {
		return accounting.Account{}, err
	}
	var (
		acc accounting.Account
		ok  bool
	)
	tx.s.lockedRead(func() {
		acc, ok = tx.s.accounts[id]
	})
	if !ok || acc.CompanyID != companyID {
		return accounting.Account{}, fmt.Errorf("%w: %s", accounting.ErrAccountNotFound, id)
	}
	return copyAccount(acc), nil
}

// AccountCodeExists reports whether code is taken in the company.
func (tx *Tx) AccountCodeExists(_ context.Context, companyID uuid.UUID, code string) (bool, error) {
	if err := tx.read(); err != nil {
		return false, err
	}
	var ok bool
	tx.s.lockedRead(func() {
		_, ok = tx.s.accountCodes[companyKey{companyID, code}]
	})
	return ok, nil
}

// ListAccounts returns the company's accounts ordered by code.
func (tx *Tx) ListAccounts(_ context.Context, companyID uuid.UUID) ([]accounting.Account, error) {
	if err := tx.read(); err != nil {
		return nil, err
	}
	var out []accounting.Account
	tx.s.lockedRead(func() {
		for _, acc := range tx.s.accounts {
			if acc.CompanyID == companyID {
				out = append(out, copyAccount(acc))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// InsertAccount buffers a new account.
func (tx *Tx) InsertAccount(_ context.Context, acc accounting.Account) error {
	acc = copyAccount(acc)
	acc.Version = 1
	key := companyKey{acc.CompanyID, acc.Code}
	tx.write(func() error {
		if _, ok := tx.s.accountCodes[key]; ok {
			return fmt.Errorf("%w: %s", accounting.ErrDuplicateCode, acc.Code)
		}
		if _, ok := tx.s.accounts[acc.ID]; ok {
			return fmt.Errorf("%w: account %s", shared.ErrConcurrency, acc.ID)
		}
		return nil
	}, func() {
		tx.s.accounts[acc.ID] = acc
		tx.s.accountCodes[key] = acc.ID
	})
	return nil
}

// SaveAccount buffers an account update guarded by its version.
func (tx *Tx) SaveAccount(_ context.Context, acc accounting.Account) error {
	acc = copyAccount(acc)
	tx.write(func() error {
		current, ok := tx.s.accounts[acc.ID]
		if !ok || current.CompanyID != acc.CompanyID {
			return fmt.Errorf("%w: %s", accounting.ErrAccountNotFound, acc.ID)
		}
		if current.Version != acc.Version {
			return fmt.Errorf("%w: account %s", shared.ErrConcurrency, acc.Code)
		}
		return nil
	}, func() {
		acc.Version++
		tx.s.accounts[acc.ID] = acc
	})
	return nil
}

// GetJournalEntry returns an entry with its lines.
func (tx *Tx) GetJournalEntry(_ context.Context, companyID, id uuid.UUID) (accounting.JournalEntry, error) {
	if err := tx.read(); err != nil {
		return accounting.JournalEntry{}, err
	}
	var (
		entry accounting.JournalEntry
		ok    bool
	)
	tx.s.lockedRead(func() {
		entry, ok = tx.s.entries[id]
	})
	if !ok || entry.CompanyID != companyID {
		return accounting.JournalEntry{}, fmt.Errorf("%w: %s", accounting.ErrJournalNotFound, id)
	}
	return copyEntry(entry), nil
}

// JournalNumberExists reports whether number is taken in the company.
func (tx *Tx) JournalNumberExists(_ context.Context, companyID uuid.UUID, number string) (bool, error) {
	if err := tx.read(); err != nil {
		return false, err
	}
	var ok bool
	tx.s.lockedRead(func() {
		_, ok = tx.s.entryNumbers[companyKey{companyID, number}]
	})
	return ok, nil
}

// ListJournalEntries returns the company's entries in insertion order.
func (tx *Tx) ListJournalEntries(_ context.Context, companyID uuid.UUID) ([]accounting.JournalEntry, error) {
	if err := tx.read(); err != nil {
		return nil, err
	}
	var out []accounting.JournalEntry
	tx.s.lockedRead(func() {
		for _, id := range tx.s.entryOrder {
			if e := tx.s.entries[id]; e.CompanyID == companyID {
				out = append(out, copyEntry(e))
			}
		}
	})
	return out, nil
}

// InsertJournalEntry buffers a new entry with its lines.
func (tx *Tx) InsertJournalEntry(_ context.Context, entry accounting.JournalEntry) error {
	entry = copyEntry(entry)
	entry.Version = 1
	key := companyKey{entry.CompanyID, entry.Number}
	tx.write(func() error {
		if _, ok := tx.s.entryNumbers[key]; ok {
			return fmt.Errorf("%w: %s", accounting.ErrDuplicateNumber, entry.Number)
		}
		return nil
	}, func() {
		tx.s.entries[entry.ID] = entry
		tx.s.entryOrder = append(tx.s.entryOrder, entry.ID)
		tx.s.entryNumbers[key] = entry.ID
	})
	return nil
}

// SaveJournalEntry buffers a header update; stored lines are kept.
func (tx *Tx) SaveJournalEntry(_ context.Context, entry accounting.JournalEntry) error {
	entry = copyEntry(entry)
	tx.write(func() error {
		current, ok := tx.s.entries[entry.ID]
		if !ok || current.CompanyID != entry.CompanyID {
			return fmt.Errorf("%w: %s", accounting.ErrJournalNotFound, entry.ID)
		}
		if current.Version != entry.Version {
			return fmt.Errorf("%w: journal %s", shared.ErrConcurrency, entry.Number)
		}
		return nil
	}, func() {
		current := tx.s.entries[entry.ID]
		entry.Lines = current.Lines
		entry.Version++
		tx.s.entries[entry.ID] = entry
	})
	return nil
}

func copyAccount(acc accounting.Account) accounting.Account {
	if acc.ParentID != nil {
		parent := *acc.ParentID
		acc.ParentID = &parent
	}
	return acc
}

func copyEntry(e accounting.JournalEntry) accounting.JournalEntry {
	e.Lines = append([]accounting.JournalLine(nil), e.Lines...)
	return e
}
