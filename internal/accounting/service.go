package accounting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	closepkg "github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository is the unit of work seen by the ledger. Reads must all be
// issued before the first write.
type TxRepository interface {
	shared.IdempotencyTx
	numbering.TxRepository
	closepkg.PeriodReader
	AccountReader
	AccountWriter
	GetAccount(ctx context.Context, companyID, id uuid.UUID) (Account, error)
	AccountCodeExists(ctx context.Context, companyID uuid.UUID, code string) (bool, error)
	InsertAccount(ctx context.Context, acc Account) error
	ListAccounts(ctx context.Context, companyID uuid.UUID) ([]Account, error)
	GetJournalEntry(ctx context.Context, companyID, id uuid.UUID) (JournalEntry, error)
	JournalNumberExists(ctx context.Context, companyID uuid.UUID, number string) (bool, error)
	ListJournalEntries(ctx context.Context, companyID uuid.UUID) ([]JournalEntry, error)
	InsertJournalEntry(ctx context.Context, entry JournalEntry) error
	// SaveJournalEntry updates header fields only; lines are immutable.
	SaveJournalEntry(ctx context.Context, entry JournalEntry) error
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service coordinates the journal lifecycle: drafting, posting and voiding.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditPort
	guard  *closepkg.Guard
	idem   *shared.IdempotencyGuard
	engine *Engine
	cache  BalanceCache
	logger *slog.Logger
	now    func() time.Time
	// stale holds companies whose last cache bump failed; their balances
	// bypass the cache until a bump succeeds.
	stale sync.Map
}

// NewService constructs the ledger service. A nil guard disables period checks.
func NewService(repo RepositoryPort, audit shared.AuditPort, guard *closepkg.Guard) *Service {
	return &Service{
		repo:   repo,
		audit:  audit,
		guard:  guard,
		idem:   shared.NewIdempotencyGuard(nil),
		engine: NewEngine(),
		logger: slog.Default(),
		now:    time.Now,
	}
}

// WithLogger sets the logger used for cache failures after commit.
func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.idem.WithNow(now)
	}
}

// WithCache enables read-through balance snapshots.
func (s *Service) WithCache(cache BalanceCache) {
	s.cache = cache
}

// PostJournal creates and posts an entry in one unit of work.
func (s *Service) PostJournal(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prepared, err := s.PrepareEntry(ctx, tx, input)
		if err != nil {
			return err
		}
		if err := s.CommitEntry(ctx, tx, prepared); err != nil {
			return err
		}
		entry = prepared.Entry
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.AfterCommit(ctx, entry)
	return entry, nil
}

// PreparedEntry is a posted entry computed in the read phase and not yet written.
type PreparedEntry struct {
	Entry       JournalEntry
	key         string
	reservation *numbering.Reservation
	posting     *Posting
}

// PrepareEntry runs every read a posting needs: number, idempotency key,
// period guard and account snapshots. It lets other packages compose a
// posting into their own unit of work.
func (s *Service) PrepareEntry(ctx context.Context, tx TxRepository, input PostingInput) (*PreparedEntry, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	actor := shared.ActorFromContext(ctx, input.ActorID)
	source := input.SourceType
	if source == "" {
		source = SourceManual
	}
	number, res, err := s.resolveNumber(ctx, tx, input.CompanyID, input.Number, input.Date)
	if err != nil {
		return nil, err
	}
	key := input.IdempotencyKey
	if key == "" {
		key = shared.IdempotencyKey(numbering.DocJournalEntry, number)
	}
	if err := s.idem.Check(ctx, tx, input.CompanyID, key); err != nil {
		return nil, err
	}
	if err := s.guard.EnsureOpen(ctx, tx, input.CompanyID, input.Date, string(source)); err != nil {
		return nil, err
	}
	posting, err := s.engine.Prepare(ctx, tx, input.CompanyID, buildLines(input.Lines))
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return &PreparedEntry{
		Entry: JournalEntry{
			ID:          uuid.New(),
			CompanyID:   input.CompanyID,
			Number:      number,
			Date:        input.Date,
			Description: input.Description,
			Status:      JournalStatusPosted,
			SourceType:  source,
			SourceID:    input.SourceID,
			CreatedBy:   actor,
			PostedBy:    actor,
			PostedAt:    &now,
			CreatedAt:   now,
			Lines:       posting.Lines,
		},
		key:         key,
		reservation: res,
		posting:     posting,
	}, nil
}

// EnsureOpen runs the period guard for a document that posts no journal of
// its own. It is a read-phase call.
func (s *Service) EnsureOpen(ctx context.Context, tx closepkg.PeriodReader, companyID uuid.UUID, date time.Time, source SourceType) error {
	return s.guard.EnsureOpen(ctx, tx, companyID, date, string(source))
}

// CommitEntry issues the writes of a prepared entry.
func (s *Service) CommitEntry(ctx context.Context, tx TxRepository, p *PreparedEntry) error {
	if p.reservation != nil {
		if err := numbering.Commit(ctx, tx, *p.reservation); err != nil {
			return err
		}
	}
	if err := s.idem.Reserve(ctx, tx, p.Entry.CompanyID, p.key, "accounting"); err != nil {
		return err
	}
	if err := tx.InsertJournalEntry(ctx, p.Entry); err != nil {
		return err
	}
	return s.engine.Apply(ctx, tx, p.posting)
}

// resolveNumber peeks the next journal number when none is supplied, or
// rejects a supplied number already in use.
func (s *Service) resolveNumber(ctx context.Context, tx TxRepository, companyID uuid.UUID, number string, date time.Time) (string, *numbering.Reservation, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		res, err := numbering.Peek(ctx, tx, companyID, numbering.DocJournalEntry, date.Year())
		if err != nil {
			return "", nil, err
		}
		return res.Number, &res, nil
	}
	exists, err := tx.JournalNumberExists(ctx, companyID, number)
	if err != nil {
		return "", nil, err
	}
	if exists {
		return "", nil, fmt.Errorf("%w: %s", ErrDuplicateNumber, number)
	}
	return number, nil, nil
}

// CreateDraft stores a numbered DRAFT entry with no balance effect. Balance
// and account checks run when the draft is posted.
func (s *Service) CreateDraft(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if input.CompanyID == uuid.Nil || input.Date.IsZero() {
		return JournalEntry{}, fmt.Errorf("%w: accounting: company and date required", shared.ErrValidation)
	}
	actor := shared.ActorFromContext(ctx, input.ActorID)
	source := input.SourceType
	if source == "" {
		source = SourceManual
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, res, err := s.resolveNumber(ctx, tx, input.CompanyID, input.Number, input.Date)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		entry = JournalEntry{
			ID:          uuid.New(),
			CompanyID:   input.CompanyID,
			Number:      number,
			Date:        input.Date,
			Description: input.Description,
			Status:      JournalStatusDraft,
			SourceType:  source,
			SourceID:    input.SourceID,
			CreatedBy:   actor,
			CreatedAt:   now,
			Lines:       buildLines(input.Lines),
		}
		if res != nil {
			if err := numbering.Commit(ctx, tx, *res); err != nil {
				return err
			}
		}
		return tx.InsertJournalEntry(ctx, entry)
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, entry.CompanyID, actor, "journal.draft", entry.ID.String(), map[string]any{"number": entry.Number})
	return entry, nil
}

// PostDraft moves a DRAFT entry to POSTED and applies its lines.
func (s *Service) PostDraft(ctx context.Context, input PostDraftInput) (JournalEntry, error) {
	if input.CompanyID == uuid.Nil || input.EntryID == uuid.Nil {
		return JournalEntry{}, fmt.Errorf("%w: accounting: company and entry id required", shared.ErrValidation)
	}
	actor := shared.ActorFromContext(ctx, input.ActorID)
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalEntry(ctx, input.CompanyID, input.EntryID)
		if err != nil {
			return err
		}
		if current.Status != JournalStatusDraft {
			return fmt.Errorf("%w: cannot post %s entry %s", ErrInvalidStatus, current.Status, current.Number)
		}
		key := shared.IdempotencyKey(numbering.DocJournalEntry, current.Number)
		if err := s.idem.Check(ctx, tx, current.CompanyID, key); err != nil {
			return err
		}
		if err := s.guard.EnsureOpen(ctx, tx, current.CompanyID, current.Date, string(current.SourceType)); err != nil {
			return err
		}
		posting, err := s.engine.Prepare(ctx, tx, current.CompanyID, current.Lines)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		current.Status = JournalStatusPosted
		current.PostedBy = actor
		current.PostedAt = &now
		if err := s.idem.Reserve(ctx, tx, current.CompanyID, key, "accounting"); err != nil {
			return err
		}
		if err := tx.SaveJournalEntry(ctx, current); err != nil {
			return err
		}
		if err := s.engine.Apply(ctx, tx, posting); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.AfterCommit(ctx, entry)
	return entry, nil
}

// VoidResult pairs the voided entry with the reversal that offsets it.
type VoidResult struct {
	Original JournalEntry
	Reversal JournalEntry
}

// VoidJournal voids a POSTED entry by posting a reversal with debit and
// credit swapped. The original lines are never modified.
func (s *Service) VoidJournal(ctx context.Context, input VoidInput) (VoidResult, error) {
	if err := input.Validate(); err != nil {
		return VoidResult{}, err
	}
	actor := shared.ActorFromContext(ctx, input.ActorID)
	var result VoidResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetJournalEntry(ctx, input.CompanyID, input.EntryID)
		if err != nil {
			return err
		}
		if original.Status != JournalStatusPosted {
			return fmt.Errorf("%w: cannot void %s entry %s", ErrInvalidStatus, original.Status, original.Number)
		}
		key := shared.IdempotencyKey("void", original.Number)
		if err := s.idem.Check(ctx, tx, original.CompanyID, key); err != nil {
			return err
		}
		date := input.Date
		if date.IsZero() {
			date = original.Date
		}
		if err := s.guard.EnsureOpen(ctx, tx, original.CompanyID, date, string(SourceReversal)); err != nil {
			return err
		}
		posting, err := s.engine.Prepare(ctx, tx, original.CompanyID, SwapLines(original.Lines))
		if err != nil {
			return err
		}

		now := s.now().UTC()
		originalID := original.ID
		reversal := JournalEntry{
			ID:          uuid.New(),
			CompanyID:   original.CompanyID,
			Number:      ReversalNumber(original.Number),
			Date:        date,
			Description: fmt.Sprintf("Reversal of %s: %s", original.Number, input.Reason),
			Status:      JournalStatusPosted,
			SourceType:  SourceReversal,
			SourceID:    original.ID.String(),
			ReversalOf:  &originalID,
			CreatedBy:   actor,
			PostedBy:    actor,
			PostedAt:    &now,
			CreatedAt:   now,
			Lines:       posting.Lines,
		}
		reversalID := reversal.ID
		original.Status = JournalStatusVoided
		original.ReversedBy = &reversalID
		original.VoidReason = input.Reason
		original.VoidedBy = actor
		original.VoidedAt = &now

		if err := s.idem.Reserve(ctx, tx, original.CompanyID, key, "accounting"); err != nil {
			return err
		}
		if err := tx.InsertJournalEntry(ctx, reversal); err != nil {
			return err
		}
		if err := tx.SaveJournalEntry(ctx, original); err != nil {
			return err
		}
		if err := s.engine.Apply(ctx, tx, posting); err != nil {
			return err
		}
		result = VoidResult{Original: original, Reversal: reversal}
		return nil
	})
	if err != nil {
		return VoidResult{}, err
	}
	s.bump(ctx, result.Original.CompanyID)
	s.record(ctx, result.Original.CompanyID, actor, "journal.void", result.Original.ID.String(), map[string]any{
		"number":          result.Original.Number,
		"reason":          input.Reason,
		"reversal_id":     result.Reversal.ID.String(),
		"reversal_number": result.Reversal.Number,
	})
	return result, nil
}

// PostOpeningBalances posts the opening position as one OPENING entry. The
// effective date keys idempotency, so a retried import posts once.
func (s *Service) PostOpeningBalances(ctx context.Context, input OpeningBalanceInput) (JournalEntry, error) {
	if input.EffectiveDate.IsZero() {
		return JournalEntry{}, fmt.Errorf("%w: accounting: effective date required", shared.ErrValidation)
	}
	lines := make([]PostingLineInput, 0, len(input.Lines))
	for _, l := range input.Lines {
		lines = append(lines, PostingLineInput{
			AccountID: l.AccountID,
			Debit:     l.Debit,
			Credit:    l.Credit,
			Memo:      "Opening Balance",
		})
	}
	day := input.EffectiveDate.Format("2006-01-02")
	return s.PostJournal(ctx, PostingInput{
		CompanyID:      input.CompanyID,
		Date:           input.EffectiveDate,
		Description:    "Opening Balances as of " + day,
		SourceType:     SourceOpening,
		SourceID:       day,
		IdempotencyKey: shared.IdempotencyKey("opening", day),
		ActorID:        input.ActorID,
		Lines:          lines,
	})
}

// OpenAccount adds a node to the chart of accounts.
func (s *Service) OpenAccount(ctx context.Context, input AccountInput) (Account, error) {
	if err := input.Validate(); err != nil {
		return Account{}, err
	}
	actor := shared.ActorFromContext(ctx, input.ActorID)
	var acc Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code := strings.TrimSpace(input.Code)
		exists, err := tx.AccountCodeExists(ctx, input.CompanyID, code)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, code)
		}
		if input.ParentID != nil {
			parent, err := tx.GetAccount(ctx, input.CompanyID, *input.ParentID)
			if err != nil {
				return err
			}
			if !parent.IsGroup {
				return fmt.Errorf("%w: accounting: parent %s is not a group account", shared.ErrValidation, parent.Code)
			}
		}
		now := s.now().UTC()
		acc = Account{
			ID:        uuid.New(),
			CompanyID: input.CompanyID,
			Code:      code,
			Name:      strings.TrimSpace(input.Name),
			Type:      input.Type,
			ParentID:  input.ParentID,
			IsGroup:   input.IsGroup,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.InsertAccount(ctx, acc)
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, acc.CompanyID, actor, "account.open", acc.ID.String(), map[string]any{"code": acc.Code, "type": string(acc.Type)})
	return acc, nil
}

// DeactivateAccount stops an account from accepting postings. Accounts are
// never deleted.
func (s *Service) DeactivateAccount(ctx context.Context, companyID, accountID, actorID uuid.UUID) (Account, error) {
	actor := shared.ActorFromContext(ctx, actorID)
	var acc Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, companyID, accountID)
		if err != nil {
			return err
		}
		if !current.IsActive {
			acc = current
			return nil
		}
		current.IsActive = false
		current.UpdatedAt = s.now().UTC()
		if err := tx.SaveAccount(ctx, current); err != nil {
			return err
		}
		acc = current
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.bump(ctx, companyID)
	s.record(ctx, companyID, actor, "account.deactivate", accountID.String(), map[string]any{"code": acc.Code})
	return acc, nil
}

// GetAccount returns the account snapshot, served from the balance cache when configured.
func (s *Service) GetAccount(ctx context.Context, companyID, accountID uuid.UUID) (Account, error) {
	load := func(ctx context.Context) (Account, error) {
		var acc Account
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			acc, err = tx.GetAccount(ctx, companyID, accountID)
			return err
		})
		return acc, err
	}
	if s.cache == nil {
		return load(ctx)
	}
	if _, stale := s.stale.Load(companyID); stale {
		return load(ctx)
	}
	return s.cache.Fetch(ctx, companyID, accountID, load)
}

// GetJournal returns an entry with its lines.
func (s *Service) GetJournal(ctx context.Context, companyID, entryID uuid.UUID) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetJournalEntry(ctx, companyID, entryID)
		return err
	})
	return entry, err
}

// ListAccounts retrieves the company's chart of accounts.
func (s *Service) ListAccounts(ctx context.Context, companyID uuid.UUID) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, companyID)
		return err
	})
	return accounts, err
}

// ListJournalEntries retrieves the company's journal entries.
func (s *Service) ListJournalEntries(ctx context.Context, companyID uuid.UUID) ([]JournalEntry, error) {
	var entries []JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListJournalEntries(ctx, companyID)
		return err
	})
	return entries, err
}

// AfterCommit invalidates cached balances and audits a posted entry. Callers
// composing PrepareEntry into their own unit of work run it after commit.
func (s *Service) AfterCommit(ctx context.Context, entry JournalEntry) {
	s.bump(ctx, entry.CompanyID)
	s.record(ctx, entry.CompanyID, entry.PostedBy, "journal.post", entry.ID.String(), map[string]any{
		"number":      entry.Number,
		"source_type": string(entry.SourceType),
		"source_id":   entry.SourceID,
		"amount":      entry.TotalDebit().String(),
	})
}

func (s *Service) bump(ctx context.Context, companyID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, companyID); err != nil {
		s.stale.Store(companyID, struct{}{})
		s.logger.Warn("balance cache bump failed, reading balances from the store",
			slog.String("company_id", companyID.String()), slog.Any("error", err))
		return
	}
	s.stale.Delete(companyID)
}

func (s *Service) record(ctx context.Context, companyID, actor uuid.UUID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entity := "journal_entry"
	if strings.HasPrefix(action, "account.") {
		entity = "account"
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actor,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Meta:      meta,
		At:        s.now(),
	})
}
