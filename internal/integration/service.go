package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository spans stock and ledger so a document lands in one unit of work.
type TxRepository interface {
	accounting.TxRepository
	inventory.TxRepository
	OpenDocumentRepository
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Result is the outcome of a business document. Entry is zero when the
// document moved stock without value.
type Result struct {
	Number       string
	Entry        accounting.JournalEntry
	Items        []inventory.Item
	StockEntries []inventory.StockLedgerEntry
	// Open is the balance record created by an invoice or a bill.
	Open *OpenDocument
	// Settled holds the invoices or bills a voucher paid down.
	Settled []OpenDocument
}

// Posted reports whether the document produced a journal entry.
func (r Result) Posted() bool {
	return r.Entry.ID != uuid.Nil
}

// Service turns business documents into stock movements and journal entries.
type Service struct {
	repo      RepositoryPort
	ledger    *accounting.Service
	valuation *inventory.Valuation
	audit     shared.AuditPort
	idem      *shared.IdempotencyGuard
	validate  *validator.Validate
	now       func() time.Time
}

// NewService wires documents to the ledger and the WAC engine.
func NewService(repo RepositoryPort, ledger *accounting.Service, stock *inventory.Service, audit shared.AuditPort) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		valuation: stock.Valuation(),
		audit:     audit,
		idem:      shared.NewIdempotencyGuard(nil),
		validate:  newValidator(),
		now:       time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.idem.WithNow(now)
	}
}

// OpenDocument returns the balance record of an invoice or a bill.
func (s *Service) OpenDocument(ctx context.Context, companyID uuid.UUID, kind DocumentKind, number string) (OpenDocument, error) {
	var doc OpenDocument
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetOpenDocument(ctx, companyID, kind, number)
		return err
	})
	return doc, err
}

// document is the common shape every business operation reduces to.
type document struct {
	companyID   uuid.UUID
	docType     string
	source      accounting.SourceType
	number      string
	date        time.Time
	description string
	actor       uuid.UUID
	movements   []inventory.Movement
	// lines builds the journal from the folded stock effects; folded is nil
	// for documents without movements. No lines means no journal.
	lines func(snap inventory.Snapshot, folded *inventory.Folded) ([]accounting.PostingLineInput, error)
	// opens records an outstanding balance of this kind against party.
	opens DocumentKind
	party uuid.UUID
	// settles pays down documents of this kind booked to party.
	settles     DocumentKind
	settlements []Settlement
}

func (s *Service) run(ctx context.Context, doc document) (Result, error) {
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number := doc.number
		var res *numbering.Reservation
		if number == "" {
			r, err := numbering.Peek(ctx, tx, doc.companyID, doc.docType, doc.date.Year())
			if err != nil {
				return err
			}
			number, res = r.Number, &r
		}
		key := shared.IdempotencyKey(doc.docType, number)
		if err := s.idem.Check(ctx, tx, doc.companyID, key); err != nil {
			return err
		}

		var (
			snap   inventory.Snapshot
			folded *inventory.Folded
		)
		if len(doc.movements) > 0 {
			var err error
			if snap, err = s.valuation.Load(ctx, tx, doc.companyID, doc.movements); err != nil {
				return err
			}
			if folded, err = s.valuation.Fold(doc.companyID, snap, doc.movements, inventory.Source{Type: string(doc.source), ID: number}); err != nil {
				return err
			}
		}
		lines, err := doc.lines(snap, folded)
		if err != nil {
			return err
		}
		var prepared *accounting.PreparedEntry
		if len(lines) > 0 {
			prepared, err = s.ledger.PrepareEntry(ctx, tx, accounting.PostingInput{
				CompanyID:      doc.companyID,
				Date:           doc.date,
				Description:    fmt.Sprintf("%s %s", doc.description, number),
				SourceType:     doc.source,
				SourceID:       number,
				IdempotencyKey: key,
				ActorID:        doc.actor,
				Lines:          lines,
			})
			if err != nil {
				return err
			}
		} else {
			if folded == nil {
				return fmt.Errorf("%w: integration: %s has no value to post", shared.ErrValidation, doc.docType)
			}
			if err := s.ledger.EnsureOpen(ctx, tx, doc.companyID, doc.date, doc.source); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		settled, err := settle(ctx, tx, doc.companyID, doc.settles, doc.party, doc.settlements, now)
		if err != nil {
			return err
		}

		if res != nil {
			if err := numbering.Commit(ctx, tx, *res); err != nil {
				return err
			}
		}
		result = Result{Number: number, Settled: settled}
		if prepared != nil {
			if err := s.ledger.CommitEntry(ctx, tx, prepared); err != nil {
				return err
			}
			result.Entry = prepared.Entry
		} else if err := s.idem.Reserve(ctx, tx, doc.companyID, key, "integration"); err != nil {
			return err
		}
		if err := s.valuation.Commit(ctx, tx, folded); err != nil {
			return err
		}
		if doc.opens != "" && prepared != nil {
			open := OpenDocument{
				ID:             uuid.New(),
				CompanyID:      doc.companyID,
				Kind:           doc.opens,
				Number:         number,
				PartyAccountID: doc.party,
				JournalID:      prepared.Entry.ID,
				Total:          partyTotal(prepared.Entry, doc.party),
				Paid:           decimal.Zero,
				Status:         OpenStatusOpen,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.InsertOpenDocument(ctx, open); err != nil {
				return err
			}
			open.Version = 1
			result.Open = &open
		}
		for _, d := range settled {
			if err := tx.SaveOpenDocument(ctx, d); err != nil {
				return err
			}
		}
		if folded != nil {
			result.Items = folded.Items
			result.StockEntries = folded.Entries
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if result.Posted() {
		s.ledger.AfterCommit(ctx, result.Entry)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: doc.companyID,
			ActorID:   shared.ActorFromContext(ctx, doc.actor),
			Action:    "document.post",
			Entity:    doc.docType,
			EntityID:  result.Number,
			Meta: map[string]any{
				"journal_id":  journalRef(result),
				"stock_lines": len(result.StockEntries),
				"settled":     len(result.Settled),
			},
		})
	}
	return result, nil
}

// ReceiveGoods posts a goods receipt: stock in at unit cost, debit each
// item's inventory account and credit the supplier payable.
func (s *Service) ReceiveGoods(ctx context.Context, req ReceiveGoodsRequest) (Result, error) {
	if err := check(s.validate, req); err != nil {
		return Result{}, err
	}
	movements := make([]inventory.Movement, 0, len(req.Lines))
	for _, l := range req.Lines {
		movements = append(movements, inventory.Movement{
			ItemID:      l.ItemID,
			WarehouseID: l.WarehouseID,
			Quantity:    l.Quantity,
			UnitCost:    l.UnitCost,
			BatchNumber: l.BatchNumber,
		})
	}
	return s.run(ctx, document{
		companyID:   req.CompanyID,
		docType:     numbering.DocGRN,
		source:      accounting.SourceGRN,
		number:      req.Number,
		date:        req.Date,
		description: describe(req.Description, "Goods receipt"),
		actor:       req.ActorID,
		movements:   movements,
		lines: func(snap inventory.Snapshot, folded *inventory.Folded) ([]accounting.PostingLineInput, error) {
			var lines []accounting.PostingLineInput
			total := decimal.Zero
			for _, l := range folded.Lines {
				if l.Value.IsZero() {
					continue
				}
				item := snap[l.Movement.ItemID]
				lines = append(lines, accounting.PostingLineInput{
					AccountID: item.InventoryAccountID,
					Debit:     l.Value,
					Memo:      fmt.Sprintf("Stock in %s: %s @ %s", item.SKU, l.Movement.Quantity, l.UnitCost),
				})
				total = total.Add(l.Value)
			}
			if total.IsZero() {
				return nil, nil
			}
			lines = append(lines, accounting.PostingLineInput{
				AccountID: req.SupplierAccountID,
				Credit:    total,
				Memo:      "Payable for goods receipt",
			})
			return lines, nil
		},
	})
}

// DeliverGoods posts a delivery: stock out at WAC with COGS against
// inventory, and the sale against the customer receivable.
func (s *Service) DeliverGoods(ctx context.Context, req DeliverGoodsRequest) (Result, error) {
	if err := check(s.validate, req); err != nil {
		return Result{}, err
	}
	movements := make([]inventory.Movement, 0, len(req.Lines))
	for _, l := range req.Lines {
		movements = append(movements, inventory.Movement{
			ItemID:      l.ItemID,
			WarehouseID: l.WarehouseID,
			Quantity:    l.Quantity.Neg(),
			BatchNumber: l.BatchNumber,
			CustomerID:  req.CustomerID,
		})
	}
	return s.run(ctx, document{
		companyID:   req.CompanyID,
		docType:     numbering.DocDeliveryNote,
		source:      accounting.SourceDelivery,
		number:      req.Number,
		date:        req.Date,
		description: describe(req.Description, "Delivery"),
		actor:       req.ActorID,
		movements:   movements,
		lines: func(snap inventory.Snapshot, folded *inventory.Folded) ([]accounting.PostingLineInput, error) {
			var lines []accounting.PostingLineInput
			sales := decimal.Zero
			for idx, l := range folded.Lines {
				item := snap[l.Movement.ItemID]
				cogs := l.Value.Neg()
				if cogs.IsPositive() {
					lines = append(lines,
						accounting.PostingLineInput{AccountID: item.COGSAccountID, Debit: cogs, Memo: "COGS " + item.SKU},
						accounting.PostingLineInput{AccountID: item.InventoryAccountID, Credit: cogs, Memo: "Stock out " + item.SKU},
					)
				}
				amount := shared.Round(req.Lines[idx].Quantity.Mul(req.Lines[idx].UnitPrice))
				if amount.IsZero() {
					continue
				}
				revenue := item.RevenueAccountID
				if revenue == uuid.Nil {
					revenue = req.RevenueAccountID
				}
				if revenue == uuid.Nil {
					return nil, fmt.Errorf("%w: integration: no revenue account for %s", shared.ErrValidation, item.SKU)
				}
				lines = append(lines, accounting.PostingLineInput{AccountID: revenue, Credit: amount, Memo: "Sale " + item.SKU})
				sales = sales.Add(amount)
			}
			if sales.IsPositive() {
				lines = append(lines, accounting.PostingLineInput{AccountID: req.ReceivableAccountID, Debit: sales, Memo: "Receivable for delivery"})
			}
			return lines, nil
		},
	})
}

// IssueInvoice posts a sales invoice: debit receivable, credit each revenue line.
func (s *Service) IssueInvoice(ctx context.Context, req InvoiceRequest) (Result, error) {
	if err := check(s.validate, req); err != nil {
		return Result{}, err
	}
	return s.run(ctx, document{
		companyID:   req.CompanyID,
		docType:     numbering.DocInvoice,
		source:      accounting.SourceInvoice,
		number:      req.Number,
		date:        req.Date,
		description: describe(req.Description, "Invoice"),
		actor:       req.ActorID,
		lines: func(inventory.Snapshot, *inventory.Folded) ([]accounting.PostingLineInput, error) {
			return offsetLines(req.Lines, req.ReceivableAccountID, false, "Receivable"), nil
		},
		opens: KindInvoice,
		party: req.ReceivableAccountID,
	})
}

// RecordBill books a supplier bill: debit each expense line, credit the
// payable. The bill stays open until payment vouchers settle it.
func (s *Service) RecordBill(ctx context.Context, req BillRequest) (Result, error) {
	if err := check(s.validate, req); err != nil {
		return Result{}, err
	}
	return s.run(ctx, document{
		companyID:   req.CompanyID,
		docType:     numbering.DocBill,
		source:      accounting.SourceBill,
		number:      req.Number,
		date:        req.Date,
		description: describe(req.Description, "Bill"),
		actor:       req.ActorID,
		lines: func(inventory.Snapshot, *inventory.Folded) ([]accounting.PostingLineInput, error) {
			return offsetLines(req.Lines, req.PayableAccountID, true, "Payable"), nil
		},
		opens: KindBill,
		party: req.PayableAccountID,
	})
}

// IssueCreditNote credits a customer: debit each return line, credit receivable.
func (s *Service) IssueCreditNote(ctx context.Context, req CreditNoteRequest) (Result, error) {
	if err := check(s.validate, req); err != nil {
		return Result{}, err
	}
	return s.run(ctx, document{
		companyID:   req.CompanyID,
		docType:     numbering.DocCreditNote,
		source:      accounting.SourceCredit,
		number:      req.Number,
		date:        req.Date,
		description: describe(req.Description, "Credit note"),
		actor:       req.ActorID,
		lines: func(inventory.Snapshot, *inventory.Folded) ([]accounting.PostingLineInput, error) {
			return offsetLines(req.Lines, req.ReceivableAccountID, true, "Credit to customer"), nil
		},
	})
}

// PaymentVoucher pays from cash or bank: debit expense or payable, credit cash.
func (s *Service) PaymentVoucher(ctx context.Context, req PaymentVoucherRequest) (Result, error) {
	if err := check(s.validate, req); err != nil {
		return Result{}, err
	}
	if req.DebitAccountID == req.CashBankAccountID {
		return Result{}, fmt.Errorf("%w: integration: debit and cash accounts must differ", shared.ErrValidation)
	}
	if err := coverSettlements(req.Amount, req.Settlements); err != nil {
		return Result{}, err
	}
	return s.run(ctx, document{
		companyID:   req.CompanyID,
		docType:     numbering.DocPayment,
		source:      accounting.SourcePayment,
		number:      req.Number,
		date:        req.Date,
		description: describe(req.Description, "Payment voucher"),
		actor:       req.ActorID,
		lines: func(inventory.Snapshot, *inventory.Folded) ([]accounting.PostingLineInput, error) {
			return []accounting.PostingLineInput{
				{AccountID: req.DebitAccountID, Debit: req.Amount, Memo: req.Description},
				{AccountID: req.CashBankAccountID, Credit: req.Amount, Memo: "Paid"},
			}, nil
		},
		settles:     KindBill,
		party:       req.DebitAccountID,
		settlements: req.Settlements,
	})
}

// ReceiptVoucher receives into cash or bank: debit cash, credit receivable or revenue.
func (s *Service) ReceiptVoucher(ctx context.Context, req ReceiptVoucherRequest) (Result, error) {
	if err := check(s.validate, req); err != nil {
		return Result{}, err
	}
	if req.CreditAccountID == req.CashBankAccountID {
		return Result{}, fmt.Errorf("%w: integration: credit and cash accounts must differ", shared.ErrValidation)
	}
	if err := coverSettlements(req.Amount, req.Settlements); err != nil {
		return Result{}, err
	}
	return s.run(ctx, document{
		companyID:   req.CompanyID,
		docType:     numbering.DocReceipt,
		source:      accounting.SourceReceipt,
		number:      req.Number,
		date:        req.Date,
		description: describe(req.Description, "Receipt voucher"),
		actor:       req.ActorID,
		lines: func(inventory.Snapshot, *inventory.Folded) ([]accounting.PostingLineInput, error) {
			return []accounting.PostingLineInput{
				{AccountID: req.CashBankAccountID, Debit: req.Amount, Memo: "Received"},
				{AccountID: req.CreditAccountID, Credit: req.Amount, Memo: req.Description},
			}, nil
		},
		settles:     KindInvoice,
		party:       req.CreditAccountID,
		settlements: req.Settlements,
	})
}

// offsetLines books each line on one side and their total on the other side
// of the offset account.
func offsetLines(in []AmountLine, offset uuid.UUID, linesDebit bool, memo string) []accounting.PostingLineInput {
	out := make([]accounting.PostingLineInput, 0, len(in)+1)
	total := decimal.Zero
	for _, l := range in {
		amount := shared.Round(l.Amount)
		line := accounting.PostingLineInput{AccountID: l.AccountID, Memo: l.Description}
		if linesDebit {
			line.Debit = amount
		} else {
			line.Credit = amount
		}
		out = append(out, line)
		total = total.Add(amount)
	}
	offsetLine := accounting.PostingLineInput{AccountID: offset, Memo: memo}
	if linesDebit {
		offsetLine.Credit = total
	} else {
		offsetLine.Debit = total
	}
	return append([]accounting.PostingLineInput{offsetLine}, out...)
}

// coverSettlements rejects settlements adding up to more than the voucher pays.
func coverSettlements(amount decimal.Decimal, in []Settlement) error {
	total := decimal.Zero
	for _, st := range in {
		total = total.Add(shared.Round(st.Amount))
	}
	if total.GreaterThan(shared.Round(amount).Add(shared.BalanceTolerance)) {
		return fmt.Errorf("%w: integration: settlements %s exceed voucher amount %s",
			shared.ErrValidation, shared.FormatAmount(total), shared.FormatAmount(amount))
	}
	return nil
}

// partyTotal is the amount an entry booked to account.
func partyTotal(entry accounting.JournalEntry, account uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, l := range entry.Lines {
		if l.AccountID == account {
			total = total.Add(l.Debit).Add(l.Credit)
		}
	}
	return total
}

func journalRef(r Result) string {
	if !r.Posted() {
		return ""
	}
	return r.Entry.ID.String()
}

func describe(given, fallback string) string {
	if given != "" {
		return given
	}
	return fallback
}
