// Package fixture wires the ledger services over the in-memory store for tests.
package fixture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	closepkg "github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

// Clock is the fixed time every fixture service reads.
var Clock = time.Date(2025, time.March, 15, 9, 0, 0, 0, time.UTC)

// Chart of accounts codes seeded for every company.
const (
	Cash        = "1000"
	Receivable  = "1100"
	Stock       = "1200"
	Payable     = "2000"
	Equity      = "3000"
	Revenue     = "4000"
	COGS        = "5000"
	Expense     = "6000"
	AssetsGroup = "1"
)

// Recorder is an in-memory audit sink.
type Recorder struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

// Record stores the log.
func (r *Recorder) Record(_ context.Context, log shared.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

// Actions lists recorded actions in order.
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.logs))
	for _, l := range r.logs {
		out = append(out, l.Action)
	}
	return out
}

// Logs returns a copy of the recorded logs.
func (r *Recorder) Logs() []shared.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.AuditLog(nil), r.logs...)
}

// Options tune the environment.
type Options struct {
	Gate          closepkg.GatePolicy
	AllowNegative bool
	Store         []memory.Option
}

// Env is a fully wired ledger for one company.
type Env struct {
	Store    *memory.Store
	Ledger   *accounting.Service
	Stock    *inventory.Service
	Periods  *closepkg.Service
	Numbers  *numbering.Service
	Docs     *integration.Service
	Audit    *Recorder
	Company  uuid.UUID
	Actor    uuid.UUID
	accounts map[string]uuid.UUID
}

// New builds an environment with the default chart of accounts.
func New(t testing.TB, opts Options) *Env {
	t.Helper()
	store := memory.New(opts.Store...)
	audit := &Recorder{}
	now := func() time.Time { return Clock }

	ledger := accounting.NewService(store.Accounting(), audit, closepkg.NewGuard(opts.Gate))
	ledger.WithNow(now)
	stock := inventory.NewService(store.Inventory(), audit, inventory.ServiceConfig{AllowNegativeStock: opts.AllowNegative})
	stock.WithNow(now)
	periods := closepkg.NewService(store.Periods(), audit)
	periods.WithNow(now)
	numbers := numbering.NewService(store.Numbering())
	numbers.WithNow(now)
	docs := integration.NewService(store.Integration(), ledger, stock, audit)
	docs.WithNow(now)

	env := &Env{
		Store:    store,
		Ledger:   ledger,
		Stock:    stock,
		Periods:  periods,
		Numbers:  numbers,
		Docs:     docs,
		Audit:    audit,
		Company:  uuid.New(),
		Actor:    uuid.New(),
		accounts: make(map[string]uuid.UUID),
	}
	env.seedChart(t)
	return env
}

func (e *Env) seedChart(t testing.TB) {
	ctx := context.Background()
	group, err := e.Ledger.OpenAccount(ctx, accounting.AccountInput{
		CompanyID: e.Company, Code: AssetsGroup, Name: "Assets", Type: accounting.AccountTypeAsset, IsGroup: true,
	})
	require.NoError(t, err)
	e.accounts[AssetsGroup] = group.ID
	chart := []struct {
		code  string
		name  string
		typ   accounting.AccountType
		child bool
	}{
		{Cash, "Cash", accounting.AccountTypeAsset, true},
		{Receivable, "Accounts Receivable", accounting.AccountTypeAsset, true},
		{Stock, "Inventory", accounting.AccountTypeAsset, true},
		{Payable, "Accounts Payable", accounting.AccountTypeLiability, false},
		{Equity, "Owner Equity", accounting.AccountTypeEquity, false},
		{Revenue, "Sales", accounting.AccountTypeRevenue, false},
		{COGS, "Cost of Goods Sold", accounting.AccountTypeExpense, false},
		{Expense, "Operating Expense", accounting.AccountTypeExpense, false},
	}
	for _, c := range chart {
		in := accounting.AccountInput{CompanyID: e.Company, Code: c.code, Name: c.name, Type: c.typ}
		if c.child {
			in.ParentID = &group.ID
		}
		acc, err := e.Ledger.OpenAccount(ctx, in)
		require.NoError(t, err)
		e.accounts[c.code] = acc.ID
	}
}

// Account returns the id of the seeded account code.
func (e *Env) Account(code string) uuid.UUID {
	return e.accounts[code]
}

// Balance reads the stored account.
func (e *Env) Balance(t testing.TB, code string) accounting.Account {
	t.Helper()
	acc, err := e.Ledger.GetAccount(context.Background(), e.Company, e.Account(code))
	require.NoError(t, err)
	return acc
}

// Item registers a stock item against the seeded inventory, COGS and revenue accounts.
func (e *Env) Item(t testing.TB, sku string) inventory.Item {
	t.Helper()
	item, err := e.Stock.RegisterItem(context.Background(), inventory.ItemInput{
		CompanyID:          e.Company,
		SKU:                sku,
		Name:               "Item " + sku,
		Unit:               "pcs",
		InventoryAccountID: e.Account(Stock),
		COGSAccountID:      e.Account(COGS),
		RevenueAccountID:   e.Account(Revenue),
		ActorID:            e.Actor,
	})
	require.NoError(t, err)
	return item
}

// Lines builds a two-line entry debiting debitCode and crediting creditCode.
func (e *Env) Lines(debitCode, creditCode string, amount string) []accounting.PostingLineInput {
	amt := D(amount)
	return []accounting.PostingLineInput{
		{AccountID: e.Account(debitCode), Debit: amt},
		{AccountID: e.Account(creditCode), Credit: amt},
	}
}

// Post posts a manual entry dated on the fixture clock.
func (e *Env) Post(t testing.TB, lines []accounting.PostingLineInput) accounting.JournalEntry {
	t.Helper()
	entry, err := e.Ledger.PostJournal(context.Background(), accounting.PostingInput{
		CompanyID:   e.Company,
		Date:        Clock,
		Description: "test entry",
		ActorID:     e.Actor,
		Lines:       lines,
	})
	require.NoError(t, err)
	return entry
}

// D parses a decimal literal.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Equal asserts decimal equality by value.
func Equal(t testing.TB, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, D(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
