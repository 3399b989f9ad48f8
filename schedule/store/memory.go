// Package store provides in-memory schedule.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/rent-scheduler/schedule"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	contracts map[string]schedule.Contract
	payments  map[key][]schedule.Payment
	audits    []schedule.AuditRecord

	// UniqueMonths makes CreatePayment reject a second payment for the same
	// (contract, type, month), like the SQLite unique index.
	UniqueMonths bool
}

type key struct {
	ContractID string
	Type       schedule.Category
}

func NewMemory() *Memory {
	return &Memory{
		contracts: make(map[string]schedule.Contract),
		payments:  make(map[key][]schedule.Payment),
	}
}

// SaveContract inserts or replaces a contract.
func (m *Memory) SaveContract(_ context.Context, c schedule.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.ID] = c
	return nil
}

func (m *Memory) FindContractByID(_ context.Context, id string) (*schedule.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findContractLocked(id)
}

func (m *Memory) findContractLocked(id string) (*schedule.Contract, error) {
	c, ok := m.contracts[id]
	if !ok {
		return nil, schedule.ErrContractNotFound
	}
	return &c, nil
}

func (m *Memory) FindPayments(_ context.Context, f schedule.PaymentFilter) ([]schedule.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findPaymentsLocked(f), nil
}

func (m *Memory) findPaymentsLocked(f schedule.PaymentFilter) []schedule.Payment {
	var result []schedule.Payment
	for k, ps := range m.payments {
		if f.ContractID != "" && k.ContractID != f.ContractID {
			continue
		}
		if f.Type != "" && k.Type != f.Type {
			continue
		}
		for _, p := range ps {
			if matches(p, f) {
				result = append(result, p)
			}
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].DueDate.Before(result[j].DueDate)
	})
	return result
}

func matches(p schedule.Payment, f schedule.PaymentFilter) bool {
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if !f.DueFrom.IsZero() && p.DueDate.Before(f.DueFrom) {
		return false
	}
	if !f.DueTo.IsZero() && p.DueDate.After(f.DueTo) {
		return false
	}
	return true
}

func (m *Memory) CreatePayment(_ context.Context, p schedule.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPaymentLocked(p)
}

func (m *Memory) createPaymentLocked(p schedule.Payment) error {
	k := key{ContractID: p.ContractID, Type: p.Type}
	ps := m.payments[k]

	if m.UniqueMonths {
		for _, existing := range ps {
			if existing.DueDate.MonthKey() == p.DueDate.MonthKey() {
				return &schedule.DuplicatePaymentError{ContractID: p.ContractID, Type: p.Type, Month: p.DueDate.MonthKey()}
			}
		}
	}

	// Binary search for insertion point to keep due-date order
	i := sort.Search(len(ps), func(i int) bool {
		return ps[i].DueDate.After(p.DueDate)
	})
	ps = append(ps, schedule.Payment{})
	copy(ps[i+1:], ps[i:])
	ps[i] = p
	m.payments[k] = ps
	return nil
}

func (m *Memory) CreateAuditRecord(_ context.Context, rec schedule.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, rec)
	return nil
}

// AuditRecords returns a copy of every audit record written so far.
func (m *Memory) AuditRecords() []schedule.AuditRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]schedule.AuditRecord{}, m.audits...)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(schedule.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() map[key][]schedule.Payment {
	cp := make(map[key][]schedule.Payment, len(tm.payments))
	for k, v := range tm.payments {
		cp[k] = append([]schedule.Payment{}, v...)
	}
	return cp
}

func (tm *TxMemory) restore(payments map[key][]schedule.Payment) {
	tm.payments = payments
}

// txMemoryView runs against the parent while its lock is held by WithTx.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) FindContractByID(_ context.Context, id string) (*schedule.Contract, error) {
	return tv.parent.findContractLocked(id)
}

func (tv *txMemoryView) FindPayments(_ context.Context, f schedule.PaymentFilter) ([]schedule.Payment, error) {
	return tv.parent.findPaymentsLocked(f), nil
}

func (tv *txMemoryView) CreatePayment(_ context.Context, p schedule.Payment) error {
	return tv.parent.createPaymentLocked(p)
}

func (tv *txMemoryView) CreateAuditRecord(_ context.Context, rec schedule.AuditRecord) error {
	tv.parent.audits = append(tv.parent.audits, rec)
	return nil
}
