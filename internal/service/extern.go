package service

import (
	"context"
	"sync"
)

// ExternalServices holds the live bank and audit clients and implements
// both contracts by delegation. The initialize endpoint swaps in new
// clients when fresh endpoints are registered, without restarting.
type ExternalServices struct {
	mu    sync.RWMutex
	bank  Bank
	audit AuditLogger
}

func NewExternalServices(b Bank, a AuditLogger) *ExternalServices {
	return &ExternalServices{bank: b, audit: a}
}

func (e *ExternalServices) Swap(b Bank, a AuditLogger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bank = b
	e.audit = a
}

func (e *ExternalServices) currentBank() Bank {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bank
}

func (e *ExternalServices) currentAudit() AuditLogger {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.audit
}

func (e *ExternalServices) Check(ctx context.Context, bankID string, price int64) error {
	return e.currentBank().Check(ctx, bankID, price)
}

func (e *ExternalServices) Reserve(ctx context.Context, bankID string, price int64) (int64, error) {
	return e.currentBank().Reserve(ctx, bankID, price)
}

func (e *ExternalServices) Commit(ctx context.Context, reserveIDs []int64) error {
	return e.currentBank().Commit(ctx, reserveIDs)
}

func (e *ExternalServices) Cancel(ctx context.Context, reserveIDs []int64) error {
	return e.currentBank().Cancel(ctx, reserveIDs)
}

func (e *ExternalServices) Send(tag string, data interface{}) {
	e.currentAudit().Send(tag, data)
}
