package customer

import (
	"context"
	"errors"
	"sync"
)

// ErrCustomerNotFound occurs when no customer profile exists for a user.
var ErrCustomerNotFound = errors.New("customer not found")

// Customer is the slice of the customer profile the spray pipeline consumes:
// the KYC tier and the default wallet used when a participant has no event
// wallet attached.
type Customer struct {
	ID              string
	UserID          string
	Tier            string
	DefaultWalletID string
}

// Directory looks up customer profiles by user id. Provisioning and KYC
// verification are external collaborators.
type Directory interface {
	ByUserID(ctx context.Context, userID string) (Customer, error)
}

// MemoryDirectory is an in-memory directory for tests and development.
type MemoryDirectory struct {
	mu        sync.RWMutex
	customers map[string]Customer
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{customers: make(map[string]Customer)}
}

// Put installs or replaces a customer profile keyed by user id.
func (d *MemoryDirectory) Put(c Customer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers[c.UserID] = c
}

// ByUserID fetches a customer profile.
func (d *MemoryDirectory) ByUserID(_ context.Context, userID string) (Customer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.customers[userID]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}
