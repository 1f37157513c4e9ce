// Package ledger tracks which fee transactions already paid for an image.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrAlreadyRedeemed = errors.New("payment already redeemed")
	ErrInFlight        = errors.New("payment is being redeemed")
	ErrNotReserved     = errors.New("payment is not reserved")
)

type state int

const (
	reserved state = iota + 1
	redeemed
)

// Ledger is an in memory redemption table. It does not survive restarts.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]state
}

func New() *Ledger {
	return &Ledger{entries: make(map[string]state)}
}

// Key normalises the tx hash so 0xAB.. and 0xab.. count as the same payment.
func Key(network, txHash string) string {
	return network + ":" + strings.ToLower(strings.TrimSpace(txHash))
}

// Reserve claims a payment for one generation. ErrAlreadyRedeemed is returned
// for a payment that produced an image, ErrInFlight while another request holds it.
func (l *Ledger) Reserve(network, txHash string) error {
	key := Key(network, txHash)

	l.mu.Lock()
	defer l.mu.Unlock()

	if st, ok := l.entries[key]; ok {
		switch st {
		case redeemed:
			return fmt.Errorf("%w: %s", ErrAlreadyRedeemed, key)
		case reserved:
			return fmt.Errorf("%w: %s", ErrInFlight, key)
		}
	}
	l.entries[key] = reserved
	return nil
}

// Commit marks a reserved payment as redeemed.
func (l *Ledger) Commit(network, txHash string) error {
	key := Key(network, txHash)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.entries[key] != reserved {
		return fmt.Errorf("%w: %s", ErrNotReserved, key)
	}
	l.entries[key] = redeemed
	return nil
}

// Release drops a reservation so the same payment can be used again.
// Redeemed payments are left untouched.
func (l *Ledger) Release(network, txHash string) {
	key := Key(network, txHash)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.entries[key] == reserved {
		delete(l.entries, key)
	}
}

// Redeemed reports whether the payment already produced an image.
func (l *Ledger) Redeemed(network, txHash string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.entries[Key(network, txHash)] == redeemed
}

// Len returns the number of reserved and redeemed payments.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
