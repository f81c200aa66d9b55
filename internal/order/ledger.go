package order

import (
	"sync"
)

// Inventory tracks the pizzas reserved per order. Reserve and Revert are
// idempotent so a compensation may safely run for a reservation that was
// already undone.
type Inventory struct {
	mu       sync.Mutex
	reserved map[string]int
}

func NewInventory() *Inventory {
	return &Inventory{reserved: make(map[string]int)}
}

// Reserve records the order's items. It reports whether anything changed.
func (i *Inventory) Reserve(o Order) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.reserved[o.OrderNumber]; ok {
		return false
	}
	i.reserved[o.OrderNumber] = len(o.Items)
	return true
}

// Revert releases the order's reservation. It reports whether anything
// changed.
func (i *Inventory) Revert(orderNumber string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.reserved[orderNumber]; !ok {
		return false
	}
	delete(i.reserved, orderNumber)
	return true
}

// Reserved returns the number of pizzas reserved for orderNumber.
func (i *Inventory) Reserved(orderNumber string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.reserved[orderNumber]
}

// Total returns the number of pizzas reserved across all orders.
func (i *Inventory) Total() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	n := 0
	for _, c := range i.reserved {
		n += c
	}
	return n
}

// Payments is the card processor's ledger of captured charges.
type Payments struct {
	mu       sync.Mutex
	captured map[string]int
	refunded map[string]int
}

func NewPayments() *Payments {
	return &Payments{
		captured: make(map[string]int),
		refunded: make(map[string]int),
	}
}

// Capture records a charge for an order. A repeated capture of the same
// order is ignored.
func (p *Payments) Capture(orderNumber string, amount int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.captured[orderNumber]; ok {
		return
	}
	p.captured[orderNumber] = amount
}

// Refund reverses a captured charge. Refunding an order that was never
// captured, or was already refunded, is a no-op. It returns the refunded
// amount.
func (p *Payments) Refund(orderNumber string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	amount, ok := p.captured[orderNumber]
	if !ok {
		return 0
	}
	delete(p.captured, orderNumber)
	p.refunded[orderNumber] += amount
	return amount
}

// Captured returns the amount currently held for an order.
func (p *Payments) Captured(orderNumber string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	amount, ok := p.captured[orderNumber]
	return amount, ok
}

// Refunded returns the total refunded for an order.
func (p *Payments) Refunded(orderNumber string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refunded[orderNumber]
}
