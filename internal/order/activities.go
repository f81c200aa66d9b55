package order

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/petrijr/sagaflow/pkg/api"
)

const (
	paymentConfirmationNumber = "PAYME-78759"
	billConfirmationNumber    = "P24601"
)

// Activities implements the steps of the pizza order process. The zero
// value is not usable; create one with NewActivities.
type Activities struct {
	Inventory *Inventory
	Payments  *Payments
	Clock     clockwork.Clock

	// Driver returns the delivery round in which a driver answers. Rounds
	// outside [0, DeliveryRounds) mean nobody answers.
	Driver func() int

	DiscountThreshold int
	Discount          int
	DeliveryRounds    int
	DeliveryPause     time.Duration
}

// NewActivities returns activities with fresh ledgers, the real clock and a
// driver answering in a random round between 0 and 14.
func NewActivities(s Settings) *Activities {
	return &Activities{
		Inventory:         NewInventory(),
		Payments:          NewPayments(),
		Clock:             clockwork.NewRealClock(),
		Driver:            func() int { return rand.IntN(15) },
		DiscountThreshold: s.DiscountThreshold,
		Discount:          s.Discount,
		DeliveryRounds:    s.DeliveryRounds,
		DeliveryPause:     s.DeliveryPause,
	}
}

// inputAs asserts a step input. A mismatch is a wiring bug, so it is never
// retried.
func inputAs[T any](input any) (T, error) {
	v, ok := input.(T)
	if !ok {
		var zero T
		return zero, api.NewNonRetryableError(api.KindUnknown, "expected %T input, got %T", zero, input)
	}
	return v, nil
}

// GetDistance derives a stable pseudo distance from the address lines.
func (a *Activities) GetDistance(ctx context.Context, input any) (any, error) {
	addr, err := inputAs[Address](input)
	if err != nil {
		return nil, err
	}

	km := len(addr.Line1) + len(addr.Line2) - 10
	if km < 1 {
		km = 5
	}

	api.Logger(ctx).InfoContext(ctx, "distance determined", slog.Int("km", km))
	return Distance{Kilometers: km}, nil
}

func (a *Activities) UpdateInventory(ctx context.Context, input any) (any, error) {
	o, err := inputAs[Order](input)
	if err != nil {
		return nil, err
	}
	if a.Inventory.Reserve(o) {
		api.Logger(ctx).InfoContext(ctx, "inventory updated",
			slog.String("order", o.OrderNumber),
			slog.Int("pizzas", len(o.Items)),
		)
	}
	return "Updated inventory", nil
}

func (a *Activities) RevertInventory(ctx context.Context, input any) (any, error) {
	o, err := inputAs[Order](input)
	if err != nil {
		return nil, err
	}
	if a.Inventory.Revert(o.OrderNumber) {
		api.Logger(ctx).InfoContext(ctx, "inventory reverted", slog.String("order", o.OrderNumber))
	}
	return "Reverted changes to inventory", nil
}

// ProcessCreditCard captures the bill amount. Only 16 digit card numbers
// are accepted.
func (a *Activities) ProcessCreditCard(ctx context.Context, input any) (any, error) {
	charge, err := inputAs[CreditCardCharge](input)
	if err != nil {
		return nil, err
	}
	api.RecordHeartbeat(ctx, "authorizing")

	if len(charge.Card.Number) != 16 {
		return nil, api.NewError(api.KindCreditCardProcessingError, "invalid credit card number")
	}

	a.Payments.Capture(charge.Bill.OrderNumber, charge.Bill.Amount)
	api.Logger(ctx).InfoContext(ctx, "card charged",
		slog.String("order", charge.Bill.OrderNumber),
		slog.Int("amount", charge.Bill.Amount),
	)
	return CreditCardConfirmation{
		Card:               charge.Card,
		ConfirmationNumber: paymentConfirmationNumber,
		Amount:             charge.Bill.Amount,
		BillingTimestamp:   a.Clock.Now(),
	}, nil
}

func (a *Activities) RefundCustomer(ctx context.Context, input any) (any, error) {
	charge, err := inputAs[CreditCardCharge](input)
	if err != nil {
		return nil, err
	}
	if amount := a.Payments.Refund(charge.Bill.OrderNumber); amount > 0 {
		api.Logger(ctx).InfoContext(ctx, "customer refunded",
			slog.String("order", charge.Bill.OrderNumber),
			slog.Int("amount", amount),
		)
	}
	return "Customer refunded", nil
}

// SendBill applies the discount and confirms the order.
func (a *Activities) SendBill(ctx context.Context, input any) (any, error) {
	bill, err := inputAs[Bill](input)
	if err != nil {
		return nil, err
	}
	logger := api.Logger(ctx)

	amount := bill.Amount
	if amount > a.DiscountThreshold {
		logger.InfoContext(ctx, "applying discount", slog.Int("discount", a.Discount))
		amount -= a.Discount
	}
	if amount < 0 {
		return nil, api.NewError(api.KindInvalidChargeAmount, "invalid charge amount: %d", amount)
	}

	logger.InfoContext(ctx, "bill sent",
		slog.Int("customer", bill.CustomerID),
		slog.Int("amount", amount),
	)
	return OrderConfirmation{
		OrderNumber:        bill.OrderNumber,
		Status:             StatusSuccess,
		ConfirmationNumber: billConfirmationNumber,
		BillingTimestamp:   a.Clock.Now(),
		Amount:             amount,
	}, nil
}

// NotifyDeliveryDriver polls for a driver, heartbeating the round number
// each time. A retried attempt resumes after the last reported round. When
// no driver answers the confirmation is returned with StatusDeliveryFailure.
func (a *Activities) NotifyDeliveryDriver(ctx context.Context, input any) (any, error) {
	conf, err := inputAs[OrderConfirmation](input)
	if err != nil {
		return nil, err
	}
	logger := api.Logger(ctx)

	start := 0
	if d, ok := api.HeartbeatDetails(ctx); ok {
		if round, ok := d.(int); ok {
			start = round + 1
		}
	}

	answers := a.Driver()
	for round := start; round < a.DeliveryRounds; round++ {
		if round == answers {
			logger.InfoContext(ctx, "delivery driver responded", slog.Int("round", round))
			return conf, nil
		}
		api.RecordHeartbeat(ctx, round)
		logger.DebugContext(ctx, "waiting for delivery driver", slog.Int("round", round))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-a.Clock.After(a.DeliveryPause):
		}
	}

	logger.WarnContext(ctx, "delivery driver did not respond", slog.String("order", conf.OrderNumber))
	conf.Status = StatusDeliveryFailure
	return conf, nil
}
