package order

import (
	"time"

	"github.com/petrijr/sagaflow/pkg/config"
	"github.com/petrijr/sagaflow/pkg/api"
)

// WorkflowName is the registered name of the pizza order workflow.
const WorkflowName = "pizza-order"

// Step names, in execution order.
const (
	StepGetDistance     = "get-distance"
	StepUpdateInventory = "update-inventory"
	StepProcessCard     = "process-credit-card"
	StepSendBill        = "send-bill"
	StepNotifyDriver    = "notify-delivery-driver"
)

// Settings are the business rules and step policies of the workflow.
type Settings struct {
	ServiceRadiusKm   int
	DiscountThreshold int
	Discount          int

	StepTimeout         time.Duration
	CompensationTimeout time.Duration

	PaymentRetry     api.RetryPolicy
	PaymentHeartbeat api.HeartbeatPolicy

	DeliveryTimeout   time.Duration
	DeliveryHeartbeat api.HeartbeatPolicy
	DeliveryRounds    int
	DeliveryPause     time.Duration
}

// DefaultSettings returns the settings of config.Default.
func DefaultSettings() Settings {
	return SettingsFrom(config.Default().Pipeline)
}

// SettingsFrom converts the pipeline section of a configuration file.
func SettingsFrom(p config.Pipeline) Settings {
	return Settings{
		ServiceRadiusKm:     p.ServiceRadiusKm,
		DiscountThreshold:   p.DiscountThreshold,
		Discount:            p.Discount,
		StepTimeout:         p.StepTimeout,
		CompensationTimeout: p.CompensationTimeout,
		PaymentRetry:        p.Payment.Retry.Policy(),
		PaymentHeartbeat:    p.Payment.Heartbeat.Policy(),
		DeliveryTimeout:     p.Delivery.Timeout,
		DeliveryHeartbeat:   p.Delivery.Heartbeat.Policy(),
		DeliveryRounds:      p.Delivery.Rounds,
		DeliveryPause:       p.Delivery.Pause,
	}
}

// ServiceArea fails delivery orders farther away than radiusKm. It runs
// between the distance lookup and the inventory reservation, so nothing is
// compensated.
func ServiceArea(radiusKm int) api.RuleFunc {
	return func(s *api.State) error {
		o, err := api.InputAs[Order](s)
		if err != nil {
			return err
		}
		if !o.IsDelivery {
			return nil
		}
		d, err := api.OutputAs[Distance](s, StepGetDistance)
		if err != nil {
			return err
		}
		if d.Kilometers > radiusKm {
			return api.NewError(api.KindOutOfServiceArea,
				"customer lives outside the service area: %d km > %d km", d.Kilometers, radiusKm)
		}
		return nil
	}
}

func orderInput(s *api.State) (any, error) {
	return api.InputAs[Order](s)
}

func billInput(s *api.State) (any, error) {
	o, err := api.InputAs[Order](s)
	if err != nil {
		return nil, err
	}
	return o.Bill(), nil
}

// Workflow builds the pizza order saga.
//
// Inventory is compensated after it succeeds; the counter update is atomic.
// The card charge is compensated from the moment it is dispatched, since a
// capture can land even when the processor call appears to fail.
func Workflow(s Settings, a *Activities) api.WorkflowDefinition {
	paymentRetry := s.PaymentRetry
	paymentHeartbeat := s.PaymentHeartbeat
	deliveryHeartbeat := s.DeliveryHeartbeat

	return api.WorkflowDefinition{
		Name: WorkflowName,
		Steps: []api.StepDefinition{
			{
				Name:    StepGetDistance,
				Fn:      a.GetDistance,
				Timeout: s.StepTimeout,
				Input: func(st *api.State) (any, error) {
					o, err := api.InputAs[Order](st)
					if err != nil {
						return nil, err
					}
					return o.Address, nil
				},
			},
			{
				Name:         StepUpdateInventory,
				Fn:           a.UpdateInventory,
				Timeout:      s.StepTimeout,
				Input:        orderInput,
				Precondition: ServiceArea(s.ServiceRadiusKm),
				Compensation: &api.CompensationDefinition{
					Name:     "revert-inventory",
					Fn:       a.RevertInventory,
					Register: api.RegisterAfter,
					Timeout:  s.CompensationTimeout,
				},
			},
			{
				Name:      StepProcessCard,
				Fn:        a.ProcessCreditCard,
				Timeout:   s.StepTimeout,
				Retry:     &paymentRetry,
				Heartbeat: &paymentHeartbeat,
				Input: func(st *api.State) (any, error) {
					o, err := api.InputAs[Order](st)
					if err != nil {
						return nil, err
					}
					return CreditCardCharge{Bill: o.Bill(), Card: o.CreditCard}, nil
				},
				Compensation: &api.CompensationDefinition{
					Name:     "refund-customer",
					Fn:       a.RefundCustomer,
					Register: api.RegisterBefore,
					Timeout:  s.CompensationTimeout,
				},
			},
			{
				Name:    StepSendBill,
				Fn:      a.SendBill,
				Timeout: s.StepTimeout,
				Input:   billInput,
			},
			{
				// Input is the send-bill confirmation.
				Name:      StepNotifyDriver,
				Fn:        a.NotifyDeliveryDriver,
				Timeout:   s.DeliveryTimeout,
				Heartbeat: &deliveryHeartbeat,
			},
		},
	}
}
