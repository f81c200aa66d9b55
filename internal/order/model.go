package order

import (
	"encoding/gob"
	"time"
)

// Confirmation statuses.
const (
	StatusSuccess         = "SUCCESS"
	StatusDeliveryFailure = "DELIVERY FAILURE"
)

type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
}

type Customer struct {
	ID    int
	Name  string
	Email string
	Phone string
}

type Pizza struct {
	Description string
	// Price in cents.
	Price int
}

type CreditCard struct {
	HolderName string
	Number     string
}

// Order is the input of a pizza order run. Steps receive copies and never
// modify it.
type Order struct {
	OrderNumber string
	Customer    Customer
	Items       []Pizza
	IsDelivery  bool
	Address     Address
	CreditCard  CreditCard
}

// Total is the sum of the item prices.
func (o Order) Total() int {
	total := 0
	for _, p := range o.Items {
		total += p.Price
	}
	return total
}

// Bill is what the customer is charged for an order before discounts.
func (o Order) Bill() Bill {
	return Bill{
		CustomerID:  o.Customer.ID,
		OrderNumber: o.OrderNumber,
		Description: "Pizza order",
		Amount:      o.Total(),
	}
}

type Distance struct {
	Kilometers int
}

type Bill struct {
	CustomerID  int
	OrderNumber string
	Description string
	Amount      int
}

type CreditCardCharge struct {
	Bill Bill
	Card CreditCard
}

type CreditCardConfirmation struct {
	Card               CreditCard
	ConfirmationNumber string
	Amount             int
	BillingTimestamp   time.Time
}

type OrderConfirmation struct {
	OrderNumber        string
	Status             string
	ConfirmationNumber string
	BillingTimestamp   time.Time
	Amount             int
}

// Step outputs and inputs end up in stored run results.
func init() {
	gob.Register(Order{})
	gob.Register(Address{})
	gob.Register(Distance{})
	gob.Register(Bill{})
	gob.Register(CreditCardCharge{})
	gob.Register(CreditCardConfirmation{})
	gob.Register(OrderConfirmation{})
}

// SampleOrder returns the reference delivery order: three pizzas totalling
// 4000 cents, paid with a 16 digit card.
func SampleOrder() Order {
	return Order{
		OrderNumber: "XD001",
		Customer: Customer{
			ID:    8675309,
			Name:  "Lisa Anderson",
			Email: "lisa@example.com",
			Phone: "555-555-0000",
		},
		Items: []Pizza{
			{Description: "Large, with mushrooms and onions", Price: 1500},
			{Description: "Small, with pepperoni", Price: 1200},
			{Description: "Medium, with extra cheese", Price: 1300},
		},
		IsDelivery: true,
		Address: Address{
			Line1:      "741 Evergreen Terrace",
			Line2:      "Apartment 221B",
			City:       "Albuquerque",
			State:      "NM",
			PostalCode: "87101",
		},
		CreditCard: CreditCard{
			HolderName: "Lisa Anderson",
			Number:     "4242424242424242",
		},
	}
}
