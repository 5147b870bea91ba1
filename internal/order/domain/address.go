package domain

import "github.com/dmehra2102/commerce-backoffice/pkg/apperr"

type AddressType string

const (
	AddressShipping AddressType = "shipping"
	AddressBilling  AddressType = "billing"
)

type Address struct {
	ID        int64       `json:"id"`
	OrderID   int64       `json:"order_id"`
	Type      AddressType `json:"type"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Company   string      `json:"company,omitempty"`
	Country   string      `json:"country"`
	State     string      `json:"state,omitempty"`
	City      string      `json:"city"`
	Zip       string      `json:"zip"`
	Address1  string      `json:"address1"`
	Address2  string      `json:"address2,omitempty"`
	Phone     string      `json:"phone,omitempty"`
	Email     string      `json:"email,omitempty"`
}

func (a Address) IsEmpty() bool {
	return a.FirstName == "" && a.LastName == "" && a.Address1 == "" && a.City == "" && a.Country == ""
}

// AddressPair resolves the billing/shipping rows for an order. Billing copies
// shipping when requested or when it was not supplied.
func AddressPair(orderID int64, shipping Address, billing *Address, sameAsShipping bool) ([]Address, error) {
	if shipping.IsEmpty() {
		return nil, apperr.Validation("shipping address required")
	}
	ship := shipping
	ship.ID = 0
	ship.OrderID = orderID
	ship.Type = AddressShipping

	bill := ship
	if !sameAsShipping && billing != nil && !billing.IsEmpty() {
		bill = *billing
		bill.ID = 0
		bill.OrderID = orderID
	}
	bill.Type = AddressBilling
	return []Address{ship, bill}, nil
}
