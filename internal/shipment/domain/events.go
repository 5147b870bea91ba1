package domain

import orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"

const EventShipmentStatusChanged = "ShipmentStatusChanged"

type ShipmentStatusChanged struct {
	ShipmentID        int64                         `json:"shipment_id"`
	OrderID           int64                         `json:"order_id"`
	From              Status                        `json:"from"`
	To                Status                        `json:"to"`
	EventCode         string                        `json:"event_code"`
	FulfillmentStatus orderdomain.FulfillmentStatus `json:"fulfillment_status"`
}
