package paradex

import "fmt"

// OrderSide is the direction of an order.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// ChainSide returns the integer representation used inside signed payloads.
// The on-chain verifier encodes buy as 1 and sell as 2.
func (s OrderSide) ChainSide() int {
	if s == Sell {
		return 2
	}
	return 1
}

// OrderType distinguishes limit from market orders.
type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

// OrderInstruction is the time-in-force style execution instruction.
type OrderInstruction string

const (
	GTC      OrderInstruction = "GTC"
	PostOnly OrderInstruction = "POST_ONLY"
	IOC      OrderInstruction = "IOC"
	FOK      OrderInstruction = "FOK"
)

// Order is an order in the shape the submission endpoint expects. Size and
// price are decimal strings; the signature fields are populated by the
// signer before submission.
type Order struct {
	Market             string           `json:"market"`
	Side               OrderSide        `json:"side"`
	Type               OrderType        `json:"type"`
	Size               string           `json:"size"`
	Price              string           `json:"price,omitempty"`
	ClientID           string           `json:"client_id,omitempty"`
	Instruction        OrderInstruction `json:"instruction,omitempty"`
	ReduceOnly         bool             `json:"reduce_only,omitempty"`
	TriggerPrice       string           `json:"trigger_price,omitempty"`
	ID                 string           `json:"id,omitempty"`
	Signature          string           `json:"signature,omitempty"`
	SignatureTimestamp int64            `json:"signature_timestamp,omitempty"`
}

// ChainSize returns the order size converted to quantums for hashing.
func (o *Order) ChainSize() (string, error) {
	q, err := ToQuantum(o.Size, QuantumDecimals)
	if err != nil {
		return "", fmt.Errorf("order size: %w", err)
	}
	return q, nil
}

// ChainPrice returns the order price converted to quantums for hashing.
// Market orders carry no price and hash a zero value.
func (o *Order) ChainPrice() (string, error) {
	if o.Price == "" {
		return "0", nil
	}
	q, err := ToQuantum(o.Price, QuantumDecimals)
	if err != nil {
		return "", fmt.Errorf("order price: %w", err)
	}
	return q, nil
}
