package signer

import (
	"strconv"
	"strings"

	"github.com/alejoacosta74/paradex-api/pkg/paradex"
)

// TypedPayload is the closed set of signable message variants. Each variant
// declares its type name, ordered member schema, and field values.
type TypedPayload interface {
	TypeName() string
	Members() []Member
	Values() (map[string]string, error)
	// Validate reports a MalformedPayloadError when a required field is
	// missing or inconsistent.
	Validate() error
}

// MalformedPayloadError marks a caller error in payload construction. It is
// fatal and reported immediately; retrying the same payload cannot succeed.
type MalformedPayloadError struct {
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	return "malformed payload: " + e.Reason
}

// OrderIntent is the signable form of a new order.
type OrderIntent struct {
	Order     *paradex.Order
	Timestamp int64 // milliseconds
}

func (o *OrderIntent) TypeName() string { return "Order" }

func (o *OrderIntent) Members() []Member {
	return []Member{
		{Name: "timestamp", Type: "felt"},
		{Name: "market", Type: "felt"},
		{Name: "side", Type: "felt"},
		{Name: "orderType", Type: "felt"},
		{Name: "size", Type: "felt"},
		{Name: "price", Type: "felt"},
	}
}

func (o *OrderIntent) Values() (map[string]string, error) {
	size, err := o.Order.ChainSize()
	if err != nil {
		return nil, &MalformedPayloadError{Reason: err.Error()}
	}
	price, err := o.Order.ChainPrice()
	if err != nil {
		return nil, &MalformedPayloadError{Reason: err.Error()}
	}
	return map[string]string{
		"timestamp": strconv.FormatInt(o.Timestamp, 10),
		"market":    o.Order.Market,
		"side":      strconv.Itoa(o.Order.Side.ChainSide()),
		"orderType": string(o.Order.Type),
		"size":      size,
		"price":     price,
	}, nil
}

func (o *OrderIntent) Validate() error {
	switch {
	case o.Order == nil:
		return &MalformedPayloadError{Reason: "nil order"}
	case o.Order.Market == "":
		return &MalformedPayloadError{Reason: "empty market"}
	case o.Order.Size == "":
		return &MalformedPayloadError{Reason: "empty size"}
	case o.Order.Type == paradex.Limit && o.Order.Price == "":
		return &MalformedPayloadError{Reason: "limit order without price"}
	case o.Timestamp <= 0:
		return &MalformedPayloadError{Reason: "missing signature timestamp"}
	}
	return nil
}

// ModifyOrderIntent is the signable form of an order modification; it binds
// the existing order id in addition to the order fields.
type ModifyOrderIntent struct {
	OrderIntent
}

func (o *ModifyOrderIntent) TypeName() string { return "ModifyOrder" }

func (o *ModifyOrderIntent) Members() []Member {
	return append(o.OrderIntent.Members(), Member{Name: "id", Type: "felt"})
}

func (o *ModifyOrderIntent) Values() (map[string]string, error) {
	values, err := o.OrderIntent.Values()
	if err != nil {
		return nil, err
	}
	values["id"] = o.Order.ID
	return values, nil
}

func (o *ModifyOrderIntent) Validate() error {
	if err := o.OrderIntent.Validate(); err != nil {
		return err
	}
	if o.Order.ID == "" {
		return &MalformedPayloadError{Reason: "modify without order id"}
	}
	return nil
}

// AuthChallenge is signed to obtain a bearer token. Timestamp and expiry are
// unix seconds; the hash binds both so a stale challenge cannot be replayed.
type AuthChallenge struct {
	Timestamp int64
	Expiry    int64
}

func (a *AuthChallenge) TypeName() string { return "Auth" }

func (a *AuthChallenge) Members() []Member {
	return []Member{
		{Name: "timestamp", Type: "felt"},
		{Name: "expiry", Type: "felt"},
	}
}

func (a *AuthChallenge) Values() (map[string]string, error) {
	return map[string]string{
		"timestamp": strconv.FormatInt(a.Timestamp, 10),
		"expiry":    strconv.FormatInt(a.Expiry, 10),
	}, nil
}

func (a *AuthChallenge) Validate() error {
	if a.Timestamp <= 0 {
		return &MalformedPayloadError{Reason: "missing timestamp"}
	}
	if a.Expiry <= a.Timestamp {
		return &MalformedPayloadError{Reason: "expiry not after timestamp"}
	}
	return nil
}

// OnboardingRecord registers a new account. The payload carries no fields;
// the signature binds only the domain.
type OnboardingRecord struct{}

func (OnboardingRecord) TypeName() string { return "Onboarding" }

func (OnboardingRecord) Members() []Member { return nil }

func (OnboardingRecord) Values() (map[string]string, error) {
	return map[string]string{}, nil
}

func (OnboardingRecord) Validate() error { return nil }

// BlockTradeOffer is the signable form of a block-trade offer.
type BlockTradeOffer struct {
	Timestamp       int64
	Markets         []string
	RequiredSigners []string
}

func (b *BlockTradeOffer) TypeName() string { return "BlockTrade" }

func (b *BlockTradeOffer) Members() []Member {
	return []Member{
		{Name: "timestamp", Type: "felt"},
		{Name: "markets", Type: "felt"},
		{Name: "required_signers", Type: "felt"},
	}
}

func (b *BlockTradeOffer) Values() (map[string]string, error) {
	return map[string]string{
		"timestamp":        strconv.FormatInt(b.Timestamp, 10),
		"markets":          strings.Join(b.Markets, ","),
		"required_signers": strings.Join(b.RequiredSigners, ","),
	}, nil
}

func (b *BlockTradeOffer) Validate() error {
	if b.Timestamp <= 0 {
		return &MalformedPayloadError{Reason: "missing timestamp"}
	}
	if len(b.Markets) == 0 {
		return &MalformedPayloadError{Reason: "no markets"}
	}
	return nil
}

// FullnodeRpcCall authorizes a JSON-RPC call forwarded to the fullnode.
type FullnodeRpcCall struct {
	Account   string
	Payload   string // raw JSON
	Timestamp int64
	Version   string
}

// FullnodeSignatureVersion is the current fullnode signing scheme version.
const FullnodeSignatureVersion = "1.0.0"

func (f *FullnodeRpcCall) TypeName() string { return "FullnodeRequest" }

func (f *FullnodeRpcCall) Members() []Member {
	return []Member{
		{Name: "account", Type: "felt"},
		{Name: "payload", Type: "felt"},
		{Name: "timestamp", Type: "felt"},
		{Name: "version", Type: "felt"},
	}
}

func (f *FullnodeRpcCall) Values() (map[string]string, error) {
	return map[string]string{
		"account":   f.Account,
		"payload":   f.Payload,
		"timestamp": strconv.FormatInt(f.Timestamp, 10),
		"version":   f.Version,
	}, nil
}

func (f *FullnodeRpcCall) Validate() error {
	switch {
	case f.Account == "":
		return &MalformedPayloadError{Reason: "empty account"}
	case f.Payload == "":
		return &MalformedPayloadError{Reason: "empty payload"}
	case f.Timestamp <= 0:
		return &MalformedPayloadError{Reason: "missing timestamp"}
	}
	return nil
}
