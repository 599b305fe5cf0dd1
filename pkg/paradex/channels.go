package paradex

import (
	"fmt"
	"strings"
)

// Channel identifies one websocket message stream. The namespace is closed
// and versioned by the exchange; account-scoped channels require a bearer
// token during the connection's authentication phase.
type Channel string

const (
	ChannelAccount               Channel = "account"
	ChannelBalanceEvents         Channel = "balance_events"
	ChannelBBO                   Channel = "bbo"
	ChannelFills                 Channel = "fills"
	ChannelFundingData           Channel = "funding_data"
	ChannelFundingPayments       Channel = "funding_payments"
	ChannelFundingRateComparison Channel = "funding_rate_comparison"
	ChannelMarketsSummary        Channel = "markets_summary"
	ChannelOrders                Channel = "orders"
	ChannelOrderBook             Channel = "order_book"
	ChannelPositions             Channel = "positions"
	ChannelTrades                Channel = "trades"
	ChannelTradebusts            Channel = "tradebusts"
	ChannelTransactions          Channel = "transaction"
	ChannelTransfers             Channel = "transfers"
)

// RequiresAuth reports whether the channel is account-scoped and therefore
// needs an authenticated connection.
func (c Channel) RequiresAuth() bool {
	switch c {
	case ChannelAccount, ChannelBalanceEvents, ChannelFills,
		ChannelFundingPayments, ChannelOrders, ChannelPositions,
		ChannelTradebusts, ChannelTransactions, ChannelTransfers:
		return true
	}
	return false
}

// WithMarket formats the channel name with a market parameter,
// e.g. "bbo.BTC-USD-PERP". Channels without a parameter are sent bare.
func (c Channel) WithMarket(market string) string {
	if market == "" {
		return string(c)
	}
	return string(c) + "." + market
}

func (c Channel) String() string {
	return string(c)
}

var knownChannels = map[Channel]struct{}{
	ChannelAccount:               {},
	ChannelBalanceEvents:         {},
	ChannelBBO:                   {},
	ChannelFills:                 {},
	ChannelFundingData:           {},
	ChannelFundingPayments:       {},
	ChannelFundingRateComparison: {},
	ChannelMarketsSummary:        {},
	ChannelOrders:                {},
	ChannelOrderBook:             {},
	ChannelPositions:             {},
	ChannelTrades:                {},
	ChannelTradebusts:            {},
	ChannelTransactions:          {},
	ChannelTransfers:             {},
}

// ParseChannel splits a subscription spec like "bbo.BTC-USD-PERP" into its
// channel and optional market, rejecting channels outside the namespace.
func ParseChannel(spec string) (Channel, string, error) {
	name, market, _ := strings.Cut(spec, ".")
	c := Channel(name)
	if _, ok := knownChannels[c]; !ok {
		return "", "", fmt.Errorf("unknown channel %q", name)
	}
	return c, market, nil
}
