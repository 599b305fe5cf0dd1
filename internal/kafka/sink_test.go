package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/alejoacosta74/paradex-api/internal/kafka"
	"github.com/alejoacosta74/paradex-api/internal/kafka/mocks"
	"github.com/alejoacosta74/paradex-api/pkg/paradex"
)

func TestSink_Topic(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		channel paradex.Channel
		want    string
	}{
		{name: "prefixed", prefix: "paradex", channel: paradex.ChannelTrades, want: "paradex.trades"},
		{name: "no prefix", prefix: "", channel: paradex.ChannelBBO, want: "bbo"},
		{name: "underscored channel", prefix: "paradex", channel: paradex.ChannelMarketsSummary, want: "paradex.markets_summary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := kafka.NewSink(nil, tt.prefix)
			assert.Equal(t, tt.want, sink.Topic(tt.channel))
		})
	}
}

func TestSink_CallbackPublishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sender := mocks.NewMockMessageSender(ctrl)
	payload := []byte(`{"price":"50000"}`)
	sender.EXPECT().Send(gomock.Any(), "paradex.trades", payload).Return(nil)

	sink := kafka.NewSink(sender, "paradex")
	cb := sink.Callback(context.Background())
	cb(paradex.ChannelTrades, "BTC-USD-PERP", json.RawMessage(payload))
}

func TestSink_CallbackSwallowsSendErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sender := mocks.NewMockMessageSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	sink := kafka.NewSink(sender, "paradex")
	cb := sink.Callback(context.Background())

	// A failed publish is logged, never panics or propagates: the dispatch
	// goroutine must keep draining frames.
	cb(paradex.ChannelTrades, "BTC-USD-PERP", json.RawMessage(`{}`))
}
