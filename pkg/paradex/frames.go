package paradex

import "encoding/json"

// Request is an outbound websocket frame. The streaming API speaks JSON-RPC;
// IDs correlate acknowledgements with the request that caused them.
type Request struct {
	ID      string        `json:"id"`
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  RequestParams `json:"params"`
}

// RequestParams carries the method arguments. Channel is set for
// subscribe/unsubscribe, Bearer for the auth method.
type RequestParams struct {
	Channel string `json:"channel,omitempty"`
	Bearer  string `json:"bearer,omitempty"`
}

// Methods accepted by the streaming API. MethodSubscription marks
// server-initiated data frames.
const (
	MethodAuth         = "auth"
	MethodSubscribe    = "subscribe"
	MethodUnsubscribe  = "unsubscribe"
	MethodSubscription = "subscription"
)

// Response is an inbound websocket frame. Acknowledgements carry ID and
// Result (or Error); data frames carry Params with the originating channel.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Params  *DataParams     `json:"params,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// DataParams is the payload of a data frame.
type DataParams struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// ResponseError is the JSON-RPC error object.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// IsAck reports whether the frame acknowledges an outbound request.
func (r *Response) IsAck() bool {
	return r.ID != ""
}

// IsData reports whether the frame is a channel data frame.
func (r *Response) IsData() bool {
	return r.Params != nil && r.Params.Channel != ""
}
