package config

import (
	"fmt"
	"time"
)

// Environment selects the exchange network. It decides the REST and
// websocket endpoints, the settlement chain id used in the signing domain,
// and the base chain id bound into key derivation.
type Environment string

const (
	Prod    Environment = "prod"
	Testnet Environment = "testnet"
)

// ParseEnvironment validates an environment name.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case Prod:
		return Prod, nil
	case Testnet:
		return Testnet, nil
	default:
		return "", fmt.Errorf("unknown environment %q", s)
	}
}

// APIURL returns the REST base URL for the environment.
func (e Environment) APIURL() string {
	if e == Prod {
		return "https://api.prod.paradex.trade/v1"
	}
	return "https://api.testnet.paradex.trade/v1"
}

// WSURL returns the websocket URL for the environment.
func (e Environment) WSURL() string {
	if e == Prod {
		return "wss://ws.api.prod.paradex.trade/v1"
	}
	return "wss://ws.api.testnet.paradex.trade/v1"
}

// ChainID returns the settlement chain identifier used as the typed-data
// domain's chainId field.
func (e Environment) ChainID() string {
	if e == Prod {
		return "PRIVATE_SN_PARACLEAR_MAINNET"
	}
	return "PRIVATE_SN_POTC_SEPOLIA"
}

// BaseChainID returns the base chain id bound into the key derivation
// message, so keys derived for one network are unusable on another.
func (e Environment) BaseChainID() uint64 {
	if e == Prod {
		return 1
	}
	return 11155111
}

// Config is the immutable runtime configuration. It is constructed once at
// startup and passed explicitly to every component that needs it.
type Config struct {
	Environment Environment

	// RefreshMargin is how long before token expiry a refresh is triggered.
	RefreshMargin time.Duration
	// AuthRetryMax bounds refresh attempts per Token call.
	AuthRetryMax int

	// Reconnect backoff policy. Transport errors retry forever; auth
	// rejections are capped separately by AuthRejectMax.
	BackoffInitial time.Duration
	BackoffCap     time.Duration
	AuthRejectMax  int

	// Heartbeat contract: a ping every PingInterval, connection declared
	// dead if no pong arrives within PongTimeout.
	PingInterval time.Duration
	PongTimeout  time.Duration

	WriteTimeout time.Duration
	// QueueDepth bounds each subscription's dispatch queue.
	QueueDepth int
}

// Default returns the configuration defaults for an environment.
func Default(env Environment) Config {
	return Config{
		Environment:    env,
		RefreshMargin:  60 * time.Second,
		AuthRetryMax:   3,
		BackoffInitial: 500 * time.Millisecond,
		BackoffCap:     30 * time.Second,
		AuthRejectMax:  3,
		PingInterval:   20 * time.Second,
		PongTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
		QueueDepth:     256,
	}
}
