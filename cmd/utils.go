package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/alejoacosta74/paradex-api/internal/config"
	"github.com/alejoacosta74/paradex-api/internal/keys"
	"github.com/alejoacosta74/paradex-api/internal/signer"
)

// handleSignals listens for OS signals to cancel the context
func handleSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	cancel()
}

// buildCredential resolves the trading key: either a pre-derived subkey or
// a derivation from the base Ethereum key bound to the environment's chain.
func buildCredential(cfg config.Config) (*keys.Credential, error) {
	if subkey := viper.GetString("subkey"); subkey != "" {
		return keys.NewSecondaryCredential(subkey)
	}
	baseKey := viper.GetString("private-key")
	if baseKey == "" {
		return nil, fmt.Errorf("either --private-key or --subkey is required")
	}
	message := keys.DerivationMessage(cfg.Environment.BaseChainID())
	return keys.NewCredential(baseKey, message)
}

// buildSigner derives the trading key and wraps it in a signer bound to the
// environment's settlement chain. Returns the trading account address.
func buildSigner(cfg config.Config) (*signer.Signer, string, error) {
	cred, err := buildCredential(cfg)
	if err != nil {
		return nil, "", err
	}
	key, address, err := cred.Secondary()
	if err != nil {
		return nil, "", err
	}
	return signer.New(key, cfg.Environment.ChainID()), address.Hex(), nil
}
