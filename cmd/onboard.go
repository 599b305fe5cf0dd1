/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alejoacosta74/paradex-api/internal/auth"
	"github.com/alejoacosta74/paradex-api/internal/config"
	"github.com/alejoacosta74/paradex-api/internal/signer"
)

// onboardCmd represents the onboard command
var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Register the derived trading account with the exchange",
	Long: `Derive the trading key from the base Ethereum key, sign an
onboarding record, and register the trading account. Safe to run for an
account that already exists.`,
	RunE: runOnboard,
}

func init() {
	rootCmd.AddCommand(onboardCmd)
}

func runOnboard(cmd *cobra.Command, args []string) error {
	env, err := config.ParseEnvironment(viper.GetString("env"))
	if err != nil {
		return err
	}
	cfg := config.Default(env)

	cred, err := buildCredential(cfg)
	if err != nil {
		return err
	}
	key, address, err := cred.Secondary()
	if err != nil {
		return err
	}
	sg := signer.New(key, env.ChainID())

	record, err := sg.Sign(&signer.OnboardingRecord{})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	endpoint := auth.NewEndpoint(env.APIURL())
	publicKey := "0x" + hex.EncodeToString(sg.PublicKeyBytes())
	if err := endpoint.Onboard(ctx, record, cred.BaseAddress().Hex(), address.Hex(), publicKey); err != nil {
		return err
	}

	logrus.Infof("Account %s onboarded on %s", address.Hex(), env)
	return nil
}
