/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alejoacosta74/paradex-api/internal/auth"
	"github.com/alejoacosta74/paradex-api/internal/config"
	"github.com/alejoacosta74/paradex-api/internal/conn"
	"github.com/alejoacosta74/paradex-api/internal/events"
	"github.com/alejoacosta74/paradex-api/internal/kafka"
	"github.com/alejoacosta74/paradex-api/internal/metrics"
	"github.com/alejoacosta74/paradex-api/pkg/paradex"
)

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream exchange channels over websocket",
	Long: `Connect to the exchange websocket and subscribe to the given
channels. Frames are printed to stdout, or published to Kafka when broker
addresses are given. Account-scoped channels authenticate automatically
using the derived trading key.`,
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)
	streamCmd.Flags().StringSlice("channels", []string{"trades.BTC-USD-PERP"}, "Channels to subscribe to, e.g. bbo.ETH-USD-PERP,fills")
	streamCmd.Flags().StringSlice("kafka-brokers", nil, "Kafka broker addresses; when set, frames are published instead of printed")
	streamCmd.Flags().String("kafka-topic-prefix", "paradex", "Prefix for Kafka topic names")
	streamCmd.Flags().Int("kafka-pool-size", 3, "Number of Kafka producers in the pool")
	streamCmd.Flags().String("metrics-addr", "", "Address for the Prometheus /metrics server, e.g. :9100")

	viper.BindPFlag("channels", streamCmd.Flags().Lookup("channels"))
	viper.BindPFlag("kafka-brokers", streamCmd.Flags().Lookup("kafka-brokers"))
	viper.BindPFlag("kafka-topic-prefix", streamCmd.Flags().Lookup("kafka-topic-prefix"))
	viper.BindPFlag("kafka-pool-size", streamCmd.Flags().Lookup("kafka-pool-size"))
	viper.BindPFlag("metrics-addr", streamCmd.Flags().Lookup("metrics-addr"))
}

func runStream(cmd *cobra.Command, args []string) error {
	env, err := config.ParseEnvironment(viper.GetString("env"))
	if err != nil {
		return err
	}
	cfg := config.Default(env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	sg, account, err := buildSigner(cfg)
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	defer bus.Shutdown()

	session := auth.NewSession(cfg, sg, account, auth.NewEndpoint(env.APIURL()), auth.WithBus(bus))
	go session.Run(ctx)

	if addr := viper.GetString("metrics-addr"); addr != "" {
		recorder := metrics.NewRecorder(bus, prometheus.DefaultRegisterer)
		recorder.Start(ctx)
		server := metrics.NewServer(addr)
		go func() {
			if err := server.Start(ctx); err != nil {
				logrus.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	callback, cleanup, err := buildSink(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := conn.NewRegistry(cfg.QueueDepth)
	manager := conn.NewManager(cfg, session, registry, bus)

	for _, spec := range viper.GetStringSlice("channels") {
		channel, market, err := paradex.ParseChannel(spec)
		if err != nil {
			return err
		}
		if err := manager.Subscribe(channel, market, callback); err != nil {
			return err
		}
	}

	manager.Start(ctx)
	logrus.Infof("Streaming from %s", env.WSURL())

	<-manager.Done()
	if err := manager.Err(); err != nil {
		return err
	}
	logrus.Info("Client shutdown")
	return nil
}

// buildSink returns the frame callback: a Kafka publisher when brokers are
// configured, a stdout printer otherwise.
func buildSink(ctx context.Context) (conn.Callback, func(), error) {
	brokers := viper.GetStringSlice("kafka-brokers")
	if len(brokers) == 0 {
		return func(channel paradex.Channel, market string, data json.RawMessage) {
			fmt.Printf("%s\t%s\n", channel.WithMarket(market), string(data))
		}, func() {}, nil
	}

	if err := kafka.CheckClusterAvailability(brokers, 5*time.Second); err != nil {
		return nil, nil, err
	}

	pool, err := kafka.NewProducerPool(kafka.ProducerConfig{
		BrokerList: brokers,
		PoolSize:   viper.GetInt("kafka-pool-size"),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Start(); err != nil {
		return nil, nil, err
	}

	sink := kafka.NewSink(pool, viper.GetString("kafka-topic-prefix"))
	cleanup := func() {
		if err := pool.Stop(); err != nil {
			logrus.Warnf("Stopping producer pool: %v", err)
		}
	}
	return conn.Callback(sink.Callback(ctx)), cleanup, nil
}
