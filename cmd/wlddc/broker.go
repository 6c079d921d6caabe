package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/wlddc/internal/agent"
	"github.com/nerrad567/wlddc/internal/infrastructure/config"
	"github.com/nerrad567/wlddc/internal/infrastructure/logging"
	"github.com/nerrad567/wlddc/internal/infrastructure/mqtt"
	"github.com/nerrad567/wlddc/internal/mdns"
)

// brokerResolver finds a broker for one connection attempt.
type brokerResolver interface {
	First(ctx context.Context) (mdns.Broker, error)
}

// newDialer returns the agent's dialer. With host "auto" every attempt
// browses for a broker first, so resolution failures go through the
// agent's reconnect backoff like any other connection error.
func newDialer(cfg config.MQTTConfig, resolver brokerResolver, logger *logging.Logger) agent.Dialer {
	if cfg.Broker.Host != config.BrokerAuto {
		return agent.MQTTDialer(cfg, logger)
	}

	return func(ctx context.Context, will mqtt.Will, onLost func(error)) (agent.MQTTClient, error) {
		b, err := resolver.First(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving broker: %w", err)
		}
		logger.Info("using broker found via mDNS", "instance", b.Instance, "host", b.Address(), "port", b.Port)

		resolved := cfg
		resolved.Broker.Host = b.Address()
		resolved.Broker.Port = b.Port
		return agent.MQTTDialer(resolved, logger)(ctx, will, onLost)
	}
}

func newBrokersCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "brokers",
		Short: "List MQTT brokers advertised via mDNS",
		Long: `Browse the local network for _mqtt._tcp services. Any broker listed here
can be used by setting mqtt.broker.host to "auto".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}

			brokers, err := mdns.NewResolver(mdns.DefaultTimeout, newLogger(cfg, true)).Discover(cmd.Context())
			if err != nil {
				return err
			}
			if len(brokers) == 0 {
				return mdns.ErrNoBroker
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "INSTANCE\tHOST\tADDRESS\tPORT")
			for _, b := range brokers {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", b.Instance, orDash(b.Host), b.Address(), b.Port)
			}
			return tw.Flush()
		},
	}
}
