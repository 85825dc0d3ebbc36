package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/essence/config"
	"github.com/srg/essence/internal/gatt"
	"github.com/srg/essence/internal/remote"
	"github.com/srg/essence/internal/sink"
	"github.com/srg/essence/internal/storage"
)

var runCmd = &cobra.Command{
	Use:   "run [address]",
	Short: "Connect to a remote and publish gesture events",
	Long: `Connect to the remote at the given BLE address and keep the connection
alive, decoding button presses into gesture events.

The address may be given as an argument or via the config file. Discovered
notification handles are cached under the state directory and reused on
reconnect, so subscriptions come up before service discovery completes.

Events are written to the log, and to MQTT when a broker is configured.`,
	Example: `  essence run CC:7F:5B:12:34:56
  essence run --config /etc/essence/config.yaml
  essence run CC:7F:5B:12:34:56 --state-dir /tmp/essence --log-level debug`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("state-dir", "", "Directory for the handle cache (overrides config)")
	runCmd.Flags().Duration("connect-timeout", 0, "BLE connection timeout (overrides config)")
	runCmd.Flags().Duration("reconnect-delay", 0, "Delay between reconnect attempts (overrides config)")
	runCmd.Flags().Bool("no-fallback", false, "Disable the static handle fallback")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if stateDir, _ := cmd.Flags().GetString("state-dir"); stateDir != "" {
		cfg.StateDir = stateDir
	}
	if d, _ := cmd.Flags().GetDuration("connect-timeout"); d > 0 {
		cfg.ConnectTimeout = config.Duration(d)
	}
	if d, _ := cmd.Flags().GetDuration("reconnect-delay"); d > 0 {
		cfg.ReconnectDelay = config.Duration(d)
	}
	if noFallback, _ := cmd.Flags().GetBool("no-fallback"); noFallback {
		cfg.Fallback.Enabled = false
	}
	return cfg, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Address = args[0]
	}
	if cfg.Address == "" {
		return fmt.Errorf("no device address given (pass one as an argument or set 'address' in the config)")
	}

	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}

	store, err := storage.NewFileStore(cfg.StateDir, logger)
	if err != nil {
		return err
	}
	cache := remote.NewHandleCache(store, logger)

	sinks := []remote.EventSink{sink.NewLogSink(logger)}
	if cfg.MQTT.Enabled {
		mq := sink.NewMQTTSink(sink.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			Port:        cfg.MQTT.Port,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
		}, logger)
		if err := mq.Connect(10 * time.Second); err != nil {
			// The paho client retries in the background, so a slow broker
			// is not fatal at startup
			logger.WithError(err).Warn("MQTT broker not reachable yet, will keep retrying")
		}
		defer mq.Close()
		sinks = append(sinks, mq)
	}

	dispatcher := sink.NewDispatcher(logger, sinks...)
	dispatcher.Start()
	defer dispatcher.Stop()

	connector, err := gatt.NewConnector(gatt.ConnectorOptions{
		Address:        cfg.Address,
		ConnectTimeout: cfg.ConnectTimeout.Std(),
		ReconnectDelay: cfg.ReconnectDelay.Std(),
		Session:        cfg.SessionConfig(),
	}, cache, dispatcher, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("address", cfg.Address).Info("starting gesture daemon")
	return connector.Run(ctx)
}
