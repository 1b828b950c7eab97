/*
Package main implements odpreplay, which runs a datapath action list over
the packets of a pcap file.

	odpreplay decode --actions 0800010003000000
	odpreplay replay --in in.pcap --out-dir out --actions HEX

Every packet that an output action sends to port N is written to port-N.pcap,
and every userspace delivery to upcall.pcap, in input order. Flags may also be
given in a yaml file with --config, or as ODPREPLAY_* environment variables.
*/
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/hkwi/godp/odp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ODPREPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	log := logrus.New()

	root := &cobra.Command{
		Use:          "odpreplay",
		Short:        "Run openvswitch datapath actions over captured packets",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if path := v.GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read config file %s: %w", path, err)
				}
			}
			return setupLogger(log, v.GetString("log-level"), v.GetString("log-format"))
		},
	}
	root.PersistentFlags().String("config", "", "yaml config file")
	root.PersistentFlags().String("log-level", "info", "log level")
	root.PersistentFlags().String("log-format", "text", "log format, text or json")

	root.AddCommand(newDecodeCmd(v))
	root.AddCommand(newReplayCmd(v, log))
	return root
}

func setupLogger(log *logrus.Logger, level, format string) error {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lv)
	switch format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

func newDecodeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Print a hex encoded action list in dpctl syntax",
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := parseActionsHex(v.GetString("actions"))
			if err != nil {
				return err
			}
			for _, a := range actions {
				fmt.Fprintln(cmd.OutOrStdout(), a.String())
			}
			return nil
		},
	}
	cmd.Flags().String("actions", "", "netlink encoded action list in hex")
	return cmd
}

func newReplayCmd(v *viper.Viper, log *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Execute an action list on every packet of a pcap file",
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := parseActionsHex(v.GetString("actions"))
			if err != nil {
				return err
			}
			cfg := replayConfig{
				In:             v.GetString("in"),
				OutDir:         v.GetString("out-dir"),
				Actions:        actions,
				InPort:         v.GetUint32("in-port"),
				Workers:        v.GetInt("workers"),
				Seed:           v.GetUint64("seed"),
				MaxSampleDepth: v.GetInt("max-sample-depth"),
				MetricsFile:    v.GetString("metrics-file"),
			}
			if cfg.In == "" || cfg.OutDir == "" {
				return fmt.Errorf("--in and --out-dir are required")
			}
			stats, err := replay(cfg, log.WithField("component", "odpreplay"))
			if stats != nil {
				fmt.Fprintln(cmd.OutOrStdout(), stats)
			}
			return err
		},
	}
	cmd.Flags().String("in", "", "input pcap file")
	cmd.Flags().String("out-dir", "", "directory for port-N.pcap and upcall.pcap")
	cmd.Flags().String("actions", "", "netlink encoded action list in hex")
	cmd.Flags().Uint32("in-port", 0, "ingress port number of the flow key")
	cmd.Flags().Int("workers", 4, "number of packets executed concurrently")
	cmd.Flags().Uint64("seed", 0, "sample draw seed, 0 for a random source")
	cmd.Flags().Int("max-sample-depth", 0, "sample nesting limit, 0 for default and negative for none")
	cmd.Flags().String("metrics-file", "", "write prometheus metrics in text format here")
	return cmd
}

func parseActionsHex(s string) (odp.Actions, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', ':':
			return -1
		}
		return r
	}, s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}
	return odp.ParseActions(data)
}
