package cmd

import (
	"fmt"
	"os"

	"github.com/kestrel-systems/rpcsession/internal/config"
	"github.com/kestrel-systems/rpcsession/internal/signals"
	"github.com/kestrel-systems/rpcsession/internal/util"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	endpoint    string
	network     string
	maxFrameLen int
)

var rootCmd = &cobra.Command{
	Use:   "rpcclient",
	Short: "Client for a framed request/response session over TCP",
	Long: `rpcclient drives a session.Session against a remote endpoint: send a
single call and wait for its reply, probe liveness with a ping, watch
several calls at once in a terminal dashboard, or check local clock drift
against NTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.CfgFile = cfgFile
		config.Init()
		cfg := config.FromViper()
		if endpoint == "" {
			endpoint = cfg.Endpoint
		}
		if network == "" {
			network = cfg.Network
		}
		if maxFrameLen == 0 {
			maxFrameLen = cfg.MaxFrameLen
		}
		return nil
	},
}

// Execute runs the root command. A SIGINT or SIGTERM arriving mid-command
// (most relevantly during the long-running watch dashboard) closes every
// session dialSession has opened before the process exits, rather than
// leaving the connection to the OS.
func Execute() {
	signals.RegisterInterruptHandler(func() { os.Exit(130) })
	go signals.Handle()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.rpcsession/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "server address (host:port)")
	rootCmd.PersistentFlags().StringVar(&network, "network", "", "dial network (tcp)")
	rootCmd.PersistentFlags().IntVar(&maxFrameLen, "max-frame-len", 0, "maximum inbound frame size in bytes")
	signals.RegisterPreShutdownHandler(util.CloseAll)
}
