package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Connect to the endpoint and report whether it is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		sess := dialSession()
		defer sess.Close()
		if msg := sess.ErrorMessage(); msg != "" {
			return fmt.Errorf("%s", msg)
		}
		fmt.Printf("connected to %s in %s\n", endpoint, time.Since(start))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
