package cmd

import (
	"fmt"
	"time"

	"github.com/kestrel-systems/rpcsession/session"
	"github.com/spf13/cobra"
)

var callWaitSeconds int

var callCmd = &cobra.Command{
	Use:   "call <payload>",
	Short: "Send one call and print its reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess := dialSession()
		defer sess.Close()
		if msg := sess.ErrorMessage(); msg != "" {
			return fmt.Errorf("connect: %s", msg)
		}

		call := sess.SendRequest([]byte(args[0]))
		call.Wait(processClock.Now().Add(time.Duration(callWaitSeconds) * time.Second))
		call.Update()

		if call.Status() == session.StatusOK {
			fmt.Println(string(call.Reply()))
			return nil
		}
		return call.Err()
	},
}

func init() {
	callCmd.Flags().IntVar(&callWaitSeconds, "wait", 10, "seconds to wait for a reply")
	rootCmd.AddCommand(callCmd)
}
