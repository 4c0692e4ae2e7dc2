package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kestrel-systems/rpcsession/cmd/rpcclient/tui"
	"github.com/kestrel-systems/rpcsession/session"
	"github.com/spf13/cobra"
)

var watchWaitSeconds int

var watchCmd = &cobra.Command{
	Use:   "watch <payload>...",
	Short: "Send several calls and watch their state in a live dashboard",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess := dialSession()
		defer sess.Close()
		if msg := sess.ErrorMessage(); msg != "" {
			return fmt.Errorf("connect: %s", msg)
		}

		calls := make([]*session.CallHandle, len(args))
		payloads := make([]string, len(args))
		for i, payload := range args {
			calls[i] = sess.SendRequest([]byte(payload))
			payloads[i] = payload
		}

		refresh := func() []tui.Row {
			rows := make([]tui.Row, len(calls))
			for i, c := range calls {
				c.Update()
				row := tui.Row{Token: c.Token(), Payload: payloads[i], Status: c.Status()}
				if row.Status == session.StatusOK {
					row.Reply = string(c.Reply())
				} else if err := c.Err(); err != nil {
					row.Err = err.Error()
				}
				rows[i] = row
			}
			return rows
		}

		go func() {
			deadline := processClock.Now().Add(time.Duration(watchWaitSeconds) * time.Second)
			for _, c := range calls {
				c.Wait(deadline)
			}
		}()

		m := tui.New(endpoint, refresh)
		p := tea.NewProgram(m)
		_, err := p.Run()
		return err
	},
}

func init() {
	watchCmd.Flags().IntVar(&watchWaitSeconds, "wait", 30, "seconds to wait for all replies")
	rootCmd.AddCommand(watchCmd)
}
