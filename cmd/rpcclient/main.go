// Command rpcclient is a command-line client for the session package: it
// issues calls against a running server, pings it, watches in-flight calls
// in a terminal dashboard, and checks local clock drift against NTP.
package main

import "github.com/kestrel-systems/rpcsession/cmd/rpcclient/cmd"

func main() {
	cmd.Execute()
}
