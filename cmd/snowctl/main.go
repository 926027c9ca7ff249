// Command snowctl is the operator CLI: schema migration, platform settings
// and manual payout dispatch against the production database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openPostgres).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
