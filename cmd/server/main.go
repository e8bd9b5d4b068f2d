// Command lifedash serves the township life expectancy dashboard.
//
// Usage:
//
//	lifedash serve --config config.yaml
//	lifedash snapshot --year 2010 --out snapshots
//	lifedash export --out life_expectancy.arrow
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
