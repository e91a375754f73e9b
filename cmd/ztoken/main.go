// Command ztoken runs the permissioned token ledger:
//   - serve: HTTP API, commit feed and metrics
//   - migrate: postgres and clickhouse schema
//   - watch: stream committed changes from a running server
//   - report: token supply report
//   - verify: replay audit of the commit log
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
