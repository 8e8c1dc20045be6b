package main

import (
	"os"

	// schedule and app timezones must resolve on hosts without zoneinfo
	_ "time/tzdata"

	"github.com/wonny/quantsnap/cmd/quant/commands"
)

// main is the entry point for the quant CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/quant [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
