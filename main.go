// Package main provides the entrypoint for lark-ai-bridge.
package main

import (
	"os"

	"github.com/isometry/lark-ai-bridge/cmd"
)

func main() {
	if err := cmd.New().Execute(); err != nil {
		os.Exit(1)
	}
}
