// Command fxtrader runs the automated FX trading agent.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"

	"fx-trader/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}
