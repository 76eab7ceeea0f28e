package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lewisedginton/chatwatch/internal/cli"
)

func main() {
	app := cli.NewApp()
	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
