package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	// Import for side effects: register the gateway backends via init().
	_ "github.com/praetorian-inc/arcsolver/internal/gateway/bedrock"
	_ "github.com/praetorian-inc/arcsolver/internal/gateway/openai"
	_ "github.com/praetorian-inc/arcsolver/internal/gateway/replicate"
)

const version = "0.1.0"

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("arcsolver"),
		kong.Description("ARC-AGI ensemble reasoning engine"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Exit(func(code int) {
			if code != 0 {
				os.Exit(2)
			}
			os.Exit(0)
		}),
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
