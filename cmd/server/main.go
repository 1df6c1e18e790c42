// Command server runs the DataBazaar HTTP API and its gRPC health endpoint.
//
// Settings come from defaults, then an optional JSON file (-c), then flags;
// see internal/server/config for the full list.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/databazaar/internal/server"
	"github.com/dmitrijs2005/databazaar/internal/server/config"
)

func main() {
	ctx := context.Background()

	app, err := server.NewApp(ctx, config.LoadConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "databazaar: %v\n", err)
		os.Exit(1)
	}

	// Run installs its own SIGINT/SIGTERM handler and closes the backends
	// before returning.
	app.Run(ctx)
}
