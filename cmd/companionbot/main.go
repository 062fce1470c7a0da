// Command companionbot runs the Telegram companion bot.
//
//	companionbot serve    HTTP API + webhook (and, by default, reply workers)
//	companionbot worker   reply workers only (requires REDIS_URL)
//	companionbot seed     insert the built-in companion catalog
//
// Configuration is read from the environment; a .env file in the working
// directory is loaded first when present.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "companionbot",
		Short:         "Telegram companion bot backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newSeedCmd())
	return cmd
}
