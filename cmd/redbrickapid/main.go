package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags.
var version = "dev"

type cmdGlobal struct {
	flagConfig      string
	flagCheckConfig bool
	flagDebug       bool
	flagDebugFilter string
}

func main() {
	daemonCmd := cmdDaemon{}
	app := daemonCmd.command()
	app.Use = "redbrickapid"
	app.Short = "RED Brick API daemon"
	app.Long = `Description:
  RED Brick API daemon

  Exposes a handle-based view of the device's filesystem, processes and
  persistent programs to a single local client over a framed unix socket
  protocol.
`
	app.SilenceUsage = true
	app.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}

	global := cmdGlobal{}
	app.PersistentFlags().StringVar(&global.flagConfig, "config", "/etc/redbrickapid/redbrickapid.conf", "Path to the daemon configuration file")
	app.PersistentFlags().BoolVar(&global.flagCheckConfig, "check-config", false, "Parse the configuration file, print any warnings, and exit")
	app.PersistentFlags().BoolVar(&global.flagDebug, "debug", false, "Enable debug logging")
	app.PersistentFlags().StringVar(&global.flagDebugFilter, "debug-filter", "", "Only log debug messages from this category")
	daemonCmd.global = &global

	app.SetVersionTemplate("{{.Version}}\n")
	app.Version = version

	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}
