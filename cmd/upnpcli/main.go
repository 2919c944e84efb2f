// Command upnpcli is the thin CLI front end that wires Discovery, the
// Profile Matcher, the Profiling Engine, the Control Engine, and the Mass
// Orchestrator together for manual operation, per SPEC_FULL.md §1. It
// implements the exit-code contract of spec.md §6: 0 success, 2
// usage/validation error, 3 no devices discovered, 4 action failed, 5
// partial success in a mass run.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/upnp-cli/upnptoolkit/internal/logging"
)

const (
	exitOK             = 0
	exitUsageError     = 2
	exitNoDevices      = 3
	exitActionFailed   = 4
	exitPartialSuccess = 5
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "upnpcli",
	Short: "UPnP reconnaissance, profiling, and control toolkit",
	Long: `upnpcli discovers UPnP/DLNA/DIAL devices on the local network,
profiles their SOAP action inventories, and invokes actions against them
directly or through vendor sibling protocols (Cast, Roku ECP, Samsung WAM,
and others).`,
}

var (
	logLevel string
	timeoutSeconds int
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log verbosity (debug, info, warn, error); silent by default")
	rootCmd.PersistentFlags().IntVar(&timeoutSeconds, "timeout", 10, "per-request timeout in seconds")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(massCmd)
	rootCmd.AddCommand(serveCmd)

	cobra.OnInitialize(func() {
		if err := logging.Initialize(logLevel); err != nil {
			fmt.Fprintln(os.Stderr, "Error: initializing logger:", err)
		}
	})
}

// exitError carries a specific exit code alongside its message, so main can
// map cobra's single error return to the right contract code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	if ee, ok := err.(*exitError); ok {
		return ee.code
	}
	return exitUsageError
}
