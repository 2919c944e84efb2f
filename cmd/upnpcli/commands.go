package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/upnp-cli/upnptoolkit/internal/control"
	"github.com/upnp-cli/upnptoolkit/internal/discovery"
	"github.com/upnp-cli/upnptoolkit/internal/logging"
	"github.com/upnp-cli/upnptoolkit/internal/matcher"
	"github.com/upnp-cli/upnptoolkit/internal/mediaserver"
	"github.com/upnp-cli/upnptoolkit/internal/orchestrator"
	"github.com/upnp-cli/upnptoolkit/internal/profilegen"
	"github.com/upnp-cli/upnptoolkit/internal/profilestore"
	"github.com/upnp-cli/upnptoolkit/internal/profiling"
	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

var (
	flagCIDR       string
	flagAggressive bool
	flagJSON       bool
	flagHost       string
	flagPort       int
	flagFull       bool
	flagSecScan    bool
	flagAction     string
	flagArgs       []string
	flagDryRun     bool
	flagRetry      bool
	flagStealth    bool
	flagServeRoot  string
	flagServeAddr  string
	flagOut        string
)

func timeout() time.Duration {
	return time.Duration(timeoutSeconds) * time.Second
}

func loadStore() (*profilestore.Store, error) {
	store, err := profilestore.LoadBuiltin(logging.L())
	if err != nil {
		return nil, fmt.Errorf("loading profile store: %w", err)
	}
	return store, nil
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover UPnP/DLNA/DIAL devices on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		result, err := discovery.Run(ctx, discovery.Config{
			CIDR:       flagCIDR,
			Timeout:    timeout(),
			Aggressive: flagAggressive,
			Logger:     logging.L(),
		})
		if err != nil {
			return &exitError{code: exitUsageError, err: err}
		}
		for _, e := range result.Errors {
			logging.L().Debug(e)
		}

		if flagJSON {
			return printJSON(result.Devices)
		}
		if len(result.Devices) == 0 {
			fmt.Println("No devices found.")
			return &exitError{code: exitNoDevices, err: fmt.Errorf("no devices discovered")}
		}
		for _, d := range result.Devices {
			fmt.Printf("%-16s %-6d %-20s %s\n", d.IP, d.Port, d.Manufacturer, d.FriendlyName)
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringVar(&flagCIDR, "cidr", "", "IPv4 network in CIDR notation (auto-detected if empty)")
	discoverCmd.Flags().BoolVar(&flagAggressive, "aggressive", false, "enable the TCP port sweep in addition to SSDP")
	discoverCmd.Flags().BoolVar(&flagJSON, "json", false, "print results as JSON")
}

// discoverOne runs a targeted, single-host discovery pass by scoping the
// CIDR sweep to exactly one /32, reusing the same description-fetch
// pipeline discover uses for a whole subnet instead of duplicating it.
func discoverOne(ctx context.Context, host string, port int) (upnpmodel.Device, error) {
	result, err := discovery.Run(ctx, discovery.Config{
		CIDR:       host + "/32",
		Timeout:    timeout(),
		Aggressive: true,
		Ports:      []int{port},
		Logger:     logging.L(),
	})
	if err != nil {
		return upnpmodel.Device{}, err
	}
	// The SSDP phase is not scoped by CIDR and can report other LAN devices.
	for _, d := range result.Devices {
		if d.IP == host {
			return d, nil
		}
	}
	return upnpmodel.Device{}, fmt.Errorf("no UPnP description found at %s:%d", host, port)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Fetch a device's description and build its Action Inventory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		device, err := discoverOne(ctx, flagHost, flagPort)
		if err != nil {
			return &exitError{code: exitNoDevices, err: err}
		}

		store, err := loadStore()
		if err != nil {
			return &exitError{code: exitUsageError, err: err}
		}
		match := matcher.Best(device, store)

		result := profiling.Profile(ctx, device, profiling.Config{Timeout: timeout(), Logger: logging.L()})

		if flagJSON {
			return printJSON(map[string]any{
				"device":       device,
				"profileMatch": match,
				"inventory":    result.Inventory,
				"capability":   result.Capability,
				"analysis":     result.Analysis,
			})
		}

		fmt.Printf("%s (%s %s)\n", device.FriendlyName, device.Manufacturer, device.ModelName)
		if match.Profile != nil {
			fmt.Printf("Matched profile: %s (score %d)\n", match.Profile.Name, match.Score)
		}
		fmt.Printf("Services analyzed: %d, successful: %d, actions: %d\n",
			result.Analysis.ServicesAnalyzed, result.Analysis.SuccessfulParses, result.Analysis.TotalActions)
		for category, count := range result.Capability {
			fmt.Printf("  %-16s %d\n", category, count)
		}
		return nil
	},
}

func init() {
	profileCmd.Flags().StringVar(&flagHost, "host", "", "target device IP address")
	profileCmd.Flags().IntVar(&flagPort, "port", 1400, "target device port")
	profileCmd.Flags().BoolVar(&flagJSON, "json", false, "print results as JSON")
	profileCmd.MarkFlagRequired("host")
	profileCmd.AddCommand(profileGenerateCmd)
}

var profileGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Crawl a device's SCPDs and write a new profile file seeded from its own control URLs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		device, err := discoverOne(ctx, flagHost, flagPort)
		if err != nil {
			return &exitError{code: exitNoDevices, err: err}
		}

		result := profiling.Profile(ctx, device, profiling.Config{Timeout: timeout(), Logger: logging.L()})
		generated := profilegen.FromResult(device, result, time.Now().UTC())

		data, err := json.Marshal(generated)
		if err != nil {
			return &exitError{code: exitUsageError, err: err}
		}

		if flagOut == "" {
			fmt.Println(string(data))
			return nil
		}
		if err := os.WriteFile(flagOut, data, 0o644); err != nil {
			return &exitError{code: exitUsageError, err: fmt.Errorf("writing profile: %w", err)}
		}
		fmt.Printf("Wrote profile %q (%d actions across %d services) to %s\n",
			generated.Name, generated.Metadata.TotalActions, generated.Metadata.SuccessfulParses, flagOut)
		return nil
	},
}

func init() {
	profileGenerateCmd.Flags().StringVar(&flagHost, "host", "", "target device IP address")
	profileGenerateCmd.Flags().IntVar(&flagPort, "port", 1400, "target device port")
	profileGenerateCmd.Flags().StringVar(&flagOut, "out", "", "file to write the generated profile to (stdout if empty)")
	profileGenerateCmd.MarkFlagRequired("host")
}

var invokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Invoke a SOAP or vendor-protocol action against a device",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		device, err := discoverOne(ctx, flagHost, flagPort)
		if err != nil {
			return &exitError{code: exitNoDevices, err: err}
		}

		store, err := loadStore()
		if err != nil {
			return &exitError{code: exitUsageError, err: err}
		}
		match := matcher.Best(device, store)

		arguments, err := parseArgs(flagArgs)
		if err != nil {
			return &exitError{code: exitUsageError, err: err}
		}

		engine := control.NewEngine(logging.L())
		result := engine.Invoke(ctx, control.Request{
			Device:       device,
			ProfileMatch: match,
			ActionName:   flagAction,
			Arguments:    arguments,
			Options: control.Options{
				Timeout: timeout(),
				Stealth: flagStealth,
				Retry:   flagRetry,
				DryRun:  flagDryRun,
			},
		})

		if flagJSON {
			if err := printJSON(result); err != nil {
				return err
			}
		} else {
			printInvokeResult(result)
		}
		if result.Status == control.StatusFailed {
			return &exitError{code: exitActionFailed, err: result.Error}
		}
		return nil
	},
}

func init() {
	invokeCmd.Flags().StringVar(&flagHost, "host", "", "target device IP address")
	invokeCmd.Flags().IntVar(&flagPort, "port", 1400, "target device port")
	invokeCmd.Flags().StringVar(&flagAction, "action", "", `qualified action name, e.g. "RenderingControl#SetVolume"`)
	invokeCmd.Flags().StringArrayVar(&flagArgs, "arg", nil, "input argument as key=value (repeatable)")
	invokeCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "build the request without sending it")
	invokeCmd.Flags().BoolVar(&flagRetry, "retry", false, "retry transient failures with exponential backoff")
	invokeCmd.Flags().BoolVar(&flagStealth, "stealth", false, "serialize requests per host and jitter delays")
	invokeCmd.Flags().BoolVar(&flagJSON, "json", false, "print results as JSON")
	invokeCmd.MarkFlagRequired("host")
	invokeCmd.MarkFlagRequired("action")
}

func parseArgs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	args := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --arg %q, expected key=value", pair)
		}
		args[key] = value
	}
	return args, nil
}

func printInvokeResult(result control.Result) {
	fmt.Printf("status: %s (protocol: %s)\n", result.Status, result.Protocol)
	if result.BuiltRequest != "" {
		fmt.Println(result.BuiltRequest)
	}
	for k, v := range result.Outputs {
		fmt.Printf("  %s = %s\n", k, v)
	}
	if result.Error != nil {
		fmt.Println("error:", result.Error.Error())
	}
}

var massCmd = &cobra.Command{
	Use:   "mass",
	Short: "Discover every device on the subnet and rank them by control priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := loadStore()
		if err != nil {
			return &exitError{code: exitUsageError, err: err}
		}

		manager := orchestrator.NewManager(store, logging.L())
		done := make(chan struct{}, 1)
		_, err = manager.Start(ctx, orchestrator.Config{
			CIDR:          flagCIDR,
			Timeout:       timeout(),
			Aggressive:    flagAggressive,
			FullProfiling: flagFull,
			SecurityScan:  flagSecScan,
		}, nil, func(p orchestrator.Progress) {
			if p.Status == orchestrator.StatusCompleted || p.Status == orchestrator.StatusCancelled {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		})
		if err != nil {
			return &exitError{code: exitUsageError, err: err}
		}

		select {
		case <-done:
		case <-ctx.Done():
			return &exitError{code: exitUsageError, err: ctx.Err()}
		}

		report := manager.Report()
		if flagJSON {
			return printJSON(report)
		}

		if len(report.Assessments) == 0 {
			fmt.Println("No devices found.")
			return &exitError{code: exitNoDevices, err: fmt.Errorf("no devices discovered")}
		}
		fmt.Printf("run %s\n", report.RunID)
		for _, a := range report.Assessments {
			fmt.Printf("%-16s %-6s score=%-3d protocol=%-10s %s\n",
				a.Device.IP, upnpmodel.Bucket(a.PriorityScore), a.PriorityScore, a.PrimaryProtocol, a.Device.FriendlyName)
		}
		fmt.Printf("high=%d medium=%d low=%d unknown=%d\n", report.High, report.Medium, report.Low, report.Unknown)

		assessed := report.High + report.Medium + report.Low
		if report.Unknown > 0 && assessed > 0 {
			return &exitError{code: exitPartialSuccess, err: fmt.Errorf("%d device(s) could not be assessed", report.Unknown)}
		}
		return nil
	},
}

func init() {
	massCmd.Flags().StringVar(&flagCIDR, "cidr", "", "IPv4 network in CIDR notation (auto-detected if empty)")
	massCmd.Flags().BoolVar(&flagAggressive, "aggressive", false, "enable the TCP port sweep in addition to SSDP")
	massCmd.Flags().BoolVar(&flagFull, "full", false, "run the full ProfilingEngine per device instead of a shallow service scan")
	massCmd.Flags().BoolVar(&flagSecScan, "security-scan", false, "run the opt-in TLS certificate and RTSP stream sweep per device")
	massCmd.Flags().BoolVar(&flagJSON, "json", false, "print results as JSON")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve local media files over HTTP for devices to fetch by URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := mediaserver.New(flagServeRoot, flagServeAddr, logging.L())
		if err != nil {
			return &exitError{code: exitUsageError, err: err}
		}
		if err := server.Start(); err != nil {
			return &exitError{code: exitUsageError, err: err}
		}
		fmt.Printf("Serving %s on %s (Ctrl-C to stop)\n", flagServeRoot, flagServeAddr)
		<-cmd.Context().Done()
		return server.Shutdown(context.Background())
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagServeRoot, "root", ".", "directory to serve")
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", ":8080", "address to listen on")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
