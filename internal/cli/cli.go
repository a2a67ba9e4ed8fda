// ============================================================================
// sysmasterd CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides the user-facing command line interface, based on Cobra
//
// Command Structure:
//   sysmasterd                       # Root command
//   ├── run                          # Start the manager (PID 1 or a user instance)
//   │   └── --config, -c            # Specify config file
//   ├── status [unit...]             # Query unit/job status over the control socket
//   ├── isolate <unit>                # Isolate to a target unit
//   ├── reload                       # Re-read unit files without restarting units
//   ├── reexec                       # Re-exec the running manager in place
//   ├── enqueue                      # Submit transient units from a JSON file
//   │   └── --file, -f              # Specify transient-unit JSON file
//   ├── --version                    # Display version information
//   └── --help                       # Display help information
//
// Configuration Management:
//   Uses YAML format config file (default: configs/default.yaml)
//   Configuration items include:
//   - store: reliability store root directory
//   - control_socket: control-socket path
//   - notify: notify-socket path
//   - units: unit search directories
//   - metrics: Prometheus monitoring configuration
//
// run Command:
//   Starts the full manager: opens the reliability store, builds the
//   registry/lifecycle/job-engine/dispatcher/spawner/sub-manager stack,
//   starts the control socket and (optionally) the metrics server, then
//   blocks until SIGINT, SIGTERM or SIGHUP arrives. SIGRTMIN+9 is not
//   captured, so no signal-driven re-exec takes place.
//
// status/isolate/reload/reexec/enqueue Commands:
//   Thin clients: dial the control socket (internal/ctlsock), send one
//   framed request, print the response. These never touch the manager's
//   internals directly - the control socket is the only interface,
//   exactly as a separate control-tool binary would see it.
//
// Signal Handling:
//   run command captures the following signals:
//   - SIGINT/SIGTERM/SIGHUP: graceful shutdown (spec §... stop order: jobs,
//     then units, then close the reliability store); SIGHUP is handled the
//     same way and does not trigger a daemon-reload
//
// ============================================================================

package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChuLiYu/sysmasterd/internal/ctlsock"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config is the complete sysmasterd configuration structure, loaded from
// YAML via --config/-c.
type Config struct {
	Store struct {
		Root string `yaml:"root"`
	} `yaml:"store"`

	ControlSocket struct {
		Path string `yaml:"path"`
	} `yaml:"control_socket"`

	Notify struct {
		SocketPath string `yaml:"socket_path"`
	} `yaml:"notify"`

	Units struct {
		Dirs []string `yaml:"dirs"`
	} `yaml:"units"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

var configFile string

// RunFunc is supplied by cmd/sysmasterd: it owns wiring the concrete
// manager (registry, lifecycle machine, job engine, dispatcher, spawner,
// sub-managers) together, since that wiring needs package imports this
// package must not depend on (would create an import cycle back through
// internal/submanager's kind packages). cli only drives Cobra and the
// control-socket client commands.
type RunFunc func(cfg *Config) error

func BuildCLI(run RunFunc) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sysmasterd",
		Short: "sysmasterd: a service manager and init system",
		Long: `sysmasterd supervises units (services, sockets, mounts, targets,
timers, paths), orders their startup via a dependency graph, and recovers
job/unit state from an A/B reliability store across restarts and re-exec.`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand(run))
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildIsolateCommand())
	rootCmd.AddCommand(buildReloadCommand())
	rootCmd.AddCommand(buildReexecCommand())
	rootCmd.AddCommand(buildEnqueueCommand())

	return rootCmd
}

func buildRunCommand(run RunFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the sysmasterd manager",
		Long:  "Start the manager: open the reliability store, load units, and serve the control socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if run == nil {
				return fmt.Errorf("run: no manager wiring registered")
			}
			return run(cfg)
		},
	}
	return cmd
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [units...]",
		Short: "Show unit/job status from a running manager",
		Long:  "Query the control socket for unit status (all units if none named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendUnitComm(ctlsock.UnitStatus, args)
		},
	}
	return cmd
}

func buildIsolateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "isolate <target-unit>",
		Short: "Isolate to target-unit, stopping everything not required by it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendUnitComm(ctlsock.UnitIsolate, args)
		},
	}
	return cmd
}

func buildReloadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Re-read unit files without restarting running units",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendMngrComm(ctlsock.MngrReload)
		},
	}
	return cmd
}

func buildReexecCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reexec",
		Short: "Re-exec the running manager in place, preserving unit state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendMngrComm(ctlsock.MngrReexec)
		},
	}
	return cmd
}

func buildEnqueueCommand() *cobra.Command {
	var unitFile string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Submit a transient unit from a JSON file",
		Long:  "Read a transient unit definition from a JSON file and submit it for immediate start",
		RunE: func(cmd *cobra.Command, args []string) error {
			if unitFile == "" {
				return fmt.Errorf("unit file is required (use --file or -f)")
			}
			return enqueueTransientUnit(unitFile)
		},
	}

	cmd.Flags().StringVarP(&unitFile, "file", "f", "", "JSON file containing the transient unit definition")
	cmd.MarkFlagRequired("file")

	return cmd
}

func enqueueTransientUnit(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read unit file: %w", err)
	}

	var def struct {
		JobMode    string            `json:"job_mode"`
		UnitConfig map[string]string `json:"unit_config"`
		AuxUnits   []string          `json:"aux_units"`
	}
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("failed to parse unit file: %w", err)
	}

	req := ctlsock.Request{
		TransientUnitComm: &ctlsock.TransientUnitCommRequest{
			JobMode:    def.JobMode,
			UnitConfig: def.UnitConfig,
			AuxUnits:   def.AuxUnits,
		},
	}
	resp, err := sendRequest(req)
	if err != nil {
		return err
	}
	printResponse(resp)
	return nil
}

func sendUnitComm(action ctlsock.UnitAction, units []string) error {
	resp, err := sendRequest(ctlsock.Request{
		UnitComm: &ctlsock.UnitCommRequest{Action: action, Units: units},
	})
	if err != nil {
		return err
	}
	printResponse(resp)
	return nil
}

func sendMngrComm(action ctlsock.MngrAction) error {
	resp, err := sendRequest(ctlsock.Request{
		MngrComm: &ctlsock.MngrCommRequest{Action: action},
	})
	if err != nil {
		return err
	}
	printResponse(resp)
	return nil
}

func sendRequest(req ctlsock.Request) (ctlsock.Response, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return ctlsock.Response{}, fmt.Errorf("failed to load config: %w", err)
	}

	path := cfg.ControlSocket.Path
	if path == "" {
		path = ctlsock.DefaultSocketPath
	}

	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		return ctlsock.Response{}, fmt.Errorf("failed to connect to control socket %s: %w", path, err)
	}
	defer conn.Close()

	payload, err := json.Marshal(req)
	if err != nil {
		return ctlsock.Response{}, fmt.Errorf("failed to encode request: %w", err)
	}

	var lenBuf [8]byte
	for i := range lenBuf {
		lenBuf[i] = byte(len(payload) >> (8 * i))
	}
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return ctlsock.Response{}, fmt.Errorf("failed to write frame header: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return ctlsock.Response{}, fmt.Errorf("failed to write frame payload: %w", err)
	}

	var respLenBuf [8]byte
	if _, err := readFull(conn, respLenBuf[:]); err != nil {
		return ctlsock.Response{}, fmt.Errorf("failed to read response header: %w", err)
	}
	var size uint64
	for i := range respLenBuf {
		size |= uint64(respLenBuf[i]) << (8 * i)
	}
	respPayload := make([]byte, size)
	if _, err := readFull(conn, respPayload); err != nil {
		return ctlsock.Response{}, fmt.Errorf("failed to read response payload: %w", err)
	}

	var resp ctlsock.Response
	if err := json.Unmarshal(respPayload, &resp); err != nil {
		return ctlsock.Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func printResponse(resp ctlsock.Response) {
	if resp.Status >= 200 && resp.Status < 300 {
		fmt.Println(resp.Message)
		return
	}
	fmt.Fprintf(os.Stderr, "error %d (code %d): %s\n", resp.Status, resp.ErrorCode, resp.Message)
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &cfg, nil
}

// WaitForShutdownSignal blocks until SIGINT, SIGTERM, or SIGHUP arrives,
// returning which one. Exposed so cmd/sysmasterd's run wiring can share
// the teacher's signal-handling idiom without duplicating it.
func WaitForShutdownSignal() os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-sigCh
	slog.Info("received signal", "signal", sig)
	return sig
}
