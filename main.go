package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/wifientist/pawketeer/pkg/cli"
	"github.com/wifientist/pawketeer/pkg/version"
)

// Build information (will be overridden by build flags)
var (
	buildVersion = "1.0.0-dev"
	buildTime    = ""
	commitSHA    = ""
)

func printUsage() {
	fmt.Printf(`Pawketeer - Wi-Fi Capture Analysis Service v%s

USAGE:
    pawketeer <command> [options]

COMMANDS:
    serve        Start the analysis service (API, websocket, workers)
    import       Import capture files into storage
    analyze      Analyze a stored pcap by id or a file directly
    inspect      Display imported captures and their analysis runs
    version      Show version information
    build-info   Show build information in JSON format

EXAMPLES:
    pawketeer serve --config pawketeer.yaml
    pawketeer import office-sweep.pcap walk-test.pcapng
    pawketeer analyze 3
    pawketeer analyze suspicious.pcap
    pawketeer inspect --limit 20

For detailed help on any command:
    pawketeer <command> --help

`, buildVersion)
}

func main() {
	version.SetBuildInfo(buildVersion, commitSHA, "", false)
	if buildTime != "" {
		version.ParseBuildTime(buildTime)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		configPath := serveCmd.String("config", "", "Path to YAML config file")
		debug := serveCmd.Bool("debug", false, "Enable debug logging")

		serveCmd.Usage = func() {
			fmt.Printf(`USAGE: pawketeer serve [options]

OPTIONS:
`)
			serveCmd.PrintDefaults()
			fmt.Printf(`
DESCRIPTION:
    Start the analysis service. Serves the HTTP API and websocket feed,
    runs the analysis worker pool and, when configured, the retention
    pruning loop. Without --config the built-in defaults apply;
    PAWKETEER_* environment variables override either.

EXAMPLES:
    pawketeer serve
    pawketeer serve --config /etc/pawketeer/pawketeer.yaml --debug
`)
		}

		if err := serveCmd.Parse(os.Args[2:]); err != nil {
			serveCmd.Usage()
			os.Exit(1)
		}
		if *configPath != "" {
			if err := validatePath(*configPath); err != nil {
				log.Fatalf("Invalid config path: %v", err)
			}
		}

		if err := cli.Serve(*configPath, *debug); err != nil {
			log.Fatalf("Serve command failed: %v", err)
		}

	case "import":
		importCmd := flag.NewFlagSet("import", flag.ExitOnError)
		configPath := importCmd.String("config", "", "Path to YAML config file")
		analyze := importCmd.Bool("analyze", false, "Analyze each capture right after importing it")
		debug := importCmd.Bool("debug", false, "Enable debug logging")

		importCmd.Usage = func() {
			fmt.Printf(`USAGE: pawketeer import [options] <file>...

OPTIONS:
`)
			importCmd.PrintDefaults()
			fmt.Printf(`
DESCRIPTION:
    Copy capture files (.pcap, .pcapng, .cap) into the storage directory
    and register them for analysis. Files whose content was already
    imported are skipped. With --analyze each newly imported capture is
    analyzed immediately and the result stored.

EXAMPLES:
    pawketeer import office-sweep.pcap
    pawketeer import --analyze walk-test.pcapng
    pawketeer import --config pawketeer.yaml captures/*.pcapng
`)
		}

		if err := importCmd.Parse(os.Args[2:]); err != nil {
			importCmd.Usage()
			os.Exit(1)
		}
		if importCmd.NArg() == 0 {
			fmt.Println("Error: at least one capture file is required")
			importCmd.Usage()
			os.Exit(1)
		}

		if err := cli.Import(*configPath, importCmd.Args(), *analyze, *debug); err != nil {
			log.Fatalf("Import command failed: %v", err)
		}

	case "analyze":
		analyzeCmd := flag.NewFlagSet("analyze", flag.ExitOnError)
		configPath := analyzeCmd.String("config", "", "Path to YAML config file")
		all := analyzeCmd.Bool("all", false, "Run every analyzer instead of the profiled selection")
		debug := analyzeCmd.Bool("debug", false, "Enable debug logging")

		analyzeCmd.Usage = func() {
			fmt.Printf(`USAGE: pawketeer analyze [options] <pcap-id | file>

OPTIONS:
`)
			analyzeCmd.PrintDefaults()
			fmt.Printf(`
DESCRIPTION:
    Run analysis once, without the service. A numeric argument refers to
    an imported pcap and stores the result like a queued run would. A
    file path is analyzed in place and the report printed as JSON. The
    profiler normally picks which analyzers run; --all runs them all.

EXAMPLES:
    pawketeer analyze 3
    pawketeer analyze --all 3
    pawketeer analyze walk-test.pcapng
`)
		}

		if err := analyzeCmd.Parse(os.Args[2:]); err != nil {
			analyzeCmd.Usage()
			os.Exit(1)
		}
		if analyzeCmd.NArg() != 1 {
			fmt.Println("Error: exactly one pcap id or file is required")
			analyzeCmd.Usage()
			os.Exit(1)
		}

		if err := cli.Analyze(*configPath, analyzeCmd.Arg(0), *all, *debug); err != nil {
			log.Fatalf("Analyze command failed: %v", err)
		}

	case "inspect":
		inspectCmd := flag.NewFlagSet("inspect", flag.ExitOnError)
		configPath := inspectCmd.String("config", "", "Path to YAML config file")
		limit := inspectCmd.Int("limit", 50, "Number of captures to show")
		status := inspectCmd.String("status", "", "Only show captures whose latest run has this status (pending, running, ok, error)")
		since := inspectCmd.Duration("since", 0, "Only show captures uploaded within this window (e.g. 24h)")

		inspectCmd.Usage = func() {
			fmt.Printf(`USAGE: pawketeer inspect [options]

OPTIONS:
`)
			inspectCmd.PrintDefaults()
			fmt.Printf(`
DESCRIPTION:
    Display imported captures with their latest analysis status in a
    formatted table. --status and --since narrow the listing.

EXAMPLES:
    pawketeer inspect
    pawketeer inspect --limit 100
    pawketeer inspect --status error --since 24h
`)
		}

		if err := inspectCmd.Parse(os.Args[2:]); err != nil {
			inspectCmd.Usage()
			os.Exit(1)
		}

		if err := cli.Inspect(*configPath, *limit, *status, *since); err != nil {
			log.Fatalf("Inspect command failed: %v", err)
		}

	case "version":
		fmt.Print(version.FormatInfo())

	case "build-info":
		out, err := version.FormatJSON()
		if err != nil {
			log.Fatalf("Failed to format build info: %v", err)
		}
		fmt.Println(out)

	case "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// validatePath performs security checks on file paths
func validatePath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %v", err)
	}

	if filepath.Clean(path) != path {
		return fmt.Errorf("path contains traversal components")
	}

	if _, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("cannot access %s: %v", absPath, err)
	}

	return nil
}
