package main

import (
	"fmt"
	"os"
	"strings"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	daemonAddr = "http://127.0.0.1:7521"
	pidFile    = "keysyncd.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "stats":
		err = cmdStats()
	case "results":
		err = cmdResults(os.Args[2:])
	case "sync":
		err = cmdSync()
	case "pet":
		err = cmdPet()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("keysync %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Keysync - Typing Result Sync

Usage:
  keysync <command> [arguments]

Daemon Commands:
  start           Start the keysync daemon
  stop            Stop the keysync daemon
  status          Show daemon status
  logs            View daemon logs

Result Commands:
  results         List recent results (default 10, 'results N' for more)
  stats           Show aggregate statistics
  sync            Replay pending results to the remote store
  pet             Show pet progression

Other:
  help            Show this help message
  version         Show version information

Examples:
  keysync start       # Start daemon
  keysync results 25  # Show the 25 most recent results
  keysync sync        # Push everything still waiting on the remote`)
}

// renderProgressBar creates a visual progress bar for a 0..1 value.
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}
