package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/keysync/internal/config"
)

// cmdStart starts the daemon in the background.
func cmdStart() error {
	if isRunning() {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	keysyncDir, err := config.EnsureKeysyncDir()
	if err != nil {
		return fmt.Errorf("setup keysync directory: %w", err)
	}

	daemonPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(daemonPath)
	cmd.Dir = keysyncDir
	cmd.Stdout = nil
	cmd.Stderr = nil
	configureDaemonProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning() {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", daemonAddr)
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'keysync logs')")
}

// cmdStop sends SIGTERM to the pid on file and waits for the health
// endpoint to go dark.
func cmdStop() error {
	if !isRunning() {
		fmt.Println("Daemon is not running")
		return nil
	}

	keysyncDir, err := config.KeysyncDir()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(keysyncDir, pidFile))
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning() {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

// cmdStatus reports the daemon's health and sync backlog.
func cmdStatus() error {
	if !isRunning() {
		fmt.Println("Status: stopped")
		return nil
	}

	resp, err := http.Get(daemonAddr + "/v1/health")
	if err != nil {
		return fmt.Errorf("get health: %w", err)
	}
	defer resp.Body.Close()

	var health struct {
		Status       string `json:"status"`
		RemoteOnline bool   `json:"remote_online"`
		Pending      int    `json:"pending"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("parse health: %w", err)
	}

	remote := "offline"
	if health.RemoteOnline {
		remote = "online"
	}
	fmt.Printf("Status:   %s\n", health.Status)
	fmt.Printf("Remote:   %s\n", remote)
	fmt.Printf("Pending:  %d\n", health.Pending)
	fmt.Printf("Address:  %s\n", daemonAddr)
	return nil
}

// cmdLogs prints the tail of the daemon log.
func cmdLogs() error {
	keysyncDir, err := config.KeysyncDir()
	if err != nil {
		return err
	}

	logPath := filepath.Join(keysyncDir, "logs", "keysyncd.log")
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("No log file found. Start the daemon first.")
		return nil
	}

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	// Seek to end and go back ~4KB for recent lines.
	info, _ := file.Stat()
	offset := info.Size() - 4096
	if offset < 0 {
		offset = 0
	}
	_, _ = file.Seek(offset, 0)

	if offset > 0 {
		reader := bufio.NewReader(file)
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	return nil
}

// isRunning probes the health endpoint.
func isRunning() bool {
	resp, err := http.Get(daemonAddr + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findDaemonBinary locates the keysyncd binary.
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("keysyncd"); err == nil {
		return path, nil
	}

	self, err := os.Executable()
	if err == nil {
		path := filepath.Join(filepath.Dir(self), "keysyncd")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	locations := []string{
		"/usr/local/bin/keysyncd",
		"./keysyncd",
		"./cmd/keysyncd/keysyncd",
	}
	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("keysyncd binary not found (build with 'go build ./cmd/keysyncd')")
}
