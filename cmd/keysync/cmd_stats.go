package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"
)

// cmdStats renders the aggregate view.
func cmdStats() error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'keysync start' first)")
	}

	resp, err := http.Get(daemonAddr + "/v1/stats")
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	defer resp.Body.Close()

	var stats struct {
		TotalTests      int   `json:"totalTests"`
		AverageWPM      int   `json:"averageWpm"`
		BestWPM         int   `json:"bestWpm"`
		AverageAccuracy int   `json:"averageAccuracy"`
		LastTestDate    int64 `json:"lastTestDate"`
		Categories      map[string]struct {
			Tests           int `json:"tests"`
			AverageWPM      int `json:"averageWpm"`
			AverageAccuracy int `json:"averageAccuracy"`
		} `json:"categories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Println("Typing Statistics")
	fmt.Println("=================")
	fmt.Printf("Total Tests:       %d\n", stats.TotalTests)
	fmt.Printf("Average WPM:       %d\n", stats.AverageWPM)
	fmt.Printf("Best WPM:          %d\n", stats.BestWPM)
	fmt.Printf("Average Accuracy:  %d%%\n", stats.AverageAccuracy)
	if stats.LastTestDate > 0 {
		fmt.Printf("Last Test:         %s\n",
			time.UnixMilli(stats.LastTestDate).Format("2006-01-02 15:04"))
	}

	if len(stats.Categories) > 0 {
		fmt.Println("\nBy Category")
		fmt.Println("-----------")
		names := make([]string, 0, len(stats.Categories))
		for name := range stats.Categories {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			cat := stats.Categories[name]
			bar := renderProgressBar(float64(cat.AverageAccuracy)/100, 20)
			fmt.Printf("%-12s %s %d%% acc, %d wpm (%d tests)\n",
				name, bar, cat.AverageAccuracy, cat.AverageWPM, cat.Tests)
		}
	}
	return nil
}

// cmdResults lists the most recent results, newest first.
func cmdResults(args []string) error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'keysync start' first)")
	}

	limit := 10
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed < 1 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = parsed
	}

	resp, err := http.Get(fmt.Sprintf("%s/v1/results?limit=%d", daemonAddr, limit))
	if err != nil {
		return fmt.Errorf("get results: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Results []struct {
			TestID    string `json:"testId"`
			Category  string `json:"category"`
			WPM       int    `json:"wpm"`
			Accuracy  int    `json:"accuracy"`
			Timestamp int64  `json:"timestamp"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	if len(body.Results) == 0 {
		fmt.Println("No results yet. Start practicing!")
		return nil
	}

	fmt.Printf("%-17s %-12s %-20s %5s %5s\n", "Date", "Category", "Test", "WPM", "Acc")
	for _, r := range body.Results {
		fmt.Printf("%-17s %-12s %-20s %5d %4d%%\n",
			time.UnixMilli(r.Timestamp).Format("2006-01-02 15:04"),
			r.Category, r.TestID, r.WPM, r.Accuracy)
	}
	return nil
}

// cmdSync replays the pending queue immediately.
func cmdSync() error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'keysync start' first)")
	}

	resp, err := http.Post(daemonAddr+"/v1/sync", "application/json", bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("trigger sync: %w", err)
	}
	defer resp.Body.Close()

	var report struct {
		Synced int `json:"synced"`
		Failed int `json:"failed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	if report.Synced == 0 && report.Failed == 0 {
		fmt.Println("Nothing pending")
		return nil
	}
	fmt.Printf("Synced: %d, Failed: %d\n", report.Synced, report.Failed)
	return nil
}

// cmdPet shows the companion's progression.
func cmdPet() error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'keysync start' first)")
	}

	resp, err := http.Get(daemonAddr + "/v1/pet")
	if err != nil {
		return fmt.Errorf("get pet: %w", err)
	}
	defer resp.Body.Close()

	var state struct {
		Level      int    `json:"level"`
		Experience int    `json:"experience"`
		Mood       string `json:"mood"`
		LastFedAt  int64  `json:"lastFedAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	needed := state.Level * 100
	bar := renderProgressBar(float64(state.Experience)/float64(needed), 20)
	fmt.Printf("Level %d  %s %d/%d xp\n", state.Level, bar, state.Experience, needed)
	fmt.Printf("Mood: %s\n", state.Mood)
	if state.LastFedAt > 0 {
		fmt.Printf("Last practice: %s\n",
			time.UnixMilli(state.LastFedAt).Format("2006-01-02 15:04"))
	}
	return nil
}
