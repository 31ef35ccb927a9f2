package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
	timeout   string
	noCache   bool
	ttlHours  float64
)

func main() {
	root := &cobra.Command{
		Use:   "codecell",
		Short: "CLI client for the codecell execution service",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("CODECELL_API_KEY"), "API key")

	// Execute command
	execCmd := &cobra.Command{
		Use:   "exec [code]",
		Short: "Execute Python code (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExec,
	}
	execCmd.Flags().StringVar(&timeout, "timeout", "10s", "Execution timeout")
	execCmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the result cache")
	execCmd.Flags().Float64Var(&ttlHours, "ttl-hours", 0, "Cache TTL in hours (0 uses the server default)")
	root.AddCommand(execCmd)

	// Execute from file
	execFileCmd := &cobra.Command{
		Use:   "exec-file [file]",
		Short: "Execute Python code from a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runExecFile,
	}
	execFileCmd.Flags().StringVar(&timeout, "timeout", "10s", "Execution timeout")
	execFileCmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the result cache")
	execFileCmd.Flags().Float64Var(&ttlHours, "ttl-hours", 0, "Cache TTL in hours (0 uses the server default)")
	root.AddCommand(execFileCmd)

	// Cache administration
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the result cache",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache counters and size",
		RunE:  func(_ *cobra.Command, _ []string) error { return getJSON("/api/cache/stats") },
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Show cache configuration",
		RunE:  func(_ *cobra.Command, _ []string) error { return getJSON("/api/cache/config") },
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry and reset counters",
		RunE:  func(_ *cobra.Command, _ []string) error { return postJSON("/api/cache/clear", nil) },
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired cache entries",
		RunE:  func(_ *cobra.Command, _ []string) error { return postJSON("/api/cache/cleanup", nil) },
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "invalidate [key]",
		Short: "Remove a single cache entry by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return postJSON("/api/cache/invalidate", map[string]string{"cache_key": args[0]})
		},
	})
	root.AddCommand(cacheCmd)

	// Learning stats
	root.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show aggregated execution outcomes",
		RunE:  func(_ *cobra.Command, _ []string) error { return getJSON("/api/learning/stats") },
	})

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runExec(cmd *cobra.Command, args []string) error {
	var code string

	if len(args) > 0 {
		code = args[0]
	} else {
		// Read from stdin
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		code = string(data)
	}

	return executeCode(code)
}

func runExecFile(cmd *cobra.Command, args []string) error {
	if !strings.HasSuffix(args[0], ".py") {
		return fmt.Errorf("only Python files are supported, got %q", args[0])
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	return executeCode(string(data))
}

func executeCode(code string) error {
	useCache := !noCache
	payload := map[string]any{
		"code":      code,
		"use_cache": useCache,
		"timeout":   timeout,
	}
	if ttlHours > 0 {
		payload["cache_ttl_hours"] = ttlHours
	}

	body, _ := json.Marshal(payload)

	req, err := http.NewRequest("POST", serverURL+"/api/execute", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 70 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	// Pretty print
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))

	if success, ok := result["success"].(bool); ok && !success {
		os.Exit(1)
	}

	return nil
}

func runHealth(_ *cobra.Command, _ []string) error {
	resp, err := http.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}

func getJSON(path string) error {
	req, _ := http.NewRequest("GET", serverURL+path, nil)
	return doRequest(req)
}

func postJSON(path string, payload any) error {
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader([]byte("{}"))
	}
	req, _ := http.NewRequest("POST", serverURL+path, body)
	req.Header.Set("Content-Type", "application/json")
	return doRequest(req)
}

func doRequest(req *http.Request) error {
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result any
	json.NewDecoder(resp.Body).Decode(&result)
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}
