package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/bfsched/kernel/pkg/security"
)

type tasksResponse struct {
	UptimeTicks int64 `json:"uptime_ticks"`
	Tasks       []struct {
		PID             int    `json:"pid"`
		Name            string `json:"name"`
		State           string `json:"state"`
		Niceness        int    `json:"niceness"`
		VirtualDeadline int64  `json:"virtual_deadline"`
		TicksLeft       int    `json:"ticks_left"`
		ParentPID       int    `json:"parent_pid"`
	} `json:"tasks"`
}

func psCmd() *cobra.Command {
	var apiAddr string

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List tasks on a running bfsched instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPs(apiAddr)
		},
	}
	cmd.Flags().StringVar(&apiAddr, "api", "http://127.0.0.1:8080", "admin API base URL")
	return cmd
}

func runPs(apiAddr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(apiAddr + "/api/v1/tasks")
	if err != nil {
		return fmt.Errorf("request tasks: %w", err)
	}
	defer resp.Body.Close()

	var body tasksResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode tasks response: %w", err)
	}

	fmt.Printf("uptime=%d ticks\n", body.UptimeTicks)
	fmt.Printf("%-6s %-12s %-10s %-8s %-10s %-10s %s\n", "PID", "NAME", "STATE", "NICE", "DEADLINE", "TICKS", "PPID")
	for _, t := range body.Tasks {
		fmt.Printf("%-6d %-12s %-10s %-8d %-10d %-10d %d\n",
			t.PID, t.Name, t.State, t.Niceness, t.VirtualDeadline, t.TicksLeft, t.ParentPID)
	}
	return nil
}

func killCmd() *cobra.Command {
	var apiAddr string
	var token string

	cmd := &cobra.Command{
		Use:   "kill <pid>",
		Short: "Send a cooperative kill to a task on a running bfsched instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKill(apiAddr, token, args[0])
		},
	}
	cmd.Flags().StringVar(&apiAddr, "api", "http://127.0.0.1:8080", "admin API base URL")
	cmd.Flags().StringVar(&token, "token", "", "operator bearer token, from POST /api/v1/auth/login")
	return cmd
}

func runKill(apiAddr, token, pid string) error {
	req, err := http.NewRequest(http.MethodPost, apiAddr+"/api/v1/tasks/"+pid+"/kill", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send kill: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kill failed: %s", resp.Status)
	}
	fmt.Printf("sent kill to pid %s\n", pid)
	return nil
}

func schedlogCmd() *cobra.Command {
	var apiAddr string
	var token string

	cmd := &cobra.Command{
		Use:   "schedlog <ticks>",
		Short: "Enable schedlog emission for the next N ticks on a running bfsched instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedlog(apiAddr, token, args[0])
		},
	}
	cmd.Flags().StringVar(&apiAddr, "api", "http://127.0.0.1:8080", "admin API base URL")
	cmd.Flags().StringVar(&token, "token", "", "operator bearer token, from POST /api/v1/auth/login")
	return cmd
}

func runSchedlog(apiAddr, token, ticks string) error {
	req, err := http.NewRequest(http.MethodPost, apiAddr+"/api/v1/schedlog?ticks="+ticks, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send schedlog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("schedlog toggle failed: %s", resp.Status)
	}
	fmt.Printf("schedlog enabled for %s ticks\n", ticks)
	return nil
}

func passwdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passwd <password>",
		Short: "Hash an operator password for BFSCHED_OPERATOR_PASS_HASH or auth.operator_pass_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPasswd(args[0])
		},
	}
	return cmd
}

func runPasswd(password string) error {
	if !security.ValidatePasswordStrength(password) {
		return fmt.Errorf("password too weak: need 8+ characters and at least 3 of digit/lower/upper/special")
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	fmt.Println(hash)
	return nil
}
