package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect live replay sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsGetCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List live replay sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			body, err := getClient().Get("/api/v1/sessions", nil)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(out, body)
				return nil
			}

			var resp PaginatedResponse[SessionResponse]
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			headers := []string{"ID", "STORY", "FLOW", "STATE", "CURSOR", "FAILED", "LAST ACTIVE"}
			var rows [][]string
			for _, s := range resp.Items {
				rows = append(rows, []string{
					s.ID,
					s.StoryName,
					s.FlowName,
					string(s.State),
					strconv.Itoa(s.Cursor),
					strconv.Itoa(s.Summary.NumberOfFailed),
					formatTime(&s.LastActive),
				})
			}
			printTable(out, headers, rows)
			printMessage(out, fmt.Sprintf("\n%d live sessions", resp.Total))
			return nil
		},
	}
}

func newSessionsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <story> <flow>",
		Short: "Show a live replay session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := fmt.Sprintf("/api/v1/sessions/%s/%s", url.PathEscape(args[0]), url.PathEscape(args[1]))
			body, err := getClient().Get(path, nil)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(out, body)
				return nil
			}

			var s SessionResponse
			if err := json.Unmarshal(body, &s); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			printMessage(out, fmt.Sprintf("ID:          %s", s.ID))
			printMessage(out, fmt.Sprintf("Story:       %s", s.StoryName))
			printMessage(out, fmt.Sprintf("Flow:        %s", s.FlowName))
			printMessage(out, fmt.Sprintf("State:       %s", s.State))
			printMessage(out, fmt.Sprintf("Cursor:      %d", s.Cursor))
			printMessage(out, fmt.Sprintf("Steps:       %d (%d succeeded, %d failed)", s.Summary.NumberOfStep, s.Summary.NumberOfSuccess, s.Summary.NumberOfFailed))
			printMessage(out, fmt.Sprintf("Created At:  %s", formatTime(&s.CreatedAt)))
			printMessage(out, fmt.Sprintf("Last Active: %s", formatTime(&s.LastActive)))
			return nil
		},
	}
}
