package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hairizuan-noorazman/ui-replay/report"
)

func newReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect stored replay reports",
	}

	cmd.AddCommand(newReportsListCmd())
	cmd.AddCommand(newReportsGetCmd())
	cmd.AddCommand(newReportsDeleteCmd())
	return cmd
}

func newReportsListCmd() *cobra.Command {
	var story, flowName, status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List replay reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client := getClient()

			query := url.Values{}
			if story != "" {
				query.Set("story", story)
			}
			if flowName != "" {
				query.Set("flow", flowName)
			}
			if status != "" {
				query.Set("status", status)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				query.Set("offset", strconv.Itoa(offset))
			}

			body, err := client.Get("/api/v1/reports", query)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(out, body)
				return nil
			}

			var resp PaginatedResponse[report.Report]
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			headers := []string{"ID", "STORY", "FLOW", "STATUS", "STEPS", "FAILED", "AJAX P95", "STARTED AT"}
			var rows [][]string
			for _, r := range resp.Items {
				rows = append(rows, []string{
					r.ID.String(),
					r.StoryName,
					r.FlowName,
					string(r.Status),
					strconv.Itoa(r.NumberOfStep),
					strconv.Itoa(r.NumberOfFailed),
					fmt.Sprintf("%dms", r.AjaxP95Millis),
					formatTime(&r.StartedAt),
				})
			}
			printTable(out, headers, rows)
			printMessage(out, fmt.Sprintf("\nShowing %d reports", len(resp.Items)))
			return nil
		},
	}

	cmd.Flags().StringVar(&story, "story", "", "Filter by story name")
	cmd.Flags().StringVar(&flowName, "flow", "", "Filter by flow name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (passed or failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset for pagination")
	return cmd
}

func newReportsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a replay report with its failures and screenshot artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			body, err := getClient().Get("/api/v1/reports/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(out, body)
				return nil
			}

			var r ReportResponse
			if err := json.Unmarshal(body, &r); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			printMessage(out, fmt.Sprintf("ID:          %s", r.ID))
			printMessage(out, fmt.Sprintf("Story:       %s", r.StoryName))
			printMessage(out, fmt.Sprintf("Flow:        %s", r.FlowName))
			printMessage(out, fmt.Sprintf("Status:      %s", r.Status))
			printMessage(out, fmt.Sprintf("Steps:       %d (%d succeeded, %d failed)", r.NumberOfStep, r.NumberOfSuccess, r.NumberOfFailed))
			printMessage(out, fmt.Sprintf("Ajax:        %d (%d failed, p95 %dms)", r.NumberOfAjax, r.NumberOfAjaxFailed, r.AjaxP95Millis))
			printMessage(out, fmt.Sprintf("Started At:  %s", formatTime(&r.StartedAt)))
			printMessage(out, fmt.Sprintf("Finished At: %s", formatTime(r.FinishedAt)))

			if len(r.Summary.Errors) > 0 {
				printMessage(out, "\nFailures:")
				var rows [][]string
				for _, e := range r.Summary.Errors {
					rows = append(rows, []string{strconv.Itoa(e.Index), e.StepUUID, string(e.Type), e.Message})
				}
				printTable(out, []string{"INDEX", "STEP", "TYPE", "MESSAGE"}, rows)
			}

			if len(r.Artifacts) > 0 {
				printMessage(out, "\nArtifacts:")
				var rows [][]string
				for _, a := range r.Artifacts {
					rows = append(rows, []string{
						strconv.Itoa(a.StepIndex),
						string(a.Kind),
						fmt.Sprintf("%.4f", a.Similarity),
						a.Path,
					})
				}
				printTable(out, []string{"STEP", "KIND", "SIMILARITY", "PATH"}, rows)
			}
			return nil
		},
	}
}

func newReportsDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a replay report and its artifact records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !confirmAction(cmd.InOrStdin(), out, fmt.Sprintf("Delete report %s?", args[0]), yes) {
				printMessage(out, "Aborted")
				return nil
			}

			if _, err := getClient().Delete("/api/v1/reports/" + url.PathEscape(args[0])); err != nil {
				return err
			}
			printMessage(out, "Report deleted")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}
