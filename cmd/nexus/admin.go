package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/functions"
	"github.com/pysugar/agent-nexus/internal/triggerlog"
	"github.com/pysugar/agent-nexus/internal/version"
	"github.com/spf13/cobra"
)

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var (
	logsUser    string
	logsTrigger string
	logsStatus  string
	logsLimit   int
	logsJSON    bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent execution logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if logsUser == "" && logsTrigger == "" {
			return fmt.Errorf("one of --user or --trigger is required")
		}
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		var logs []models.TriggerLog
		if logsTrigger != "" {
			logs, err = a.logs.ByTrigger(cmd.Context(), logsTrigger, logsLimit)
		} else {
			var page *triggerlog.Page
			page, err = a.logs.ListForUser(cmd.Context(), logsUser, triggerlog.Query{PageSize: logsLimit, Status: logsStatus})
			if page != nil {
				logs = page.Logs
			}
		}
		if err != nil {
			return err
		}
		if logsJSON {
			return printJSON(cmd, logs)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CREATED\tSTATUS\tFUNCTION\tMS\tERROR")
		for _, l := range logs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", l.CreatedAt.Format("2006-01-02 15:04:05"), l.Status, l.FunctionName, l.ExecutionTime, l.ErrorDetails)
		}
		return tw.Flush()
	},
}

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "List stored functions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		defs, err := db.LoadFunctions(a.db)
		if err != nil {
			return err
		}
		registry := functions.NewRegistry(functions.Deps{Logger: a.logger})
		stored := make(map[string]bool, len(defs))

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tTYPE\tIMPLEMENTED\tDESCRIPTION")
		for _, fn := range defs {
			stored[fn.Name] = true
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", fn.Name, fn.Type, registry.Has(fn.Name), fn.Description)
		}
		for _, name := range registry.Names() {
			if !stored[string(name)] {
				fmt.Fprintf(tw, "%s\t-\ttrue\t(not stored)\n", name)
			}
		}
		return tw.Flush()
	},
}

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage user API keys",
}

var apikeyRotateCmd = &cobra.Command{
	Use:   "rotate <user-id-or-email>",
	Short: "Issue a new API key for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := db.RegenerateAPIKey(a.db, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "nexus "+version.String())
	},
}

func init() {
	logsCmd.Flags().StringVar(&logsUser, "user", "", "Owner user ID")
	logsCmd.Flags().StringVar(&logsTrigger, "trigger", "", "Trigger ID")
	logsCmd.Flags().StringVar(&logsStatus, "status", "", "Filter by status (success, error, no_trigger)")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", triggerlog.DefaultLimit, "Maximum entries")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Print JSON")

	apikeyCmd.AddCommand(apikeyRotateCmd)
	rootCmd.AddCommand(logsCmd, functionsCmd, apikeyCmd, versionCmd)
}
