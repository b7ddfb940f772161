package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/doctor"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run pre-flight checks against the config and environment",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report := doctor.New().Run(cfg)
	for _, res := range report.Checks {
		fmt.Printf("[%s] %-12s %s\n", res.Status, res.Name, res.Message)
	}
	fmt.Printf("\n%d ok, %d warning, %d error\n", report.OK, report.Warn, report.Errors)

	if !report.Healthy() {
		return fmt.Errorf("doctor found %d error(s)", report.Errors)
	}
	return nil
}
