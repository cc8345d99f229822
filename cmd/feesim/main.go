// Copyright (C) 2025 Feesim Authors.
// See LICENSE for copying information.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"

	"github.com/feesim/feesim/accounting"
	"github.com/feesim/feesim/pricing"
	"github.com/feesim/feesim/private/process"
)

// version is set by the linker at build time.
var version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:   "feesim",
		Short: "Storage billing simulator",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Process operations and print one response per line",
		RunE:  cmdRun,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE:  cmdVersion,
	}

	runCfg struct {
		Input      string
		Schedule   pricing.ScheduleConfig
		Accounting accounting.Config
	}
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	flags := runCmd.Flags()
	flags.StringVar(&runCfg.Input, "input", "-", "file with one operation per line, - for stdin")
	flags.Var(&runCfg.Schedule, "schedule", "fee schedule as inline YAML or a path to a .yaml file")
	flags.BoolVar(&runCfg.Accounting.FreePlan, "free-plan", true, "bill the account as a free plan account")
	flags.Int64Var(&runCfg.Accounting.FreeAllowance, "allowance", 1000, "free plan fee allowance per month")
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	process.ApplyViper(cmd)

	log, err := process.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	schedule, err := runCfg.Schedule.ToSchedule()
	if err != nil {
		return err
	}

	input := cmd.InOrStdin()
	if runCfg.Input != "" && runCfg.Input != "-" {
		var file *os.File
		file, err = os.Open(runCfg.Input)
		if err != nil {
			return errs.Wrap(err)
		}
		defer func() { err = errs.Combine(err, file.Close()) }()
		input = file
	}

	service := accounting.NewService(log.Named("accounting"), schedule, runCfg.Accounting)
	session := newSession(service)

	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fmt.Fprintln(out, session.Handle(ctx, line))
	}
	return errs.Wrap(scanner.Err())
}

func cmdVersion(cmd *cobra.Command, args []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), "feesim %s\n", version)
	return nil
}

func main() {
	process.Exec(rootCmd)
}
