package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gridmarket/negotiator/internal/logging"
	"github.com/gridmarket/negotiator/pkg/adapters/sharedlib"
	"github.com/gridmarket/negotiator/pkg/adapters/staticlib"
	"github.com/gridmarket/negotiator/pkg/builtin"
	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/factory"
	"github.com/gridmarket/negotiator/pkg/harness"
	"github.com/gridmarket/negotiator/pkg/registry"
	"github.com/gridmarket/negotiator/pkg/session"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run every provider/requestor pairing in a scenario",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workDir, _ := cmd.Flags().GetString("workdir")
		level, _ := cmd.Flags().GetString("log-level")

		if err := runScenario(args[0], workDir, level); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runScenario(path, workDir, level string) error {
	scenario, err := LoadScenario(path)
	if err != nil {
		return err
	}

	logger := logging.New(logging.ParseLevel(level))

	opts := []harness.Option{}
	if scenario.Tick > 0 {
		opts = append(opts, harness.WithTick(scenario.Tick.Std()))
	}
	fw := harness.New(logger, opts...)

	reg := registry.New()
	builtin.Register(reg)

	cfg := session.Config{
		MaxRounds: scenario.Session.MaxRounds,
		Timeout:   scenario.Session.Timeout.Std(),
	}

	var hosts []*factory.Host
	defer func() {
		for _, h := range hosts {
			_ = h.Close()
		}
	}()

	build := func(p Party, role domain.Role) (*factory.Host, error) {
		partyDir := ""
		if workDir != "" {
			partyDir = filepath.Join(workDir, string(role), p.Name)
		}
		f := factory.New(staticlib.New(reg), partyDir, fw.Clock(), logger,
			factory.WithSharedLoader(sharedlib.New()))
		return f.Build(&p.Tree)
	}

	for _, p := range scenario.Providers {
		host, err := build(p, domain.RoleProvider)
		if err != nil {
			return fmt.Errorf("building provider %q: %w", p.Name, err)
		}
		hosts = append(hosts, host)
		fw.AddProvider(p.Name, host.Root(), cfg)
	}
	for _, p := range scenario.Requestors {
		host, err := build(p, domain.RoleRequestor)
		if err != nil {
			return fmt.Errorf("building requestor %q: %w", p.Name, err)
		}
		hosts = append(hosts, host)
		fw.AddRequestor(p.Name, host.Root(), cfg)
	}

	for _, record := range fw.NegotiateAll(context.Background(), scenario.Attrs) {
		fmt.Println(record)
		fmt.Println()
	}
	return nil
}
