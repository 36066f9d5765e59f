package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/raulk/clock"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gridmarket/negotiator/internal/httpapi"
	"github.com/gridmarket/negotiator/internal/logging"
	"github.com/gridmarket/negotiator/pkg/adapters/sharedlib"
	"github.com/gridmarket/negotiator/pkg/adapters/staticlib"
	"github.com/gridmarket/negotiator/pkg/builtin"
	"github.com/gridmarket/negotiator/pkg/config"
	"github.com/gridmarket/negotiator/pkg/factory"
	"github.com/gridmarket/negotiator/pkg/registry"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve <tree.yaml>",
	Short: "Host one component tree behind the control HTTP API",
	Long: `Builds the component tree from the given document on the real clock
and exposes instance listing, control commands and metrics over HTTP.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workDir, _ := cmd.Flags().GetString("workdir")
		level, _ := cmd.Flags().GetString("log-level")
		addr, _ := cmd.Flags().GetString("addr")

		if err := serve(args[0], workDir, level, addr); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8591", "HTTP listen address")
}

func serve(path, workDir, level, addr string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading tree: %w", err)
	}
	var tree config.Tree
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("parsing tree: %w", err)
	}

	logger := logging.New(logging.ParseLevel(level))

	reg := registry.New()
	builtin.Register(reg)

	f := factory.New(staticlib.New(reg), workDir, clock.New(), logger,
		factory.WithSharedLoader(sharedlib.New()))
	host, err := f.Build(&tree)
	if err != nil {
		return err
	}
	defer host.Close()

	logger.Info("serving control API", "addr", addr)
	return http.ListenAndServe(addr, httpapi.NewHandler(host))
}
