package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/distcalc/orchestrator/internal/calculator"
	"github.com/distcalc/orchestrator/internal/calculator/client"
	"github.com/distcalc/orchestrator/internal/util"
	"github.com/distcalc/orchestrator/pkg/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := NewCalculatorCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type calculatorCmd struct {
	config     *calculator.Config
	configFile string
}

func NewCalculatorCommand() *cobra.Command {
	c := &calculatorCmd{config: calculator.NewDefaultConfig()}

	cmd := &cobra.Command{
		Use:          "calculator",
		Short:        "Run a calculator worker",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Execute(cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&c.configFile, "config", "c", "", "Path to the calculator's configuration file.")
	flags.StringVar(&c.config.Address, "address", c.config.Address, "Listen address.")
	flags.StringVar(&c.config.PublicURL, "public-url", c.config.PublicURL, "URL the orchestrator uses to reach this worker.")
	flags.IntVar(&c.config.MaxGoroutines, "max-goroutines", c.config.MaxGoroutines, "Number of tasks run at once.")
	flags.StringVar(&c.config.OrchestratorURL, "orchestrator-url", c.config.OrchestratorURL, "Orchestrator to register with.")
	util.Must(cmd.MarkFlagFilename("config", "yaml", "yml"))

	return cmd
}

func (c *calculatorCmd) Execute(cmd *cobra.Command) error {
	if c.configFile != "" {
		// flags given on the command line win over the file
		explicit := *c.config
		if err := c.config.ParseConfigFile(c.configFile); err != nil {
			return err
		}
		c.applyFlags(cmd, explicit)
	}
	if err := c.config.Validate(); err != nil {
		return err
	}

	_, flush, err := log.Setup(c.config.LogLevel)
	if err != nil {
		return err
	}
	defer flush()

	zap.S().Infof("Starting calculator: %s", c.config)

	listener, err := net.Listen("tcp", c.config.Address)
	if err != nil {
		zap.S().Errorw("creating listener", "error", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	node := calculator.NewNode(c.config.MaxGoroutines)
	server := calculator.NewServer(c.config, node, client.New(&http.Client{}), listener)
	return server.Run(ctx)
}

func (c *calculatorCmd) applyFlags(cmd *cobra.Command, explicit calculator.Config) {
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "address":
			c.config.Address = explicit.Address
		case "public-url":
			c.config.PublicURL = explicit.PublicURL
		case "max-goroutines":
			c.config.MaxGoroutines = explicit.MaxGoroutines
		case "orchestrator-url":
			c.config.OrchestratorURL = explicit.OrchestratorURL
		}
	})
}
