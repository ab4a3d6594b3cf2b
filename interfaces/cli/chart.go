package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/promote/domain/promotion"
	infraconfig "github.com/felixgeelhaar/promote/infrastructure/config"
	"github.com/felixgeelhaar/promote/infrastructure/inspector"
	"github.com/felixgeelhaar/promote/infrastructure/statemachine"
)

type chartOptions struct {
	configPath string
	router     string
	format     string
}

// newChartCmd creates the chart command.
func (a *App) newChartCmd() *cobra.Command {
	opts := &chartOptions{}

	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Render the request lifecycle",
		Long: `Render the promotion request lifecycle as a state diagram.

The chart is derived by driving the workflow engine through every reachable
state, so it always matches the configured router. Approvals whose target
depends on the escalation policy are marked with a guard.

Examples:
  promote chart
  promote chart --format dot | dot -Tsvg > lifecycle.svg
  promote chart -c promote.yaml --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.renderChart(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Take the router from a configuration file")
	cmd.Flags().StringVar(&opts.router, "router", "", "Router implementation (table, statechart)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(inspector.FormatMermaid), "Output format (mermaid, dot, json)")

	return cmd
}

func (a *App) renderChart(opts *chartOptions) error {
	router := opts.router
	if router == "" && opts.configPath != "" {
		cfg, err := loadConfig(opts.configPath, false)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		router = cfg.Workflow.Router
	}

	var routers inspector.RouterFactory
	switch router {
	case "", infraconfig.RouterTable:
		routers = inspector.TableRouters
	case infraconfig.RouterStatechart:
		routers = func(policy promotion.EscalationPolicy) (promotion.Router, error) {
			return statemachine.NewChartRouter(policy)
		}
	default:
		return fmt.Errorf("unknown router: %s", router)
	}

	formatter, err := inspector.NewFormatter(inspector.Format(opts.format))
	if err != nil {
		return err
	}

	lc, err := inspector.NewLifecycleExporter(routers).Export()
	if err != nil {
		return fmt.Errorf("failed to export lifecycle: %w", err)
	}
	out, err := formatter.Format(lc)
	if err != nil {
		return err
	}

	_, _ = a.stdout.Write(out)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		_, _ = fmt.Fprintln(a.stdout)
	}
	return nil
}
