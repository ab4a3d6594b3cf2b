package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/promote/application"
	"github.com/felixgeelhaar/promote/domain/promotion"
)

// ActorEnv names the environment variable used when --actor is not given.
const ActorEnv = "PROMOTE_ACTOR"

// prOptions are shared by every pr subcommand.
type prOptions struct {
	configPath string
	actor      string
	token      string
	jsonOutput bool
}

func (o *prOptions) resolveActor() (string, error) {
	actor := strings.TrimSpace(o.actor)
	if actor == "" {
		actor = strings.TrimSpace(os.Getenv(ActorEnv))
	}
	if actor == "" {
		return "", fmt.Errorf("an actor is required (--actor or %s)", ActorEnv)
	}
	return actor, nil
}

// newPRCmd creates the pr command group.
func (a *App) newPRCmd() *cobra.Command {
	opts := &prOptions{}

	cmd := &cobra.Command{
		Use:   "pr",
		Short: "Work with promotion requests",
		Long: `Create, submit, review and inspect promotion requests directly against
the configured store.

Examples:
  promote pr create -c promote.yaml --actor alice --project-id p-17 --space enterprise
  promote pr submit -c promote.yaml --actor alice 3f0c...
  promote pr review -c promote.yaml --actor bob --action approve 3f0c...
  promote pr list -c promote.yaml --reviewable-by bob`,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (required)")
	flags.StringVar(&opts.actor, "actor", "", "Acting user (default $"+ActorEnv+")")
	flags.StringVar(&opts.token, "token", "", "Idempotency token for mutating commands")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")
	_ = cmd.MarkPersistentFlagRequired("config")

	cmd.AddCommand(
		a.newPRCreateCmd(opts),
		a.newPRTransitionCmd(opts, "submit", "Submit a draft or returned request for review"),
		a.newPRTransitionCmd(opts, "withdraw", "Withdraw a pending request back to draft"),
		a.newPRReviewCmd(opts),
		a.newPRDeleteCmd(opts),
		a.newPRGetCmd(opts),
		a.newPRHistoryCmd(opts),
		a.newPRListCmd(opts),
		a.newPRSummaryCmd(opts),
	)

	return cmd
}

// withService loads the configuration, runs fn against a wired service and
// releases it afterwards.
func (a *App) withService(ctx context.Context, opts *prOptions, fn func(*application.Service) error) error {
	cfg, err := loadConfig(opts.configPath, false)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	rt, err := a.newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	return fn(rt.service)
}

func (a *App) newPRCreateCmd(opts *prOptions) *cobra.Command {
	var (
		projectID    string
		snapshotFile string
		space        string
		title        string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft promotion request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := opts.resolveActor()
			if err != nil {
				return err
			}
			if (projectID == "") == (snapshotFile == "") {
				return fmt.Errorf("exactly one of --project-id and --snapshot-file is required")
			}

			var snap *promotion.ProjectSnapshot
			if snapshotFile != "" {
				if snap, err = readSnapshot(snapshotFile); err != nil {
					return err
				}
			}

			return a.withService(cmd.Context(), opts, func(svc *application.Service) error {
				var pr *promotion.PullRequest
				if snap != nil {
					pr, err = svc.Create(cmd.Context(), snap, actor, promotion.TargetSpace(space), title)
				} else {
					pr, err = svc.CreateFromProject(cmd.Context(), projectID, actor, promotion.TargetSpace(space), title)
				}
				if err != nil {
					return err
				}
				return a.printRequest(opts, pr)
			})
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "", "Fetch the snapshot of this project")
	cmd.Flags().StringVar(&snapshotFile, "snapshot-file", "", "Read the project snapshot from a JSON file")
	cmd.Flags().StringVar(&space, "space", string(promotion.SpaceEnterprise), "Target space (enterprise, department, personal)")
	cmd.Flags().StringVar(&title, "title", "", "Title (default: the project name)")

	return cmd
}

func readSnapshot(path string) (*promotion.ProjectSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap promotion.ProjectSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}

// newPRTransitionCmd builds submit and withdraw, which differ only in the
// service call.
func (a *App) newPRTransitionCmd(opts *prOptions, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := opts.resolveActor()
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), opts, func(svc *application.Service) error {
				call := svc.Submit
				if name == "withdraw" {
					call = svc.Withdraw
				}
				pr, err := call(cmd.Context(), args[0], actor, opts.token)
				if err != nil {
					return err
				}
				return a.printRequest(opts, pr)
			})
		},
	}
}

func (a *App) newPRReviewCmd(opts *prOptions) *cobra.Command {
	var action, comment, level string

	cmd := &cobra.Command{
		Use:   "review <id>",
		Short: "Approve, reject or return a request under review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := opts.resolveActor()
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), opts, func(svc *application.Service) error {
				var pr *promotion.PullRequest
				if level == "" {
					pr, err = svc.Review(cmd.Context(), args[0], actor, promotion.Action(action), comment, opts.token)
				} else {
					pr, err = svc.ReviewAtLevel(cmd.Context(), args[0], actor, promotion.Level(level), promotion.Action(action), comment, opts.token)
				}
				if err != nil {
					return err
				}
				return a.printRequest(opts, pr)
			})
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "approve, reject or return (required)")
	cmd.Flags().StringVar(&comment, "comment", "", "Reviewer comment (required for reject and return)")
	cmd.Flags().StringVar(&level, "level", "", "Review level (default: the current level)")
	_ = cmd.MarkFlagRequired("action")

	return cmd
}

func (a *App) newPRDeleteCmd(opts *prOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a draft request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := opts.resolveActor()
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), opts, func(svc *application.Service) error {
				if err := svc.Delete(cmd.Context(), args[0], actor, opts.token); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(a.stdout, "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func (a *App) newPRGetCmd(opts *prOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), opts, func(svc *application.Service) error {
				pr, err := svc.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printRequest(opts, pr)
			})
		},
	}
}

func (a *App) newPRHistoryCmd(opts *prOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the review history of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), opts, func(svc *application.Service) error {
				history, err := svc.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return a.printJSON(history)
				}
				tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "TIME\tACTION\tLEVEL\tOPERATOR\tCOMMENT")
				for _, rec := range history {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						rec.OperateTime.Format("2006-01-02 15:04:05"), rec.Action, dash(string(rec.Level)), rec.Operator, rec.Comment)
				}
				return tw.Flush()
			})
		},
	}
}

func (a *App) newPRListCmd(opts *prOptions) *cobra.Command {
	var (
		q        application.Query
		statuses []string
		space    string
		orderBy  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range statuses {
				q.Statuses = append(q.Statuses, promotion.Status(s))
			}
			q.TargetSpace = promotion.TargetSpace(space)
			q.OrderBy = promotion.OrderBy(orderBy)

			return a.withService(cmd.Context(), opts, func(svc *application.Service) error {
				page, err := svc.List(cmd.Context(), q)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return a.printJSON(page)
				}
				tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tLEVEL\tSPACE\tAPPLICANT\tTITLE")
				for _, pr := range page.Items {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						pr.ID, pr.Status, dash(string(pr.CurrentLevel)), pr.TargetSpace, pr.Applicant, pr.Title)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(a.stdout, "\n%d of %d\n", len(page.Items), page.Total)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&q.Applicant, "applicant", "", "Only requests by this applicant")
	flags.StringVar(&q.ReviewableBy, "reviewable-by", "", "Only requests this reviewer may act on")
	flags.StringSliceVar(&statuses, "status", nil, "Only these statuses")
	flags.StringVar(&space, "space", "", "Only this target space")
	flags.StringVar(&orderBy, "order-by", "", "created_at, updated_at or apply_time")
	flags.BoolVar(&q.Descending, "desc", false, "Newest first")
	flags.IntVar(&q.Offset, "offset", 0, "Skip this many results")
	flags.IntVar(&q.Limit, "limit", 0, "Maximum results (default 50)")

	return cmd
}

func (a *App) newPRSummaryCmd(opts *prOptions) *cobra.Command {
	var applicant string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Count an applicant's requests by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if applicant == "" {
				actor, err := opts.resolveActor()
				if err != nil {
					return err
				}
				applicant = actor
			}
			return a.withService(cmd.Context(), opts, func(svc *application.Service) error {
				counts, err := svc.Summary(cmd.Context(), applicant)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return a.printJSON(counts)
				}
				for _, st := range promotion.AllStatuses {
					_, _ = fmt.Fprintf(a.stdout, "%-10s %d\n", st, counts[st])
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&applicant, "applicant", "", "Applicant (default: the actor)")
	return cmd
}

func (a *App) printRequest(opts *prOptions, pr *promotion.PullRequest) error {
	if opts.jsonOutput {
		return a.printJSON(pr)
	}
	_, _ = fmt.Fprintf(a.stdout, "ID:        %s\n", pr.ID)
	_, _ = fmt.Fprintf(a.stdout, "Title:     %s\n", pr.Title)
	_, _ = fmt.Fprintf(a.stdout, "Status:    %s\n", pr.Status)
	if pr.CurrentLevel != promotion.LevelNone {
		_, _ = fmt.Fprintf(a.stdout, "Level:     %s\n", pr.CurrentLevel)
	}
	_, _ = fmt.Fprintf(a.stdout, "Space:     %s\n", pr.TargetSpace)
	_, _ = fmt.Fprintf(a.stdout, "Applicant: %s\n", pr.Applicant)
	if pr.Snapshot != nil {
		_, _ = fmt.Fprintf(a.stdout, "Project:   %s (%s, %d%% complete)\n",
			pr.Snapshot.ProjectName, pr.Snapshot.ProjectID, pr.Snapshot.Completeness)
	}
	if pr.Reviewer != "" {
		_, _ = fmt.Fprintf(a.stdout, "Reviewer:  %s\n", pr.Reviewer)
	}
	if pr.ReviewComment != "" {
		_, _ = fmt.Fprintf(a.stdout, "Comment:   %s\n", pr.ReviewComment)
	}
	return nil
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
