package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pairbot/config"
	"pairbot/logger"
	"pairbot/processor"
)

// errNothingToPost marks a cycle that completed without choosing a pair.
var errNothingToPost = errors.New("no pair selected")

type rootOptions struct {
	configPath string
	strict     bool
	output     string

	cfg     *config.Config
	factory appFactory
	out     io.Writer
}

func newRootCmd(factory appFactory, out io.Writer) *cobra.Command {
	opts := &rootOptions{factory: factory, out: out}

	root := &cobra.Command{
		Use:           "pairbot",
		Short:         "Choose the trading pair for the next market-update post",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.runSelect(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "config/config.yml", "Path to configuration file")
	flags.BoolVar(&opts.strict, "strict", false, "Fail on store errors instead of degrading to empty results")
	flags.StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")

	root.AddCommand(
		&cobra.Command{
			Use:   "select",
			Short: "Run a full selection cycle and print the chosen pair",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.runSelect(cmd.Context())
			},
		},
		newRankCmd(opts),
		newRecentCmd(opts),
		&cobra.Command{
			Use:   "latest",
			Short: "Print the pair of the most recent post",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
					latest, err := a.cycle.LatestPair(ctx)
					if err != nil {
						return err
					}
					return printValue(opts.out, opts.output, map[string]string{"latest": latest}, latest)
				})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Print document counts for the volume and post sources",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.runStats(cmd.Context())
			},
		},
	)
	return root
}

func newRankCmd(opts *rootOptions) *cobra.Command {
	var maxCount int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Print the top pairs by volume",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("max") {
				opts.cfg.Selection.MaxRanked = maxCount
			}
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				ranked, err := a.cycle.RankedPairs(ctx)
				if err != nil {
					return err
				}
				return printList(opts.out, opts.output, "ranked", ranked)
			})
		},
	}
	cmd.Flags().IntVar(&maxCount, "max", 0, "Number of pairs to rank (default from config)")
	return cmd
}

func newRecentCmd(opts *rootOptions) *cobra.Command {
	var maxCount int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the recently posted pairs among the top pairs by volume",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("max") {
				opts.cfg.Selection.MaxRecent = maxCount
			}
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				ranked, err := a.cycle.RankedPairs(ctx)
				if err != nil {
					return err
				}
				recent, err := a.cycle.RecentPairs(ctx, ranked)
				if err != nil {
					return err
				}
				return printList(opts.out, opts.output, "recent", recent.Sorted())
			})
		},
	}
	cmd.Flags().IntVar(&maxCount, "max", 0, "Number of recent pairs to collect (default from config)")
	return cmd
}

func (o *rootOptions) load() error {
	switch o.output {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output format %q", o.output)
	}

	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.strict {
		cfg.Selection.FailSoft = false
	}

	log := logger.GetLogger()
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	o.cfg = cfg
	return nil
}

func (o *rootOptions) withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	logStartup(logger.GetLogger(), o.cfg)

	if cw := o.cfg.Metrics.CloudWatch; cw.Enabled {
		logger.InitCloudWatch(ctx, cw.Region, cw.Namespace)
	}

	a, err := o.factory(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	a.ran = true
	return fn(ctx, a)
}

// startupEnv are raw environment values recorded with the startup line.
var startupEnv = []string{"APP_ENV", "HOSTNAME"}

func logStartup(log *logger.Log, cfg *config.Config) {
	log.WithEnv(startupEnv...).WithFields(logger.Fields{
		"service":   cfg.Pairbot.Name,
		"version":   cfg.Pairbot.Version,
		"driver":    cfg.Store.Driver,
		"volume":    cfg.Volume.Source,
		"fail_soft": cfg.Selection.FailSoft,
		"env":       config.AppEnvironment(),
	}).Info("starting pairbot")
}

func (o *rootOptions) runSelect(ctx context.Context) error {
	return o.withApp(ctx, func(ctx context.Context, a *app) error {
		decision, err := a.cycle.Run(ctx)
		if errors.Is(err, processor.ErrNoCandidates) {
			if perr := printDecision(o.out, o.output, decision); perr != nil {
				return perr
			}
			return fmt.Errorf("%w: %v", errNothingToPost, err)
		}
		if err != nil {
			return err
		}
		if err := printDecision(o.out, o.output, decision); err != nil {
			return err
		}
		if decision.Empty() {
			return errNothingToPost
		}
		return nil
	})
}

func (o *rootOptions) runStats(ctx context.Context) error {
	return o.withApp(ctx, func(ctx context.Context, a *app) error {
		stats := []sourceCount{
			{Name: "volumes", Source: a.volumes},
			{Name: "posts", Source: a.posts},
		}
		for i := range stats {
			counter, ok := stats[i].Source.(processor.Counter)
			if !ok {
				stats[i].Count = -1
				continue
			}
			n, err := counter.Count(ctx)
			if err != nil {
				return err
			}
			stats[i].Count = n
		}
		return printStats(o.out, o.output, stats)
	})
}

type sourceCount struct {
	Name   string      `json:"name"`
	Count  int64       `json:"count"`
	Source interface{} `json:"-"`
}
