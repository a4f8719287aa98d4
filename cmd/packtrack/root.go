package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/BearBump/packtrack/config"
	"github.com/BearBump/packtrack/internal/carriers"
	"github.com/BearBump/packtrack/internal/notify"
	"github.com/BearBump/packtrack/internal/services/packages"
	"github.com/BearBump/packtrack/internal/services/reconcile"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type cli struct {
	f      factories
	stdout io.Writer
	stderr io.Writer

	cfgPath string
	verbose bool
	cfg     *config.Config
}

func newRootCmd(stdout, stderr io.Writer, f factories) *cobra.Command {
	c := &cli{f: f, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "packtrack",
		Short:         "Track parcels through the 17track API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setupLogger(c.stderr, c.verbose)
			cfg, err := config.Load(c.cfgPath)
			if err != nil {
				return errors.Wrap(err, "load config")
			}
			c.cfg = cfg
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&c.cfgPath, "config", "", "path to the YAML config (default $configPath)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(
		c.addCmd(),
		c.checkCmd(),
		c.listCmd(),
		c.detailsCmd(),
		c.removeCmd(),
		c.quotaCmd(),
		c.watchCmd(),
		c.relayCmd(),
	)
	return root
}

func (c *cli) open(ctx context.Context) (*app, error) {
	return newApp(ctx, c.cfg, c.f)
}

// withLock runs fn while holding the process lock.
func (c *cli) withLock(a *app, fn func() error) error {
	l, err := a.acquireLock()
	if err != nil {
		return err
	}
	defer func() { _ = l.Release() }()
	return fn()
}

func (c *cli) addCmd() *cobra.Command {
	var description, carrier string
	cmd := &cobra.Command{
		Use:   "add <tracking-number>...",
		Short: "Register packages with 17track and start tracking them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return c.withLock(a, func() error {
				in := make([]packages.AddInput, 0, len(args))
				for _, n := range args {
					in = append(in, packages.AddInput{TrackingNumber: n, Description: description, Carrier: carrier})
				}
				outs, err := a.svc.AddPackages(ctx, in)
				if err != nil {
					return err
				}

				var first error
				failed := 0
				for _, o := range outs {
					if o.Err != nil {
						failed++
						if first == nil {
							first = o.Err
						}
						fmt.Fprintf(c.stderr, "✗ %s: %v\n", o.TrackingNumber, o.Err)
						continue
					}
					verb := "Added"
					if o.Reactivated {
						verb = "Reactivated"
					}
					p := o.Package
					cr := carriers.Carrier(p.Carrier)
					fmt.Fprintf(c.stdout, "✓ %s %s (%s)\n  %s\n", verb, p.TrackingNumber, cr.Name(), cr.TrackingURL(p.TrackingNumber))
				}

				if q, err := a.svc.LocalUsage(ctx); err == nil && q.Warning {
					fmt.Fprintf(c.stderr, "⚠️  %d of %d registrations used in %s\n", q.RegistrationsUsed, q.QuotaTotal, q.Month)
				}
				if first != nil {
					return errors.Wrapf(first, "%d of %d packages not added", failed, len(outs))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "what is in the package")
	cmd.Flags().StringVarP(&carrier, "carrier", "c", "", "carrier key or name, overrides auto-detection")
	return cmd
}

func (c *cli) checkCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "check [tracking-number...]",
		Short: "Fetch updates for active packages and print notifications",
		Long:  "Fetch updates for all active packages, or only the given ones. Suitable for cron with --quiet.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return c.withLock(a, func() error {
				check := a.svc.CheckAll
				if len(args) > 0 {
					check = func(ctx context.Context) (*reconcile.Report, error) {
						return a.svc.Check(ctx, args...)
					}
				}
				report, err := check(ctx)
				if err != nil {
					return err
				}

				if !quiet {
					for _, sf := range report.SoftFailures {
						fmt.Fprintf(c.stderr, "⚠️  %s: %v\n", sf.TrackingNumber, sf.Err)
					}
					for _, w := range report.Warnings {
						fmt.Fprintf(c.stderr, "⚠️  %s\n", w)
					}
				}

				if _, err := notify.Dispatch(ctx, a.sinks(c.stdout, false), report.Notifications); err != nil {
					return errors.Wrap(err, "deliver notifications")
				}
				if len(report.Notifications) == 0 && !quiet {
					fmt.Fprintf(c.stdout, "No updates (%d packages checked).\n", report.Checked)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print nothing when there are no updates")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			pkgs, err := a.svc.ListPackages(cmd.Context(), all)
			if err != nil {
				return err
			}
			renderList(c.stdout, pkgs)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include delivered and removed packages")
	return cmd
}

func (c *cli) detailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "details <tracking-number>",
		Short: "Show a package with its full event history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.svc.GetDetails(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderDetails(c.stdout, d)
			return nil
		},
	}
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <tracking-number>",
		Short: "Stop tracking a package (history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			return c.withLock(a, func() error {
				if err := a.svc.RemovePackage(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "Stopped tracking %s.\n", normalizeArg(args[0]))
				return nil
			})
		},
	}
}

func (c *cli) quotaCmd() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show this month's registration quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			get := a.svc.GetQuota
			if local {
				get = a.svc.LocalUsage
			}
			q, err := get(cmd.Context())
			if err != nil {
				return err
			}
			renderQuota(c.stdout, q)
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "do not ask 17track, show the local counter only")
	return cmd
}

func normalizeArg(tn string) string {
	return strings.ToUpper(strings.TrimSpace(tn))
}
