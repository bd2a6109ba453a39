package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nirvana-iot/catalog-api/internal/di"
	"github.com/nirvana-iot/catalog-api/internal/services"
)

type categoryRow struct {
	ID        string   `json:"id" yaml:"id"`
	DisplayID int      `json:"displayId" yaml:"displayId"`
	Name      string   `json:"name" yaml:"name"`
	NameAr    string   `json:"nameAr" yaml:"nameAr"`
	IconName  string   `json:"iconName" yaml:"iconName"`
	Products  []string `json:"products" yaml:"products"`
	Version   int64    `json:"version" yaml:"version"`
}

func newCategoriesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Work with catalog categories",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List categories in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				categories, err := c.Services.Catalog.ListCategories(ctx)
				if err != nil {
					return err
				}
				rows := make([]categoryRow, 0, len(categories))
				for _, category := range categories {
					row := categoryRow{
						ID:        category.ID,
						DisplayID: category.DisplayID,
						Name:      category.Name,
						NameAr:    category.NameAr,
						IconName:  category.IconName,
						Products:  make([]string, 0, len(category.Products)),
						Version:   category.Version,
					}
					for _, product := range category.Products {
						row.Products = append(row.Products, product.ID)
					}
					rows = append(rows, row)
				}
				return opts.render(cmd.OutOrStdout(), rows, func(w io.Writer) error {
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "DISPLAY\tID\tNAME\tPRODUCTS\tVERSION")
					for _, row := range rows {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", row.DisplayID, row.ID, row.Name, len(row.Products), row.Version)
					}
					return tw.Flush()
				})
			})
		},
	})
	return cmd
}

type featuredView struct {
	CategoryIDs []string `json:"categoryIds" yaml:"categoryIds"`
	Homepage    []string `json:"homepage" yaml:"homepage"`
	UpdatedAt   string   `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

func newFeaturedCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "featured",
		Short: "Show or replace the homepage featured categories",
	}

	show := func(ctx context.Context, cmd *cobra.Command, c *di.Container, featured services.FeaturedCategories) error {
		homepage, err := c.Services.Settings.HomepageCategories(ctx)
		if err != nil {
			return err
		}
		view := featuredView{CategoryIDs: featured.CategoryIDs, Homepage: make([]string, 0, len(homepage))}
		if view.CategoryIDs == nil {
			view.CategoryIDs = []string{}
		}
		if !featured.UpdatedAt.IsZero() {
			view.UpdatedAt = featured.UpdatedAt.UTC().Format(time.RFC3339)
		}
		for _, category := range homepage {
			view.Homepage = append(view.Homepage, category.ID)
		}
		return opts.render(cmd.OutOrStdout(), view, func(w io.Writer) error {
			fmt.Fprintf(w, "configured: %s\n", joinOrNone(view.CategoryIDs))
			fmt.Fprintf(w, "homepage:   %s\n", joinOrNone(view.Homepage))
			return nil
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the configured ids and the categories the homepage resolves to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				featured, err := c.Services.Settings.GetFeatured(ctx)
				if err != nil {
					return err
				}
				return show(ctx, cmd, c, featured)
			})
		},
	})

	var clearList bool
	set := &cobra.Command{
		Use:   "set [category-id...]",
		Short: "Replace the featured list, in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case clearList && len(args) > 0:
				return fmt.Errorf("--clear takes no category ids")
			case !clearList && len(args) == 0:
				return fmt.Errorf("pass category ids, or --clear to fall back to the first categories")
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				featured, err := c.Services.Settings.SetFeatured(ctx, services.SetFeaturedCommand{CategoryIDs: args})
				if err != nil {
					return err
				}
				return show(ctx, cmd, c, featured)
			})
		},
	}
	set.Flags().BoolVar(&clearList, "clear", false, "store an empty list")
	cmd.AddCommand(set)
	return cmd
}

type auditView struct {
	CheckedAt           string   `json:"checkedAt" yaml:"checkedAt"`
	Clean               bool     `json:"clean" yaml:"clean"`
	CategoryCount       int      `json:"categoryCount" yaml:"categoryCount"`
	ProductCount        int      `json:"productCount" yaml:"productCount"`
	MissingFeatured     []string `json:"missingFeatured" yaml:"missingFeatured"`
	DanglingLinks       []string `json:"danglingLinks" yaml:"danglingLinks"`
	UnknownServiceLinks []string `json:"unknownServiceLinks" yaml:"unknownServiceLinks"`
	DuplicateProductIDs []string `json:"duplicateProductIds" yaml:"duplicateProductIds"`
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var failOnIssues bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report featured ids, service links and product ids that point nowhere",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				report, err := c.Services.Audit.AuditReferences(ctx)
				if err != nil {
					return err
				}
				view := auditView{
					CheckedAt:           report.CheckedAt.UTC().Format(time.RFC3339),
					Clean:               report.Clean(),
					CategoryCount:       report.CategoryCount,
					ProductCount:        report.ProductCount,
					MissingFeatured:     append([]string{}, report.MissingFeatured...),
					DanglingLinks:       []string{},
					UnknownServiceLinks: append([]string{}, report.UnknownServiceLinks...),
					DuplicateProductIDs: []string{},
				}
				for _, link := range report.DanglingLinks {
					view.DanglingLinks = append(view.DanglingLinks, fmt.Sprintf("service %d -> %s", link.ServiceID, link.ProductID))
				}
				for _, dup := range report.DuplicateProductIDs {
					view.DuplicateProductIDs = append(view.DuplicateProductIDs, fmt.Sprintf("%s/%s x%d", dup.CategoryID, dup.ProductID, dup.Count))
				}

				err = opts.render(cmd.OutOrStdout(), view, func(w io.Writer) error {
					fmt.Fprintf(w, "categories: %d  products: %d\n", view.CategoryCount, view.ProductCount)
					if view.Clean {
						fmt.Fprintln(w, "no dangling references")
						return nil
					}
					fmt.Fprintf(w, "missing featured:      %s\n", joinOrNone(view.MissingFeatured))
					fmt.Fprintf(w, "dangling links:        %s\n", joinOrNone(view.DanglingLinks))
					fmt.Fprintf(w, "unknown service links: %s\n", joinOrNone(view.UnknownServiceLinks))
					fmt.Fprintf(w, "duplicate product ids: %s\n", joinOrNone(view.DuplicateProductIDs))
					return nil
				})
				if err != nil {
					return err
				}
				if failOnIssues && !view.Clean {
					return fmt.Errorf("audit found dangling references")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failOnIssues, "fail", false, "exit non-zero when the audit is not clean")
	return cmd
}

func newJobsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run scheduled maintenance jobs by hand",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "run <job>",
		Short:     "Run one job now (" + di.JobIdempotencySweep + ", " + di.JobReferenceAudit + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{di.JobIdempotencySweep, di.JobReferenceAudit},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				if err := c.Scheduler.Trigger(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s completed\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}
