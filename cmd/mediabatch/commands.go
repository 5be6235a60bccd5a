package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mediabatch/internal/api"
	"mediabatch/internal/config"
	"mediabatch/internal/core/domain"
	"mediabatch/internal/service"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			p, err := newPipeline(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			srv := api.NewServer(p.orchestrator, api.Options{
				Addr:              cfg.Server.Addr,
				ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
				ReadTimeout:       cfg.Server.ReadTimeout,
				WriteTimeout:      cfg.Server.WriteTimeout,
				IdleTimeout:       cfg.Server.IdleTimeout,
				ShutdownTimeout:   cfg.Server.ShutdownTimeout,
				MaxPageSize:       cfg.Jobs.MaxPageSize,
				MaxListingItems:   cfg.Jobs.MaxListingItems,
				DefaultPageSize:   cfg.Jobs.DefaultPageSize,
				DefaultMode:       domain.DeliveryMode(cfg.Jobs.DefaultMode),
			}, logger)
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address override")
	return cmd
}

// windowFlags are shared by run and list.
type windowFlags struct {
	url       string
	pageSize  int
	pageIndex int
	json      bool
}

func (f *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "Listing page URL")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "Items per page (default from config)")
	cmd.Flags().IntVar(&f.pageIndex, "page-index", 1, "1-based page number")
	cmd.Flags().BoolVar(&f.json, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("url")
}

func (f *windowFlags) parse(cfg *config.Config) (domain.ListingReference, domain.PageWindow, error) {
	listing, err := domain.NewListingReference(f.url)
	if err != nil {
		return domain.ListingReference{}, domain.PageWindow{}, err
	}
	size := f.pageSize
	if size == 0 {
		size = cfg.Jobs.DefaultPageSize
	}
	window, err := domain.NewPageWindow(size, f.pageIndex, domain.WindowLimits{
		MaxPageSize:     cfg.Jobs.MaxPageSize,
		MaxListingItems: cfg.Jobs.MaxListingItems,
	})
	if err != nil {
		return domain.ListingReference{}, domain.PageWindow{}, err
	}
	return listing, window, nil
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags windowFlags
	var mode string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one acquisition job and print its result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			listing, window, err := flags.parse(cfg)
			if err != nil {
				return err
			}
			deliveryMode, err := domain.ParseDeliveryMode(mode, domain.DeliveryMode(cfg.Jobs.DefaultMode))
			if err != nil {
				return err
			}

			p, err := newPipeline(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			result, err := p.orchestrator.RunJob(cmd.Context(), service.JobRequest{
				Listing: listing,
				Window:  window,
				Mode:    deliveryMode,
			})
			if err != nil {
				return err
			}

			if flags.json {
				return writeJSON(cmd, result)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderJobResult(result))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&mode, "mode", "", "Delivery mode: direct or archive (default from config)")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var flags windowFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the item references of one listing page window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			listing, window, err := flags.parse(cfg)
			if err != nil {
				return err
			}

			result, err := newListOnly(cfg, logger).ListItems(cmd.Context(), listing, window)
			if err != nil {
				return err
			}
			logger.Debug("listing window resolved", slog.Int("items", len(result.Items)))

			if flags.json {
				return writeJSON(cmd, result)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderListResult(result))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
