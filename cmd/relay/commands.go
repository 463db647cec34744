package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/relay/internal/channels/telegram"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/service"
	"github.com/haasonsaas/relay/internal/tools"
)

const defaultConfigPath = "relay.yaml"

// loadService builds the component graph from the config file. Callers
// own the returned service and must Close it.
func loadService(configPath string, gate tools.ApprovalGate) (*config.Config, *service.Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	svc, err := service.New(cfg, service.Options{Gate: gate})
	if err != nil {
		return nil, nil, err
	}
	return cfg, svc, nil
}

func closeService(svc *service.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram front-end and the metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.TelegramBotToken == "" {
				return fmt.Errorf("telegram_bot_token is required for serve")
			}

			logger := observability.NewLogger(observability.LogConfig{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
			})

			// The bot and the service reference each other through the
			// approval gate: construct the service gateless, then the
			// bot, then install the bot's gate before serving.
			svc, err := service.New(cfg, service.Options{Logger: logger})
			if err != nil {
				return err
			}
			defer closeService(svc)

			tg, err := telegram.New(telegram.Config{
				Token:         cfg.TelegramBotToken,
				AllowedUserID: cfg.TelegramUserID,
				Logger:        logger,
			}, svc)
			if err != nil {
				return fmt.Errorf("telegram front-end: %w", err)
			}
			svc.SetApprovalGate(tg.Gate())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", svc.Metrics().Handler())
				srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("metrics endpoint failed", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				logger.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
			}

			logger.Info("relay serving", "version", version)
			tg.Start(ctx)

			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return tg.Stop(stopCtx)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")
	return cmd
}

func buildAskCmd() *cobra.Command {
	var (
		configPath  string
		strategy    string
		system      string
		temperature float64
		maxTokens   int
	)
	cmd := &cobra.Command{
		Use:   "ask <request>",
		Short: "Route one request and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := loadService(configPath, tools.AutoApprove{})
			if err != nil {
				return err
			}
			defer closeService(svc)

			request := args[0]
			for _, a := range args[1:] {
				request += " " + a
			}

			res := svc.RouteAndExecute(cmd.Context(), "cli", request, service.ExecOptions{
				Strategy:    strategy,
				System:      system,
				Temperature: temperature,
				MaxTokens:   maxTokens,
			})
			if !res.Success {
				return fmt.Errorf("%s: %s", res.ErrorKind, res.ErrorMessage)
			}
			fmt.Println(res.ResponseText)
			fmt.Fprintf(os.Stderr, "model=%s elapsed=%.2fs fallback=%t\n",
				res.ModelID, res.Elapsed, res.FallbackUsed)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Routing strategy (auto, speed, quality, balanced, cost_optimized)")
	cmd.Flags().StringVar(&system, "system", "", "System prompt")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Response token budget")
	return cmd
}

func buildModelsCmd() *cobra.Command {
	var configPath string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the configured models",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := loadService(configPath, tools.AutoApprove{})
			if err != nil {
				return err
			}
			defer closeService(svc)

			list := svc.ListModels()
			if asJSON {
				return printJSON(list)
			}
			for _, m := range list {
				mark := " "
				if m.Available {
					mark = "*"
				}
				fmt.Printf("%s %-20s %-16s %-10s cost=%.2f\n",
					mark, m.ID, m.Backend, m.SpeedClass, m.Cost)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func buildToolsCmd() *cobra.Command {
	var configPath string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := loadService(configPath, tools.AutoApprove{})
			if err != nil {
				return err
			}
			defer closeService(svc)

			list := svc.ListTools()
			if asJSON {
				return printJSON(list)
			}
			for _, t := range list {
				confirm := ""
				if t.RequiresConfirmation {
					confirm = " (needs approval)"
				}
				fmt.Printf("%-14s %s%s\n", t.Name, t.Description, confirm)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func buildHealthCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe every model backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := loadService(configPath, tools.AutoApprove{})
			if err != nil {
				return err
			}
			defer closeService(svc)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			health := svc.HealthCheck(ctx)

			failed := 0
			for id, ok := range health {
				mark := "ok  "
				if !ok {
					mark = "FAIL"
					failed++
				}
				fmt.Printf("%s %s\n", mark, id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d backends unhealthy", failed, len(health))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")
	return cmd
}

func buildStatsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print execution counters as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := loadService(configPath, tools.AutoApprove{})
			if err != nil {
				return err
			}
			defer closeService(svc)
			return printJSON(svc.Stats())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
