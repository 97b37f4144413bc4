package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"missionline/internal/app"
	"missionline/internal/config"
	"missionline/internal/domain"
	"missionline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ml",
	Short: "Missionline CLI",
	Long: `Missionline records autonomous mission lifecycles in an append-only log.
Core concepts:
- Mission: a unit of work proposed with an objective, e.g. "calc: 6 * 7".
- Approval gate: nothing executes until a human approves the mission.
- Execution: a tool is resolved from the objective and run once under a
  timeout; the outcome lands in the log as completed or failed.
- Event log: JSON Lines streams under .missionline; current state is always
  derived by replaying them, never stored elsewhere.
- Whiteboard: the read side ('ml mission list', 'ml mission show').`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MISSIONLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(signalCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default missionline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func missionCmd() *cobra.Command {
	m := &cobra.Command{Use: "mission", Short: "Manage missions"}
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionApproveCmd())
	m.AddCommand(missionExecuteCmd())
	m.AddCommand(missionPlanCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionListCmd())
	return m
}

func missionCreateCmd() *cobra.Command {
	var objective, source string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Propose a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if objective == "" {
				return fmt.Errorf("--objective required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if source == "" {
					source = "cli"
				}
				proj, err := a.Engine.CreateMission(ctx, objective, source, nil)
				if err != nil {
					return err
				}
				return printJSONOrTable(proj)
			})
		},
	}
	cmd.Flags().StringVar(&objective, "objective", "", "mission objective")
	cmd.Flags().StringVar(&source, "source", "", "origin of the proposal")
	_ = cmd.MarkFlagRequired("objective")
	return cmd
}

func missionApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <mission-id>",
		Short: "Approve a proposed mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				res, err := a.Engine.Approve(ctx, args[0])
				if err != nil {
					return err
				}
				if res.AlreadyApproved {
					fmt.Println("already approved")
				}
				return printJSONOrTable(res)
			})
		},
	}
}

func missionExecuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <mission-id>",
		Short: "Execute an approved mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				res, err := a.Engine.Execute(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}

func missionPlanCmd() *cobra.Command {
	var summary string
	var steps []string
	cmd := &cobra.Command{
		Use:   "plan <mission-id>",
		Short: "Attach a plan to a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if summary == "" && len(steps) == 0 {
				return fmt.Errorf("--summary or --step required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				proj, err := a.Engine.AddPlan(ctx, args[0], domain.Plan{Summary: summary, Steps: steps})
				if err != nil {
					return err
				}
				return printJSONOrTable(proj)
			})
		},
	}
	cmd.Flags().StringVar(&summary, "summary", "", "plan summary")
	cmd.Flags().StringArrayVar(&steps, "step", nil, "plan step (repeatable)")
	return cmd
}

func missionShowCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <mission-id>",
		Short: "Show a mission projection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if raw {
					records, err := a.Log.Missions().ReadFor(ctx, args[0])
					if err != nil {
						return err
					}
					if len(records) == 0 {
						return domain.ErrNotFound
					}
					return printJSONOrTable(records)
				}
				proj, err := a.Board.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(proj)
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "records", false, "print the raw records instead of the projection")
	return cmd
}

func missionListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Board.List(ctx, domain.Status(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Objective", "Tool", "Updated"})
				for _, p := range items {
					tool := ""
					if p.Result != nil {
						tool = p.Result.ToolUsed
					}
					tw.AppendRow(table.Row{p.MissionID, p.Status, truncate(p.Objective, 48), tool, p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (proposed, approved, active, completed, failed)")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The append-only record of everything that happened, one JSON object per line.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var stream string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail stream records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				lines, err := a.Log.Stream(stream).Tail(ctx, n)
				if err != nil {
					return err
				}
				for _, line := range lines {
					fmt.Println(string(line))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of records")
	cmd.Flags().StringVar(&stream, "stream", "missions", "stream name (missions, artifacts, signals)")
	return cmd
}

func signalCmd() *cobra.Command {
	s := &cobra.Command{Use: "signal", Short: "Revenue signals"}
	s.AddCommand(signalRecordCmd())
	return s
}

func signalRecordCmd() *cobra.Command {
	var kind, payload string
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a revenue signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind == "" {
				return fmt.Errorf("--kind required")
			}
			var meta domain.Metadata
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &meta); err != nil {
					return fmt.Errorf("invalid --payload json: %w", err)
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return a.Engine.RecordSignal(ctx, kind, meta)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "signal kind, e.g. sale")
	cmd.Flags().StringVar(&payload, "payload", "", "signal payload as a JSON object")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyRevokeCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (prints the secret once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				return fmt.Errorf("--actor required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				key, secret, err := server.MintAPIKey(ctx, a.Repo, actorID, name)
				if err != nil {
					return err
				}
				fmt.Println("api key (store it now, it is not retrievable):", secret)
				return printJSONOrTable(key)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				keys, err := a.Repo.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return a.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				authCfg := server.AuthConfig{
					JWTSecret:              os.Getenv("MISSIONLINE_JWT_SECRET"),
					AllowLegacyActorHeader: a.Config.Auth.AllowLegacyActorHeader,
				}
				if authCfg.JWTSecret == "" {
					fmt.Println("MISSIONLINE_JWT_SECRET not set; bearer tokens disabled, API keys still work")
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Board:    a.Board,
					Log:      a.Log,
					Repo:     a.Repo,
					BasePath: basePath,
					Auth:     authCfg,
					Logger:   a.Logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Missionline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	logger := zap.NewNop()
	if viper.GetBool("verbose") {
		if dev, err := zap.NewDevelopment(); err == nil {
			logger = dev
		}
	}
	a, err := app.Open(viper.GetString("workspace"), logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
