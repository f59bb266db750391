package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"runline/internal/authz"
	"runline/internal/config"
	"runline/internal/db"
	"runline/internal/domain"
	"runline/internal/engine"
	"runline/internal/migrate"
	"runline/internal/repo"
	"runline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Runline CLI",
	Long: `Runline runs automations against model versions and answers capability checks.
- Workspace: a billing boundary with a plan, members, and seats.
- Project: owns models, versions, and automations; visibility controls who can read it.
- Automation: a named pipeline of functions; each revision binds triggers to models.
- Run: one execution of an automation's current revision, derived from its function runs.
- Check: ask whether an actor may perform an action without performing it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
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
	viper.SetEnvPrefix("RUNLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "data directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(workspaceCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(modelCmd())
	rootCmd.AddCommand(automationCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default runline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(viper.GetString("workspace"), "runline.yml")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	return cfg
}

func loadConfig() (*config.Config, error) {
	return config.Load(filepath.Join(viper.GetString("workspace"), "runline.yml"))
}

// --- users ---

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	var name, role string
	add := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Add or update a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				u := domain.User{ID: args[0], Name: name, ServerRole: domain.ServerRole(role), Verified: true}
				if err := e.Repo.UpsertUser(ctx, nil, u); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&role, "role", string(domain.ServerRoleUser), "server role")
	user.AddCommand(add)
	return user
}

// --- workspaces ---

func workspaceCmd() *cobra.Command {
	ws := &cobra.Command{Use: "workspace", Short: "Manage workspaces"}
	ws.AddCommand(workspaceCreateCmd())
	ws.AddCommand(workspaceListCmd())
	ws.AddCommand(workspacePlanCmd())
	ws.AddCommand(workspaceMemberCmd())
	return ws
}

func workspaceCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				ws, err := e.CreateWorkspace(ctx, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(ws)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "workspace name")
	return cmd
}

func workspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListWorkspaces(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Plan", "Status"})
				for _, ws := range items {
					tw.AppendRow(table.Row{ws.ID, ws.Name, ws.PlanName, ws.PlanStatus})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func workspacePlanCmd() *cobra.Command {
	var plan, status string
	cmd := &cobra.Command{
		Use:   "set-plan <workspace-id>",
		Short: "Set workspace plan and billing status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.SetWorkspacePlan(ctx, nil, args[0], domain.PlanName(plan), domain.PlanStatus(status))
			})
		},
	}
	cmd.Flags().StringVar(&plan, "plan", string(domain.PlanFree), "plan tier")
	cmd.Flags().StringVar(&status, "status", string(domain.PlanStatusValid), "plan status")
	return cmd
}

func workspaceMemberCmd() *cobra.Command {
	var role, seat string
	cmd := &cobra.Command{
		Use:   "add-member <workspace-id> <user-id>",
		Short: "Add or update a workspace member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.AssignWorkspaceRole(ctx, nil, args[0], args[1], domain.WorkspaceRole(role)); err != nil {
					return err
				}
				return r.AssignSeat(ctx, nil, args[0], args[1], domain.SeatType(seat))
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.WorkspaceRoleMember), "workspace role")
	cmd.Flags().StringVar(&seat, "seat", string(domain.SeatViewer), "seat type")
	return cmd
}

// --- projects ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectRoleCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var name, workspaceID, visibility, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
					WorkspaceID: workspaceID,
					Name:        name,
					Description: description,
					Visibility:  domain.Visibility(visibility),
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&workspaceID, "workspace-id", "", "owning workspace")
	cmd.Flags().StringVar(&visibility, "visibility", string(domain.VisibilityPrivate), "visibility")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func projectListCmd() *cobra.Command {
	var workspaceID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx, workspaceID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Visibility", "Workspace"})
				for _, p := range items {
					wsID := ""
					if p.WorkspaceID != nil {
						wsID = *p.WorkspaceID
					}
					tw.AppendRow(table.Row{p.ID, p.Name, p.Visibility, wsID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&workspaceID, "workspace-id", "", "filter by workspace")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectRoleCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "grant <project-id> <user-id>",
		Short: "Grant a project role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.AssignProjectRole(ctx, nil, args[0], args[1], domain.ProjectRole(role))
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.ProjectRoleContributor), "project role")
	return cmd
}

// --- models and versions ---

func modelCmd() *cobra.Command {
	model := &cobra.Command{Use: "model", Short: "Manage models and versions"}
	var name string
	create := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				m, err := e.CreateModel(ctx, args[0], name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "model name")
	model.AddCommand(create)

	var message string
	publish := &cobra.Command{
		Use:   "publish <model-id>",
		Short: "Publish a version (fires bound automations)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				v, runs, err := e.CreateVersion(ctx, args[0], message, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"version": v, "runs": runs})
			})
		},
	}
	publish.Flags().StringVar(&message, "message", "", "version message")
	model.AddCommand(publish)

	model.AddCommand(&cobra.Command{
		Use:   "list <project-id>",
		Short: "List models",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListModels(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	return model
}

// --- automations ---

func automationCmd() *cobra.Command {
	auto := &cobra.Command{Use: "automation", Short: "Manage automations"}
	auto.AddCommand(automationCreateCmd())
	auto.AddCommand(automationListCmd())
	auto.AddCommand(automationToggleCmd("enable", true))
	auto.AddCommand(automationToggleCmd("disable", false))
	auto.AddCommand(automationReviseCmd())
	return auto
}

// parseFunctionFlags turns "function-id:release-id" pairs into bindings.
func parseFunctionFlags(raw []string) ([]domain.RevisionFunction, error) {
	var out []domain.RevisionFunction
	for _, item := range raw {
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid --function %q, expected function-id:release-id", item)
		}
		out = append(out, domain.RevisionFunction{FunctionID: parts[0], ReleaseID: parts[1]})
	}
	return out, nil
}

func triggerFlags(modelIDs []string) []domain.TriggerDefinition {
	var out []domain.TriggerDefinition
	for i := range modelIDs {
		out = append(out, domain.TriggerDefinition{Type: domain.TriggerVersionCreated, ModelID: &modelIDs[i]})
	}
	return out
}

func automationCreateCmd() *cobra.Command {
	var name string
	var functions, models []string
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create automation with its first revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			fns, err := parseFunctionFlags(functions)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.CreateAutomation(ctx, engine.AutomationCreateOptions{
					ProjectID: args[0],
					Name:      name,
					Functions: fns,
					Triggers:  triggerFlags(models),
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "automation name")
	cmd.Flags().StringArrayVar(&functions, "function", nil, "function binding function-id:release-id (repeatable)")
	cmd.Flags().StringArrayVar(&models, "on-model", nil, "model to trigger on versionCreated (repeatable)")
	return cmd
}

func automationReviseCmd() *cobra.Command {
	var functions, models []string
	cmd := &cobra.Command{
		Use:   "revise <automation-id>",
		Short: "Create a new revision, superseding the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fns, err := parseFunctionFlags(functions)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rev, err := e.CreateRevision(ctx, args[0], fns, triggerFlags(models), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rev)
			})
		},
	}
	cmd.Flags().StringArrayVar(&functions, "function", nil, "function binding function-id:release-id (repeatable)")
	cmd.Flags().StringArrayVar(&models, "on-model", nil, "model to trigger on versionCreated (repeatable)")
	return cmd
}

func automationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List automations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAutomations(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Enabled", "Revision"})
				for _, a := range items {
					rev := ""
					if a.CurrentRevisionID != nil {
						rev = *a.CurrentRevisionID
					}
					tw.AppendRow(table.Row{a.ID, a.Name, a.Enabled, rev})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func automationToggleCmd(use string, enabled bool) *cobra.Command {
	short := "Enable an automation"
	if !enabled {
		short = "Disable an automation"
	}
	return &cobra.Command{
		Use:   use + " <automation-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.SetAutomationEnabled(ctx, args[0], enabled, viper.GetString("actor-id"))
			})
		},
	}
}

// --- runs ---

func runCmd() *cobra.Command {
	run := &cobra.Command{Use: "run", Short: "Inspect automation runs"}
	run.AddCommand(&cobra.Command{
		Use:   "list <automation-id>",
		Short: "List runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRuns(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Version", "Model", "Created"})
				for _, ar := range items {
					tw.AppendRow(table.Row{ar.ID, ar.Status, ar.VersionID, ar.ModelID, ar.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	run.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show run with its function runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				ar, err := r.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(ar)
			})
		},
	})
	return run
}

// --- check ---

func checkCmd() *cobra.Command {
	var scope, workspaceID, projectID, userID string
	cmd := &cobra.Command{
		Use:   "check <action>",
		Short: "Evaluate a capability check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				userID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				action := authz.Action(args[0])
				var res authz.Result
				var err error
				switch scope {
				case "server":
					res, err = e.CheckServer(ctx, userID, action)
				case "workspace":
					res, err = e.CheckWorkspace(ctx, userID, workspaceID, action)
				case "project":
					res, err = e.CheckProject(ctx, userID, projectID, action)
				default:
					return fmt.Errorf("unknown --scope %q", scope)
				}
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "project", "check scope (server|workspace|project)")
	cmd.Flags().StringVar(&workspaceID, "workspace-id", "", "workspace id")
	cmd.Flags().StringVar(&projectID, "project-id", "", "project id")
	cmd.Flags().StringVar(&userID, "user-id", "", "subject user (defaults to actor)")
	return cmd
}

// --- event log ---

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	var limit int
	var projectID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.TailEvents(ctx, limit, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 50, "number of events")
	tail.Flags().StringVar(&projectID, "project-id", "", "filter by project")
	logRoot.AddCommand(tail)
	return logRoot
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			secret := cfg.Auth.JWTSecret
			if env := os.Getenv("RUNLINE_JWT_SECRET"); env != "" {
				secret = env
			}
			if secret == "" {
				return fmt.Errorf("jwt secret required: set auth.jwt_secret or RUNLINE_JWT_SECRET")
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:     secret,
					DevLogin:      cfg.Auth.DevLogin,
					TokenTTLHours: cfg.Auth.TokenTTLHours,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Runline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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
