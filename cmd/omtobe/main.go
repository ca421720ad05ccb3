package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"omtobe/internal/app"
	"omtobe/internal/config"
	"omtobe/internal/db"
	"omtobe/internal/engine"
	"omtobe/internal/engine/auth"
	"omtobe/internal/sources/gcal"
)

var rootCmd = &cobra.Command{
	Use:   "omtobe",
	Short: "Omtobe CLI",
	Long: `Omtobe runs a 7-day cycle that puts a brake screen in front of high-stakes
calendar events when heart rate variability drops below baseline.
- Days 1-2 (Total Silence): the brake never shows.
- Days 3-6 (Decision Gate): the brake shows when HRV is 15% under the 7-day baseline during a high-stakes event.
- Day 7 (Reflection): one question at 09:00 local time; answering it starts the next cycle.
Proceed locks the brake for the rest of the cycle; Delay starts a 20 minute cooling period.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
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
	viper.SetEnvPrefix("OMTOBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("user", "u", "", "user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(stateCmd())
	rootCmd.AddCommand(decideCmd())
	rootCmd.AddCommand(reflectCmd())
	rootCmd.AddCommand(cycleCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default omtobe.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check that omtobe.yml exists and is valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws := viper.GetString("workspace")
			if _, err := config.Load(ws); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ok\n", config.Path(ws))
			return nil
		},
	})
	return cfg
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage users"}
	usr.AddCommand(userCreateCmd())
	usr.AddCommand(userShowCmd())
	usr.AddCommand(userListCmd())
	usr.AddCommand(userConnectCmd())
	usr.AddCommand(userCalendarLinkCmd())
	return usr
}

func userCreateCmd() *cobra.Command {
	var opts engine.CreateUserOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user and start their first cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ID == "" {
				opts.ID = viper.GetString("user")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				fmt.Printf("Created user %s (%s, %s)\n", u.ID, u.Email, u.Timezone)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "user id (generated when empty)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Timezone, "timezone", "UTC", "IANA timezone for the day 7 reflection")
	cmd.Flags().StringVar(&opts.HealthKitToken, "healthkit-token", "", "HealthKit access token")
	cmd.Flags().StringVar(&opts.CalendarToken, "calendar-token", "", "calendar access token or oauth2 token JSON")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [user-id]",
		Short: "Show a user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.GetUser(ctx, auth.System, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Timezone", "HealthKit", "Calendar"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Email, u.Timezone, u.HealthKitToken != "", u.CalendarToken != ""})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func userConnectCmd() *cobra.Command {
	var healthKit, calendar string
	cmd := &cobra.Command{
		Use:   "connect [user-id]",
		Short: "Store HealthKit and calendar tokens",
		Long:  "Only flags that are passed are changed; pass an empty value to disconnect a source.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(args)
			if err != nil {
				return err
			}
			var hk, cal *string
			if cmd.Flags().Changed("healthkit-token") {
				hk = &healthKit
			}
			if cmd.Flags().Changed("calendar-token") {
				cal = &calendar
			}
			if hk == nil && cal == nil {
				return fmt.Errorf("pass --healthkit-token and/or --calendar-token")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.ConnectSources(ctx, auth.System, userID, hk, cal)
				if err != nil {
					return err
				}
				fmt.Printf("User %s: healthkit connected=%t calendar connected=%t\n", u.ID, u.HealthKitToken != "", u.CalendarToken != "")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&healthKit, "healthkit-token", "", "HealthKit access token")
	cmd.Flags().StringVar(&calendar, "calendar-token", "", "calendar access token or oauth2 token JSON")
	return cmd
}

// userCalendarLinkCmd runs the Google OAuth consent flow: without --code it
// prints the consent URL, with --code it stores the exchanged token.
func userCalendarLinkCmd() *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "calendar-link [user-id]",
		Short: "Link a Google Calendar through OAuth",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(args)
			if err != nil {
				return err
			}
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cfg.Sources.Calendar.ClientID == "" {
				return fmt.Errorf("sources.calendar.client_id is not configured")
			}
			oauth := gcal.NewOAuthClient(gcal.OAuthConfig{
				ClientID:     cfg.Sources.Calendar.ClientID,
				ClientSecret: cfg.Sources.Calendar.ClientSecret,
				RedirectURL:  cfg.Sources.Calendar.RedirectURL,
			})
			if code == "" {
				fmt.Println("Open this URL, approve access, then rerun with --code:")
				fmt.Println(oauth.AuthURL(userID))
				return nil
			}
			tok, err := oauth.Exchange(cmd.Context(), code)
			if err != nil {
				return fmt.Errorf("exchange code: %w", err)
			}
			raw, err := json.Marshal(tok)
			if err != nil {
				return err
			}
			stored := string(raw)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.ConnectSources(ctx, auth.System, userID, nil, &stored); err != nil {
					return err
				}
				fmt.Printf("Linked calendar for %s\n", userID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code from the consent screen")
	return cmd
}

func keyCmd() *cobra.Command {
	key := &cobra.Command{Use: "key", Short: "Manage API keys"}

	var name string
	var roles []string
	create := &cobra.Command{
		Use:   "create [user-id]",
		Short: "Issue an API key (shown once)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				k, err := e.CreateAPIKey(ctx, auth.System, userID, name, roles)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(k)
				}
				fmt.Printf("Key %s for %s:\n%s\n", k.ID, userID, k.Key)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	create.Flags().StringSliceVar(&roles, "role", nil, "role granted to the key (repeatable)")

	list := &cobra.Command{
		Use:   "list [user-id]",
		Short: "List API keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, auth.System, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Roles", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, strings.Join(k.Roles, ","), k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(nil)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteAPIKey(ctx, auth.System, userID, args[0]); err != nil {
					return err
				}
				fmt.Println("Deleted", args[0])
				return nil
			})
		},
	}

	key.AddCommand(create, list, del)
	return key
}

// resolveUser takes the user id from the first argument or the --user flag.
func resolveUser(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	if u := strings.TrimSpace(viper.GetString("user")); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("user id required (argument, --user or OMTOBE_USER)")
}

// withEngine opens the workspace and runs fn as the local operator.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	conn, cfg, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	e, cleanup, err := app.BuildEngine(ctx, conn, cfg, nil)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, e)
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
