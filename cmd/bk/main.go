package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"bk-go/internal/app"
	"bk-go/internal/bk"
	"bk-go/internal/config"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns --config when given, else the default location.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	defaults, err := app.GetDefaults()
	if err != nil {
		return "", fmt.Errorf("getting defaults: %w", err)
	}
	return defaults.ConfigPath, nil
}

// newApp reads the config and creates a BKApp. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "AddRoom", "CheckIn").
func newApp(ctx context.Context, operation string) (*app.BKApp, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}

	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	opts := app.Options{
		Operation:  operation,
		Passphrase: app.TerminalPassphrase(os.Stderr, false),
	}
	if verbose {
		opts.LogLevel = slog.LevelDebug
	}
	a, err := app.NewBKApp(ctx, cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func formatTimestamp(ms int64, loc *time.Location) string {
	return time.UnixMilli(ms).In(loc).Format("15:04:05")
}

var rootCmd = &cobra.Command{
	Use:           "bk",
	Short:         "Breakfast check-in keeper",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}

		cfg := config.NewConfig(defaults.BaseDir)

		storeType, _ := cmd.Flags().GetString("store")
		switch storeType {
		case "filesystem":
		case "sqlite":
			cfg.Store = config.StoreConfig{
				Type:       "sqlite",
				SQLitePath: filepath.Join(defaults.BaseDir, "bk.db"),
				OpTimeout:  cfg.Store.OpTimeout,
			}
		case "memory":
			cfg.Store = config.StoreConfig{Type: "memory"}
		default:
			return fmt.Errorf("store %q: edit the config file for postgres or s3", storeType)
		}

		encrypt, _ := cmd.Flags().GetBool("encrypt")
		if encrypt {
			cfg.Encryption.Type = "age"
		}

		if err := app.InitConfig(path, cfg, app.TerminalPassphrase(os.Stderr, true)); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Store:    %s\n", cfg.Store.Type)
		if encrypt {
			fmt.Printf("Keys:     %s\n", filepath.Dir(cfg.Encryption.PrivateKeyPath))
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		cfg, err := config.ReadFromFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Timezone:   %s\n", cfg.Timezone)
		fmt.Printf("Store:      %s\n", cfg.Store.Type)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		fmt.Printf("Server:     %s\n", cfg.Server.Addr)
		if cfg.Metrics.Enabled {
			fmt.Printf("Metrics:    %s\n", cfg.Metrics.Path)
		}
		return nil
	},
}

// room command
var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Manage rooms",
}

var roomAddCmd = &cobra.Command{
	Use:   "add ROOM...",
	Short: "Register rooms",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "AddRoom")
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			room, err := a.AddRoom(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("adding room %s: %w", id, err)
			}
			fmt.Printf("Added room %s\n", room.ID)
		}
		return nil
	},
}

var roomRenameCmd = &cobra.Command{
	Use:   "rename OLD NEW",
	Short: "Rename a room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "RenameRoom")
		if err != nil {
			return err
		}
		defer a.Close()

		room, err := a.RenameRoom(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("renaming room: %w", err)
		}
		fmt.Printf("Renamed room %s to %s\n", strings.TrimSpace(args[0]), room.ID)
		return nil
	},
}

var roomRmCmd = &cobra.Command{
	Use:   "rm ROOM",
	Short: "Remove a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "RemoveRoom")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RemoveRoom(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("removing room: %w", err)
		}
		fmt.Printf("Removed room %s\n", strings.TrimSpace(args[0]))
		return nil
	},
}

var roomLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List rooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListRooms")
		if err != nil {
			return err
		}
		defer a.Close()

		rooms, err := a.ListRooms(cmd.Context())
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			fmt.Println("No rooms registered.")
			return nil
		}
		for _, r := range rooms {
			fmt.Println(r.ID)
		}
		return nil
	},
}

// session command
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Breakfast sessions",
}

func printSession(s bk.Session, loc *time.Location) {
	fmt.Printf("%s  %d check-in(s)\n", s.Date, len(s.CheckIns))
	for _, c := range s.CheckIns {
		fmt.Printf("  %-8s %s\n", c.RoomNumber, formatTimestamp(c.Timestamp, loc))
	}
}

var sessionTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Open and show today's session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Today")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Today(cmd.Context())
		if err != nil {
			return err
		}
		printSession(s, a.Service().Location())
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show DATE",
	Short: "Show the session for a date (YYYY-MM-DD)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ShowSession")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.ShowSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printSession(s, a.Service().Location())
		return nil
	},
}

var sessionCheckInCmd = &cobra.Command{
	Use:   "checkin ROOM",
	Short: "Record a breakfast check-in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")

		a, err := newApp(cmd.Context(), "CheckIn")
		if err != nil {
			return err
		}
		defer a.Close()

		record, err := a.CheckIn(cmd.Context(), date, args[0])
		if errors.Is(err, bk.ErrDuplicateCheckIn) {
			return fmt.Errorf("room %s has already checked in", strings.TrimSpace(args[0]))
		}
		if err != nil {
			return fmt.Errorf("check-in: %w", err)
		}
		fmt.Printf("Checked in room %s at %s\n", record.RoomNumber, formatTimestamp(record.Timestamp, a.Service().Location()))
		return nil
	},
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions with check-ins",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListSessions")
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := a.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No check-ins recorded.")
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%s  %d\n", s.Date, len(s.CheckIns))
		}
		return nil
	},
}

// store command
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the record store",
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		cfg, err := config.ReadFromFile(path)
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		migrated, err := app.MigrateStore(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		if !migrated {
			fmt.Printf("Store type %s has no schema.\n", cfg.Store.Type)
			return nil
		}
		fmt.Println("Schema is up to date.")
		return nil
	},
}

// doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check indexes against stored records",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Doctor")
		if err != nil {
			return err
		}
		defer a.Close()

		reports, err := a.Doctor(cmd.Context())
		if err != nil {
			return err
		}
		clean := true
		for _, r := range reports {
			status := "ok"
			if !r.Clean() {
				status = "DRIFT"
				clean = false
			}
			fmt.Printf("%-8s %-14s %s\n", r.Kind, r.Index, status)
			for _, k := range r.Dangling {
				fmt.Printf("  dangling:  %s\n", k)
			}
			for _, k := range r.Unindexed {
				fmt.Printf("  unindexed: %s\n", k)
			}
			if !r.Scanned {
				fmt.Println("  store cannot be scanned; unindexed records not checked")
			}
		}
		if !clean {
			return errors.New("index drift found")
		}
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $"+app.ConfigPathEnv+" or ~/.config/bk.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug messages")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("store", "filesystem", "Store backend: filesystem, sqlite or memory")
	configInitCmd.Flags().Bool("encrypt", false, "Encrypt records at rest with age")

	// room subcommands
	roomCmd.AddCommand(roomAddCmd)
	roomCmd.AddCommand(roomRenameCmd)
	roomCmd.AddCommand(roomRmCmd)
	roomCmd.AddCommand(roomLsCmd)

	// session subcommands
	sessionCmd.AddCommand(sessionTodayCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionCheckInCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCheckInCmd.Flags().StringP("date", "d", "", "Session date (default today)")

	storeCmd.AddCommand(storeMigrateCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(roomCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(serveCmd)
}
