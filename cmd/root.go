package cmd

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/abhisek/sqltutor/internal/catalog"
	"github.com/abhisek/sqltutor/internal/logger"
	"github.com/abhisek/sqltutor/internal/mastery"
	"github.com/abhisek/sqltutor/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "sqltutor",
	Short: "Adaptive SQL practice in the terminal",
	Long: "sqltutor serves SQL practice questions, grades free-text answers and tracks\n" +
		"per-subtopic mastery, steering each next question toward your weak concepts.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPractice(cmd, args)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("db", "", "Path to SQLite database file (overrides SQLTUTOR_DB)")
	pf.String("catalog", "", "Path to a catalog file, JSON or YAML (overrides SQLTUTOR_CATALOG; default: built-in SQL joins)")
	pf.String("log", "", "Log mode: dev, prod, warn or off (overrides SQLTUTOR_LOG)")
	pf.StringP("student", "s", "", "Student id (overrides SQLTUTOR_STUDENT; default: current user)")

	rootCmd.AddCommand(practiceCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// flagOrEnv returns the flag value, then the environment variable.
func flagOrEnv(cmd *cobra.Command, flag, env string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	return os.Getenv(env)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then SQLTUTOR_DB env var, then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}

func resolveStudent(cmd *cobra.Command) string {
	if id := flagOrEnv(cmd, "student", "SQLTUTOR_STUDENT"); id != "" {
		return id
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "default"
}

func loadCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	if p := flagOrEnv(cmd, "catalog", "SQLTUTOR_CATALOG"); p != "" {
		return catalog.LoadFile(p)
	}
	return catalog.Default()
}

// env is the shared wiring of every command that touches student data.
type env struct {
	store   *store.Store
	log     *logger.Logger
	catalog *catalog.Catalog
	mastery *mastery.Service
}

func openEnv(cmd *cobra.Command) (*env, error) {
	log, err := logger.New(flagOrEnv(cmd, "log", "SQLTUTOR_LOG"))
	if err != nil {
		return nil, err
	}

	cat, err := loadCatalog(cmd)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Debug("database opened", "path", dbPath)

	return &env{
		store:   st,
		log:     log,
		catalog: cat,
		mastery: mastery.NewService(cat, st.ProfileRepo(), st.EventRepo(), log),
	}, nil
}

func (e *env) Close() {
	e.log.Sync()
	e.store.Close()
}
