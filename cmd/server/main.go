// Package main provides the hospital operations dashboard server entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yourorg/opsboard/internal/version"
	"github.com/yourorg/opsboard/pkg/alerts"
	"github.com/yourorg/opsboard/pkg/api"
	"github.com/yourorg/opsboard/pkg/auth"
	"github.com/yourorg/opsboard/pkg/bottleneck"
	"github.com/yourorg/opsboard/pkg/dashboard"
	"github.com/yourorg/opsboard/pkg/db"
	"github.com/yourorg/opsboard/pkg/events"
	"github.com/yourorg/opsboard/pkg/workflow"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "opsboard",
		Short: "Hospital Operations Dashboard",
		Long:  `Backend for hospital workflow tracking, incident reporting and bottleneck analysis.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/opsboard/")
	}

	viper.SetEnvPrefix("OPSBOARD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and seed reference data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrations()
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect-bottlenecks",
	Short: "Run bottleneck detection once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDetection()
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate-rules",
	Short: "Evaluate all active alert rules once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRuleEvaluation()
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Record today's daily statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSnapshot()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version: %s\n", version.Version)
		fmt.Printf("Commit: %s\n", version.Commit)
		fmt.Printf("Build Date: %s\n", version.BuildDate)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func databaseConfig() *db.Config {
	dbConfig := &db.Config{
		Host:            viper.GetString("database.host"),
		Port:            viper.GetInt("database.port"),
		User:            viper.GetString("database.user"),
		Password:        viper.GetString("database.password"),
		Database:        viper.GetString("database.name"),
		MaxOpenConns:    viper.GetInt("database.max_open_conns"),
		MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
		LogLevel:        viper.GetString("database.log_level"),
	}

	if dbConfig.Host == "" {
		dbConfig.Host = "localhost"
	}
	if dbConfig.Port == 0 {
		dbConfig.Port = 3306
	}
	if dbConfig.User == "" {
		dbConfig.User = "root"
	}
	if dbConfig.Database == "" {
		dbConfig.Database = "opsboard"
	}

	return dbConfig
}

func runServer() error {
	logger, err := createLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting dashboard server",
		zap.String("version", version.Version))

	database, err := db.NewConnection(databaseConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(database, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := db.SeedReferenceData(database, logger); err != nil {
		return fmt.Errorf("failed to seed reference data: %w", err)
	}

	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		jwtSecret = "default-secret-change-in-production"
		logger.Warn("using default JWT secret, change in production!")
	}

	jwtManager := auth.NewJWTManager(
		jwtSecret,
		viper.GetString("auth.issuer"),
		viper.GetDuration("auth.token_expiry"),
	)
	authMiddleware := auth.NewMiddleware(jwtManager, database, logger)

	engine := workflow.NewEngine(database, logger)
	eventManager := events.NewManager(database, logger)
	analyzer := bottleneck.NewAnalyzer(database, logger)
	alertManager := alerts.NewManager(database, logger, nil)
	ruleEngine := alerts.NewRuleEngine(database, logger, alertManager)
	aggregator := dashboard.NewAggregator(database, logger)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = viper.GetString("server.host")
	serverConfig.Port = viper.GetInt("server.port")
	serverConfig.Debug = viper.GetBool("server.debug")

	if serverConfig.Host == "" {
		serverConfig.Host = "0.0.0.0"
	}
	if serverConfig.Port == 0 {
		serverConfig.Port = 8080
	}

	server := api.NewServer(serverConfig, &api.Dependencies{
		DB:             database,
		Logger:         logger,
		AuthMiddleware: authMiddleware,
		Engine:         engine,
		EventManager:   eventManager,
		Analyzer:       analyzer,
		AlertManager:   alertManager,
		RuleEngine:     ruleEngine,
		Aggregator:     aggregator,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()

		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown server", zap.Error(err))
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return nil
	}
}

func runMigrations() error {
	logger, err := createLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	database, err := db.NewConnection(databaseConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(database, logger); err != nil {
		return err
	}
	return db.SeedReferenceData(database, logger)
}

func runDetection() error {
	logger, err := createLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	database, err := db.NewConnection(databaseConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	analyzer := bottleneck.NewAnalyzer(database, logger)
	findings, err := analyzer.Detect(context.Background(), bottleneck.DetectOptions{
		WindowDays: viper.GetInt("bottleneck.window_days"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Detected %d bottlenecks\n", len(findings))
	return nil
}

func runRuleEvaluation() error {
	logger, err := createLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	database, err := db.NewConnection(databaseConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	alertManager := alerts.NewManager(database, logger, nil)
	ruleEngine := alerts.NewRuleEngine(database, logger, alertManager)

	raised, err := ruleEngine.EvaluateAll(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Raised %d alerts\n", raised)
	return nil
}

func runSnapshot() error {
	logger, err := createLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	database, err := db.NewConnection(databaseConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	aggregator := dashboard.NewAggregator(database, logger)
	return aggregator.Snapshot(context.Background())
}

func createLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	if viper.GetBool("logging.development") {
		config = zap.NewDevelopmentConfig()
	}

	level := viper.GetString("logging.level")
	if level != "" {
		var zapLevel zapcore.Level
		if err := zapLevel.UnmarshalText([]byte(level)); err == nil {
			config.Level.SetLevel(zapLevel)
		}
	}

	return config.Build()
}
