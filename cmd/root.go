package cmd

import (
	"context"
	"os"
	"strings"
	"time"

	coreconfig "github.com/castrel/postflow/core/config"
	coreDB "github.com/castrel/postflow/core/database"
	"github.com/castrel/postflow/infrastructure/valkey"
	"github.com/castrel/postflow/pkg/postworker"
	"github.com/castrel/postflow/pkg/utils"
	"github.com/castrel/postflow/scheduling/application"
	"github.com/castrel/postflow/scheduling/repository"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

var (
	// Flag overrides
	flagPort      string
	flagDebug     bool
	flagBasicAuth []string
	flagBasePath  string
	flagProxies   []string
	flagDBDriver  string
	flagDBName    string
	flagWorkers   int
	flagQueueSize int

	// Shared application components, wired in initApp
	db              *gorm.DB
	store           *repository.Store
	vkClient        *valkey.Client
	publishPool     *postworker.Pool
	scheduleService *application.ScheduleService
	dispatcher      *application.Dispatcher
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "postflow",
	Short: "Social post scheduling engine",
	Long: `Postflow keeps a per-user posting cadence and a backlog of pending posts,
re-sequencing the backlog whenever the cadence changes and publishing posts
when their slot comes due.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig, initApp)
}

// initEnvConfig lets viper-visible environment variables override defaults.
func initEnvConfig() {
	viper.AutomaticEnv()
	if envPort := viper.GetString("app_port"); envPort != "" && flagPort == "" {
		flagPort = envPort
	}
	if viper.GetBool("app_debug") {
		flagDebug = true
	}
	if envBasicAuth := viper.GetString("app_basic_auth"); envBasicAuth != "" && len(flagBasicAuth) == 0 {
		flagBasicAuth = strings.Split(envBasicAuth, ",")
	}
}

func initFlags() {
	rootCmd.PersistentFlags().StringVarP(
		&flagPort,
		"port", "p",
		"",
		"change port number with --port <number> | example: --port=8080",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&flagDebug,
		"debug", "d",
		false,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&flagBasicAuth,
		"basic-auth", "b",
		nil,
		"basic auth credential | -b=yourUsername:yourPassword",
	)
	rootCmd.PersistentFlags().StringVarP(
		&flagBasePath,
		"base-path", "",
		"",
		`base path for subpath deployment --base-path <string> | example: --base-path="/postflow"`,
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&flagProxies,
		"trusted-proxies", "",
		nil,
		`trusted proxy IP ranges for reverse proxy deployments --trusted-proxies <string> | example: --trusted-proxies="10.0.0.0/8,172.16.0.0/12"`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&flagDBDriver,
		"db-driver", "",
		"",
		`database driver, sqlite or postgres --db-driver <string> | example: --db-driver="postgres"`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&flagDBName,
		"db-name", "",
		"",
		`database name (file path for sqlite) --db-name <string> | example: --db-name="storages/postflow.db"`,
	)
	rootCmd.PersistentFlags().IntVarP(
		&flagWorkers,
		"publish-workers", "",
		0,
		`number of concurrent publish workers --publish-workers <number> | example: --publish-workers=30 (default: 20)`,
	)
	rootCmd.PersistentFlags().IntVarP(
		&flagQueueSize,
		"publish-queue-size", "",
		0,
		`queue size per publish worker --publish-queue-size <number> | example: --publish-queue-size=1500 (default: 1000)`,
	)
}

func initApp() {
	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	// Flag overrides win over environment defaults
	if flagPort != "" {
		cfg.App.Port = flagPort
	}
	if flagDebug {
		cfg.App.Debug = true
	}
	if len(flagBasicAuth) > 0 {
		cfg.App.BasicAuth = flagBasicAuth
	}
	if flagBasePath != "" {
		cfg.App.BasePath = flagBasePath
	}
	if len(flagProxies) > 0 {
		cfg.App.TrustedProxies = flagProxies
	}
	if flagDBDriver != "" {
		cfg.Database.Driver = flagDBDriver
	}
	if flagDBName != "" {
		cfg.Database.Name = flagDBName
	}
	if flagWorkers > 0 {
		cfg.WorkerPool.Size = flagWorkers
	}
	if flagQueueSize > 0 {
		cfg.WorkerPool.QueueSize = flagQueueSize
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := utils.CreateFolder(cfg.Paths.Storages); err != nil {
		logrus.Errorln(err)
	}

	db, err = coreDB.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("failed to open database: %v", err)
	}

	store = repository.NewStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		logrus.Fatalf("failed to migrate schema: %v", err)
	}

	if cfg.Database.ValkeyEnabled {
		vkClient, err = valkey.NewClient(valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.Warnf("[VALKEY] unavailable, continuing without distributed locks: %v", err)
			vkClient = nil
		}
	}

	publishPool = postworker.NewPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize)

	coordinator := application.NewCoordinator(store)

	opts := []application.Option{}
	if vkClient != nil {
		opts = append(opts,
			application.WithDistributedLocker(vkClient),
			application.WithDispatchNotifier(vkClient),
		)
	}
	scheduleService = application.NewScheduleService(store, store, coordinator, opts...)

	dispatcher = application.NewDispatcher(store, publishPool, application.LogPublisher{},
		cfg.Scheduler.DispatchBatchSize, cfg.Scheduler.SafetyTickInterval)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp performs a clean shutdown of the worker pool and connections.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	if publishPool != nil {
		publishPool.Stop()
	}
	if vkClient != nil {
		vkClient.Close()
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
