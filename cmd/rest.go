package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	coreconfig "github.com/castrel/postflow/core/config"
	"github.com/castrel/postflow/scheduling/adapter/rest"
	"github.com/castrel/postflow/scheduling/adapter/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the scheduling API over http",
	Long:  `Starts the REST API together with the background dispatcher that publishes posts when their slot comes due.`,
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	cfg := coreconfig.Global

	fiberConfig := fiber.Config{
		EnableTrustedProxyCheck: true,
		Network:                 "tcp",
		AppName:                 "Postflow Scheduling Engine",
		DisableStartupMessage:   false,
		ServerHeader:            "Hidden",
	}
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedHost
	}

	app := fiber.New(fiberConfig)

	// RequestID for audit trails
	app.Use(requestid.New())

	origins := strings.Join(cfg.App.CorsAllowedOrigins, ", ")
	if !strings.Contains(origins, cfg.App.BaseUrl) {
		origins += ", " + cfg.App.BaseUrl
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())

	app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            31536000,
		HSTSExcludeSubdomains: false,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	if cfg.App.Debug {
		app.Use(logger.New())
	}

	apiGroup := app.Group(cfg.App.BasePath + "/api")

	if len(cfg.App.BasicAuth) > 0 {
		account := make(map[string]string)
		for _, credential := range cfg.App.BasicAuth {
			ba := strings.Split(credential, ":")
			if len(ba) != 2 {
				logrus.Fatalln("Basic auth is not valid, please use the following format <user>:<secret>")
			}
			account[ba[0]] = ba[1]
		}
		apiGroup.Use(basicauth.New(basicauth.Config{
			Users: account,
			Next: func(c *fiber.Ctx) bool {
				// Allow CORS preflight without credentials.
				return c.Method() == fiber.MethodOptions
			},
		}))
	} else {
		logrus.Warn("[REST] APP_BASIC_AUTH not set, API is unauthenticated")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background subsystems: publish workers, dispatcher loop, wake signals.
	publishPool.Start(ctx)
	go dispatcher.Run(ctx)
	if vkClient != nil {
		go func() {
			if err := vkClient.SubscribeDispatch(ctx, dispatcher.Wake); err != nil {
				logrus.Warnf("[REST] dispatch subscription ended: %v", err)
			}
		}()
	}

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		cancel()
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
		StopApp()
	}()

	handler := rest.NewScheduleHandler(scheduleService, publishPool)
	handler.RegisterRoutes(apiGroup)

	// 404 handler scoped to the API group
	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}
}
