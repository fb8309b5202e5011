package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/planetterp/planetterp/internal/application"
	"github.com/planetterp/planetterp/internal/checks"
	"github.com/planetterp/planetterp/internal/config"
	"github.com/planetterp/planetterp/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "planetterp: %v\n", err)
		os.Exit(1)
	}
}

// run parses args and executes the selected command, writing command output to stdout.
func run(args []string, stdout io.Writer) error {
	kingpinApp := kingpin.New("planetterp", "PlanetTerp web server and management commands").Writer(stdout)
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	envFile := kingpinApp.Flag("env-file", "Path to the .env file seeding the environment").String()
	baseDir := kingpinApp.Flag("base-dir", "Project directory relative paths resolve against").String()
	var debugSet bool
	debug := kingpinApp.Flag("debug", "Run in debug mode").IsSetByUser(&debugSet).Bool()

	serveCmd := kingpinApp.Command("serve", "Run the HTTP server").Default()
	port := serveCmd.Flag("port", "HTTP port exposed by the service").String()
	rateLimitRPS := serveCmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurst := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	kingpinApp.Command("check", "Run the system checks and report problems")
	kingpinApp.Command("migrate", "Create the tables of the installed apps")

	collectCmd := kingpinApp.Command("collectstatic", "Copy static files into the static root")
	dryRun := collectCmd.Flag("dry-run", "List what would be copied without writing").Bool()
	clearRoot := collectCmd.Flag("clear", "Delete the static root before copying").Bool()

	superuserCmd := kingpinApp.Command("createsuperuser", "Create an active staff superuser")
	superuserName := superuserCmd.Flag("username", "Login name").Required().String()
	superuserEmail := superuserCmd.Flag("email", "Email address").String()
	superuserPassword := superuserCmd.Flag("password", "Password").Envar("PLANETTERP_SUPERUSER_PASSWORD").String()
	superuserSkip := superuserCmd.Flag("skip-validation", "Store the password without running the validators").Bool()

	changeCmd := kingpinApp.Command("changepassword", "Set a user's password")
	changeName := changeCmd.Arg("username", "Login name").Required().String()
	changePassword := changeCmd.Flag("password", "New password").Envar("PLANETTERP_NEW_PASSWORD").String()
	changeSkip := changeCmd.Flag("skip-validation", "Store the password without running the validators").Bool()

	testEmailCmd := kingpinApp.Command("sendtestemail", "Send a test message to check email delivery")
	testEmailTo := testEmailCmd.Arg("email", "Recipients").Strings()
	testEmailAdmins := testEmailCmd.Flag("admins", "Also send to ADMINS").Bool()

	kingpinApp.Command("diffsettings", "Show settings that differ from the defaults")
	kingpinApp.Command("clearsessions", "Delete expired sessions")

	command, err := kingpinApp.Parse(args)
	if err != nil {
		return err
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
		EnvFile:    *envFile,
	}
	if *baseDir != "" {
		overrides.BaseDir = baseDir
	}
	if debugSet {
		overrides.Debug = debug
	}
	if *port != "" {
		overrides.Port = port
	}
	if *rateLimitRPS >= 0 {
		overrides.RateLimitRPS = rateLimitRPS
	}
	if *rateLimitBurst >= 0 {
		overrides.RateLimitBurst = rateLimitBurst
	}

	settings, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(settings.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()
	cmd := commands{settings: settings, logger: logger, out: stdout}

	switch command {
	case serveCmd.FullCommand():
		return cmd.serve()
	case "check":
		return cmd.check()
	case "migrate":
		return cmd.migrate(ctx)
	case collectCmd.FullCommand():
		return cmd.collectStatic(ctx, *dryRun, *clearRoot)
	case superuserCmd.FullCommand():
		return cmd.createSuperuser(ctx, *superuserName, *superuserEmail, *superuserPassword, *superuserSkip)
	case changeCmd.FullCommand():
		return cmd.changePassword(ctx, *changeName, *changePassword, *changeSkip)
	case testEmailCmd.FullCommand():
		return cmd.sendTestEmail(ctx, *testEmailTo, *testEmailAdmins)
	case "diffsettings":
		return cmd.diffSettings()
	case "clearsessions":
		return cmd.clearSessions(ctx)
	}
	return fmt.Errorf("unknown command %q", command)
}

func (c commands) serve() error {
	issues := checks.Run(c.settings)
	logIssues(c.logger, issues)
	if err := issues.Err(); err != nil {
		return fmt.Errorf("system check failed: %w", err)
	}

	app, err := application.New(c.settings, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			c.logger.Warn("closing database failed", zap.Error(err))
		}
	}()

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	shutdown(app.Server(), c.settings.Server.ShutdownGracePeriod, c.logger)
	return nil
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}

func logIssues(logger *zap.Logger, issues checks.Issues) {
	for _, issue := range issues {
		fields := []zap.Field{zap.String("id", issue.ID), zap.String("hint", issue.Hint)}
		if issue.Level >= checks.Error {
			logger.Error(issue.Message, fields...)
			continue
		}
		logger.Warn(issue.Message, fields...)
	}
}
