package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/marmos91/dittomx/internal/logger"
	"github.com/marmos91/dittomx/pkg/adapter"
	"github.com/marmos91/dittomx/pkg/auth"
	"github.com/marmos91/dittomx/pkg/config"
	"github.com/marmos91/dittomx/pkg/server"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

const usage = `DittoMX - remote management server

Usage:
  dittomx <command> [flags]

Commands:
  start          Start the server
  init           Write a sample configuration file
  hash-password  Print the bcrypt hash of a password for auth.users
  version        Print version information

Run 'dittomx <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	case "hash-password":
		err = runHashPassword(os.Args[2:])
	case "version":
		fmt.Printf("dittomx %s (commit %s)\n", version, commit)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "Where to write the file (default: "+config.GetDefaultConfigPath()+")")
	force := fs.Bool("force", false, "Overwrite an existing file")
	_ = fs.Parse(args)

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.InitConfig(*force); err != nil {
			return err
		}
	} else if err := config.InitConfigToPath(path, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func runHashPassword(args []string) error {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	_ = fs.Parse(args)

	password, err := readPassword()
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("empty password")
	}

	hash, err := auth.HashPassword(password, *cost)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

// readPassword prompts without echo on a terminal and reads one line
// from stdin otherwise.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to configure log output: %w", err)
	}

	fmt.Println("DittoMX - Remote Management Server")
	logger.Info("Version %s (commit %s)", version, commit)
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registryResult, err := config.InitializeRegistry(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	defer func() {
		if err := registryResult.Close(); err != nil {
			logger.Error("Failed to close attribute store: %v", err)
		}
	}()
	logger.Info("Registry ready: %d object(s), attribute store %s",
		registryResult.Registry.ObjectCount(ctx), cfg.Registry.Store.Type)

	authenticator, err := config.CreateAuthenticator(&cfg.Auth)
	if err != nil {
		return err
	}

	metricsResult := config.InitializeMetrics(cfg)

	srv := server.New(adapter.Backends{
		Registry:      registryResult.Registry,
		Authenticator: authenticator,
		Observer:      registryResult.Server,
	})
	srv.SetStopTimeout(cfg.Server.ShutdownTimeout)
	srv.SetMetricsServer(metricsResult.Server)

	adapters, err := config.CreateAdapters(cfg, metricsResult.MXMetrics)
	if err != nil {
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return fmt.Errorf("failed to add %s adapter: %w", a.Protocol(), err)
		}
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}
