// Command postd serves the create and list API over HTTP.
//
//	postd --config /etc/postledger/postd.yaml
//	postd --cas-backend localfs --localfs-dir /var/lib/postledger/cas
//
// Flags override the matching config keys. CAS backend flags are used only
// when the config file names no CAS backends.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"xdao.co/postledger/config"
	"xdao.co/postledger/httpapi"
	"xdao.co/postledger/internal/logging"
	"xdao.co/postledger/storage/casconfig"
	"xdao.co/postledger/storage/casregistry"

	_ "xdao.co/postledger/storage/gateway"
	_ "xdao.co/postledger/storage/grpccas"
	_ "xdao.co/postledger/storage/ipfs"
	_ "xdao.co/postledger/storage/localfs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type flags struct {
	configPath   string
	listen       string
	logLevel     string
	logFormat    string
	casBackend   string
	listBackends bool
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	var f flags
	fs := newFlagSet(&f, errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if f.listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg, err := buildConfig(f, fs)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	comp, err := config.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("open components")
		return 1
	}
	defer func() {
		if err := comp.Close(); err != nil {
			logger.Warn().Err(err).Msg("close components")
		}
	}()

	api := httpapi.New(comp.Service, httpapi.Options{MaxBodyBytes: cfg.MaxBodyBytes})
	api.SetLogger(logger.With().Str("component", "http").Logger())
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", cfg.Listen).Msg("postd listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("serve")
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
		return 1
	}
	return 0
}

func newFlagSet(f *flags, errOut io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("postd", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.listen, "listen", "", "HTTP listen address (overrides config)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (overrides config)")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: json|console (overrides config)")
	fs.StringVar(&f.casBackend, "cas-backend", "localfs", "CAS backend when the config names none")
	fs.BoolVar(&f.listBackends, "list-backends", false, "List supported CAS backends and exit")
	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)
	return fs
}

// buildConfig loads the config file (or the defaults), applies flag
// overrides and fills the CAS section from backend flags if it is empty.
func buildConfig(f flags, fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Read(f.configPath); err != nil {
			return cfg, err
		}
	}
	if f.listen != "" {
		cfg.Listen = f.listen
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}
	if len(cfg.CAS.Backends) == 0 {
		m, err := casregistry.FlagConfig(f.casBackend, casregistry.UsageDaemon, fs)
		if err != nil {
			return cfg, err
		}
		cfg.CAS.Backends = []casconfig.BackendConfig{{Name: f.casBackend, Config: m}}
	}
	return cfg, cfg.Validate()
}
