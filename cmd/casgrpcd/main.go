// Command casgrpcd exposes one CAS backend over gRPC so postd instances can
// share it through the "grpc" backend.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"xdao.co/postledger/internal/logging"
	"xdao.co/postledger/storage/casregistry"
	"xdao.co/postledger/storage/grpccas"

	_ "xdao.co/postledger/storage/gateway"
	_ "xdao.co/postledger/storage/ipfs"
	_ "xdao.co/postledger/storage/localfs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil))
}

// run serves until ctx is done. ready, when set, receives the bound address.
func run(ctx context.Context, args []string, out, errOut io.Writer, ready chan<- string) int {
	fs := pflag.NewFlagSet("casgrpcd", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "CAS backend name")
	logLevel := fs.String("log-level", "info", "Log level")
	logFormat := fs.String("log-format", "json", "Log format: json|console")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Name == "grpc" {
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}
	logger, err := logging.New(*logLevel, *logFormat, errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if *backend == "grpc" {
		logger.Error().Msg("casgrpcd cannot proxy the grpc backend to itself")
		return 2
	}

	cas, closeFn, err := casregistry.Open(*backend, casregistry.UsageDaemon, fs)
	if err != nil {
		logger.Error().Err(err).Str("backend", *backend).Msg("open backend")
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Error().Err(err).Msg("listen")
		return 1
	}

	s := grpc.NewServer()
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	logger.Info().Str("listen", lis.Addr().String()).Str("backend", *backend).Msg("casgrpcd listening")
	if ready != nil {
		ready <- lis.Addr().String()
	}
	if err := s.Serve(lis); err != nil {
		logger.Error().Err(err).Msg("serve")
		return 1
	}
	return 0
}
