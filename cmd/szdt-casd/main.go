package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"xdao.co/szdt/storage"
	"xdao.co/szdt/storage/casconfig"
	"xdao.co/szdt/storage/casregistry"
	"xdao.co/szdt/storage/grpccas"

	_ "xdao.co/szdt/storage/ipfs"
	_ "xdao.co/szdt/storage/localfs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run serves until ctx is cancelled.
func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	return serve(ctx, args, out, errOut, nil)
}

// serve is run with a channel that receives the bound listen address once
// the listener is open.
func serve(ctx context.Context, args []string, out, errOut io.Writer, ready chan<- string) int {
	fs := pflag.NewFlagSet("szdt-casd", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "CAS backend name")
	configPath := fs.String("storage-config", "", "YAML file listing backends (overrides --backend)")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	debug := fs.Bool("debug", false, "Debug logging")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(errOut, &slog.HandlerOptions{Level: level}))

	cas, closeFn, err := openCAS(*configPath, *backend)
	if err != nil {
		logger.Error("open CAS", "backend", *backend, "error", err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", *listen)
	if err != nil {
		logger.Error("listen", "address", *listen, "error", err)
		return 1
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas, Logger: logger})

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		s.GracefulStop()
	}()

	logger.Info("listening", "address", lis.Addr().String(), "backend", *backend)
	if ready != nil {
		ready <- lis.Addr().String()
	}
	if err := s.Serve(lis); err != nil {
		logger.Error("serve", "error", err)
		return 1
	}
	return 0
}

func openCAS(configPath, backend string) (storage.CAS, func() error, error) {
	if configPath == "" {
		return casregistry.Open(backend, casregistry.UsageDaemon)
	}
	cfg, err := casconfig.LoadFile(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg.Open(casregistry.UsageDaemon, "")
}
