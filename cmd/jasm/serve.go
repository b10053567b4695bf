package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/chazu/jasm/server"
)

// handleLSPCommand runs the language server on stdio.
func handleLSPCommand(e *env, args []string) error {
	fs := flag.NewFlagSet("lsp", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts, err := e.assemblerOptions()
	if err != nil {
		return err
	}
	res, err := e.resolver(nil)
	if err != nil {
		return err
	}
	return server.NewLSP(res, opts).Run()
}

// handleServeCommand runs the assembly service until interrupted.
func handleServeCommand(e *env, args []string) error {
	addr := ":4568"
	if e.m != nil {
		addr = e.m.Server.Addr
	}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.StringVar(&addr, "addr", addr, "Connect/gRPC-over-HTTP `address`")
	grpcAddr := fs.String("grpc", "", "Also serve native gRPC on `address`")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts, err := e.assemblerOptions()
	if err != nil {
		return err
	}
	res, err := e.resolver(nil)
	if err != nil {
		return err
	}

	srv := server.New(res, opts)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 2)
	if *grpcAddr != "" {
		ln, err := net.Listen("tcp", *grpcAddr)
		if err != nil {
			srv.Stop()
			return fmt.Errorf("grpc listener: %w", err)
		}
		gs := srv.Service().NewGRPCServer()
		defer gs.GracefulStop()
		log.Infof("native gRPC listening on %s", ln.Addr())
		go func() { errc <- gs.Serve(ln) }()
	}
	go func() { errc <- srv.ListenAndServe(addr) }()

	select {
	case <-ctx.Done():
		log.Infof("shutting down")
		srv.Stop()
		return nil
	case err := <-errc:
		srv.Stop()
		return err
	}
}
