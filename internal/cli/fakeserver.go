package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mobilebackend/cloudbackend.go/internal/fakebackend"
)

func NewFakeServerCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "fake-server",
		Short: "Run an in-memory backend with a push endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runFakeServer(ctx, cmd, rootOpts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}

func runFakeServer(ctx context.Context, cmd *cobra.Command, opts *RootOptions, addr string) error {
	logger := opts.Logger()
	srv := fakebackend.NewServer(addr, fakebackend.NewStore(logger), logger)
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "endpoint %s\npush %s\n", srv.URL(), srv.PushURL())

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
