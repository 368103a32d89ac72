package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mobilebackend/cloudbackend.go"
	"github.com/mobilebackend/cloudbackend.go/pkg/models"
)

const guestbookPageSize = 50

func NewGuestbookCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guestbook",
		Short: "Read and sign the shared guestbook",
	}
	cmd.AddCommand(newGuestbookListCommand(rootOpts))
	cmd.AddCommand(newGuestbookPostCommand(rootOpts))
	return cmd
}

func newGuestbookListCommand(rootOpts *RootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest guestbook posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGuestbookList(cmd, rootOpts, watch)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep listening and print the list again on every change")
	return cmd
}

func runGuestbookList(cmd *cobra.Command, opts *RootOptions, watch bool) error {
	cl, err := newClient(opts.Config, opts.Logger())
	if err != nil {
		return err
	}
	defer cl.Close(context.WithoutCancel(cmd.Context()))

	out := cmd.OutOrStdout()
	if !watch {
		f, err := cl.async.ListByKind(KindGuestbook, models.PropCreatedAt, models.OrderDesc, guestbookPageSize, models.ScopePast, nil)
		if err != nil {
			return err
		}
		posts, err := await(cmd.Context(), cl.loop, f)
		if err != nil {
			return err
		}
		printPosts(out, posts)
		return nil
	}

	if !cl.canPush() {
		return errNoPush
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := cloudbackend.HandlerFuncs[[]*models.Entity]{
		Complete: func(posts []*models.Entity) {
			fmt.Fprintf(out, "-- %d posts\n", len(posts))
			printPosts(out, posts)
		},
		Error: func(err error) {
			fmt.Fprintf(cmd.ErrOrStderr(), "list failed: %v\n", err)
		},
	}
	if _, err := cl.async.ListByKind(KindGuestbook, models.PropCreatedAt, models.OrderDesc, guestbookPageSize, models.ScopeFutureAndPast, handler); err != nil {
		return err
	}
	if err := cl.loop.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func newGuestbookPostCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "post <message>",
		Short: "Sign the guestbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := newClient(rootOpts.Config, rootOpts.Logger())
			if err != nil {
				return err
			}
			defer cl.Close(context.WithoutCancel(cmd.Context()))

			f, err := cl.async.Insert(models.NewEntity(KindGuestbook).Put(PropMessage, args[0]), nil)
			if err != nil {
				return err
			}
			post, err := await(cmd.Context(), cl.loop, f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), post.ID)
			return nil
		},
	}
}
