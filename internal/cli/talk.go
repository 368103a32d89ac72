package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mobilebackend/cloudbackend.go"
	"github.com/mobilebackend/cloudbackend.go/pkg/models"
)

// offlineMessages is how many missed messages a topic replays on listen.
const offlineMessages = 50

func NewTalkCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "talk",
		Short: "Hashtag chat over cloud messages",
	}
	cmd.AddCommand(newTalkListenCommand(rootOpts))
	cmd.AddCommand(newTalkPostCommand(rootOpts))
	return cmd
}

func newTalkListenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen <#tag>...",
		Short: "Print messages posted to the hashtags, starting with missed ones",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, tag := range args {
				if !strings.HasPrefix(tag, "#") || len(tag) < 2 {
					return fmt.Errorf("invalid hashtag %q", tag)
				}
			}
			return runTalkListen(cmd, rootOpts, args)
		},
	}
}

func runTalkListen(cmd *cobra.Command, opts *RootOptions, tags []string) error {
	cl, err := newClient(opts.Config, opts.Logger())
	if err != nil {
		return err
	}
	defer cl.Close(context.WithoutCancel(cmd.Context()))
	if !cl.canPush() {
		return errNoPush
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	for _, tag := range tags {
		handler := cloudbackend.HandlerFuncs[[]*models.Entity]{
			Complete: func(messages []*models.Entity) {
				for _, m := range messages {
					fmt.Fprintf(out, "[%s] %s\n", tag, formatPost(m))
				}
			},
			Error: func(err error) {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %v\n", tag, err)
			},
		}
		if _, err := cl.messaging.Subscribe(tag, handler, offlineMessages); err != nil {
			return err
		}
	}

	if err := cl.loop.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func newTalkPostCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "post <message>",
		Short: "Send the message to every #tag it mentions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags := hashtags(args[0])
			if len(tags) == 0 {
				return fmt.Errorf("message mentions no #tag")
			}

			cl, err := newClient(rootOpts.Config, rootOpts.Logger())
			if err != nil {
				return err
			}
			defer cl.Close(context.WithoutCancel(cmd.Context()))

			for _, tag := range tags {
				f, err := cl.messaging.Send(cl.messaging.CreateMessage(tag).Put(PropMessage, args[0]), nil)
				if err != nil {
					return err
				}
				if _, err := await(cmd.Context(), cl.loop, f); err != nil {
					return fmt.Errorf("sending to %s: %w", tag, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", tag)
			}
			return nil
		},
	}
}
