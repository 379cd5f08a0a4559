package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/studio/cmd/studio/chat"
	clearcmder "github.com/papercomputeco/studio/cmd/studio/clear"
	exportcmder "github.com/papercomputeco/studio/cmd/studio/export"
	historycmder "github.com/papercomputeco/studio/cmd/studio/history"
)

const rootLongDesc string = `studio is a terminal chat client for OpenAI-compatible completion APIs.

Conversations stream token by token, survive restarts and can be exported.
Point it at the studio proxy, which holds the API credential.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "studio",
		Short:        "Terminal chat client",
		Long:         rootLongDesc,
		SilenceUsage: true,
	}

	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(exportcmder.NewExportCmd())
	cmd.AddCommand(clearcmder.NewClearCmd())

	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
