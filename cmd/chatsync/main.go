package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "Realtime chat message synchronization engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newTimelineCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "chatsync:", err)
		os.Exit(1)
	}
}
