package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jzx17/goretry/internal/remote"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <status>",
	Short: "Call the endpoint once without retries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("status must be an integer: %w", err)
		}

		client := remote.NewClient(appConfig.Endpoint.BaseURL, appConfig.Endpoint.Timeout, logger)
		value, err := client.Fetch(cmd.Context(), status)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}
