package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var needCmd = &cobra.Command{
	Use:   "need",
	Short: "Manage needs",
}

var needAddCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Store a need for a user",
	Args:  cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		addNeed(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(needCmd)
	needCmd.AddCommand(needAddCmd)

	needAddCmd.Flags().StringP("user", "u", "", "user id the need belongs to")
	needAddCmd.MarkFlagRequired("user")
}

func addNeed(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	logger, config := setup()

	user, _ := cmd.Flags().GetString("user")
	text := strings.Join(args, " ")

	engine, release, err := buildEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the matching engine", zap.Error(err))
	}
	defer release()

	entry, err := engine.SubmitNeed(ctx, user, text)
	if err != nil {
		logger.Fatal("storing the need", zap.Error(err))
	}

	logger.Info("need stored", zap.String("id", entry.ID), zap.String("user", entry.OwnerID))
	fmt.Fprintln(cmd.OutOrStdout(), entry.ID)
}
