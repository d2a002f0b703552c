package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/skillmatch/internal/profile"
)

var offerCmd = &cobra.Command{
	Use:   "offer",
	Short: "Manage offers",
}

var offerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Store the skills from a file as a user's offers",
	Run: func(cmd *cobra.Command, _ []string) {
		addOffers(cmd)
	},
}

func init() {
	rootCmd.AddCommand(offerCmd)
	offerCmd.AddCommand(offerAddCmd)

	offerAddCmd.Flags().StringP("user", "u", "", "user id the offers belong to")
	offerAddCmd.Flags().StringP("file", "f", "", "yaml or json file with a top-level skills list")
	offerAddCmd.MarkFlagRequired("user")
	offerAddCmd.MarkFlagRequired("file")
}

func addOffers(cmd *cobra.Command) {
	ctx := context.Background()

	logger, config := setup()

	user, _ := cmd.Flags().GetString("user")
	file, _ := cmd.Flags().GetString("file")

	skills, err := loadSkillsFile(file)
	if err != nil {
		logger.Fatal("reading skills", zap.String("file", file), zap.Error(err))
	}

	engine, release, err := buildEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the matching engine", zap.Error(err))
	}
	defer release()

	entries, err := engine.SubmitOffers(ctx, user, skills)
	if err != nil {
		logger.Fatal("storing offers", zap.Error(err))
	}

	for _, e := range entries {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.ID, e.SkillID)
	}
}

// loadSkillsFile reads a skills list with its own viper instance so the file
// does not leak into the application config.
func loadSkillsFile(path string) ([]*profile.Skill, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	raw := v.Get("skills")
	if raw == nil {
		return nil, errors.New("file has no skills list")
	}

	return profile.DecodeSkills(raw)
}
