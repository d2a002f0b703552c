package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/skillmatch/internal/filtering"
	"github.com/spigell/skillmatch/internal/logger"
	"github.com/spigell/skillmatch/internal/matching"
)

const (
	PromptDone                = "Done"
	PromptRefine              = "Refine the query"
	PromptAppendToExcludeFile = "Append all candidates to exclude file"
)

var errExit = errors.New("exit requested")

var matchCmd = &cobra.Command{
	Use:   "match [query]",
	Short: "Find people whose offers fit a need and who need what the requester offers",
	Args:  cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		match(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("user", "u", "", "requester id")
	matchCmd.Flags().BoolP("interactive", "i", false, "refine ambiguous queries and exclude candidates interactively")
	matchCmd.Flags().IntP("limit", "l", 0, "maximum number of results. Default is limit from config.")
	matchCmd.MarkFlagRequired("user")
}

type matcher interface {
	MatchStored(ctx context.Context, requesterID, query string) (*matching.Outcome, error)
}

func match(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	log, config := setup()

	user, _ := cmd.Flags().GetString("user")
	interactive, _ := cmd.Flags().GetBool("interactive")
	limit, _ := cmd.Flags().GetInt("limit")

	filters := filtering.Config{ExcludeFile: config.ExcludeFile, Limit: config.Limit}
	if limit > 0 {
		filters.Limit = limit
	}

	engine, release, err := buildEngine(ctx, config, log)
	if err != nil {
		log.Fatal("building the matching engine", zap.Error(err))
	}
	defer release()

	query := strings.Join(args, " ")
	for {
		outcome, err := matchAndFilter(ctx, engine, filters, user, query, log)
		if err != nil {
			log.Fatal("matching", zap.Error(err))
		}

		if err := printOutcome(cmd.OutOrStdout(), outcome); err != nil {
			log.Fatal("printing results", zap.Error(err))
		}

		if !interactive {
			return
		}

		next, err := followUp(outcome, user, query, filters.ExcludeFile, log)
		if err != nil {
			if errors.Is(err, errExit) {
				return
			}
			log.Fatal("exiting", zap.Error(err))
		}
		query = next
	}
}

func matchAndFilter(ctx context.Context, engine matcher, filters filtering.Config, user, query string, log *zap.Logger) (*matching.Outcome, error) {
	outcome, err := engine.MatchStored(ctx, user, query)
	if err != nil {
		return nil, err
	}

	deps := filtering.Deps{
		Logger:      logger.WithFields(log, logger.MatchFields(user, "")...),
		RequesterID: user,
	}
	if err := filtering.FilterOutcome(ctx, &filters, deps, filtering.Default(), outcome); err != nil {
		return nil, fmt.Errorf("filtering: %w", err)
	}

	return outcome, nil
}

func printOutcome(w io.Writer, outcome *matching.Outcome) error {
	pretty, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(pretty))
	return err
}

// followUp asks what to do next and returns the query for the next round.
func followUp(outcome *matching.Outcome, user, query, excludeFile string, log *zap.Logger) (string, error) {
	for {
		items := followUpItems(outcome, excludeFile)

		selectPrompt := promptui.Select{
			Label: fmt.Sprintf("Status: %s. Choose a candidate to exclude or an action", outcome.Status),
			Items: items,
		}

		_, selected, err := selectPrompt.Run()
		if err != nil {
			return "", err
		}

		switch selected {
		case PromptDone:
			return "", errExit
		case PromptRefine:
			return refineQuery(outcome, query)
		case PromptAppendToExcludeFile:
			for _, m := range outcome.Matches {
				if err := excludeCandidate(excludeFile, user, m.CandidateID); err != nil {
					return "", err
				}
			}
			log.Info("appended to exclude file", zap.String("filename", excludeFile), zap.Int("count", len(outcome.Matches)))
			outcome.Matches = nil
		default:
			id := candidateFromLabel(selected)
			if err := excludeCandidate(excludeFile, user, id); err != nil {
				return "", err
			}
			log.Info("appended to exclude file", zap.String("filename", excludeFile), zap.String("candidate_id", id))
			outcome.Matches = dropCandidate(outcome.Matches, id)
		}
	}
}

func followUpItems(outcome *matching.Outcome, excludeFile string) []string {
	items := make([]string, 0, len(outcome.Matches)+3)

	if excludeFile != "" && len(outcome.Matches) > 0 {
		for _, m := range outcome.Matches {
			items = append(items, m.String())
		}
		items = append(items, PromptAppendToExcludeFile)
	}

	return append(items, PromptRefine, PromptDone)
}

func refineQuery(outcome *matching.Outcome, query string) (string, error) {
	label := "Refined query"
	if len(outcome.Suggestions) > 0 {
		label = fmt.Sprintf("Refined query (%s)", strings.Join(outcome.Suggestions, "; "))
	}

	prompt := promptui.Prompt{
		Label:     label,
		Default:   query,
		AllowEdit: true,
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("query must not be empty")
			}
			return nil
		},
	}

	return prompt.Run()
}

func excludeCandidate(path, requester, candidate string) error {
	return filtering.AppendToFile(path, filtering.ExcludedCandidate{
		ID:          candidate,
		RequesterID: requester,
		Reason:      "excluded interactively",
	})
}

// candidateFromLabel extracts the id from a CandidateMatch.String label.
func candidateFromLabel(label string) string {
	return strings.Split(label, " ")[0]
}

func dropCandidate(matches []matching.CandidateMatch, id string) []matching.CandidateMatch {
	kept := make([]matching.CandidateMatch, 0, len(matches))
	for _, m := range matches {
		if m.CandidateID != id {
			kept = append(kept, m)
		}
	}
	return kept
}
