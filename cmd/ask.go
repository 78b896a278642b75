package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiscovery/pdiscovery/internal/app"
	"github.com/pdiscovery/pdiscovery/internal/guideline"
)

var (
	flagObjective string
	flagAskTypes  []string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed research",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return fmt.Errorf("question cannot be empty")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.Setup(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ans, err := a.Answerer.Ask(ctx, question, guideline.Objective(flagObjective), flagAskTypes...)
		if err != nil {
			return err
		}

		fmt.Println(ans.Text)
		if len(ans.Citations) > 0 {
			fmt.Println("\nSources:")
			for _, c := range ans.Citations {
				fmt.Printf("  [%s] %s (%s, similarity %.2f)\n",
					c.Marker, c.Title, c.SourceName, c.Similarity)
			}
		}
		if ans.Degraded {
			fmt.Fprintln(os.Stderr, "\nnote: this answer was produced without matching research context")
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&flagObjective, "objective", "",
		"research objective (explore-prior-findings, request-ideation, validate-hypothesis); classified when empty")
	askCmd.Flags().StringSliceVar(&flagAskTypes, "type", nil,
		"restrict retrieval to document types (discovery, interview, research, guideline)")
}
