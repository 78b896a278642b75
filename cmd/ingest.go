package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiscovery/pdiscovery/internal/app"
	"github.com/pdiscovery/pdiscovery/internal/ingest"
)

var flagDocType string

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Ingest research documents into the knowledge base",
	Long: `Ingest loads PDF and Markdown documents, splits them into chunks,
embeds each chunk, and stores the result in PostgreSQL. Directories are
walked recursively, honoring a .gitignore at their root.

Re-ingesting a file replaces its previous chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		docType := ingest.DocType(flagDocType)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.Setup(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, path := range args {
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			if info.IsDir() {
				result, err := a.Ingestor.AddDirectory(ctx, path, docType)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d files added, %d skipped, %d failed, %d chunks (%s)\n",
					path, result.FilesAdded, result.FilesSkipped,
					result.FilesFailed, result.Chunks, result.Duration.Round(time.Millisecond))
				continue
			}
			n, err := a.Ingestor.AddFile(ctx, path, docType)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d chunks\n", path, n)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&flagDocType, "type", "",
		"document type (discovery, interview, research, guideline); inferred from filename when empty")
}
