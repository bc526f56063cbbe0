package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"gortm/app"
	"gortm/domain/requirement"
	"gortm/internal"
	"gortm/internal/config"
	"gortm/internal/container"
	"gortm/internal/storage"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gortm",
		Short: "Generate requirements traceability matrices from spreadsheets",
	}

	rootCmd.AddCommand(
		newGenerateCmd(),
		newInspectCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadContainer builds the pipeline from the environment. Uploads are not
// used by the CLI, so they go to a temporary directory.
func loadContainer(outputDir, rulesFile string, verbose bool) (*container.Container, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := internal.ParseLogLevel(cfg.LogLevel)
	if verbose {
		level = internal.LogLevelDebug
	}
	internal.DefaultLogger.SetLevel(level)

	cfg.Paths.UploadDir = filepath.Join(os.TempDir(), "gortm-uploads")
	cfg.Paths.OutputDir = outputDir
	if rulesFile != "" {
		cfg.Extraction.RulesFile = rulesFile
	}
	return container.New(cfg)
}

func newGenerateCmd() *cobra.Command {
	var focusSheet, outputDir, outputFile, rulesFile string
	var allSheets, printJSON, verbose bool

	cmd := &cobra.Command{
		Use:   "generate <workbook>",
		Short: "Extract, classify and write the traceability matrix for a workbook",
		Long: `Run the full pipeline on a .xlsx, .xlsm or .csv workbook and write a
three-sheet RTM workbook.

Example: gortm generate requirements.xlsx --focus-sheet "2- tool Requirements" --all-sheets`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			c, err := loadContainer(outputDir, rulesFile, verbose)
			if err != nil {
				return err
			}
			defer c.Shutdown(cmd.Context())

			name := filepath.Base(path)
			runID := uuid.New().String()
			if outputFile == "" {
				outputFile = storage.OutputName(name, runID, time.Now())
			}
			if err := os.MkdirAll(outputDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			fmt.Printf("Processing %s with %s classifier...\n", name, c.Classifier.Name())
			start := time.Now()
			result, err := c.RTMService.Process(cmd.Context(), app.ProcessRequest{
				RunID:            runID,
				FileName:         name,
				Data:             data,
				FocusSheet:       focusSheet,
				IncludeAllSheets: allSheets,
				OutputPath:       filepath.Join(outputDir, outputFile),
			})
			if err != nil {
				return err
			}

			if printJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result.Collection)
			}
			printSummary(result, time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVar(&focusSheet, "focus-sheet", "", "Sheet to process first (default FOCUS_SHEET_NAME)")
	cmd.Flags().BoolVar(&allSheets, "all-sheets", false, "Also extract requirements from every other sheet")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "d", ".", "Directory for the generated workbook")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file name (default RTM_<name>_<timestamp>_<run>.xlsx)")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML file overriding column synonyms and keyword rules")
	cmd.Flags().BoolVar(&printJSON, "json", false, "Print the assembled collection as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	return cmd
}

func newInspectCmd() *cobra.Command {
	var focusSheet, rulesFile string

	cmd := &cobra.Command{
		Use:   "inspect <workbook>",
		Short: "Show detected columns and requirement counts per sheet without classifying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			c, err := loadContainer(os.TempDir(), rulesFile, false)
			if err != nil {
				return err
			}
			defer c.Shutdown(cmd.Context())

			result, err := c.RTMService.Inspect(data, filepath.Base(path), focusSheet)
			if err != nil {
				return err
			}

			fmt.Printf("Workbook: %s\n", filepath.Base(path))
			if result.FocusFound {
				fmt.Printf("Focus sheet: %s\n", result.FocusSheet)
			} else {
				fmt.Printf("Focus sheet: %s (not found)\n", result.FocusSheet)
			}
			fmt.Println()
			for _, sheet := range result.Sheets {
				printSheetReport(sheet)
			}
			fmt.Printf("Total requirements: %d\n", len(result.Requirements))
			return nil
		},
	}

	cmd.Flags().StringVar(&focusSheet, "focus-sheet", "", "Sheet treated as the focus sheet (default FOCUS_SHEET_NAME)")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML file overriding column synonyms and keyword rules")

	return cmd
}

func printSheetReport(sheet requirement.SheetReport) {
	marker := ""
	if sheet.IsFocus {
		marker = " [focus]"
	}
	fmt.Printf("Sheet %q%s: %s, %d requirements\n", sheet.Sheet, marker, sheet.Status, sheet.Count)
	if sheet.DescriptionColumn != "" {
		fmt.Printf("   Description column: %s\n", sheet.DescriptionColumn)
	}
	for _, role := range requirement.Roles {
		if header, ok := sheet.Roles.Header(role); ok && role != requirement.RoleDescription {
			fmt.Printf("   %s column: %s (score %.2f)\n", role, header, sheet.Roles.Scores[role])
		}
	}
	if len(sheet.Roles.Ambiguous) > 0 {
		fmt.Printf("   Ambiguous roles: %v\n", sheet.Roles.Ambiguous)
	}
	if sheet.Reason != "" {
		fmt.Printf("   %s\n", sheet.Reason)
	}
}

func printSummary(result *app.Result, elapsed time.Duration) {
	s := result.Collection.Summary
	fmt.Printf("\nRTM RESULTS\n")
	fmt.Printf("Run: %s\n", result.Run.ID)
	fmt.Printf("Output: %s\n", result.Run.OutputFile)
	fmt.Printf("Processing Time: %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Total Requirements: %d\n", s.TotalRequirements)
	for _, sheet := range s.SheetOrder {
		fmt.Printf("   %s: %d\n", sheet, s.BySourceSheet[sheet])
	}
	fmt.Printf("By Type:\n")
	for _, t := range requirement.Types {
		if n := s.ByType[t]; n > 0 {
			fmt.Printf("   %s: %d\n", t, n)
		}
	}
	fmt.Printf("By Priority:\n")
	for _, p := range requirement.Priorities {
		if n := s.ByPriority[p]; n > 0 {
			fmt.Printf("   %s: %d\n", p, n)
		}
	}
	fmt.Printf("Confidence: mean %.2f, median %.2f\n", s.Confidence.Mean, s.Confidence.Median)
	if d := s.Degraded(); d > 0 {
		fmt.Printf("Rule-based fallback applied to %d requirements\n", d)
	}
	if result.Run.PromptTokens > 0 {
		fmt.Printf("Tokens: %d prompt, %d completion\n", result.Run.PromptTokens, result.Run.CompletionTokens)
	}
}
