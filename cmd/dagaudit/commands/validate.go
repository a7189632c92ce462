package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"dagaudit/pkg/derive"
	"dagaudit/pkg/types"
	"dagaudit/pkg/validate"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateKind        string
	validateChunkSize   int
	validateConcurrency int
	validateCommitsFile string
	validateStart       int
	validateCount       int
	validateIgnore      []string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Rederive and verify one kind of derived data",
	Long: `validate rederives the named kind of derived data for a range of
changesets inside an in-memory overlay, compares the result against what
production storage holds, and asserts every newly-introduced blob was
actually written.

Changesets come either from --commits-file (one hex id per line) or, by
default, from the metadata database in topological order.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateKind, "kind", "", "derived data kind to validate (required)")
	validateCmd.Flags().IntVar(&validateChunkSize, "chunk-size", 0, "changesets per overlay chunk")
	validateCmd.Flags().IntVar(&validateConcurrency, "concurrency", 0, "concurrent derivations per chunk")
	validateCmd.Flags().StringVar(&validateCommitsFile, "commits-file", "", "file listing changeset ids to validate, one per line")
	validateCmd.Flags().IntVar(&validateStart, "start", 0, "skip the first N changesets in topological order")
	validateCmd.Flags().IntVar(&validateCount, "count", 0, "validate at most N changesets (0 = all)")
	validateCmd.Flags().StringArrayVar(&validateIgnore, "ignore", nil, "gitignore-style path pattern to skip (repeatable)")
	_ = validateCmd.MarkFlagRequired("kind")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	kind, err := derive.ParseKind(validateKind)
	if err != nil {
		return err
	}

	csids, err := loadChangesets(cmd)
	if err != nil {
		return err
	}
	if len(csids) == 0 {
		return fmt.Errorf("no changesets to validate")
	}

	// 命令行参数优先，否则落回配置文件里的默认值
	chunkSize := validateChunkSize
	if chunkSize == 0 {
		chunkSize = viper.GetInt("validate.chunk_size")
	}
	concurrency := validateConcurrency
	if concurrency == 0 {
		concurrency = viper.GetInt("validate.concurrency")
	}

	err = validate.Run(ctx, DA.View, csids, validate.Options{
		Kind:           kind,
		ChunkSize:      chunkSize,
		Concurrency:    concurrency,
		IgnorePatterns: validateIgnore,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✅ Validated %d changesets (%s)\n", len(csids), kind)
	return nil
}

// loadChangesets 决定要验证哪些提交
func loadChangesets(cmd *cobra.Command) ([]types.ChangesetID, error) {
	if validateCommitsFile != "" {
		return readCommitsFile(validateCommitsFile)
	}

	csids, err := DA.Meta.ListChangesetIDs(cmd.Context(), validateStart, validateCount)
	if err != nil {
		return nil, fmt.Errorf("list changesets: %w", err)
	}
	return csids, nil
}

// readCommitsFile 每行一个 hex ChangesetID，# 开头的行是注释
func readCommitsFile(path string) ([]types.ChangesetID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open commits file: %w", err)
	}
	defer f.Close()

	var csids []types.ChangesetID
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cs := types.ChangesetID(line)
		if !cs.IsValid() {
			return nil, fmt.Errorf("invalid changeset id in %s: %q", path, line)
		}
		csids = append(csids, cs)
		if validateCount > 0 && len(csids) >= validateCount {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return csids, nil
}
