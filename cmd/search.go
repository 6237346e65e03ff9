package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jhh003/limbusguide/internal/app"
	"github.com/jhh003/limbusguide/internal/config"
)

var (
	searchGroup  string
	searchDebug  bool
	searchPrompt bool
)

var searchCmd = &cobra.Command{
	Use:   "search [问题]",
	Short: "对知识库执行一次检索，打印命中结果",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchGroup, "group", "", "以指定群的视角检索（包含该群的覆盖库）")
	searchCmd.Flags().BoolVar(&searchDebug, "debug", false, "显示每条结果的得分拆解")
	searchCmd.Flags().BoolVar(&searchPrompt, "prompt", false, "打印组装后的提示词而不是结果列表")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	query := strings.Join(args, " ")

	if searchPrompt {
		answer, err := a.Bot.Ask(ctx, searchGroup, query)
		if err != nil {
			return fmt.Errorf("composing prompt: %w", err)
		}
		fmt.Println("=== System ===")
		fmt.Println(answer.SystemPrompt)
		fmt.Println("=== User ===")
		fmt.Println(answer.UserPrompt)
		return nil
	}

	resp, err := a.Retriever.Retrieve(ctx, searchGroup, query)
	if err != nil {
		return fmt.Errorf("retrieving: %w", err)
	}

	fmt.Printf("查询: %s\n", resp.Query)
	if resp.ProcessedQuery != resp.Query {
		fmt.Printf("别名展开: %s\n", resp.ProcessedQuery)
	}
	fmt.Printf("模式: %s\n", resp.Mode)
	if len(resp.QueryTags) > 0 {
		tags := make([]string, len(resp.QueryTags))
		for i, t := range resp.QueryTags {
			tags[i] = t.String()
		}
		fmt.Printf("标签: %s\n", strings.Join(tags, ", "))
	}
	if resp.Degraded {
		fmt.Println("注意: 部分检索步骤降级")
	}
	fmt.Println()

	if len(resp.Results) == 0 {
		fmt.Println("没有命中任何内容。")
		return nil
	}

	for i, res := range resp.Results {
		source := "全局库"
		if res.Group {
			source = "群覆盖库"
		}
		fmt.Printf("%d. [%s] %.4f  %s\n", i+1, source, res.Score, res.ChunkID)
		if searchDebug {
			b := res.Breakdown
			fmt.Printf("   bm25=%.4f tag=%.4f group=%.4f embed=%.4f",
				b.BM25, b.TagBoost, b.GroupBoost, b.EmbedScore)
			if len(b.MatchingTags) > 0 {
				fmt.Printf(" tags=%s", strings.Join(b.MatchingTags, ","))
			}
			fmt.Println()
		}
		fmt.Printf("   %s\n", preview(res.Text, 120))
	}
	return nil
}

// preview truncates text to at most n runes for terminal display.
func preview(text string, n int) string {
	runes := []rune(strings.ReplaceAll(text, "\n", " "))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "…"
}
