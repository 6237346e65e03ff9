// Package cmd wires the limbusguide commands: the admin API server, a
// one-shot retrieval query for debugging, and version information.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "limbusguide",
	Short: "limbusguide - 边狱公司攻略问答知识库",
	Long: `limbusguide 是边狱公司（Limbus Company）群聊攻略问答的检索引擎。
它维护一个全局攻略库和按群隔离的覆盖库，将问题检索结果组装成
可直接交给语言模型的提示词，并提供一个本地管理 API。

执行 limbusguide serve 启动服务。`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
