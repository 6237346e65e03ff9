package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		defaultMode Mode
		want        Mode
	}{
		{"trigger keyword", "燃烧的机制是什么", ModeSimple, ModeDetail},
		{"team build trigger", "燃烧队怎么配", ModeSimple, ModeDetail},
		{"no trigger keeps default", "燃烧队推荐", ModeSimple, ModeSimple},
		{"no trigger detail default", "燃烧队推荐", ModeDetail, ModeDetail},
		{"empty default falls back to simple", "燃烧队推荐", "", ModeSimple},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMode(tt.query, tt.defaultMode))
		})
	}
}

func TestDetectModeWithCustomTriggers(t *testing.T) {
	assert.Equal(t, ModeDetail, DetectModeWith("请教一下", []string{"请教"}, ModeSimple))
	assert.Equal(t, ModeSimple, DetectModeWith("燃烧的机制", []string{"请教"}, ModeSimple))
	assert.Equal(t, ModeDetail, DetectModeWith("燃烧的机制", nil, ModeSimple))
}

func TestValidMode(t *testing.T) {
	assert.True(t, ValidMode("simple"))
	assert.True(t, ValidMode("detail"))
	assert.False(t, ValidMode("verbose"))
	assert.False(t, ValidMode(""))
}

func TestSystemPromptPerMode(t *testing.T) {
	simple := SystemPrompt(ModeSimple)
	detail := SystemPrompt(ModeDetail)

	assert.Contains(t, simple, "回答格式（简单版）")
	assert.NotContains(t, simple, "回答格式（详细版）")
	assert.Contains(t, detail, "回答格式（详细版）")
	assert.Contains(t, simple, "资料不足以确定")
	assert.Contains(t, detail, "资料不足以确定")
}

func TestContextPromptEmpty(t *testing.T) {
	got := ContextPrompt(nil, "燃烧队怎么配")
	assert.Contains(t, got, "燃烧队怎么配")
	assert.Contains(t, got, "导入攻略文档")
}

func TestContextPromptRendersChunks(t *testing.T) {
	chunks := []ContextChunk{
		{ID: "d1:0", Content: "燃烧队核心成员", Tags: []string{"status:burn"}, Scope: "global"},
		{ID: "d2:1", Content: "群内补充说明", Scope: "group:42"},
	}
	got := ContextPrompt(chunks, "燃烧队怎么配")

	assert.Contains(t, got, "Chunk d1:0")
	assert.Contains(t, got, "[来源: 全局库]")
	assert.Contains(t, got, "[标签: status:burn]")
	assert.Contains(t, got, "[来源: 群覆盖库]")
	assert.Contains(t, got, "燃烧队核心成员")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(got), "标注引用的chunk编号"))
}

func TestStatusText(t *testing.T) {
	got := StatusText(StatusInfo{
		GroupID:      "42",
		DefaultMode:  ModeSimple,
		GlobalDocs:   3,
		GlobalChunks: 17,
		GroupDocs:    1,
		GroupChunks:  4,
		TopK:         6,
		ChunkSize:    800,
		Overlap:      120,
	})
	assert.Contains(t, got, "群号：42")
	assert.Contains(t, got, "最后导入：从未")
	assert.Contains(t, got, "全局文档：3 篇")
	assert.Contains(t, got, "TopK：6")
}

func TestImportSuccessText(t *testing.T) {
	got := ImportSuccessText("烧队攻略", 1234, 3, "- status:burn ×3")
	assert.Contains(t, got, "文档名：烧队攻略")
	assert.Contains(t, got, "字符数：1234")
	assert.Contains(t, got, "Chunk数：3")
	assert.Contains(t, got, "status:burn")

	empty := ImportSuccessText("x", 1, 1, "")
	assert.Contains(t, empty, "（无）")
}
