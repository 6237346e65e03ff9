// Package prompt builds the LLM prompts and canned bot texts. The
// answering model itself lives in the host; this package only produces
// the strings handed to it.
package prompt

import (
	"fmt"
	"strings"
)

// Mode selects the answer format.
type Mode string

const (
	ModeSimple Mode = "simple"
	ModeDetail Mode = "detail"
)

// ValidMode reports whether s names a known mode.
func ValidMode(s string) bool {
	return Mode(s) == ModeSimple || Mode(s) == ModeDetail
}

// detailTriggers force detail mode when present in a query.
var detailTriggers = []string{
	"详细", "展开", "详细说", "详细讲",
	"机制", "原理", "为什么",
	"配装", "怎么配", "怎么搭",
	"长一点", "详细点", "具体",
	"深入", "解释", "说明",
}

// DetectMode returns ModeDetail when the query contains a detail trigger
// keyword, otherwise the given default.
func DetectMode(query string, defaultMode Mode) Mode {
	return DetectModeWith(query, nil, defaultMode)
}

// DetectModeWith is DetectMode with a custom trigger list. An empty list
// falls back to the built-in triggers.
func DetectModeWith(query string, triggers []string, defaultMode Mode) Mode {
	if len(triggers) == 0 {
		triggers = detailTriggers
	}
	lower := strings.ToLower(query)
	for _, kw := range triggers {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return ModeDetail
		}
	}
	if defaultMode == "" {
		return ModeSimple
	}
	return defaultMode
}

const systemPromptBase = `你是一个专业的《Limbus Company》（边狱巴士）游戏攻略助手。
你的任务是基于提供的参考资料回答用户关于游戏的问题。

## 重要规则（必须严格遵守）：

1. **只能使用参考资料中的信息作答**。如果参考资料中没有相关信息，你必须明确告知用户"资料不足以确定"。

2. **禁止编造**：
   - 不要编造任何数值（伤害、概率、系数等）
   - 不要编造游戏机制的细节
   - 不要编造版本改动信息
   - 不要编造人格/EGO的技能效果

3. **如果资料不足**：
   - 明确说明哪些信息是确定的，哪些是不确定的
   - 列出需要用户补充的信息
   - 可以基于游戏通用逻辑给出方向性建议，但要注明这是推测

4. **引用来源**：在回答中标注信息来源的chunk编号，格式如 [chunk:X]

## 游戏术语提示：
- 罪孽(Sin)：暴食、色欲、懒惰、暴怒、忧郁、傲慢、嫉妒
- 状态效果：燃烧(Burn)、流血(Bleed)、震颤(Tremor)、破裂(Rupture)、沉沦(Sinking)、蓄力(Poise)
- 伤害类型：斩击(Slash)、穿刺(Pierce)、钝击(Blunt)
`

const simpleFormat = `
## 回答格式（简单版）：

1. **一句话结论**：直接回答用户的核心问题

2. **步骤/要点**（3-6条）：
   - 简明扼要的操作步骤或关键点
   - 每条不超过两行

3. **注意事项**（1-3条）：
   - 常见错误或需要留意的地方

4. **资料不足说明**（如有）：
   - 列出无法确定的信息
   - 建议用户补充的内容
`

const detailFormat = `
## 回答格式（详细版）：

1. **概览**：问题的完整回答概述

2. **机制/条件**（如适用）：
   - 相关游戏机制的详细解释
   - 触发条件、计算方式等

3. **详细步骤**：
   - 分阶段的操作指南
   - 每个阶段的具体操作和注意事项

4. **替代方案/低配方案**（如有）：
   - 可替换的人格/EGO
   - 适合不同资源程度的玩家的方案

5. **常见问题/坑**：
   - 容易犯的错误
   - FAQ形式的补充说明

6. **引用来源**：
   - 列出使用到的chunk编号
   - 格式：[chunk:X], [chunk:Y], ...

7. **资料不足说明**（如有）：
   - 无法确定的信息列表
   - 建议补充的内容
`

// SystemPrompt returns the system prompt for the given answer mode.
func SystemPrompt(mode Mode) string {
	if mode == ModeDetail {
		return systemPromptBase + detailFormat
	}
	return systemPromptBase + simpleFormat
}

// ContextChunk is one retrieved passage rendered into the user prompt.
type ContextChunk struct {
	ID      string
	Content string
	Tags    []string
	Scope   string
}

// ContextPrompt renders the retrieved chunks and the user question into
// the prompt body. With no chunks it asks the model to tell the user to
// import documents first.
func ContextPrompt(chunks []ContextChunk, query string) string {
	if len(chunks) == 0 {
		return fmt.Sprintf(`用户问题：%s

注意：当前没有找到相关的参考资料。请告知用户需要先导入攻略文档。`, query)
	}

	var parts []string
	for _, c := range chunks {
		tagsStr := ""
		if len(c.Tags) > 0 {
			tagsStr = fmt.Sprintf("[标签: %s]", strings.Join(c.Tags, ", "))
		}
		source := "全局库"
		if c.Scope != "global" {
			source = "群覆盖库"
		}
		parts = append(parts, fmt.Sprintf("--- Chunk %s [来源: %s] %s ---\n%s\n", c.ID, source, tagsStr, c.Content))
	}

	return fmt.Sprintf(`## 参考资料

%s

---

## 用户问题

%s

请基于以上参考资料回答用户的问题。记住：
1. 只使用参考资料中的信息
2. 不确定的内容要明确说明
3. 标注引用的chunk编号`, strings.Join(parts, "\n"), query)
}
