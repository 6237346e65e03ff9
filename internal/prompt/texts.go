package prompt

import "fmt"

// DocumentTemplate is the authoring template sent to users who want to
// prepare a guide document for import.
const DocumentTemplate = `# Limbus Company 攻略文档模板

## 文档信息
- 游戏：Limbus Company（边狱巴士）
- 文档名：[填写文档名称]
- 版本/更新时间：[填写版本号或日期]
- 适用模式：主线 / 镜牢 / 铁道 / 活动（删除不适用的）

---

## 【术语与机制】

### 拼点/硬币机制
[在这里介绍拼点、硬币、速度等核心机制]
- 拼点规则：
- 硬币计算：
- 速度影响：

### 罪孽资源
[介绍七种罪孽资源和共鸣机制]
- 共鸣触发条件：
- 完全共鸣效果：

### 状态效果
[介绍各种状态效果]
- 燃烧(Burn)：
- 流血(Bleed)：
- 震颤(Tremor)：
- 破裂(Rupture)：
- 沉沦(Sinking)：
- 蓄力(Poise)：

---

## 【人格指南】

### [人格名称1]
**定位**：输出/坦克/辅助/控场
**核心机制**：
**技能要点**：
- 技能1：
- 技能2：
- 技能3：
**适用场景**：
**替代方案**：

### [人格名称2]
...

---

## 【EGO 指南】

### [EGO名称1]
**所属角色**：
**资源消耗**：
**用途**：
**使用时机**：
**注意事项**：（侵蚀/副作用等）

### [EGO名称2]
...

---

## 【配队/构筑】

### [体系名称] 配队
**核心机制**：（如 Burn体系、Rupture体系等）
**核心成员**：
1.
2.
3.

**替补选择**：
-

**打法思路**：
1.
2.
3.

---

## 【关卡/模式攻略】

### [模式/关卡名称]
**推荐配队**：
**步骤**：
1.
2.
3.

**常见坑**：
-

---

## 【FAQ】

**Q: [常见问题1]**
A:

**Q: [常见问题2]**
A:

---

## 标签提示

为了帮助机器人更好地检索，请在文档中适当使用以下关键词：
- 机制类：拼点、硬币、速度、罪孽、共鸣、结算
- 人格类：人格、ID、000、00、0（稀有度标记）
- EGO类：EGO、侵蚀、腐蚀
- 模式类：镜牢、MD、铁道、RR、活动、主线、Boss
- 状态类：燃烧/Burn、流血/Bleed、震颤/Tremor、破裂/Rupture、沉沦/Sinking、蓄力/Poise

---

*文档结束*
`

// HelpText is the canned reply for the help command.
const HelpText = `📖 **Limbus Company 攻略查询插件**

**基本用法**：
- 在群里 @机器人 + 问题，即可获得基于攻略库的回答
- 例如：@机器人 燃烧队怎么配？

**管理员指令**：
- ` + "`/guide import`" + ` - 导入攻略文档（进入导入模式）
- ` + "`/guide clear`" + ` - 清空本群的覆盖知识库

**通用指令**：
- ` + "`/guide help`" + ` - 显示此帮助信息
- ` + "`/guide template`" + ` - 获取攻略文档模板
- ` + "`/guide status`" + ` - 查看知识库状态
- ` + "`/guide mode simple|detail`" + ` - 设置默认回答模式

**回答模式**：
- 简单版（默认）：精简的步骤和要点
- 详细版：完整的机制解释和多方案

**触发详细回答**：
在问题中包含以下关键词会自动使用详细模式：
详细、展开、机制、原理、配装、怎么配、长一点

**知识库说明**：
- 全局库：所有群共享的攻略内容（通过WebUI上传）
- 群覆盖库：仅本群可用的攻略内容（通过 /guide import 导入）
- 检索时会同时搜索两个库，群覆盖库的内容有更高优先级

**WebUI管理**：
管理员可通过 /guide status 查看WebUI访问地址和Token
`

// ImportStartText is the canned reply when an import session opens.
const ImportStartText = `📥 **导入模式已开启**

请在 **60秒内** 完成以下操作：

1. 发送攻略文本（可分多条消息）
2. 或上传 txt/md 文件

完成后发送 ` + "`/done`" + ` 结束导入

**提示**：
- 建议先用 ` + "`/guide template`" + ` 获取模板
- 使用模板格式的文档检索效果更好
- 导入内容将保存到本群的覆盖知识库

发送 ` + "`/cancel`" + ` 可取消导入
`

// StatusInfo carries the numbers rendered into the status reply.
type StatusInfo struct {
	GroupID      string
	DefaultMode  Mode
	LastImport   string
	GlobalDocs   int
	GlobalChunks int
	GroupDocs    int
	GroupChunks  int
	TopK         int
	ChunkSize    int
	Overlap      int
	WebUIInfo    string
}

// StatusText renders the knowledge base status reply.
func StatusText(info StatusInfo) string {
	lastImport := info.LastImport
	if lastImport == "" {
		lastImport = "从未"
	}
	return fmt.Sprintf(`📊 **知识库状态**

**本群信息**：
- 群号：%s
- 默认模式：%s
- 最后导入：%s

**知识库统计**：
- 全局文档：%d 篇
- 全局Chunks：%d 条
- 群覆盖文档：%d 篇
- 群覆盖Chunks：%d 条

**检索配置**：
- TopK：%d
- Chunk大小：%d 字符
- 重叠：%d 字符

%s
`, info.GroupID, info.DefaultMode, lastImport,
		info.GlobalDocs, info.GlobalChunks, info.GroupDocs, info.GroupChunks,
		info.TopK, info.ChunkSize, info.Overlap, info.WebUIInfo)
}

// ImportSuccessText renders the confirmation after a finished import.
func ImportSuccessText(docName string, charCount, chunkCount int, tagsSummary string) string {
	if tagsSummary == "" {
		tagsSummary = "（无）"
	}
	return fmt.Sprintf(`✅ **导入成功！**

**文档信息**：
- 文档名：%s
- 字符数：%d
- Chunk数：%d

**主要标签**：
%s

现在可以 @机器人 提问了！
`, docName, charCount, chunkCount, tagsSummary)
}
