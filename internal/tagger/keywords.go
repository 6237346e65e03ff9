package tagger

// Fixed keyword sets per taxonomy category. All keywords are lowercase;
// matching is substring-based over lowercased text. The sets cover both
// English and Chinese community terminology.

var statusKeywords = map[string][]string{
	"burn":    {"burn", "燃烧", "烧伤", "burning"},
	"bleed":   {"bleed", "流血", "出血", "bleeding"},
	"tremor":  {"tremor", "震颤", "颤抖"},
	"rupture": {"rupture", "破裂", "爆裂"},
	"sinking": {"sinking", "沉沦", "下沉"},
	"poise":   {"poise", "蓄力", "架势", "姿态"},
	"charge":  {"charge", "充能"},
}

var modeKeywords = map[string][]string{
	"主线":  {"主线", "章节", "story", "main story"},
	"镜牢":  {"镜牢", "mirror dungeon", "镜像迷宫"},
	"铁道":  {"铁道", "railway", "refraction railway", "折射铁道"},
	"活动":  {"活动", "event", "限时"},
	"异想体": {"异想体", "abnormality", "abno"},
}

var mechanicKeywords = map[string][]string{
	"拼点/冲突": {"拼点", "clash", "冲突", "硬币", "coin", "速度", "speed"},
	"罪孽/资源": {
		"罪孽", "sin", "资源", "resource", "共鸣", "resonance",
		"暴食", "色欲", "懒惰", "暴怒", "忧郁", "傲慢", "嫉妒",
		"gluttony", "lust", "sloth", "wrath", "gloom", "pride", "envy",
	},
	"属性/伤害类型": {
		"斩击", "slash", "穿刺", "pierce", "钝击", "blunt",
		"抗性", "resistance", "弱点", "weakness", "伤害类型",
	},
	"精神/混乱": {"精神", "sanity", "混乱", "panic", "理智"},
	"技能与被动": {"技能", "skill", "被动", "passive", "主动", "active"},
	"ego机制": {"侵蚀", "corrosion", "腐蚀", "erosion"},
	"结算顺序":  {"结算", "回合", "turn", "顺序", "order", "流程"},
}

var personaKeywords = map[string][]string{
	"人格":    {"人格", "identity", "三星", "二星", "一星"},
	"定位:输出": {"输出", "dps", "damage dealer"},
	"定位:坦克": {"坦克", "tank", "肉盾", "承伤"},
	"定位:辅助": {"辅助", "support", "buff", "增益"},
	"定位:控场": {"控场", "control", "控制"},
}

var teamKeywords = map[string][]string{
	"team-build": {"配队", "阵容", "team", "lineup", "编队", "组队"},
	"轴/回合规划":     {"回合规划", "rotation", "循环"},
	"boss打法":     {"boss", "首领", "打法", "strategy", "攻略"},
	"刷取/效率":      {"效率", "farm", "grinding", "刷取"},
}

// sinnerNames maps each sinner's canonical Chinese name to the name
// variants the corpus uses.
var sinnerNames = map[string][]string{
	"以撒":    {"yi sang", "以撒"},
	"浮士德":   {"faust", "浮士德"},
	"堂吉诃德":  {"don quixote", "堂吉诃德", "唐吉诃德"},
	"良秀":    {"ryoshu", "良秀", "龙秀"},
	"默尔索":   {"meursault", "默尔索"},
	"洪鹿":    {"hong lu", "洪鹿", "红鹿"},
	"希斯克利夫": {"heathcliff", "希斯克利夫"},
	"以实玛利":  {"ishmael", "以实玛利"},
	"罗季翁":   {"rodion", "罗季翁", "罗佳"},
	"辛克莱":   {"sinclair", "辛克莱"},
	"奥提斯":   {"outis", "奥提斯"},
	"格里高尔":  {"gregor", "格里高尔"},
}
