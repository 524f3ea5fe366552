package service

import "strings"

// TaxonomyEntry 描述分类体系中的一个编码项
// Signs 为该类目常见的可观察信号，展示用
type TaxonomyEntry struct {
	Code        string
	Category    string
	Subcategory string
	Descriptor  string
	Signs       string
}

// taxonomyEntries 是反思分类的静态类目表，编码形如 "2.3"。
// 顺序即提示词中枚举的顺序，不要随意调整。
var taxonomyEntries = []TaxonomyEntry{
	{Code: "1.1", Category: "情绪触发", Subcategory: "焦虑与压力", Descriptor: "因焦虑、紧张或压力堆积引发的冲动", Signs: "呼吸变浅、反复刷手机、坐立不安"},
	{Code: "1.2", Category: "情绪触发", Subcategory: "愤怒与冲突", Descriptor: "与他人冲突或压抑怒气后的宣泄倾向", Signs: "语气变冲、回避交流、摔放物品"},
	{Code: "1.3", Category: "情绪触发", Subcategory: "低落与无力", Descriptor: "情绪低谷中寻求即时安慰", Signs: "赖床、拖延基本事务、自我否定"},
	{Code: "2.1", Category: "情境触发", Subcategory: "独处与深夜", Descriptor: "无人在场或深夜时段的防线松动", Signs: "熬夜、关灯后继续用手机"},
	{Code: "2.2", Category: "情境触发", Subcategory: "无聊与拖延", Descriptor: "空窗时间缺乏安排导致的漂移", Signs: "漫无目的切换应用、推迟既定计划"},
	{Code: "2.3", Category: "情境触发", Subcategory: "特定场所或路线", Descriptor: "经过特定地点或重复旧路线时被勾起", Signs: "绕路、在某处停留过久"},
	{Code: "3.1", Category: "认知模式", Subcategory: "合理化借口", Descriptor: "用\"就这一次\"式说辞为破戒开脱", Signs: "讨价还价式自我对话、降低标准"},
	{Code: "3.2", Category: "认知模式", Subcategory: "全有全无", Descriptor: "一次失误后彻底放弃的极端化思维", Signs: "破罐破摔、放弃记录"},
	{Code: "3.3", Category: "认知模式", Subcategory: "补偿心理", Descriptor: "以\"辛苦了该奖励自己\"为由的自我补偿", Signs: "强调付出、寻找犒赏借口"},
	{Code: "4.1", Category: "恢复与进展", Subcategory: "成功抵御", Descriptor: "识别冲动并成功化解的正面记录", Signs: "主动转移注意、完成替代活动"},
	{Code: "4.2", Category: "恢复与进展", Subcategory: "复盘与计划", Descriptor: "对既往经过的回顾与下一步安排", Signs: "总结触发链条、写下具体对策"},
	{Code: "4.3", Category: "恢复与进展", Subcategory: "寻求支持", Descriptor: "向他人求助或公开承诺", Signs: "主动联系支持者、说出困难"},
}

var taxonomyIndex = buildTaxonomyIndex()

func buildTaxonomyIndex() map[string]TaxonomyEntry {
	index := make(map[string]TaxonomyEntry, len(taxonomyEntries))
	for _, entry := range taxonomyEntries {
		index[entry.Code] = entry
	}
	return index
}

// UnclassifiedTaxonomyEntry 为展示层使用的"无分类"占位项。
var UnclassifiedTaxonomyEntry = TaxonomyEntry{
	Code:        "",
	Category:    "未分类",
	Subcategory: "—",
	Descriptor:  "尚未获得有效分类",
	Signs:       "",
}

// TaxonomyEntries 返回完整的类目表副本。
func TaxonomyEntries() []TaxonomyEntry {
	entries := make([]TaxonomyEntry, len(taxonomyEntries))
	copy(entries, taxonomyEntries)
	return entries
}

// LookupTaxonomy 根据编码查找类目；未命中时返回"无分类"占位项。
func LookupTaxonomy(code string) (TaxonomyEntry, bool) {
	entry, ok := taxonomyIndex[strings.TrimSpace(code)]
	if !ok {
		return UnclassifiedTaxonomyEntry, false
	}
	return entry, true
}

// IsValidTaxonomyCode 判断编码是否存在于类目表。
func IsValidTaxonomyCode(code string) bool {
	_, ok := taxonomyIndex[strings.TrimSpace(code)]
	return ok
}
