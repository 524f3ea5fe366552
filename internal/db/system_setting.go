package db

import "gorm.io/gorm"

// SystemSetting 存储后台可配置的系统级键值对。
type SystemSetting struct {
	gorm.Model
	Key   string `gorm:"size:100;uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}

// TableName 自定义表名以保持命名一致。
func (SystemSetting) TableName() string {
	return "system_settings"
}

const (
	// SettingKeySiteName 表示站点名称。
	SettingKeySiteName = "site_name"
	// SettingKeyAIProvider 表示当前启用的 AI 平台。
	SettingKeyAIProvider = "ai_provider"
	// SettingKeyOpenAIAPIKey 表示 OpenAI API Key。
	SettingKeyOpenAIAPIKey = "openai_api_key"
	// SettingKeyDeepSeekAPIKey 表示 DeepSeek API Key。
	SettingKeyDeepSeekAPIKey = "deepseek_api_key"
	// SettingKeyAIClassifyPrompt 表示反思分类所用的系统提示词，空值回退默认提示词。
	SettingKeyAIClassifyPrompt = "ai_classify_prompt"
	// SettingKeyHistoryMasked 表示历史表格默认是否折叠隐藏。
	SettingKeyHistoryMasked = "history_masked"
	// SettingKeyAutoClassify 表示保存反思后是否立即触发分类。
	SettingKeyAutoClassify = "auto_classify"
)
