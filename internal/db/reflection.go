package db

import (
	"time"

	"gorm.io/gorm"
)

const (
	// CategoryStatusUnclassified 表示尚未获得有效分类。
	CategoryStatusUnclassified = "unclassified"
	// CategoryStatusClassifiedByAI 表示分类码由模型生成并通过校验。
	CategoryStatusClassifiedByAI = "classified_by_ai"
	// CategoryStatusUserModified 表示分类码被用户手动覆盖。
	CategoryStatusUserModified = "user_modified"
)

// Reflection 记录一条自由文本反思
// CategoryCode 为分类体系中的编码（如 "2.3"），写入前必须通过校验；
// 校验失败时保持空串并将 CategoryStatus 置为 unclassified
// BehaviorID 可空，表示这条反思关联的行为（仅用于筛选与导出，无强约束）
type Reflection struct {
	gorm.Model
	OccurredAt     time.Time `gorm:"index;not null"`
	BehaviorID     *uint     `gorm:"index"`
	Text           string    `gorm:"type:text"`
	WordCount      int
	CategoryCode   string
	CategoryStatus string              `gorm:"default:unclassified"`
	Emotions       []ReflectionEmotion `gorm:"constraint:OnDelete:CASCADE"`
}

// ReflectionEmotion 保存反思选择的情绪标签
// Position 保留多选时的原始顺序
type ReflectionEmotion struct {
	gorm.Model
	ReflectionID uint `gorm:"index;not null"`
	Icon         string
	Label        string
	Position     int
}

// TableName 固定表名
func (ReflectionEmotion) TableName() string {
	return "reflection_emotions"
}
