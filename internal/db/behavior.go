package db

import (
	"time"

	"gorm.io/gorm"
)

// Behavior 定义被追踪的行为模型
// Name 全局唯一，Icon 为展示用 emoji
// Status 仅使用 active/inactive，控制是否出现在打点面板
// NOTE: 行为集合很小且基本固定，仅开放重命名/图标/状态的修改
type Behavior struct {
	gorm.Model
	Name   string `gorm:"uniqueIndex;not null"`
	Icon   string
	Status string
}

// Event 记录一次行为发生的时间区间
// EndTime 为空表示区间仍然开启（进行中）
// 不变式：同一行为任意时刻至多存在一条开启记录，由 EventService 在事务内维护
// Source 标记时间来源（auto 当前时间 / manual 手动补录）
type Event struct {
	gorm.Model
	BehaviorID uint     `gorm:"index;not null"`
	Behavior   Behavior `gorm:"constraint:OnDelete:CASCADE"`
	StartTime  time.Time `gorm:"index;not null"`
	EndTime    *time.Time
	Source     string
	Note       string
}

// TableName 固定表名，避免复数化歧义
func (Event) TableName() string {
	return "events"
}
