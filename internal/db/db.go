package db

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

// DefaultBehaviorSeeds 为首次启动时写入的两个被追踪行为。
// 名称来自最初的西语版本数据，保持不变以兼容既有库。
var DefaultBehaviorSeeds = []Behavior{
	{Name: "La Iniciativa Aquella", Icon: "✊🏽", Status: "active"},
	{Name: "La Iniciativa de Pago", Icon: "💸", Status: "active"},
}

// Init 初始化数据库连接并执行自动迁移。
// databasePath 为空时将回退到默认值 looplog.db。
func Init(databasePath string) error {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		path = "looplog.db"
	}

	if err := ensureParentDir(path); err != nil {
		return err
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return err
	}

	// 自动迁移模式，为核心模型创建表
	if err = DB.AutoMigrate(
		&User{},
		&Behavior{},
		&Event{},
		&Reflection{},
		&ReflectionEmotion{},
		&SystemSetting{},
	); err != nil {
		return err
	}

	if err := seedDefaultBehaviors(DB); err != nil {
		return err
	}

	// 早期版本把反思文本直接写进了 events 表（behavior_id 为空的行），
	// 一次性搬回 reflections 后删除原始行
	if err := relocateMisplacedReflections(DB); err != nil {
		return err
	}

	return nil
}

func seedDefaultBehaviors(gdb *gorm.DB) error {
	var count int64
	if err := gdb.Model(&Behavior{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, seed := range DefaultBehaviorSeeds {
		behavior := seed
		if err := gdb.Create(&behavior).Error; err != nil {
			return err
		}
	}
	return nil
}

func relocateMisplacedReflections(gdb *gorm.DB) error {
	var orphans []Event
	if err := gdb.Where("behavior_id = 0 AND note <> ''").Find(&orphans).Error; err != nil {
		return err
	}

	for _, orphan := range orphans {
		err := gdb.Transaction(func(tx *gorm.DB) error {
			reflection := Reflection{
				OccurredAt:     orphan.StartTime,
				Text:           orphan.Note,
				CategoryStatus: CategoryStatusUnclassified,
			}
			if err := tx.Create(&reflection).Error; err != nil {
				return err
			}
			return tx.Unscoped().Delete(&Event{}, orphan.ID).Error
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
