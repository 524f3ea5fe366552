package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/looplog/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrBehaviorNotFound 在指定行为不存在时返回
	ErrBehaviorNotFound = errors.New("behavior not found")
	// ErrBehaviorNameTaken 在行为名称冲突时返回
	ErrBehaviorNameTaken = errors.New("behavior name already taken")
)

// BehaviorService 负责被追踪行为的读取与有限的修改
// 行为集合由初始化种子给出，仅开放名称/图标/状态调整，不提供删除
type BehaviorService struct {
	db *gorm.DB
}

// BehaviorInput 定义更新行为时可配置字段
type BehaviorInput struct {
	Name   string
	Icon   string
	Status string
}

// NewBehaviorService 构造 BehaviorService
func NewBehaviorService(gdb *gorm.DB) *BehaviorService {
	return &BehaviorService{db: gdb}
}

// List 返回全部行为，activeOnly 为 true 时仅返回启用中的
func (s *BehaviorService) List(activeOnly bool) ([]db.Behavior, error) {
	var behaviors []db.Behavior

	query := s.db.Model(&db.Behavior{})
	if activeOnly {
		query = query.Where("status = ?", "active")
	}

	if err := query.Order("id ASC").Find(&behaviors).Error; err != nil {
		return nil, fmt.Errorf("list behaviors: %w", err)
	}

	return behaviors, nil
}

// Get 根据 ID 获取行为
func (s *BehaviorService) Get(id uint) (*db.Behavior, error) {
	var behavior db.Behavior
	if err := s.db.First(&behavior, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBehaviorNotFound
		}
		return nil, fmt.Errorf("get behavior: %w", err)
	}
	return &behavior, nil
}

// GetByName 根据名称获取行为
func (s *BehaviorService) GetByName(name string) (*db.Behavior, error) {
	var behavior db.Behavior
	if err := s.db.Where("name = ?", strings.TrimSpace(name)).First(&behavior).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBehaviorNotFound
		}
		return nil, fmt.Errorf("get behavior by name: %w", err)
	}
	return &behavior, nil
}

// Update 更新行为的名称、图标与状态
func (s *BehaviorService) Update(id uint, input BehaviorInput) (*db.Behavior, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("behavior name is required")
	}

	var existing db.Behavior
	if err := s.db.First(&existing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBehaviorNotFound
		}
		return nil, fmt.Errorf("find behavior: %w", err)
	}

	var conflict int64
	if err := s.db.Model(&db.Behavior{}).
		Where("name = ? AND id <> ?", name, id).
		Count(&conflict).Error; err != nil {
		return nil, fmt.Errorf("check behavior name: %w", err)
	}
	if conflict > 0 {
		return nil, ErrBehaviorNameTaken
	}

	existing.Name = name
	existing.Icon = strings.TrimSpace(input.Icon)
	existing.Status = normalizeBehaviorStatus(input.Status)

	if err := s.db.Save(&existing).Error; err != nil {
		return nil, fmt.Errorf("update behavior: %w", err)
	}
	return &existing, nil
}

func normalizeBehaviorStatus(status string) string {
	status = strings.TrimSpace(strings.ToLower(status))
	if status != "inactive" {
		return "active"
	}
	return "inactive"
}
