package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/looplog/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrNoOpenEvent 在行为当前没有开启中的区间时返回
	ErrNoOpenEvent = errors.New("no open event for behavior")
	// ErrEventNotFound 在指定事件不存在时返回
	ErrEventNotFound = errors.New("event not found")
)

// EventService 负责事件区间的写入与派生状态计算
// 不变式：同一行为至多一条开启区间；Start 在一个事务内关闭旧区间并写入新区间
type EventService struct {
	db *gorm.DB
}

// EventInput 定义开启一次事件时的输入对象
// StartTime 为零值时取当前时间；Source 标记 auto/manual
type EventInput struct {
	BehaviorID uint
	StartTime  time.Time
	Source     string
	Note       string
}

// StreakStatus 汇总单个行为的当前持续状态
// AnchorTime 供前端用本地时钟递增展示，服务端不做轮询刷新
type StreakStatus struct {
	Behavior       db.Behavior
	HasData        bool
	Open           bool
	AnchorTime     time.Time
	Breakdown      Breakdown
	ElapsedMinutes int64
	Record         time.Duration
	Milestone      Milestone
	Risk           WeekdayRisk
}

// NewEventService 构造 EventService
func NewEventService(gdb *gorm.DB) *EventService {
	return &EventService{db: gdb}
}

// Start 开启一次新事件：若该行为存在开启中的区间，先以新事件的开始时间将其关闭。
func (s *EventService) Start(input EventInput) (*db.Event, error) {
	if input.BehaviorID == 0 {
		return nil, fmt.Errorf("behavior id is required")
	}

	startTime := input.StartTime
	if startTime.IsZero() {
		startTime = time.Now()
	}

	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = "auto"
	}

	var behavior db.Behavior
	if err := s.db.First(&behavior, input.BehaviorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBehaviorNotFound
		}
		return nil, fmt.Errorf("find behavior: %w", err)
	}

	event := db.Event{
		BehaviorID: behavior.ID,
		StartTime:  startTime,
		Source:     source,
		Note:       strings.TrimSpace(input.Note),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var open db.Event
		err := tx.Where("behavior_id = ? AND end_time IS NULL", behavior.ID).
			Order("start_time DESC").
			First(&open).Error
		if err == nil {
			if updateErr := tx.Model(&open).Update("end_time", startTime).Error; updateErr != nil {
				return fmt.Errorf("close open event: %w", updateErr)
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find open event: %w", err)
		}

		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &event, nil
}

// Close 关闭行为当前开启中的区间。
func (s *EventService) Close(behaviorID uint, at time.Time) (*db.Event, error) {
	open, err := s.Open(behaviorID)
	if err != nil {
		return nil, err
	}

	if at.IsZero() {
		at = time.Now()
	}

	if err := s.db.Model(open).Update("end_time", at).Error; err != nil {
		return nil, fmt.Errorf("close event: %w", err)
	}

	open.EndTime = &at
	return open, nil
}

// CloseByID 关闭指定事件；事件不存在返回 ErrEventNotFound，已关闭返回 ErrNoOpenEvent。
func (s *EventService) CloseByID(id uint, at time.Time) (*db.Event, error) {
	var event db.Event
	if err := s.db.First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("find event: %w", err)
	}

	if event.EndTime != nil {
		return nil, ErrNoOpenEvent
	}

	if at.IsZero() {
		at = time.Now()
	}

	if err := s.db.Model(&event).Update("end_time", at).Error; err != nil {
		return nil, fmt.Errorf("close event: %w", err)
	}

	event.EndTime = &at
	return &event, nil
}

// Open 返回行为当前开启中的区间，不存在时返回 ErrNoOpenEvent。
func (s *EventService) Open(behaviorID uint) (*db.Event, error) {
	var event db.Event
	err := s.db.Where("behavior_id = ? AND end_time IS NULL", behaviorID).
		Order("start_time DESC").
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoOpenEvent
		}
		return nil, fmt.Errorf("find open event: %w", err)
	}
	return &event, nil
}

// History 返回行为的全部区间，按开始时间倒序。
func (s *EventService) History(behaviorID uint) ([]db.Event, error) {
	var events []db.Event
	if err := s.db.Where("behavior_id = ?", behaviorID).
		Order("start_time DESC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// StartTimes 返回行为全部区间的开始时间，按时间升序，供纪录与风险计算使用。
func (s *EventService) StartTimes(behaviorID uint) ([]time.Time, error) {
	var events []db.Event
	if err := s.db.Select("start_time").
		Where("behavior_id = ?", behaviorID).
		Order("start_time ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list event start times: %w", err)
	}

	starts := make([]time.Time, 0, len(events))
	for _, event := range events {
		starts = append(starts, event.StartTime)
	}
	return starts, nil
}

// Status 计算行为在 now 时刻的持续状态：日历分解、个人纪录、里程碑与同星期几风险。
// 没有任何历史记录时返回 HasData=false 的空状态，而不是错误。
func (s *EventService) Status(behaviorID uint, now time.Time) (*StreakStatus, error) {
	var behavior db.Behavior
	if err := s.db.First(&behavior, behaviorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBehaviorNotFound
		}
		return nil, fmt.Errorf("find behavior: %w", err)
	}

	status := &StreakStatus{Behavior: behavior}

	var latest db.Event
	err := s.db.Where("behavior_id = ?", behaviorID).
		Order("start_time DESC").
		First(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return status, nil
		}
		return nil, fmt.Errorf("find latest event: %w", err)
	}

	anchor := latest.StartTime.In(now.Location())
	elapsed := now.Sub(anchor)
	if elapsed < 0 {
		elapsed = 0
	}

	starts, err := s.StartTimes(behaviorID)
	if err != nil {
		return nil, err
	}

	status.HasData = true
	status.Open = latest.EndTime == nil
	status.AnchorTime = anchor
	status.Breakdown = Elapsed(anchor, now)
	status.ElapsedMinutes = ElapsedMinutes(anchor, now)
	status.Record = PersonalRecord(starts, elapsed)
	status.Milestone = ComputeMilestone(elapsed, status.Record)
	status.Risk = ComputeWeekdayRisk(starts, now)

	return status, nil
}
