package service

import (
	"errors"
	"testing"
	"time"

	"github.com/looplog/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupEventTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(&db.Behavior{}, &db.Event{}, &db.Reflection{}, &db.ReflectionEmotion{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	return func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

func createTestBehavior(t *testing.T, name string) db.Behavior {
	t.Helper()
	behavior := db.Behavior{Name: name, Icon: "✊🏽", Status: "active"}
	if err := db.DB.Create(&behavior).Error; err != nil {
		t.Fatalf("failed to seed behavior: %v", err)
	}
	return behavior
}

func TestEventServiceStartClosesPriorOpen(t *testing.T) {
	cleanup := setupEventTestDB(t)
	defer cleanup()

	behavior := createTestBehavior(t, "La Iniciativa Aquella")
	svc := NewEventService(db.DB)

	t0 := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

	first, err := svc.Start(EventInput{BehaviorID: behavior.ID, StartTime: t0})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if first.EndTime != nil {
		t.Fatal("expected first event to be open")
	}

	// 10 分钟后再次开启，旧区间应以新开始时间关闭
	t1 := t0.Add(10 * time.Minute)
	second, err := svc.Start(EventInput{BehaviorID: behavior.ID, StartTime: t1})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	var reloaded db.Event
	if err := db.DB.First(&reloaded, first.ID).Error; err != nil {
		t.Fatalf("failed to reload first event: %v", err)
	}
	if reloaded.EndTime == nil || !reloaded.EndTime.Equal(t1) {
		t.Fatalf("expected first event closed at %s, got %v", t1, reloaded.EndTime)
	}
	if !second.StartTime.Equal(t1) {
		t.Fatalf("expected second event to start at %s, got %s", t1, second.StartTime)
	}

	open, err := svc.Open(behavior.ID)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if open.ID != second.ID {
		t.Fatalf("expected event %d to be open, got %d", second.ID, open.ID)
	}
}

func TestEventServiceStartDoesNotTouchOtherBehaviors(t *testing.T) {
	cleanup := setupEventTestDB(t)
	defer cleanup()

	behaviorA := createTestBehavior(t, "La Iniciativa Aquella")
	behaviorB := createTestBehavior(t, "La Iniciativa de Pago")
	svc := NewEventService(db.DB)

	t0 := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	if _, err := svc.Start(EventInput{BehaviorID: behaviorA.ID, StartTime: t0}); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if _, err := svc.Start(EventInput{BehaviorID: behaviorB.ID, StartTime: t0.Add(time.Hour)}); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	// 行为 A 的开启区间不受行为 B 影响
	openA, err := svc.Open(behaviorA.ID)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if openA.EndTime != nil {
		t.Fatal("expected behavior A event to remain open")
	}
}

func TestEventServiceCloseWithoutOpen(t *testing.T) {
	cleanup := setupEventTestDB(t)
	defer cleanup()

	behavior := createTestBehavior(t, "La Iniciativa Aquella")
	svc := NewEventService(db.DB)

	if _, err := svc.Close(behavior.ID, time.Now()); !errors.Is(err, ErrNoOpenEvent) {
		t.Fatalf("expected ErrNoOpenEvent, got %v", err)
	}
}

func TestEventServiceStatusEmptyState(t *testing.T) {
	cleanup := setupEventTestDB(t)
	defer cleanup()

	behavior := createTestBehavior(t, "La Iniciativa Aquella")
	svc := NewEventService(db.DB)

	status, err := svc.Status(behavior.ID, time.Now())
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.HasData {
		t.Fatal("expected empty state without events")
	}
	if !status.Breakdown.IsZero() {
		t.Fatalf("expected zero breakdown, got %+v", status.Breakdown)
	}
}

func TestEventServiceStatusComputesDerivedState(t *testing.T) {
	cleanup := setupEventTestDB(t)
	defer cleanup()

	behavior := createTestBehavior(t, "La Iniciativa Aquella")
	svc := NewEventService(db.DB)

	day := func(d int) time.Time {
		return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
	}

	for _, d := range []int{1, 3, 10, 11} {
		if _, err := svc.Start(EventInput{BehaviorID: behavior.ID, StartTime: day(d)}); err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	}

	now := day(12).Add(6 * time.Hour)
	status, err := svc.Status(behavior.ID, now)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}

	if !status.HasData || !status.Open {
		t.Fatalf("expected open streak with data, got %+v", status)
	}
	if !status.AnchorTime.Equal(day(11)) {
		t.Fatalf("expected anchor at most recent start, got %s", status.AnchorTime)
	}
	if status.Record != 7*24*time.Hour {
		t.Fatalf("expected 7 day record, got %s", status.Record)
	}
	if status.Breakdown.Days != 1 || status.Breakdown.Hours != 6 {
		t.Fatalf("unexpected breakdown: %+v", status.Breakdown)
	}
	if status.Milestone.Label != MilestoneLabelCritical {
		t.Fatalf("expected critical milestone at 30 hours, got %s", status.Milestone.Label)
	}
	if status.Risk.Total != 4 {
		t.Fatalf("expected 4 risk samples, got %d", status.Risk.Total)
	}
}

func TestEventServiceStatusSingleRecordSelfReferential(t *testing.T) {
	cleanup := setupEventTestDB(t)
	defer cleanup()

	behavior := createTestBehavior(t, "La Iniciativa Aquella")
	svc := NewEventService(db.DB)

	t0 := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	if _, err := svc.Start(EventInput{BehaviorID: behavior.ID, StartTime: t0}); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	// 只有一条记录时纪录退化为当前持续时长
	now := t0.Add(30 * time.Second)
	status, err := svc.Status(behavior.ID, now)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.ElapsedMinutes != 0 {
		t.Fatalf("expected ~0 elapsed minutes, got %d", status.ElapsedMinutes)
	}
	if status.Record != 30*time.Second {
		t.Fatalf("expected self-referential record, got %s", status.Record)
	}
}
