package handler

import (
	"time"

	"github.com/looplog/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db          *gorm.DB
	behaviors   *service.BehaviorService
	events      *service.EventService
	reflections *service.ReflectionService
	system      *service.SystemSettingService
	classifier  service.ReflectionClassifier
	location    *time.Location
}

// NewAPI constructs a handler set with shared services.
// location 为日记固定使用的展示时区，所有 now 取值都经过它。
func NewAPI(gdb *gorm.DB, location *time.Location) *API {
	if location == nil {
		location = time.Local
	}

	systemService := service.NewSystemSettingService(gdb)

	return &API{
		db:          gdb,
		behaviors:   service.NewBehaviorService(gdb),
		events:      service.NewEventService(gdb),
		reflections: service.NewReflectionService(gdb),
		system:      systemService,
		classifier:  service.NewAIClassifyService(gdb, systemService),
		location:    location,
	}
}

// SetClassifier 覆盖默认分类实现，主要用于测试。
func (a *API) SetClassifier(classifier service.ReflectionClassifier) {
	if classifier == nil {
		return
	}
	a.classifier = classifier
}

func (a *API) now() time.Time {
	return time.Now().In(a.location)
}
