package main

import (
	"fmt"
	"log"
	"time"

	"github.com/looplog/internal/config"
	"github.com/looplog/internal/db"
	"github.com/looplog/internal/service"
	"golang.org/x/crypto/bcrypt"
)

// 演示数据生成器：固定时间线，方便核对里程碑与风险计算
func main() {
	cfg := config.Load()
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	fmt.Println("开始生成演示数据...")

	createDemoUser()
	createDemoEvents(cfg.Location)
	createDemoReflections(cfg.Location)

	fmt.Println("演示数据生成完成！")
	fmt.Println("用户: admin (密码: admin123)")
}

func createDemoUser() {
	var count int64
	db.DB.Model(&db.User{}).Count(&count)
	if count > 0 {
		fmt.Println("用户已存在，跳过创建")
		return
	}

	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	admin := db.User{
		Username: "admin",
		Password: string(hashedPassword),
	}
	db.DB.Create(&admin)

	fmt.Println("✅ 演示用户创建完成")
}

func createDemoEvents(loc *time.Location) {
	var count int64
	db.DB.Model(&db.Event{}).Count(&count)
	if count > 0 {
		fmt.Println("事件已存在，跳过创建")
		return
	}

	events := service.NewEventService(db.DB)
	base := time.Date(2024, 4, 1, 21, 0, 0, 0, loc)

	// 间隔递增的时间线：最后一段为当前纪录
	offsets := map[uint][]int{
		1: {0, 2, 5, 12, 19},
		2: {1, 8, 15},
	}
	for behaviorID, days := range offsets {
		for _, day := range days {
			if _, err := events.Start(service.EventInput{
				BehaviorID: behaviorID,
				StartTime:  base.AddDate(0, 0, day),
				Source:     "manual",
			}); err != nil {
				log.Fatal("创建事件失败:", err)
			}
		}
	}

	fmt.Println("✅ 演示事件创建完成")
}

func createDemoReflections(loc *time.Location) {
	var count int64
	db.DB.Model(&db.Reflection{}).Count(&count)
	if count > 0 {
		fmt.Println("反思已存在，跳过创建")
		return
	}

	reflections := service.NewReflectionService(db.DB)
	behaviorID := uint(1)

	seeds := []service.ReflectionInput{
		{
			OccurredAt: time.Date(2024, 4, 3, 22, 30, 0, 0, loc),
			BehaviorID: &behaviorID,
			Text:       "Pasé por la ruta de siempre y casi entro. Me devolví a casa caminando.",
			Emotions: []service.ReflectionEmotionInput{
				{Icon: "😰", Label: "Ansioso"},
				{Icon: "💪", Label: "Firme / Decidido"},
			},
		},
		{
			OccurredAt: time.Date(2024, 4, 13, 9, 15, 0, 0, loc),
			Text:       "Dormí mal y amanecí irritado, pero salí a trotar en vez de ceder.",
			Emotions: []service.ReflectionEmotionInput{
				{Icon: "😡", Label: "Irritado / Rabia contenida"},
			},
		},
		{
			OccurredAt: time.Date(2024, 4, 20, 23, 0, 0, 0, loc),
			Emotions: []service.ReflectionEmotionInput{
				{Icon: "😌", Label: "Aliviado / Tranquilo"},
			},
		},
	}
	for _, seed := range seeds {
		if _, err := reflections.Create(seed); err != nil {
			log.Fatal("创建反思失败:", err)
		}
	}

	fmt.Println("✅ 演示反思创建完成")
}
