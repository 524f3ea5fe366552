package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr        string
	Port              string
	DatabasePath      string
	SessionSecret     string
	GinMode           string
	Timezone          string
	Location          *time.Location
	SuperRootUserName string
	SuperRootPassword string
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
// 日记内所有的时间展示与推算都固定在 JOURNAL_TIMEZONE 指定的时区完成。
func Load() AppConfig {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	databasePath := strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	if databasePath == "" {
		databasePath = "looplog.db"
	}

	sessionSecret := strings.TrimSpace(os.Getenv("SESSION_SECRET"))
	if sessionSecret == "" {
		sessionSecret = "looplog-dev-secret"
	}

	ginMode := strings.TrimSpace(os.Getenv("GIN_MODE"))
	if ginMode == "" {
		ginMode = "release"
	}

	timezone := strings.TrimSpace(os.Getenv("JOURNAL_TIMEZONE"))
	if timezone == "" {
		timezone = "America/Bogota"
	}

	location, err := time.LoadLocation(timezone)
	if err != nil {
		log.Printf("无法加载时区 %s，回退到系统本地时区: %v", timezone, err)
		timezone = "Local"
		location = time.Local
	}

	superRootUserName := strings.TrimSpace(os.Getenv("SUPER_ROOT_USER_NAME"))
	superRootPassword := strings.TrimSpace(os.Getenv("SUPER_ROOT_PASSWORD"))

	return AppConfig{
		ListenAddr:        listenAddr,
		Port:              port,
		DatabasePath:      databasePath,
		SessionSecret:     sessionSecret,
		GinMode:           ginMode,
		Timezone:          timezone,
		Location:          location,
		SuperRootUserName: superRootUserName,
		SuperRootPassword: superRootPassword,
	}
}
