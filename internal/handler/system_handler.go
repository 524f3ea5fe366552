package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/looplog/internal/service"
)

type updateSettingsRequest struct {
	SiteName         string `json:"site_name"`
	AIProvider       string `json:"ai_provider"`
	OpenAIAPIKey     string `json:"openai_api_key"`
	DeepSeekAPIKey   string `json:"deepseek_api_key"`
	AIClassifyPrompt string `json:"ai_classify_prompt"`
	HistoryMasked    bool   `json:"history_masked"`
	AutoClassify     bool   `json:"auto_classify"`
}

type testAIRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

// GetSystemSettings 返回当前系统设置。
func (a *API) GetSystemSettings(c *gin.Context) {
	settings, err := a.system.GetSettings()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取系统设置失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": serializeSettings(settings)})
}

// UpdateSystemSettings 更新系统设置。
func (a *API) UpdateSystemSettings(c *gin.Context) {
	var req updateSettingsRequest
	if !bindJSON(c, &req, "无效的请求数据") {
		return
	}

	settings, err := a.system.UpdateSettings(service.SystemSettingsInput{
		SiteName:         req.SiteName,
		AIProvider:       req.AIProvider,
		OpenAIAPIKey:     req.OpenAIAPIKey,
		DeepSeekAPIKey:   req.DeepSeekAPIKey,
		AIClassifyPrompt: req.AIClassifyPrompt,
		HistoryMasked:    req.HistoryMasked,
		AutoClassify:     req.AutoClassify,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "保存系统设置失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"settings": serializeSettings(settings)})
}

// TestAIConnection 用给定的 provider 与 key 探测 AI 接口可用性。
func (a *API) TestAIConnection(c *gin.Context) {
	var req testAIRequest
	if !bindJSON(c, &req, "无效的请求数据") {
		return
	}

	if err := a.system.TestAIConnection(c.Request.Context(), req.Provider, req.APIKey); err != nil {
		if errors.Is(err, service.ErrAIAPIKeyMissing) {
			respondError(c, http.StatusBadRequest, "请填写 API Key")
			return
		}
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "连接测试通过"})
}

func serializeSettings(settings service.SystemSettings) gin.H {
	return gin.H{
		"site_name":          settings.SiteName,
		"ai_provider":        settings.AIProvider,
		"openai_api_key":     settings.OpenAIAPIKey,
		"deepseek_api_key":   settings.DeepSeekAPIKey,
		"ai_classify_prompt": settings.AIClassifyPrompt,
		"history_masked":     settings.HistoryMasked,
		"auto_classify":      settings.AutoClassify,
	}
}
