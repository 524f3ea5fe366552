package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/looplog/internal/service"
)

const dashboardReflectionLimit = 20

// ShowDashboard 渲染日记主页：行为状态卡片、事件表单与反思时间线。
func (a *API) ShowDashboard(c *gin.Context) {
	settings, err := a.system.GetSettings()
	if err != nil {
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{"error": "加载系统设置失败"})
		return
	}

	behaviors, err := a.behaviors.List(true)
	if err != nil {
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{"error": "加载行为列表失败"})
		return
	}

	now := a.now()
	statuses := make([]gin.H, 0, len(behaviors))
	for _, behavior := range behaviors {
		status, err := a.events.Status(behavior.ID, now)
		if err != nil {
			c.HTML(http.StatusInternalServerError, "error.html", gin.H{"error": "计算行为状态失败"})
			return
		}
		statuses = append(statuses, a.serializeStatus(status))
	}

	reflections, err := a.reflections.List(service.ReflectionFilter{})
	if err != nil {
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{"error": "加载反思失败"})
		return
	}
	if len(reflections) > dashboardReflectionLimit {
		reflections = reflections[:dashboardReflectionLimit]
	}

	timeline := make([]gin.H, 0, len(reflections))
	for _, reflection := range reflections {
		timeline = append(timeline, a.serializeReflection(reflection))
	}

	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"siteName":      settings.SiteName,
		"statuses":      statuses,
		"emotions":      service.EmotionOptions(),
		"reflections":   timeline,
		"historyMasked": settings.HistoryMasked,
		"serverNow":     now.Format("2006-01-02 15:04:05"),
	})
}

// ShowSettings 渲染系统设置页面。
func (a *API) ShowSettings(c *gin.Context) {
	settings, err := a.system.GetSettings()
	if err != nil {
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{"error": "加载系统设置失败"})
		return
	}

	c.HTML(http.StatusOK, "settings.html", gin.H{
		"siteName": settings.SiteName,
		"settings": serializeSettings(settings),
		"taxonomy": service.TaxonomyEntries(),
	})
}
