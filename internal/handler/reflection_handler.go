package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/looplog/internal/db"
	"github.com/looplog/internal/service"
)

type createReflectionRequest struct {
	Date       string   `json:"date"`
	Time       string   `json:"time"`
	BehaviorID *uint    `json:"behavior_id"`
	Emotions   []string `json:"emotions"`
	Text       string   `json:"text"`
}

type updateCategoryRequest struct {
	Code string `json:"code"`
}

// CreateReflection 保存一条反思。
// 系统设置开启自动分类且文本非空时顺带调用分类；分类失败只提示，不影响保存。
func (a *API) CreateReflection(c *gin.Context) {
	var req createReflectionRequest
	if !bindJSON(c, &req, "无效的请求数据") {
		return
	}

	occurredAt, err := a.resolveOccurredAt(req.Date, req.Time)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的发生时间")
		return
	}

	input := service.ReflectionInput{
		OccurredAt: occurredAt,
		BehaviorID: req.BehaviorID,
		Text:       req.Text,
	}
	for _, raw := range req.Emotions {
		icon, label, ok := parseEmotionSelection(raw)
		if !ok {
			continue
		}
		input.Emotions = append(input.Emotions, service.ReflectionEmotionInput{Icon: icon, Label: label})
	}

	reflection, err := a.reflections.Create(input)
	if err != nil {
		if errors.Is(err, service.ErrReflectionEmpty) {
			respondError(c, http.StatusBadRequest, "写点什么或至少选择一种情绪。")
			return
		}
		respondError(c, http.StatusInternalServerError, "保存反思失败")
		return
	}

	payload := gin.H{"reflection": a.serializeReflection(*reflection)}

	settings, settingsErr := a.system.GetSettings()
	if settingsErr == nil && settings.AutoClassify && reflection.Text != "" {
		classified, result, classifyErr := a.classifier.ClassifyReflection(c.Request.Context(), reflection.ID)
		if classifyErr != nil {
			payload["warning"] = "已保存，但自动分类失败，可稍后手动补课。"
		} else {
			payload["reflection"] = a.serializeReflection(*classified)
			payload["classification"] = serializeClassifyResult(result)
		}
	}

	c.JSON(http.StatusCreated, payload)
}

// ListReflections 返回过滤后的反思列表。
func (a *API) ListReflections(c *gin.Context) {
	filter, err := a.parseReflectionFilter(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的过滤条件")
		return
	}

	reflections, err := a.reflections.List(filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取反思列表失败")
		return
	}

	payload := make([]gin.H, 0, len(reflections))
	for _, reflection := range reflections {
		payload = append(payload, a.serializeReflection(reflection))
	}
	c.JSON(http.StatusOK, gin.H{"reflections": payload})
}

// ClassifyReflection 对单条反思调用 AI 分类并落库。
func (a *API) ClassifyReflection(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的反思 ID")
		return
	}

	reflection, result, err := a.classifier.ClassifyReflection(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrReflectionNotFound):
			respondError(c, http.StatusNotFound, "反思不存在")
		case errors.Is(err, service.ErrAIAPIKeyMissing):
			respondError(c, http.StatusBadRequest, "请先在系统设置中配置 AI API Key")
		default:
			respondError(c, http.StatusBadGateway, "AI 分类调用失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reflection":     a.serializeReflection(*reflection),
		"classification": serializeClassifyResult(result),
	})
}

// ClassifyPendingReflections 批量补课：对所有未分类且有文本的反思逐条分类。
func (a *API) ClassifyPendingReflections(c *gin.Context) {
	classified, invalid, err := a.classifier.ClassifyPending(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrAIAPIKeyMissing) {
			respondError(c, http.StatusBadRequest, "请先在系统设置中配置 AI API Key")
			return
		}
		respondError(c, http.StatusBadGateway, "AI 分类调用失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"classified": classified, "invalid": invalid})
}

// UpdateReflectionCategory 手动覆盖分类码。
func (a *API) UpdateReflectionCategory(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的反思 ID")
		return
	}

	var req updateCategoryRequest
	if !bindJSON(c, &req, "无效的请求数据") {
		return
	}

	reflection, err := a.reflections.UpdateCategory(id, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrReflectionNotFound):
			respondError(c, http.StatusNotFound, "反思不存在")
		case errors.Is(err, service.ErrInvalidCategoryCode):
			respondError(c, http.StatusBadRequest, "无效的分类编码")
		default:
			respondError(c, http.StatusInternalServerError, "更新分类失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"reflection": a.serializeReflection(*reflection)})
}

// ExportReflectionsCSV 导出过滤后的反思为 CSV 附件。
func (a *API) ExportReflectionsCSV(c *gin.Context) {
	filter, err := a.parseReflectionFilter(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的过滤条件")
		return
	}

	data, err := a.reflections.ExportCSV(filter, a.location)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "导出失败")
		return
	}

	filename := fmt.Sprintf("reflexiones_%s_%s.csv",
		a.now().Format("20060102"), uuid.NewString()[:8])
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// GetEmotionOptions 返回固定情绪词表，供表单多选使用。
func (a *API) GetEmotionOptions(c *gin.Context) {
	options := service.EmotionOptions()
	payload := make([]gin.H, 0, len(options))
	for _, option := range options {
		payload = append(payload, gin.H{"icon": option.Icon, "label": option.Label})
	}
	c.JSON(http.StatusOK, gin.H{"emotions": payload})
}

// GetTaxonomy 返回固定类目表。
func (a *API) GetTaxonomy(c *gin.Context) {
	entries := service.TaxonomyEntries()
	payload := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, gin.H{
			"code":        entry.Code,
			"category":    entry.Category,
			"subcategory": entry.Subcategory,
			"descriptor":  entry.Descriptor,
			"signs":       entry.Signs,
		})
	}
	c.JSON(http.StatusOK, gin.H{"taxonomy": payload})
}

func (a *API) resolveOccurredAt(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	if date == "" {
		if clock != "" {
			return time.Time{}, fmt.Errorf("time without date")
		}
		return a.now(), nil
	}

	if clock == "" {
		clock = "00:00:00"
	}

	parsed, err := time.ParseInLocation("2006-01-02 15:04:05", date+" "+clock, a.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse occurred time: %w", err)
	}
	return parsed, nil
}

// parseEmotionSelection 拆解 "😰 Ansioso" 形式的多选项：首段是 emoji，余下是名称。
func parseEmotionSelection(raw string) (icon, label string, ok bool) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return "", "", false
	}
	if len(fields) == 1 {
		return "", fields[0], true
	}
	return fields[0], strings.Join(fields[1:], " "), true
}

func (a *API) parseReflectionFilter(c *gin.Context) (service.ReflectionFilter, error) {
	filter := service.ReflectionFilter{
		EmotionLabel: strings.TrimSpace(c.Query("emotion")),
		Search:       strings.TrimSpace(c.Query("search")),
	}

	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		from, err := time.ParseInLocation("2006-01-02", raw, a.location)
		if err != nil {
			return filter, fmt.Errorf("parse from: %w", err)
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		to, err := time.ParseInLocation("2006-01-02", raw, a.location)
		if err != nil {
			return filter, fmt.Errorf("parse to: %w", err)
		}
		// 截止日期取当天末尾
		end := to.Add(24*time.Hour - time.Second)
		filter.To = &end
	}
	if raw := strings.TrimSpace(c.Query("behavior_id")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return filter, fmt.Errorf("parse behavior id: %w", err)
		}
		behaviorID := uint(id)
		filter.BehaviorID = &behaviorID
	}

	return filter, nil
}

func (a *API) serializeReflection(reflection db.Reflection) gin.H {
	occurred := reflection.OccurredAt.In(a.location)

	emotions := make([]gin.H, 0, len(reflection.Emotions))
	for _, emotion := range reflection.Emotions {
		emotions = append(emotions, gin.H{"icon": emotion.Icon, "label": emotion.Label})
	}

	payload := gin.H{
		"id":              reflection.ID,
		"date":            occurred.Format("2006-01-02"),
		"time":            occurred.Format("15:04"),
		"behavior_id":     reflection.BehaviorID,
		"emotions":        emotions,
		"text":            reflection.Text,
		"html":            service.RenderReflectionHTML(reflection.Text),
		"word_count":      reflection.WordCount,
		"category_code":   reflection.CategoryCode,
		"category_status": reflection.CategoryStatus,
	}

	if reflection.CategoryCode != "" {
		if entry, ok := service.LookupTaxonomy(reflection.CategoryCode); ok {
			payload["category"] = gin.H{
				"code":        entry.Code,
				"category":    entry.Category,
				"subcategory": entry.Subcategory,
			}
		}
	}

	return payload
}

func serializeClassifyResult(result service.ClassifyResult) gin.H {
	return gin.H{
		"code":  result.Code,
		"valid": result.Valid,
		"entry": gin.H{
			"category":    result.Entry.Category,
			"subcategory": result.Entry.Subcategory,
		},
		"prompt_tokens":     result.PromptTokens,
		"completion_tokens": result.CompletionTokens,
	}
}
