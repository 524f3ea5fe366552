package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/looplog/internal/db"
	"gorm.io/gorm"
)

const (
	defaultOpenAIClassifyModel   = "gpt-4o-mini"
	defaultDeepSeekClassifyModel = "deepseek-chat"
	defaultClassifyMaxTokens     = 8
	defaultClassifyTemperature   = 0.0
	maxClassifyContentRuneCount  = 4000
)

const defaultClassifySystemPrompt = "你是一个日记分类助手。根据用户的反思文本，从给定的类目表中选出最贴切的一项，仅回复对应的编码（如 2.3），不要输出任何其他文字。"

var classifyCodePattern = regexp.MustCompile(`\d+\.\d+`)

// ClassifyResult 返回一次分类调用的结果。
// Valid 为 false 表示模型输出不在类目表内，此时 Code 为空串。
type ClassifyResult struct {
	Code             string
	Entry            TaxonomyEntry
	Valid            bool
	RawResponse      string
	PromptTokens     int
	CompletionTokens int
}

// ReflectionClassifier 定义反思分类能力，便于在业务层注入不同实现。
type ReflectionClassifier interface {
	ClassifyText(ctx context.Context, text string) (ClassifyResult, error)
	ClassifyReflection(ctx context.Context, id uint) (*db.Reflection, ClassifyResult, error)
	ClassifyPending(ctx context.Context) (classified, invalid int, err error)
}

// AIClassifyService 基于大模型接口把反思文本映射到固定类目表。
type AIClassifyService struct {
	db     *gorm.DB
	client *aiChatClient
}

// NewAIClassifyService 构造默认的 AIClassifyService。
func NewAIClassifyService(gdb *gorm.DB, settings *SystemSettingService) *AIClassifyService {
	return &AIClassifyService{
		db:     gdb,
		client: newAIChatClient(settings, defaultOpenAIClassifyModel, defaultDeepSeekClassifyModel),
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (s *AIClassifyService) SetHTTPClient(client httpDoer) {
	s.client.SetHTTPClient(client)
}

// SetOpenAIBaseURL 覆盖默认的 OpenAI API 地址。
func (s *AIClassifyService) SetOpenAIBaseURL(base string) {
	s.client.SetOpenAIBaseURL(base)
}

// SetDeepSeekBaseURL 覆盖默认的 DeepSeek API 地址。
func (s *AIClassifyService) SetDeepSeekBaseURL(base string) {
	s.client.SetDeepSeekBaseURL(base)
}

// ClassifyText 调用当前配置的 AI 平台对文本分类，并将返回值校验到类目表。
// 模型幻觉出的编码不会报错，而是返回 Valid=false，由调用方落为"未分类"。
func (s *AIClassifyService) ClassifyText(ctx context.Context, text string) (ClassifyResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ClassifyResult{Entry: UnclassifiedTaxonomyEntry}, nil
	}

	userPrompt := buildClassifyPrompt(truncateRunes(trimmed, maxClassifyContentRuneCount))
	logAIExchange("CLASSIFY", "prompt", userPrompt)

	settings, err := s.client.settings.GetSettings()
	if err != nil {
		return ClassifyResult{}, fmt.Errorf("读取系统设置失败: %w", err)
	}

	systemPrompt := strings.TrimSpace(settings.AIClassifyPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultClassifySystemPrompt
	}

	response, err := s.client.callWithSettings(ctx, settings, aiChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    defaultClassifyMaxTokens,
		Temperature:  defaultClassifyTemperature,
	})
	if err != nil {
		return ClassifyResult{}, err
	}

	logAIExchange("CLASSIFY", "response", response.Content)

	result := ClassifyResult{
		RawResponse:      response.Content,
		Entry:            UnclassifiedTaxonomyEntry,
		PromptTokens:     response.PromptTokens,
		CompletionTokens: response.CompletionTokens,
	}

	code := classifyCodePattern.FindString(response.Content)
	if entry, ok := LookupTaxonomy(code); ok {
		result.Code = code
		result.Entry = entry
		result.Valid = true
	}

	return result, nil
}

// ClassifyReflection 对单条反思分类并持久化结果。
// 校验失败时反思保持未分类状态；写入永远只发生在编码通过校验之后。
func (s *AIClassifyService) ClassifyReflection(ctx context.Context, id uint) (*db.Reflection, ClassifyResult, error) {
	var reflection db.Reflection
	if err := s.db.First(&reflection, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ClassifyResult{}, ErrReflectionNotFound
		}
		return nil, ClassifyResult{}, fmt.Errorf("get reflection: %w", err)
	}

	result, err := s.ClassifyText(ctx, reflection.Text)
	if err != nil {
		return &reflection, ClassifyResult{}, err
	}

	code := ""
	status := db.CategoryStatusUnclassified
	if result.Valid {
		code = result.Code
		status = db.CategoryStatusClassifiedByAI
	}

	if err := s.db.Model(&db.Reflection{}).Where("id = ?", reflection.ID).
		Updates(map[string]interface{}{
			"category_code":   code,
			"category_status": status,
		}).Error; err != nil {
		return &reflection, result, fmt.Errorf("persist classification: %w", err)
	}

	reflection.CategoryCode = code
	reflection.CategoryStatus = status
	return &reflection, result, nil
}

// ClassifyPending 为所有未分类的反思补课，返回成功分类与校验失败的条数。
// 单条的接口错误会中断整批并原样返回，已完成的条目保持已写入状态。
func (s *AIClassifyService) ClassifyPending(ctx context.Context) (classified, invalid int, err error) {
	var pending []db.Reflection
	if err := s.db.Where("category_status = ? AND text <> ''", db.CategoryStatusUnclassified).
		Order("occurred_at ASC").
		Find(&pending).Error; err != nil {
		return 0, 0, fmt.Errorf("list pending reflections: %w", err)
	}

	for _, reflection := range pending {
		_, result, err := s.ClassifyReflection(ctx, reflection.ID)
		if err != nil {
			return classified, invalid, err
		}
		if result.Valid {
			classified++
		} else {
			invalid++
		}
	}

	return classified, invalid, nil
}

// buildClassifyPrompt 枚举完整类目表并附上反思原文。
func buildClassifyPrompt(text string) string {
	var builder strings.Builder
	builder.WriteString("类目表：\n")
	for _, entry := range taxonomyEntries {
		builder.WriteString(fmt.Sprintf("%s %s / %s：%s\n", entry.Code, entry.Category, entry.Subcategory, entry.Descriptor))
	}
	builder.WriteString("\n反思原文：\n")
	builder.WriteString(text)
	builder.WriteString("\n\n只回复一个编码。")
	return builder.String()
}

func truncateRunes(input string, limit int) string {
	if limit <= 0 {
		return input
	}
	runes := []rune(input)
	if len(runes) <= limit {
		return input
	}
	return string(runes[:limit])
}
