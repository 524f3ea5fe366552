package service

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/looplog/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrReflectionNotFound 在指定反思不存在时返回
	ErrReflectionNotFound = errors.New("reflection not found")
	// ErrReflectionEmpty 当文本与情绪均为空时返回，此时不产生任何写入
	ErrReflectionEmpty = errors.New("reflection needs text or at least one emotion")
	// ErrInvalidCategoryCode 当手动指定的分类码不在类目表中时返回
	ErrInvalidCategoryCode = errors.New("invalid category code")
)

// EmotionOption 表示固定情绪词表中的一项（emoji + 名称）。
type EmotionOption struct {
	Icon  string
	Label string
}

// emotionVocabulary 是表单多选的固定情绪词表，沿用最初版本的七项。
var emotionVocabulary = []EmotionOption{
	{Icon: "😰", Label: "Ansioso"},
	{Icon: "😡", Label: "Irritado / Rabia contenida"},
	{Icon: "💪", Label: "Firme / Decidido"},
	{Icon: "😌", Label: "Aliviado / Tranquilo"},
	{Icon: "😓", Label: "Culpable"},
	{Icon: "🥱", Label: "Apático / Cansado"},
	{Icon: "😔", Label: "Triste"},
}

// EmotionOptions 返回情绪词表副本。
func EmotionOptions() []EmotionOption {
	options := make([]EmotionOption, len(emotionVocabulary))
	copy(options, emotionVocabulary)
	return options
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// CountReflectionWords 统计反思文本的词数，与表单上的实时字数提示保持一致。
func CountReflectionWords(text string) int {
	return len(wordPattern.FindAllString(text, -1))
}

// ReflectionService 负责反思的写入、查询与导出
type ReflectionService struct {
	db *gorm.DB
}

// ReflectionEmotionInput 定义提交时选择的单个情绪
type ReflectionEmotionInput struct {
	Icon  string
	Label string
}

// ReflectionInput 定义创建反思时的输入对象
// OccurredAt 为零值时取当前时间；BehaviorID 可空
type ReflectionInput struct {
	OccurredAt time.Time
	BehaviorID *uint
	Emotions   []ReflectionEmotionInput
	Text       string
}

// ReflectionFilter 描述查询与导出共用的过滤条件
type ReflectionFilter struct {
	From         *time.Time
	To           *time.Time
	BehaviorID   *uint
	EmotionLabel string
	Search       string
}

// NewReflectionService 构造 ReflectionService
func NewReflectionService(gdb *gorm.DB) *ReflectionService {
	return &ReflectionService{db: gdb}
}

// Create 保存一条反思：文本与情绪至少要有其一，否则拒绝写入。
func (s *ReflectionService) Create(input ReflectionInput) (*db.Reflection, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" && len(input.Emotions) == 0 {
		return nil, ErrReflectionEmpty
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	reflection := db.Reflection{
		OccurredAt:     occurredAt,
		BehaviorID:     input.BehaviorID,
		Text:           text,
		WordCount:      CountReflectionWords(text),
		CategoryStatus: db.CategoryStatusUnclassified,
	}

	for i, emotion := range input.Emotions {
		label := strings.TrimSpace(emotion.Label)
		if label == "" {
			continue
		}
		reflection.Emotions = append(reflection.Emotions, db.ReflectionEmotion{
			Icon:     strings.TrimSpace(emotion.Icon),
			Label:    label,
			Position: i,
		})
	}

	if text == "" && len(reflection.Emotions) == 0 {
		return nil, ErrReflectionEmpty
	}

	if err := s.db.Create(&reflection).Error; err != nil {
		return nil, fmt.Errorf("create reflection: %w", err)
	}

	return &reflection, nil
}

// Get 根据 ID 获取反思（含情绪标签）。
func (s *ReflectionService) Get(id uint) (*db.Reflection, error) {
	var reflection db.Reflection
	if err := s.db.Preload("Emotions", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
	}).First(&reflection, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReflectionNotFound
		}
		return nil, fmt.Errorf("get reflection: %w", err)
	}
	return &reflection, nil
}

// List 返回过滤后的反思，按发生时间倒序。
func (s *ReflectionService) List(filter ReflectionFilter) ([]db.Reflection, error) {
	var reflections []db.Reflection

	query := s.db.Model(&db.Reflection{}).Preload("Emotions", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
	})

	if filter.From != nil {
		query = query.Where("occurred_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("occurred_at <= ?", *filter.To)
	}
	if filter.BehaviorID != nil {
		query = query.Where("behavior_id = ?", *filter.BehaviorID)
	}
	if filter.EmotionLabel != "" {
		query = query.Where("id IN (?)", s.db.Model(&db.ReflectionEmotion{}).
			Select("reflection_id").
			Where("label = ?", strings.TrimSpace(filter.EmotionLabel)))
	}
	if filter.Search != "" {
		like := fmt.Sprintf("%%%s%%", strings.TrimSpace(filter.Search))
		query = query.Where("text LIKE ?", like)
	}

	if err := query.Order("occurred_at DESC").Find(&reflections).Error; err != nil {
		return nil, fmt.Errorf("list reflections: %w", err)
	}

	return reflections, nil
}

// Pending 返回所有尚未获得有效分类的反思，按发生时间升序补课。
func (s *ReflectionService) Pending() ([]db.Reflection, error) {
	var reflections []db.Reflection
	if err := s.db.Where("category_status = ? AND text <> ''", db.CategoryStatusUnclassified).
		Order("occurred_at ASC").
		Find(&reflections).Error; err != nil {
		return nil, fmt.Errorf("list pending reflections: %w", err)
	}
	return reflections, nil
}

// UpdateCategory 手动覆盖分类码，写入前校验编码存在。
func (s *ReflectionService) UpdateCategory(id uint, code string) (*db.Reflection, error) {
	code = strings.TrimSpace(code)
	if !IsValidTaxonomyCode(code) {
		return nil, ErrInvalidCategoryCode
	}

	reflection, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"category_code":   code,
		"category_status": db.CategoryStatusUserModified,
	}
	if err := s.db.Model(&db.Reflection{}).Where("id = ?", reflection.ID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update reflection category: %w", err)
	}

	reflection.CategoryCode = code
	reflection.CategoryStatus = db.CategoryStatusUserModified
	return reflection, nil
}

// ExportCSV 将过滤后的反思导出为 CSV。
// 列与历史版本保持一致：序号、行为、日期、时间、情绪、反思全文、字数。
func (s *ReflectionService) ExportCSV(filter ReflectionFilter, loc *time.Location) ([]byte, error) {
	reflections, err := s.List(filter)
	if err != nil {
		return nil, err
	}

	behaviorNames, err := s.behaviorNames()
	if err != nil {
		return nil, err
	}

	if loc == nil {
		loc = time.Local
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"#", "行为", "日期", "时间", "情绪", "反思全文", "字数"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for i, reflection := range reflections {
		behavior := ""
		if reflection.BehaviorID != nil {
			behavior = behaviorNames[*reflection.BehaviorID]
		}

		emotions := make([]string, 0, len(reflection.Emotions))
		for _, emotion := range reflection.Emotions {
			emotions = append(emotions, emotion.Icon)
		}

		occurred := reflection.OccurredAt.In(loc)
		row := []string{
			strconv.Itoa(i + 1),
			behavior,
			occurred.Format("2006-01-02"),
			occurred.Format("15:04"),
			strings.Join(emotions, " "),
			reflection.Text,
			strconv.Itoa(reflection.WordCount),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return buf.Bytes(), nil
}

func (s *ReflectionService) behaviorNames() (map[uint]string, error) {
	var behaviors []db.Behavior
	if err := s.db.Find(&behaviors).Error; err != nil {
		return nil, fmt.Errorf("list behaviors for export: %w", err)
	}

	names := make(map[uint]string, len(behaviors))
	for _, behavior := range behaviors {
		names[behavior.ID] = behavior.Name
	}
	return names, nil
}
