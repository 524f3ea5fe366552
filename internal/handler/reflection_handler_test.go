package handler

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/looplog/internal/db"
	"github.com/looplog/internal/service"
)

type fakeClassifier struct {
	classifyReflection func(ctx context.Context, id uint) (*db.Reflection, service.ClassifyResult, error)
}

func (f fakeClassifier) ClassifyText(ctx context.Context, text string) (service.ClassifyResult, error) {
	return service.ClassifyResult{}, errors.New("not implemented")
}

func (f fakeClassifier) ClassifyReflection(ctx context.Context, id uint) (*db.Reflection, service.ClassifyResult, error) {
	if f.classifyReflection == nil {
		return nil, service.ClassifyResult{}, errors.New("not implemented")
	}
	return f.classifyReflection(ctx, id)
}

func (f fakeClassifier) ClassifyPending(ctx context.Context) (int, int, error) {
	return 0, 0, errors.New("not implemented")
}

func TestCreateReflectionRequiresContent(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	req := jsonRequest(t, http.MethodPost, "/api/reflections", map[string]any{
		"text":     "   ",
		"emotions": []string{},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	api.CreateReflection(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateReflectionParsesEmotionSelection(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	req := jsonRequest(t, http.MethodPost, "/api/reflections", map[string]any{
		"date":     "2024-05-03",
		"time":     "21:15:00",
		"emotions": []string{"😰 Ansioso", "💪 Firme / Decidido"},
		"text":     "Hoy resistí el impulso.",
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	api.CreateReflection(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var stored db.Reflection
	if err := db.DB.Preload("Emotions").First(&stored).Error; err != nil {
		t.Fatalf("failed to load reflection: %v", err)
	}
	if stored.WordCount != 4 {
		t.Fatalf("expected word count 4, got %d", stored.WordCount)
	}
	if len(stored.Emotions) != 2 {
		t.Fatalf("expected 2 emotions, got %d", len(stored.Emotions))
	}
	if stored.Emotions[0].Icon != "😰" || stored.Emotions[0].Label != "Ansioso" {
		t.Fatalf("unexpected first emotion: %+v", stored.Emotions[0])
	}
	if stored.Emotions[1].Label != "Firme / Decidido" {
		t.Fatalf("unexpected second emotion: %+v", stored.Emotions[1])
	}
}

func TestCreateReflectionAutoClassifyFailureKeepsRecord(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	system := service.NewSystemSettingService(db.DB)
	if _, err := system.UpdateSettings(service.SystemSettingsInput{
		SiteName:     "LoopLog",
		AIProvider:   service.AIProviderOpenAI,
		AutoClassify: true,
	}); err != nil {
		t.Fatalf("failed to enable auto classify: %v", err)
	}

	api.SetClassifier(fakeClassifier{classifyReflection: func(ctx context.Context, id uint) (*db.Reflection, service.ClassifyResult, error) {
		return nil, service.ClassifyResult{}, errors.New("upstream down")
	}})

	req := jsonRequest(t, http.MethodPost, "/api/reflections", map[string]any{
		"text": "recaí al pasar por la tienda",
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	api.CreateReflection(c)

	// 分类失败不影响保存，只附带警告
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "warning") {
		t.Fatalf("expected warning in response, got %s", w.Body.String())
	}

	var count int64
	if err := db.DB.Model(&db.Reflection{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count reflections: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected reflection persisted, got %d rows", count)
	}
}

func TestUpdateReflectionCategoryRejectsUnknownCode(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	reflections := service.NewReflectionService(db.DB)
	reflection, err := reflections.Create(service.ReflectionInput{Text: "texto"})
	if err != nil {
		t.Fatalf("failed to seed reflection: %v", err)
	}

	req := jsonRequest(t, http.MethodPut, "/api/reflections/1/category", map[string]any{
		"code": "9.9",
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{gin.Param{Key: "id", Value: "1"}}

	api.UpdateReflectionCategory(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}

	var stored db.Reflection
	if err := db.DB.First(&stored, reflection.ID).Error; err != nil {
		t.Fatalf("failed to reload reflection: %v", err)
	}
	if stored.CategoryStatus != db.CategoryStatusUnclassified {
		t.Fatalf("expected reflection untouched, got %s", stored.CategoryStatus)
	}
}

func TestExportReflectionsCSVAttachment(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	reflections := service.NewReflectionService(db.DB)
	if _, err := reflections.Create(service.ReflectionInput{
		Text: "salí a caminar en vez de ceder",
		Emotions: []service.ReflectionEmotionInput{
			{Icon: "😌", Label: "Aliviado / Tranquilo"},
		},
	}); err != nil {
		t.Fatalf("failed to seed reflection: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/reflections/export", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	api.ExportReflectionsCSV(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	disposition := w.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "reflexiones_") || !strings.HasSuffix(disposition, `.csv"`) {
		t.Fatalf("unexpected content disposition %q", disposition)
	}

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus one row, got %d", len(records))
	}
	if records[0][0] != "#" || records[0][5] != "反思全文" {
		t.Fatalf("unexpected header %v", records[0])
	}
	if records[1][4] != "😌" {
		t.Fatalf("expected emotion icon column, got %q", records[1][4])
	}
}
