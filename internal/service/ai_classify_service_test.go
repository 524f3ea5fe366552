package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/looplog/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeHTTPClient struct {
	handler func(*http.Request) (*http.Response, error)
}

func (f fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if f.handler == nil {
		return nil, errors.New("no handler configured")
	}
	return f.handler(req)
}

func chatResponseBody(t *testing.T, content string) io.ReadCloser {
	t.Helper()
	response := chatCompletionResponse{}
	response.Choices = append(response.Choices, struct {
		Message chatMessage `json:"message"`
	}{Message: chatMessage{Role: "assistant", Content: content}})
	response.Usage.PromptTokens = 42
	response.Usage.CompletionTokens = 3

	body, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("failed to marshal chat response: %v", err)
	}
	return io.NopCloser(bytes.NewReader(body))
}

func setupClassifyTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(&db.Reflection{}, &db.ReflectionEmotion{}, &db.SystemSetting{}); err != nil {
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

func seedClassifySettings(t *testing.T, system *SystemSettingService) {
	t.Helper()
	if _, err := system.UpdateSettings(SystemSettingsInput{
		SiteName:     "LoopLog",
		AIProvider:   AIProviderOpenAI,
		OpenAIAPIKey: "sk-test",
	}); err != nil {
		t.Fatalf("failed to seed settings: %v", err)
	}
}

func TestAIClassifyServiceValidCode(t *testing.T) {
	cleanup := setupClassifyTestDB(t)
	defer cleanup()

	system := NewSystemSettingService(db.DB)
	seedClassifySettings(t, system)

	reflections := NewReflectionService(db.DB)
	reflection, err := reflections.Create(ReflectionInput{Text: "pasé por la ruta de siempre y casi entro"})
	if err != nil {
		t.Fatalf("failed to seed reflection: %v", err)
	}

	svc := NewAIClassifyService(db.DB, system)
	svc.SetOpenAIBaseURL("https://openai.test/v1")
	svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected authorization header %s", got)
		}

		var payload chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(payload.Messages) != 2 {
			t.Fatalf("expected system+user messages, got %d", len(payload.Messages))
		}
		if !strings.Contains(payload.Messages[1].Content, "2.3") {
			t.Fatal("expected taxonomy codes enumerated in prompt")
		}

		return &http.Response{StatusCode: http.StatusOK, Body: chatResponseBody(t, "2.3")}, nil
	}})

	updated, result, err := svc.ClassifyReflection(context.Background(), reflection.ID)
	if err != nil {
		t.Fatalf("ClassifyReflection returned error: %v", err)
	}
	if !result.Valid || result.Code != "2.3" {
		t.Fatalf("expected valid code 2.3, got %+v", result)
	}
	if result.Entry.Subcategory != "特定场所或路线" {
		t.Fatalf("unexpected taxonomy entry: %+v", result.Entry)
	}
	if updated.CategoryStatus != db.CategoryStatusClassifiedByAI {
		t.Fatalf("expected classified_by_ai, got %s", updated.CategoryStatus)
	}

	var stored db.Reflection
	if err := db.DB.First(&stored, reflection.ID).Error; err != nil {
		t.Fatalf("failed to reload reflection: %v", err)
	}
	if stored.CategoryCode != "2.3" {
		t.Fatalf("expected persisted code 2.3, got %s", stored.CategoryCode)
	}
}

func TestAIClassifyServiceHallucinatedCode(t *testing.T) {
	cleanup := setupClassifyTestDB(t)
	defer cleanup()

	system := NewSystemSettingService(db.DB)
	seedClassifySettings(t, system)

	reflections := NewReflectionService(db.DB)
	reflection, err := reflections.Create(ReflectionInput{Text: "texto cualquiera"})
	if err != nil {
		t.Fatalf("failed to seed reflection: %v", err)
	}

	svc := NewAIClassifyService(db.DB, system)
	svc.SetOpenAIBaseURL("https://openai.test/v1")
	svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: chatResponseBody(t, "9.9")}, nil
	}})

	updated, result, err := svc.ClassifyReflection(context.Background(), reflection.ID)
	if err != nil {
		t.Fatalf("ClassifyReflection returned error: %v", err)
	}
	// 幻觉编码不落库：保持未分类而不是存入未知串
	if result.Valid {
		t.Fatal("expected invalid result for unknown code")
	}
	if updated.CategoryCode != "" {
		t.Fatalf("expected empty code, got %s", updated.CategoryCode)
	}
	if updated.CategoryStatus != db.CategoryStatusUnclassified {
		t.Fatalf("expected unclassified status, got %s", updated.CategoryStatus)
	}
}

func TestAIClassifyServiceMissingAPIKey(t *testing.T) {
	cleanup := setupClassifyTestDB(t)
	defer cleanup()

	system := NewSystemSettingService(db.DB)
	svc := NewAIClassifyService(db.DB, system)

	if _, err := svc.ClassifyText(context.Background(), "algo"); !errors.Is(err, ErrAIAPIKeyMissing) {
		t.Fatalf("expected ErrAIAPIKeyMissing, got %v", err)
	}
}

func TestAIClassifyServiceClassifyPending(t *testing.T) {
	cleanup := setupClassifyTestDB(t)
	defer cleanup()

	system := NewSystemSettingService(db.DB)
	seedClassifySettings(t, system)

	reflections := NewReflectionService(db.DB)
	responses := map[string]string{
		"noche en vela": "2.1",
		"sin categoría": "no lo sé",
	}
	for text := range responses {
		if _, err := reflections.Create(ReflectionInput{Text: text}); err != nil {
			t.Fatalf("failed to seed reflection: %v", err)
		}
	}

	svc := NewAIClassifyService(db.DB, system)
	svc.SetOpenAIBaseURL("https://openai.test/v1")
	svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		var payload chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		for text, code := range responses {
			if strings.Contains(payload.Messages[1].Content, text) {
				return &http.Response{StatusCode: http.StatusOK, Body: chatResponseBody(t, code)}, nil
			}
		}
		t.Fatalf("unexpected prompt: %s", payload.Messages[1].Content)
		return nil, nil
	}})

	classified, invalid, err := svc.ClassifyPending(context.Background())
	if err != nil {
		t.Fatalf("ClassifyPending returned error: %v", err)
	}
	if classified != 1 || invalid != 1 {
		t.Fatalf("expected 1 classified and 1 invalid, got %d/%d", classified, invalid)
	}
}

func TestTaxonomyLookup(t *testing.T) {
	entry, ok := LookupTaxonomy("3.1")
	if !ok || entry.Category != "认知模式" {
		t.Fatalf("unexpected entry for 3.1: %+v", entry)
	}

	placeholder, ok := LookupTaxonomy("8.8")
	if ok {
		t.Fatal("expected miss for unknown code")
	}
	if placeholder.Category != UnclassifiedTaxonomyEntry.Category {
		t.Fatalf("expected placeholder entry, got %+v", placeholder)
	}

	if IsValidTaxonomyCode(" 2.2 ") != true {
		t.Fatal("expected trimmed code to validate")
	}
}
