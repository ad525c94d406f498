// internal/adminapi/routes/rules_test.go
package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// fakeBus фиксирует опубликованные сообщения шины
type fakeBus struct {
	subjects []string
	payloads []interface{}
}

func (f *fakeBus) Publish(subject string, payload interface{}) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, payload)
	return nil
}

func setupValidateRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewRulesHandler(createTestLogger(t), nil, &fakeBus{})
	router := gin.New()
	router.POST("/rules/validate", handler.ValidateRule)
	return router
}

// setupRulesRouter монтирует роуты, отказывающие до обращения к
// хранилищу: пригодно для проверки формата ошибок
func setupRulesRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewRulesHandler(createTestLogger(t), nil, &fakeBus{})
	router := gin.New()
	router.GET("/rules", handler.GetRules)
	router.POST("/rules", handler.CreateRule)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestValidateRule_Valid(t *testing.T) {
	router := setupValidateRouter(t)

	w := postJSON(t, router, "/rules/validate", map[string]interface{}{
		"name":    "no-spam",
		"chat_id": 100,
		"enabled": true,
		"conditions": []map[string]interface{}{
			{"type": "text_contains", "text": "спам"},
		},
		"actions": []map[string]interface{}{
			{"type": "delete"},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if body["valid"] != true {
		t.Errorf("Expected valid rule, got %v", body)
	}
}

func TestValidateRule_BadRegex(t *testing.T) {
	router := setupValidateRouter(t)

	w := postJSON(t, router, "/rules/validate", map[string]interface{}{
		"name":    "bad-regex",
		"enabled": true,
		"conditions": []map[string]interface{}{
			{"type": "regex", "pattern": "(unclosed"},
		},
		"actions": []map[string]interface{}{
			{"type": "delete"},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if body["valid"] != false {
		t.Error("Invalid regex should fail validation")
	}
	errs, ok := body["errors"].([]interface{})
	if !ok || len(errs) == 0 {
		t.Errorf("Expected validation errors, got %v", body["errors"])
	}
}

func TestValidateRule_MatchEverythingWarning(t *testing.T) {
	router := setupValidateRouter(t)

	// match_all без условий валидно, но опасно — клиент предупреждается
	w := postJSON(t, router, "/rules/validate", map[string]interface{}{
		"name":      "catch-all",
		"enabled":   true,
		"match_all": true,
		"actions": []map[string]interface{}{
			{"type": "log"},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if body["valid"] != true {
		t.Errorf("Catch-all rule should still be valid: %v", body)
	}
	warnings, ok := body["warnings"].([]interface{})
	if !ok || len(warnings) != 1 {
		t.Errorf("Expected exactly one warning, got %v", body["warnings"])
	}
}

func TestCreateRule_InvalidRuleCode(t *testing.T) {
	router := setupRulesRouter(t)

	w := postJSON(t, router, "/rules", map[string]interface{}{
		"name":    "bad-regex",
		"enabled": true,
		"conditions": []map[string]interface{}{
			{"type": "regex", "pattern": "(unclosed"},
		},
		"actions": []map[string]interface{}{
			{"type": "delete"},
		},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if body["code"] != "RULE_INVALID" {
		t.Errorf("Expected RULE_INVALID code, got %v", body["code"])
	}
}

func TestCreateRule_BadBodyCode(t *testing.T) {
	router := setupRulesRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/rules", bytes.NewReader([]byte("{{{")))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if body["code"] != "VALIDATION_ERROR" {
		t.Errorf("Expected VALIDATION_ERROR code, got %v", body["code"])
	}
}

func TestGetRules_MissingChatIDCode(t *testing.T) {
	router := setupRulesRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/rules", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if body["code"] != "VALIDATION_ERROR" {
		t.Errorf("Expected VALIDATION_ERROR code, got %v", body["code"])
	}
}

func TestValidateRule_BadBody(t *testing.T) {
	router := setupValidateRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/rules/validate", bytes.NewReader([]byte("{{{")))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", w.Code)
	}
}
