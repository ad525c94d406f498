// internal/telegram/client_test.go
package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newTestServer поднимает фейковый Bot API и возвращает клиент на него
func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BotToken: "test-token",
		BaseURL:  server.URL,
		Timeout:  2 * time.Second,
	})
	return client, server
}

func TestClient_SendMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	})

	err := client.SendMessage(context.Background(), 100, "привет", 42, "HTML")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if !strings.HasSuffix(gotPath, "/bottest-token/sendMessage") {
		t.Errorf("Unexpected path: %s", gotPath)
	}
	if gotBody["chat_id"].(float64) != 100 {
		t.Errorf("Wrong chat_id: %v", gotBody["chat_id"])
	}
	if gotBody["reply_to_message_id"].(float64) != 42 {
		t.Errorf("Wrong reply_to_message_id: %v", gotBody["reply_to_message_id"])
	}
}

func TestClient_APIError(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":          false,
			"error_code":  400,
			"description": "Bad Request: message to delete not found",
		})
	})

	err := client.DeleteMessage(context.Background(), 100, 55)
	if err == nil {
		t.Fatal("Expected API error")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.Code != 400 || apiErr.Method != "deleteMessage" {
		t.Errorf("Unexpected error details: %+v", apiErr)
	}
}

func TestClient_KickIsBanThenUnban(t *testing.T) {
	var methods []string

	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		methods = append(methods, parts[len(parts)-1])
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	})

	if err := client.KickMember(context.Background(), 100, 7); err != nil {
		t.Fatalf("KickMember failed: %v", err)
	}

	if len(methods) != 2 || methods[0] != "banChatMember" || methods[1] != "unbanChatMember" {
		t.Errorf("Kick should be ban followed by unban, got %v", methods)
	}
}

func TestClient_KickStopsOnBanFailure(t *testing.T) {
	var methods []string

	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		methods = append(methods, parts[len(parts)-1])
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":          false,
			"error_code":  403,
			"description": "Forbidden: not enough rights",
		})
	})

	if err := client.KickMember(context.Background(), 100, 7); err == nil {
		t.Fatal("Expected error when ban fails")
	}
	if len(methods) != 1 {
		t.Errorf("Unban should not be attempted after ban failure, got %v", methods)
	}
}

func TestClient_RestrictMemberClearsPermissions(t *testing.T) {
	var gotBody struct {
		Permissions map[string]bool `json:"permissions"`
		UntilDate   int64           `json:"until_date"`
	}

	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	})

	until := time.Now().Add(time.Hour)
	if err := client.RestrictMember(context.Background(), 100, 7, until); err != nil {
		t.Fatalf("RestrictMember failed: %v", err)
	}

	for name, allowed := range gotBody.Permissions {
		if allowed {
			t.Errorf("Permission %s should be revoked", name)
		}
	}
	if gotBody.UntilDate != until.Unix() {
		t.Errorf("Wrong until_date: %d", gotBody.UntilDate)
	}
}
