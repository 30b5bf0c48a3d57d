package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEvolutionClient_SendText(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("apikey")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewEvolutionClient(server.URL, "secret-key", nil)
	err := client.SendText(context.Background(), "pizzaria-ze", "5511999990000@s.whatsapp.net", "Olá!")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}

	if gotPath != "/message/sendText/pizzaria-ze" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAPIKey != "secret-key" {
		t.Errorf("apikey header = %q", gotAPIKey)
	}
	if gotBody["number"] != "5511999990000" {
		t.Errorf("number = %v, want bare number without domain", gotBody["number"])
	}
	if gotBody["text"] != "Olá!" {
		t.Errorf("text = %v", gotBody["text"])
	}
}

func TestEvolutionClient_SendMedia(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewEvolutionClient(server.URL, "secret-key", nil)
	err := client.SendMedia(context.Background(), "pizzaria-ze", "5511999990000",
		"https://cdn.example.com/pizza.jpg", "Pizza Margherita")
	if err != nil {
		t.Fatalf("SendMedia: %v", err)
	}

	if gotPath != "/message/sendMedia/pizzaria-ze" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["media"] != "https://cdn.example.com/pizza.jpg" {
		t.Errorf("media = %v", gotBody["media"])
	}
	if gotBody["caption"] != "Pizza Margherita" {
		t.Errorf("caption = %v", gotBody["caption"])
	}
}

func TestEvolutionClient_SendTextRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"instance not connected"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewEvolutionClient(server.URL, "secret-key", nil)
	err := client.SendText(context.Background(), "pizzaria-ze", "5511999990000", "Olá!")
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestEvolutionClient_Validation(t *testing.T) {
	client := NewEvolutionClient("http://localhost:1", "key", nil)

	if err := client.SendText(context.Background(), "inst", "5511999990000", "  "); err == nil {
		t.Error("expected error for blank text")
	}
	if err := client.SendText(context.Background(), "inst", "", "oi"); err == nil {
		t.Error("expected error for missing recipient")
	}

	noKey := NewEvolutionClient("http://localhost:1", "", nil)
	if err := noKey.SendText(context.Background(), "inst", "5511999990000", "oi"); err == nil {
		t.Error("expected error for missing api key")
	}
}
