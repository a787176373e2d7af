package weather_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"aural/internal/infra/weather"
)

const sampleResponse = `{
	"current_condition": [{
		"temp_C": "22",
		"temp_F": "72",
		"weatherDesc": [{"value": "Partly cloudy"}]
	}],
	"nearest_area": [{
		"areaName": [{"value": "Seattle"}]
	}]
}`

func TestClient_Current(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/seattle" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("format") != "j1" {
			t.Errorf("format: got %s, want j1", r.URL.Query().Get("format"))
		}
		io.WriteString(w, sampleResponse)
	}))
	defer server.Close()

	client := weather.NewClientWithURL("imperial", server.URL)

	report, err := client.Current(context.Background(), "seattle")
	if err != nil {
		t.Fatalf("Current error: %v", err)
	}
	if report.Temperature != 72 {
		t.Errorf("temperature: got %d, want 72", report.Temperature)
	}
	if report.Unit != "Fahrenheit" {
		t.Errorf("unit: got %s", report.Unit)
	}
	if report.Condition != "Partly cloudy" {
		t.Errorf("condition: got %s", report.Condition)
	}
	if report.Location != "Seattle" {
		t.Errorf("location: got %s, want Seattle", report.Location)
	}
}

func TestClient_Current_Metric(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sampleResponse)
	}))
	defer server.Close()

	client := weather.NewClientWithURL("metric", server.URL)

	report, err := client.Current(context.Background(), "seattle")
	if err != nil {
		t.Fatalf("Current error: %v", err)
	}
	if report.Temperature != 22 {
		t.Errorf("temperature: got %d, want 22", report.Temperature)
	}
	if report.Unit != "Celsius" {
		t.Errorf("unit: got %s", report.Unit)
	}
}

func TestClient_Current_EmptyLocation(t *testing.T) {
	client := weather.NewClientWithURL("imperial", "http://localhost:0")

	if _, err := client.Current(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty location")
	}
}

func TestClient_Current_NoConditions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"current_condition":[]}`)
	}))
	defer server.Close()

	client := weather.NewClientWithURL("imperial", server.URL)

	if _, err := client.Current(context.Background(), "nowhere"); err == nil {
		t.Fatal("expected error when conditions are missing")
	}
}
