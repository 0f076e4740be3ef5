package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/concierge-agent/backend/internal/storage/models"
	"github.com/concierge-agent/backend/internal/storage/sqlite"
)

func newTurnsApp(t *testing.T) (*fiber.App, *sqlite.Client) {
	t.Helper()

	db, err := sqlite.NewClient(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	app := fiber.New()
	app.Get("/api/v1/admin/turns", NewTurnsHandler(db).ListRecentTurns)

	return app, db
}

func TestListRecentTurns(t *testing.T) {
	app, db := newTurnsApp(t)

	records := []models.TurnRecord{
		{
			ID:          "turn-old",
			Query:       "what do you charge",
			PageContext: "pricing",
			Status:      "passed",
			Confidence:  0.9,
			Cached:      true,
			CreatedAt:   time.Now().Add(-time.Hour),
		},
		{
			ID:          "turn-new",
			Query:       "reach me at [redacted]",
			PageContext: "contact",
			Status:      "passed",
			Confidence:  0.9,
			PIIDetected: true,
			Cached:      false,
			CreatedAt:   time.Now(),
		},
	}
	for i := range records {
		if err := db.InsertTurnRecord(context.Background(), &records[i]); err != nil {
			t.Fatalf("InsertTurnRecord: %v", err)
		}
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/admin/turns", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Turns []struct {
			ID          string `json:"id"`
			PIIDetected bool   `json:"pii_detected"`
			Cached      bool   `json:"cached"`
		} `json:"turns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(body.Turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(body.Turns))
	}
	if body.Turns[0].ID != "turn-new" {
		t.Errorf("first turn = %q, want newest first", body.Turns[0].ID)
	}
	if !body.Turns[0].PIIDetected || body.Turns[0].Cached {
		t.Errorf("redacted turn flags = (pii=%v, cached=%v), want (true, false)",
			body.Turns[0].PIIDetected, body.Turns[0].Cached)
	}
}

func TestListRecentTurnsHonorsLimit(t *testing.T) {
	app, db := newTurnsApp(t)

	for i, id := range []string{"a", "b", "c"} {
		record := models.TurnRecord{
			ID:        id,
			Query:     "q",
			Status:    "passed",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}
		if err := db.InsertTurnRecord(context.Background(), &record); err != nil {
			t.Fatalf("InsertTurnRecord: %v", err)
		}
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/admin/turns?limit=1", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var body struct {
		Turns []struct {
			ID string `json:"id"`
		} `json:"turns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(body.Turns) != 1 {
		t.Fatalf("turns = %d, want 1", len(body.Turns))
	}
	if body.Turns[0].ID != "c" {
		t.Errorf("turn = %q, want most recent", body.Turns[0].ID)
	}
}
