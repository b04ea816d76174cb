package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fernwood/sprout/internal/database"
	"github.com/fernwood/sprout/internal/model"
	"github.com/fernwood/sprout/internal/store"
)

type generatorFixture struct {
	children   *store.ChildStore
	childTasks *store.ChildTaskStore
	tasks      *store.TaskStore
	reports    *store.ReportStore
	childID    int64
}

func setupGeneratorDB(t *testing.T) *generatorFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	parents := store.NewParentStore(db)
	children := store.NewChildStore(db)

	p, err := parents.Create("dana@example.com", "Dana", "hash")
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	c, err := children.Create(&p.ID, "Milo", "🦊", nil)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	return &generatorFixture{
		children:   children,
		childTasks: store.NewChildTaskStore(db),
		tasks:      store.NewTaskStore(db),
		reports:    store.NewReportStore(db),
		childID:    c.ID,
	}
}

func (f *generatorFixture) newGenerator(client *Client) *Generator {
	return NewGenerator(client, f.children, f.childTasks, f.tasks, f.reports, discardLogger())
}

func (f *generatorFixture) addEntry(t *testing.T, title string, cat model.Category) {
	t.Helper()
	coins := 10
	_, err := f.childTasks.Create(store.CreateParams{
		ChildID:           f.childID,
		Status:            model.StatusAssigned,
		Priority:          model.PriorityMedium,
		CustomTitle:       &title,
		CustomRewardCoins: &coins,
		CustomCategory:    &cat,
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
}

func TestGenerateUsesLLM(t *testing.T) {
	f := setupGeneratorDB(t)
	f.addEntry(t, "Tidy bookshelf", model.CategoryIndependence)
	f.addEntry(t, "Puzzle hour", model.CategoryLogic)

	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := decodeBody(r, &req); err != nil {
			t.Errorf("decode: %v", err)
		}
		prompt = req.Messages[1].Content
		w.Write(completionResponse("Milo is thriving."))
	}))
	defer server.Close()

	gen := f.newGenerator(NewClient(server.URL, "", "test-model", discardLogger()))
	end := time.Now()
	report, err := gen.Generate(context.Background(), f.childID, end.Add(-reportPeriod), end)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if report.Summary != "Milo is thriving." {
		t.Errorf("summary = %q", report.Summary)
	}
	if report.Model != "test-model" {
		t.Errorf("model = %q, want test-model", report.Model)
	}
	if !strings.Contains(prompt, "Milo") || !strings.Contains(prompt, "independence") {
		t.Errorf("prompt missing activity data:\n%s", prompt)
	}
}

func TestGenerateFallsBackWithoutLLM(t *testing.T) {
	f := setupGeneratorDB(t)
	f.addEntry(t, "Tidy bookshelf", model.CategoryIndependence)

	gen := f.newGenerator(NewClient("", "", "", discardLogger()))
	end := time.Now()
	report, err := gen.Generate(context.Background(), f.childID, end.Add(-reportPeriod), end)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Model != "local" {
		t.Errorf("model = %q, want local", report.Model)
	}
	if !strings.Contains(report.Summary, "Milo") {
		t.Errorf("summary = %q, want child name mentioned", report.Summary)
	}

	stored, err := f.reports.ListByChild(f.childID)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored reports = %d, want 1", len(stored))
	}
}

func TestGenerateFallsBackOnLLMFailure(t *testing.T) {
	f := setupGeneratorDB(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	gen := f.newGenerator(NewClient(server.URL, "", "test-model", discardLogger()))
	end := time.Now()
	report, err := gen.Generate(context.Background(), f.childID, end.Add(-reportPeriod), end)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Model != "local" {
		t.Errorf("model = %q, want local fallback on llm failure", report.Model)
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
