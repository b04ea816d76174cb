package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/fernwood/sprout/internal/model"
	"github.com/fernwood/sprout/internal/store"
)

const systemPrompt = `You are a warm, encouraging child-development assistant.
Given a summary of a child's task activity, write a short report (3-5
sentences) for the parent: highlight strengths, note categories that saw
little activity, and suggest one gentle next step. Plain prose, no headings.`

// Generator builds behavioral reports from the child's ledger activity. When
// no LLM endpoint is configured it assembles a plain statistical summary so
// the report feature still works offline.
type Generator struct {
	client     *Client
	children   *store.ChildStore
	childTasks *store.ChildTaskStore
	tasks      *store.TaskStore
	reports    *store.ReportStore
	logger     *slog.Logger
}

func NewGenerator(
	client *Client,
	children *store.ChildStore,
	childTasks *store.ChildTaskStore,
	tasks *store.TaskStore,
	reports *store.ReportStore,
	logger *slog.Logger,
) *Generator {
	return &Generator{
		client:     client,
		children:   children,
		childTasks: childTasks,
		tasks:      tasks,
		reports:    reports,
		logger:     logger.With("component", "report"),
	}
}

// activityTally is the aggregated view of one period that feeds the prompt.
type activityTally struct {
	total      int
	byStatus   map[model.TaskStatus]int
	byCategory map[model.Category]int
}

// Generate tallies the child's activity over the period, asks the LLM for a
// narrative (or falls back locally), and stores the result.
func (g *Generator) Generate(ctx context.Context, childID int64, start, end time.Time) (*model.Report, error) {
	child, err := g.children.GetByID(childID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, fmt.Errorf("child %d not found", childID)
	}

	entries, err := g.childTasks.ListByChildBetween(childID, start, end)
	if err != nil {
		return nil, err
	}
	tally := g.tally(entries)

	modelName := "local"
	summary := localSummary(child.Name, tally)
	if g.client.Configured() {
		text, err := g.client.Complete(ctx, systemPrompt, promptFor(child.Name, start, end, tally))
		if err != nil {
			g.logger.Warn("llm report failed, using local summary", "error", err, "child_id", childID)
		} else {
			summary = text
			modelName = g.client.Model()
		}
	}

	report, err := g.reports.Create(model.Report{
		ChildID:     childID,
		PeriodStart: start,
		PeriodEnd:   end,
		Summary:     summary,
		Model:       modelName,
	})
	if err != nil {
		return nil, err
	}
	g.logger.Info("report generated", "child_id", childID, "report_id", report.ID, "model", modelName)
	return report, nil
}

func (g *Generator) tally(entries []model.ChildTask) activityTally {
	t := activityTally{
		byStatus:   make(map[model.TaskStatus]int),
		byCategory: make(map[model.Category]int),
	}
	for i := range entries {
		e := &entries[i]
		t.total++
		t.byStatus[e.Status]++

		var tmpl *model.Task
		if e.TaskID != nil {
			tmpl, _ = g.tasks.GetByID(*e.TaskID)
		}
		t.byCategory[e.EffectiveCategory(tmpl)]++
	}
	return t
}

func promptFor(name string, start, end time.Time, t activityTally) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Child: %s\nPeriod: %s to %s\nTasks in period: %d\n",
		name, start.Format("2006-01-02"), end.Format("2006-01-02"), t.total)

	b.WriteString("By status:\n")
	for _, pair := range sortedCounts(t.byStatus) {
		fmt.Fprintf(&b, "  %s: %d\n", pair.key, pair.n)
	}
	b.WriteString("By category:\n")
	for _, pair := range sortedCounts(t.byCategory) {
		fmt.Fprintf(&b, "  %s: %d\n", pair.key, pair.n)
	}
	return b.String()
}

// localSummary is the offline fallback: a plain recap of the numbers.
func localSummary(name string, t activityTally) string {
	if t.total == 0 {
		return fmt.Sprintf("%s had no task activity this period.", name)
	}
	completed := t.byStatus[model.StatusCompleted]
	var top model.Category
	topN := 0
	for cat, n := range t.byCategory {
		if n > topN || (n == topN && string(cat) < string(top)) {
			top, topN = cat, n
		}
	}
	return fmt.Sprintf("%s worked on %d tasks this period and completed %d. Most activity was in the %s category.",
		name, t.total, completed, top)
}

type countPair struct {
	key string
	n   int
}

// sortedCounts renders a count map in stable order so prompts are
// deterministic.
func sortedCounts[K ~string](m map[K]int) []countPair {
	pairs := make([]countPair, 0, len(m))
	for k, n := range m {
		pairs = append(pairs, countPair{key: string(k), n: n})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
	return pairs
}
