package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fernwood/sprout/internal/auth"
	"github.com/fernwood/sprout/internal/ledger"
	"github.com/fernwood/sprout/internal/model"
	"github.com/fernwood/sprout/internal/report"
	"github.com/fernwood/sprout/internal/store"
)

type ReportHandler struct {
	ledger    *ledger.Service
	generator *report.Generator
	reports   *store.ReportStore
	logger    *slog.Logger
}

func NewReportHandler(svc *ledger.Service, gen *report.Generator, rs *store.ReportStore, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{ledger: svc, generator: gen, reports: rs, logger: logger}
}

func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if _, err := h.ledger.AuthorizeChild(p, childID); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	reports, err := h.reports.ListByChild(childID)
	if err != nil {
		h.logger.Error("list reports", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// Generate produces a report for the trailing week on demand, outside the
// weekly schedule.
func (h *ReportHandler) Generate(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if _, err := h.ledger.AuthorizeChild(p, childID); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -7)
	rep, err := h.generator.Generate(r.Context(), childID, start, end)
	if err != nil {
		h.logger.Error("generate report", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate report")
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}
