package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/alanyoungcy/polysignal/internal/service"
)

// Analyzer runs analyses on behalf of the HTTP API.
type Analyzer interface {
	Analyze(ctx context.Context, req service.Request) (domain.Report, error)
	Settings() service.Settings
}

// AnalyzeHandler serves on-demand market analyses.
type AnalyzeHandler struct {
	analyzer Analyzer
	logger   *slog.Logger
}

// NewAnalyzeHandler creates an AnalyzeHandler.
func NewAnalyzeHandler(analyzer Analyzer, logger *slog.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer, logger: logger}
}

// Analyze resolves the url parameter and returns the report as JSON. Gated
// and StayOut outcomes are 200, bad references 400, and upstream failures 502.
// GET /api/analyze?url=<ref>&market_index=&all=&min_profit=&...
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := strings.TrimSpace(q.Get("url"))
	if ref == "" {
		ref = strings.TrimSpace(q.Get("ref"))
	}
	if ref == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	req, err := parseAnalyzeRequest(q, h.analyzer.Settings())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Ref = ref

	report, err := h.analyzer.Analyze(r.Context(), req)
	if err != nil {
		status := errorStatus(err)
		h.logger.WarnContext(r.Context(), "analyze: failed",
			slog.String("ref", ref),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		writeError(w, status, err.Error())
		return
	}

	status := http.StatusOK
	if report.Failed() {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, report)
}

// parseAnalyzeRequest overlays query parameters on the analyzer defaults.
func parseAnalyzeRequest(q url.Values, defaults service.Settings) (service.Request, error) {
	req := service.Request{Selection: service.NoSelection()}
	settings := defaults
	th := &settings.Thresholds

	if err := errors.Join(
		queryInt(q, "market_index", &req.Selection.Index),
		queryBool(q, "all", &req.Selection.All),
		queryFloat(q, "min_profit", &th.MinProfit),
		queryInt(q, "min_qualified_wallets", &th.MinQualifiedWallets),
		queryFloat(q, "consensus_threshold", &th.ConsensusThreshold),
		queryFloat(q, "whale_threshold", &th.WhaleThreshold),
		queryInt(q, "holders_limit", &settings.HoldersLimit),
		queryFloat(q, "min_balance", &settings.MinBalance),
		queryInt(q, "concurrency", &settings.Concurrency),
	); err != nil {
		return req, err
	}

	switch {
	case q.Has("market_index") && req.Selection.Index < 0:
		return req, errors.New("market_index must be >= 0")
	case settings.Concurrency < 1:
		return req, errors.New("concurrency must be >= 1")
	case settings.HoldersLimit < 1:
		return req, errors.New("holders_limit must be >= 1")
	case th.ConsensusThreshold <= 0 || th.ConsensusThreshold > 1:
		return req, errors.New("consensus_threshold must be in (0, 1]")
	case th.WhaleThreshold <= 0 || th.WhaleThreshold > 1:
		return req, errors.New("whale_threshold must be in (0, 1]")
	}

	req.Settings = &settings
	return req, nil
}

func errorStatus(err error) int {
	switch {
	case domain.IsResolutionError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case domain.IsFetchError(err),
		errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrCircuitOpen):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
