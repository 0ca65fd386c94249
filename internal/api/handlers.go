package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pgxbridge/internal/domain"
	"github.com/pgxbridge/internal/feedback"
	"github.com/pgxbridge/internal/service"
)

type extractRequest struct {
	Text   string `json:"text" binding:"required"`
	Method string `json:"method"`
}

type annotateRequest struct {
	Facts []domain.RawGeneFact `json:"facts"`
}

type processRequest struct {
	Text     string `json:"text" binding:"required"`
	Method   string `json:"method"`
	Filename string `json:"filename"`
}

type compareRequest struct {
	RunA domain.DocumentResult `json:"run_a"`
	RunB domain.DocumentResult `json:"run_b"`
}

type updateFeedbackStatusRequest struct {
	Status          string `json:"status" binding:"required"`
	ResolutionNotes string `json:"resolution_notes"`
}

// abortError writes the standard error envelope and stops the handler chain.
func (s *Server) abortError(c *gin.Context, status int, code, message, details string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": domain.NewPGXError(code, message, details, c.GetString("request_id")),
	})
}

// resolveMethod maps the optional wire value to an extraction method,
// defaulting to pattern extraction.
func resolveMethod(raw string) (domain.ExtractionMethod, bool) {
	if raw == "" {
		return domain.PATTERN_EXTRACTION, true
	}
	m := domain.ExtractionMethod(raw)
	return m, m.IsValid()
}

// isPlainTextUpload reports whether an uploaded file can be read as report
// text directly, without layout analysis.
func isPlainTextUpload(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".txt")
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func (s *Server) requireFeedback(c *gin.Context) bool {
	if s.feedback == nil {
		s.abortError(c, http.StatusServiceUnavailable, domain.ErrDatabaseError,
			"feedback store is not enabled", domain.ErrStoreDisabled.Error())
		return false
	}
	return true
}

func (s *Server) requireRuns(c *gin.Context) bool {
	if s.runs == nil {
		s.abortError(c, http.StatusServiceUnavailable, domain.ErrDatabaseError,
			"run archive is not enabled", domain.ErrStoreDisabled.Error())
		return false
	}
	return true
}

func (s *Server) requireCandidates(c *gin.Context) bool {
	if s.candidates == nil {
		s.abortError(c, http.StatusServiceUnavailable, domain.ErrExternalAPI,
			"llm extraction is not configured", "")
		return false
	}
	return true
}

// processCandidates runs the producer path: structured candidates from the
// LLM, then annotation and assembly through the pipeline.
func (s *Server) processCandidates(ctx context.Context, text string) (*domain.DocumentResult, error) {
	facts, patient, err := s.candidates.ExtractCandidates(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.pipeline.ProcessCandidates(ctx, domain.LLM_EXTRACTION, patient, facts)
}

// finishRun attaches the source filename, archives best-effort, and writes
// the processed result. Archive failures never fail the request.
func (s *Server) finishRun(c *gin.Context, result *domain.DocumentResult, filename string) {
	if filename != "" {
		result.Filename = filename
	}
	if s.runs != nil {
		if err := s.runs.Create(c.Request.Context(), result); err != nil {
			s.logger.WithError(err).WithField("run_id", result.RunID).Warn("Failed to archive run")
		}
	}
	c.JSON(http.StatusOK, result)
}

// handleHealth reports liveness along with reference table statistics.
func (s *Server) handleHealth(c *gin.Context) {
	stats := s.table.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
		"reference": gin.H{
			"rows":  stats.Rows,
			"genes": stats.Genes,
		},
	})
}

// handleReady reports readiness; it fails when a configured database cannot
// be reached.
func (s *Server) handleReady(c *gin.Context) {
	if s.dbPing != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.dbPing(ctx); err != nil {
			s.abortError(c, http.StatusServiceUnavailable, domain.ErrDatabaseError,
				"database unreachable", err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleExtract runs extraction and patient parsing without annotation. The
// llm method routes through the candidate producer; everything else runs the
// pattern cascade over the submitted text.
func (s *Server) handleExtract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "invalid request body", err.Error())
		return
	}
	method, ok := resolveMethod(req.Method)
	if !ok {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "unknown extraction method", req.Method)
		return
	}

	var (
		facts   []domain.RawGeneFact
		patient domain.PatientInfo
	)
	if method == domain.LLM_EXTRACTION {
		if !s.requireCandidates(c) {
			return
		}
		var err error
		facts, patient, err = s.candidates.ExtractCandidates(c.Request.Context(), req.Text)
		if err != nil {
			s.abortError(c, http.StatusBadGateway, domain.ErrExternalAPI, "llm extraction failed", err.Error())
			return
		}
	} else {
		facts = s.pipeline.Extract(req.Text)
		patient = s.pipeline.ParsePatient(req.Text)
	}

	c.JSON(http.StatusOK, gin.H{
		"extraction_method": method,
		"facts":             facts,
		"patient_info":      patient,
	})
}

// handleAnnotate annotates caller-supplied facts against the reference table.
func (s *Server) handleAnnotate(c *gin.Context) {
	var req annotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "invalid request body", err.Error())
		return
	}
	if len(req.Facts) == 0 {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "no facts to annotate", "")
		return
	}

	annotated := s.pipeline.Annotator().AnnotateAll(req.Facts)

	c.JSON(http.StatusOK, gin.H{
		"pgx_genes":    annotated,
		"cpic_summary": service.Summarize(annotated),
	})
}

// handleProcess runs the full pipeline over report text and archives the
// result when an archive is configured.
func (s *Server) handleProcess(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "invalid request body", err.Error())
		return
	}
	method, ok := resolveMethod(req.Method)
	if !ok {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "unknown extraction method", req.Method)
		return
	}

	var result *domain.DocumentResult
	if method == domain.LLM_EXTRACTION {
		if !s.requireCandidates(c) {
			return
		}
		var err error
		result, err = s.processCandidates(c.Request.Context(), req.Text)
		if err != nil {
			s.abortError(c, http.StatusBadGateway, domain.ErrExternalAPI, "llm extraction failed", err.Error())
			return
		}
	} else {
		var err error
		result, err = s.pipeline.ProcessText(c.Request.Context(), method, req.Text)
		if err != nil {
			s.abortError(c, http.StatusInternalServerError, domain.ErrExtraction, "document processing failed", err.Error())
			return
		}
	}

	s.finishRun(c, result, req.Filename)
}

// handleProcessDocument accepts a multipart upload, extracts its text, and
// runs the full pipeline. Plain-text files are read directly; anything else
// goes through the configured layout provider. An explicit method form field
// overrides the default label for the chosen path.
func (s *Server) handleProcessDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "file upload is required", err.Error())
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "could not read upload", err.Error())
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "could not read upload", err.Error())
		return
	}

	var text string
	method := domain.PATTERN_EXTRACTION
	if isPlainTextUpload(fileHeader.Filename) {
		text = string(data)
	} else {
		if s.text == nil {
			s.abortError(c, http.StatusServiceUnavailable, domain.ErrExternalAPI,
				"document text extraction is not configured", "")
			return
		}
		text, err = s.text.ExtractText(c.Request.Context(), data)
		if err != nil {
			s.abortError(c, http.StatusBadGateway, domain.ErrExternalAPI, "document text extraction failed", err.Error())
			return
		}
		method = domain.DOCUMENT_INTELLIGENCE
	}

	if raw := c.PostForm("method"); raw != "" {
		m, ok := resolveMethod(raw)
		if !ok {
			s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "unknown extraction method", raw)
			return
		}
		method = m
	}

	var result *domain.DocumentResult
	if method == domain.LLM_EXTRACTION {
		if !s.requireCandidates(c) {
			return
		}
		result, err = s.processCandidates(c.Request.Context(), text)
		if err != nil {
			s.abortError(c, http.StatusBadGateway, domain.ErrExternalAPI, "llm extraction failed", err.Error())
			return
		}
	} else {
		result, err = s.pipeline.ProcessText(c.Request.Context(), method, text)
		if err != nil {
			s.abortError(c, http.StatusInternalServerError, domain.ErrExtraction, "document processing failed", err.Error())
			return
		}
	}

	s.finishRun(c, result, fileHeader.Filename)
}

// handleCompare scores the similarity of two processed runs.
func (s *Server) handleCompare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "invalid request body", err.Error())
		return
	}
	if len(req.RunA.Facts) == 0 && len(req.RunB.Facts) == 0 {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "both runs are empty", "")
		return
	}

	c.JSON(http.StatusOK, service.CompareRuns(&req.RunA, &req.RunB))
}

func (s *Server) handleReferenceStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.table.Stats())
}

// handleGenes lists the extraction vocabulary with medication examples.
func (s *Server) handleGenes(c *gin.Context) {
	genes := domain.Genes()
	out := make([]gin.H, 0, len(genes))
	for _, g := range genes {
		out = append(out, gin.H{
			"gene":                g,
			"medication_examples": domain.MedicationExamples(g),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"genes": out,
		"count": len(out),
	})
}

// handleSubmitFeedback files a reviewer ticket.
func (s *Server) handleSubmitFeedback(c *gin.Context) {
	if !s.requireFeedback(c) {
		return
	}
	var fb feedback.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "invalid request body", err.Error())
		return
	}
	if err := s.feedback.Submit(c.Request.Context(), &fb); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrValidation, "feedback rejected", err.Error())
		return
	}
	c.JSON(http.StatusCreated, fb)
}

func (s *Server) handleListFeedback(c *gin.Context) {
	if !s.requireFeedback(c) {
		return
	}

	filter := feedback.Filter{
		Gene:   c.Query("gene"),
		Limit:  queryInt(c, "limit", 0),
		Offset: queryInt(c, "offset", 0),
	}
	if raw := c.Query("category"); raw != "" {
		cat := feedback.Category(raw)
		if !cat.IsValid() {
			s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "unknown feedback category", raw)
			return
		}
		filter.Category = cat
	}
	if raw := c.Query("status"); raw != "" {
		st := feedback.Status(raw)
		if !st.IsValid() {
			s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "unknown feedback status", raw)
			return
		}
		filter.Status = st
	}

	list, err := s.feedback.List(c.Request.Context(), filter)
	if err != nil {
		s.abortError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to list feedback", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"feedback": list,
		"count":    len(list),
	})
}

func (s *Server) handleFeedbackSummary(c *gin.Context) {
	if !s.requireFeedback(c) {
		return
	}
	summary, err := s.feedback.Summary(c.Request.Context())
	if err != nil {
		s.abortError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to summarize feedback", err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleFeedbackExport streams every ticket as a CSV download.
func (s *Server) handleFeedbackExport(c *gin.Context) {
	if !s.requireFeedback(c) {
		return
	}
	filename := fmt.Sprintf("feedback_%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)
	if err := s.feedback.ExportCSV(c.Request.Context(), c.Writer); err != nil {
		// Headers are already sent; the truncated body is all we can signal.
		s.logger.WithError(err).Error("Feedback CSV export failed")
	}
}

func (s *Server) handleGetFeedback(c *gin.Context) {
	if !s.requireFeedback(c) {
		return
	}
	ref := c.Param("reference")
	fb, err := s.feedback.Get(c.Request.Context(), ref)
	if err != nil {
		s.abortError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to load feedback", err.Error())
		return
	}
	if fb == nil {
		s.abortError(c, http.StatusNotFound, domain.ErrResourceNotFound, "feedback not found", ref)
		return
	}
	c.JSON(http.StatusOK, fb)
}

func (s *Server) handleUpdateFeedbackStatus(c *gin.Context) {
	if !s.requireFeedback(c) {
		return
	}
	ref := c.Param("reference")

	var req updateFeedbackStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "invalid request body", err.Error())
		return
	}
	status := feedback.Status(req.Status)
	if !status.IsValid() {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "unknown feedback status", req.Status)
		return
	}

	err := s.feedback.UpdateStatus(c.Request.Context(), ref, status, req.ResolutionNotes)
	if errors.Is(err, domain.ErrNotFound) {
		s.abortError(c, http.StatusNotFound, domain.ErrResourceNotFound, "feedback not found", ref)
		return
	}
	if err != nil {
		s.abortError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to update feedback", err.Error())
		return
	}

	fb, err := s.feedback.Get(c.Request.Context(), ref)
	if err != nil || fb == nil {
		c.JSON(http.StatusOK, gin.H{"reference": ref, "status": status})
		return
	}
	c.JSON(http.StatusOK, fb)
}

// handleCreateRun archives a caller-supplied processed result.
func (s *Server) handleCreateRun(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}
	var result domain.DocumentResult
	if err := c.ShouldBindJSON(&result); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "invalid request body", err.Error())
		return
	}
	if result.RunID == "" {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "run_id is required", "")
		return
	}
	if err := s.runs.Create(c.Request.Context(), &result); err != nil {
		s.abortError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to archive run", err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{"run_id": result.RunID})
}

func (s *Server) handleListRuns(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}
	limit := queryInt(c, "limit", 20)

	var (
		runs []*domain.DocumentResult
		err  error
	)
	if c.Query("high_risk") == "true" {
		runs, err = s.runs.ListHighRisk(c.Request.Context(), limit)
	} else {
		runs, err = s.runs.ListRecent(c.Request.Context(), limit, queryInt(c, "offset", 0))
	}
	if err != nil {
		s.abortError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to list runs", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}
	id := c.Param("id")
	result, err := s.runs.GetByID(c.Request.Context(), id)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && result == nil) {
		s.abortError(c, http.StatusNotFound, domain.ErrResourceNotFound, "run not found", id)
		return
	}
	if err != nil {
		s.abortError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to load run", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}
