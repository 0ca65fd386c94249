package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pgxbridge/internal/domain"
	"github.com/pgxbridge/internal/reference"
	"github.com/pgxbridge/internal/service"
)

// ExtractFactsParams defines parameters for the extract_pgx_facts tool.
type ExtractFactsParams struct {
	Text string `json:"text"`
}

// AnnotateDiplotypeParams defines parameters for the annotate_diplotype tool.
type AnnotateDiplotypeParams struct {
	Gene      string `json:"gene"`
	Genotype  string `json:"genotype"`
	Phenotype string `json:"phenotype,omitempty"`
}

// CompareExtractionsParams defines parameters for the compare_extractions
// tool. Each run is a document result as returned by extract_pgx_facts or
// the HTTP API.
type CompareExtractionsParams struct {
	RunA domain.DocumentResult `json:"run_a"`
	RunB domain.DocumentResult `json:"run_b"`
}

// ReferenceStatsParams defines parameters for the reference_stats tool.
type ReferenceStatsParams struct{}

// ReferenceStatsResult is the reference_stats tool payload.
type ReferenceStatsResult struct {
	Path string `json:"path"`
	reference.Stats
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "extract_pgx_facts",
		Description: "Extract pharmacogenomic facts from clinical report text. " +
			"Runs pattern extraction over the text, annotates every gene in the " +
			"PGX vocabulary against the CPIC reference table, and returns the " +
			"full document result: facts, patient info, summary statistics, and " +
			"the priority-bucketed report.",
	}, s.handleExtractFacts)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "annotate_diplotype",
		Description: "Annotate a single gene/diplotype pair against the CPIC " +
			"reference table. Returns the canonical phenotype, risk category, " +
			"activity score, and how the reported phenotype (if given) agrees " +
			"with the CPIC call.",
	}, s.handleAnnotateDiplotype)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "compare_extractions",
		Description: "Compare two extraction runs of the same document and " +
			"score their agreement per patient field and per gene. Pass the " +
			"document results produced by extract_pgx_facts or the HTTP API.",
	}, s.handleCompareExtractions)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "reference_stats",
		Description: "Report row and per-gene entry counts for the loaded " +
			"CPIC reference table.",
	}, s.handleReferenceStats)
}

func (s *Server) handleExtractFacts(ctx context.Context, req *mcp.CallToolRequest, params ExtractFactsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "extract_pgx_facts").Info("Tool invoked")

	if strings.TrimSpace(params.Text) == "" {
		return errorResult("text is required"), nil, nil
	}

	result, err := s.pipeline.ProcessText(ctx, domain.PATTERN_EXTRACTION, params.Text)
	if err != nil {
		return errorResult(fmt.Sprintf("processing failed: %v", err)), nil, nil
	}
	return textResult(result)
}

func (s *Server) handleAnnotateDiplotype(ctx context.Context, req *mcp.CallToolRequest, params AnnotateDiplotypeParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "annotate_diplotype").Info("Tool invoked")

	if strings.TrimSpace(params.Gene) == "" || strings.TrimSpace(params.Genotype) == "" {
		return errorResult("gene and genotype are required"), nil, nil
	}

	fact := domain.RawGeneFact{
		Gene:      domain.NormalizeGene(params.Gene),
		Genotype:  strings.TrimSpace(params.Genotype),
		Phenotype: strings.TrimSpace(params.Phenotype),
	}
	return textResult(s.pipeline.Annotator().Annotate(fact))
}

func (s *Server) handleCompareExtractions(ctx context.Context, req *mcp.CallToolRequest, params CompareExtractionsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "compare_extractions").Info("Tool invoked")

	return textResult(service.CompareRuns(&params.RunA, &params.RunB))
}

func (s *Server) handleReferenceStats(ctx context.Context, req *mcp.CallToolRequest, params ReferenceStatsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "reference_stats").Info("Tool invoked")

	return textResult(ReferenceStatsResult{
		Path:  s.table.Path(),
		Stats: s.table.Stats(),
	})
}

// textResult renders the payload as indented JSON text content and also
// returns it as the structured result.
func textResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, v, nil
}

// errorResult creates a tool-level error. Invalid arguments are reported to
// the agent in-band rather than as protocol failures.
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + message}},
		IsError: true,
	}
}
