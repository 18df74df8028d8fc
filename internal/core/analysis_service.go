package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/legaldoc/engine/internal/store"
	"github.com/legaldoc/engine/internal/utils"
)

// AnalysisKind selects which specialized analysis runs over a document.
type AnalysisKind int

const (
	AnalysisClauses AnalysisKind = iota
	AnalysisCompliance
	AnalysisPrecedents
	AnalysisRisk
)

func (k AnalysisKind) String() string {
	switch k {
	case AnalysisClauses:
		return "clauses"
	case AnalysisCompliance:
		return "compliance"
	case AnalysisPrecedents:
		return "precedents"
	case AnalysisRisk:
		return "risk"
	default:
		return "unknown"
	}
}

// ParseAnalysisKind maps the wire name of a kind to its enum value.
func ParseAnalysisKind(s string) (AnalysisKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clauses":
		return AnalysisClauses, nil
	case "compliance":
		return AnalysisCompliance, nil
	case "precedents":
		return AnalysisPrecedents, nil
	case "risk":
		return AnalysisRisk, nil
	default:
		return 0, fmt.Errorf("unknown analysis kind %q", s)
	}
}

// ClauseFinding is one clause family's assessment.
type ClauseFinding struct {
	Type        string `json:"type"`
	Found       bool   `json:"found"`
	RiskLevel   string `json:"risk_level"`
	Explanation string `json:"explanation"`
}

// RiskRollup aggregates per-clause risk into a document-level view.
type RiskRollup struct {
	OverallRisk     string   `json:"overall_risk"`
	HighRiskCount   int      `json:"high_risk_count"`
	MediumRiskCount int      `json:"medium_risk_count"`
	MissingClauses  []string `json:"missing_clauses"`
}

type ClauseReport struct {
	Clauses          []ClauseFinding    `json:"clauses"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	RiskAssessment   RiskRollup         `json:"risk_assessment"`
	Recommendations  []string           `json:"recommendations"`
}

type ComplianceReport struct {
	Status          string   `json:"compliance_status"`
	MissingClauses  []string `json:"missing_clauses"`
	Recommendations []string `json:"recommendations"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// Precedent is one case reference recovered from the model's answer.
type Precedent struct {
	CaseName       string `json:"case_name"`
	Court          string `json:"court"`
	Year           string `json:"year"`
	Citation       string `json:"citation"`
	LegalPrinciple string `json:"legal_principle"`
	Relevance      string `json:"relevance"`
	Summary        string `json:"summary"`
}

type PrecedentReport struct {
	Precedents      []Precedent `json:"precedents"`
	RelevanceScores []float64   `json:"relevance_scores"`
	Citations       []string    `json:"citations"`
}

type RiskReport struct {
	Narrative       string   `json:"narrative"`
	ConfidenceScore float64  `json:"confidence_score"`
	Citations       []string `json:"citations"`
}

// Analysis carries exactly one populated report, matching Kind.
type Analysis struct {
	DocumentID string            `json:"document_id"`
	Kind       string            `json:"kind"`
	Clauses    *ClauseReport     `json:"clauses,omitempty"`
	Compliance *ComplianceReport `json:"compliance,omitempty"`
	Precedents *PrecedentReport  `json:"precedents,omitempty"`
	Risk       *RiskReport       `json:"risk,omitempty"`
}

// AnalysisConfig tunes how much document text reaches a prompt.
type AnalysisConfig struct {
	DocCharCap int
}

// AnalysisService runs legal analyses over stored documents. Each kind is a
// prompt template plus a parser over the model's free-text answer.
type AnalysisService struct {
	docs DocumentStore
	llm  *LLMClient
	cfg  AnalysisConfig
	log  *zap.Logger
}

func NewAnalysisService(docs DocumentStore, llm *LLMClient, cfg AnalysisConfig, log *zap.Logger) *AnalysisService {
	return &AnalysisService{docs: docs, llm: llm, cfg: cfg, log: log}
}

func (s *AnalysisService) Analyze(ctx context.Context, documentID string, kind AnalysisKind) (*Analysis, error) {
	doc, err := s.docs.DocumentByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	if doc.Status != store.StatusAnalyzed {
		return nil, fmt.Errorf("document %s has no analyzable text: %w", documentID, store.ErrNotFound)
	}

	text, err := s.docs.DocumentText(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if s.cfg.DocCharCap > 0 {
		text = utils.TruncateRunes(text, s.cfg.DocCharCap)
	}

	response, err := s.llm.Complete(ctx, analysisPrompt(kind, text))
	if err != nil {
		return nil, err
	}
	response = cleanAnalysisResponse(response)

	analysis := &Analysis{DocumentID: documentID, Kind: kind.String()}
	switch kind {
	case AnalysisClauses:
		analysis.Clauses = parseClauseReport(response, text)
	case AnalysisCompliance:
		analysis.Compliance = parseComplianceReport(response)
	case AnalysisPrecedents:
		analysis.Precedents = parsePrecedentReport(response, text)
	case AnalysisRisk:
		analysis.Risk = parseRiskReport(response, text)
	default:
		return nil, fmt.Errorf("unknown analysis kind %d", kind)
	}

	s.log.Info("analysis complete",
		zap.String("document_id", documentID),
		zap.String("kind", kind.String()))
	return analysis, nil
}

func analysisPrompt(kind AnalysisKind, text string) string {
	switch kind {
	case AnalysisClauses:
		return fmt.Sprintf(`Analyze the following legal document and extract key clauses. Focus on Indian legal standards and practices.

Document Content:
%s

Extract and analyze the following types of clauses:
1. TERMINATION CLAUSES - How and when the agreement can be terminated
2. INDEMNITY CLAUSES - Who is liable for what damages or losses
3. JURISDICTION CLAUSES - Which courts have jurisdiction, governing law
4. FORCE MAJEURE CLAUSES - Unforeseeable circumstances provisions
5. CONFIDENTIALITY CLAUSES - Non-disclosure and proprietary information
6. PAYMENT CLAUSES - Payment terms, schedules, penalties
7. INTELLECTUAL PROPERTY CLAUSES - IP ownership and usage rights
8. NON-COMPETE CLAUSES - Restraint of trade provisions
9. ARBITRATION CLAUSES - Dispute resolution mechanisms

For each clause found, provide:
- The exact text of the clause
- Risk level (High/Medium/Low)
- Explanation of potential issues
- Recommendations for improvement

If a clause type is missing, note it as "Not Found" and recommend adding it.

Format your response as a structured analysis with clear sections for each clause type.`, text)

	case AnalysisCompliance:
		return fmt.Sprintf(`Review the following legal document for compliance with Indian laws and regulations.

Document Content:
%s

Check compliance with:
1. Indian Contract Act, 1872
2. Companies Act, 2013 (if corporate document)
3. SEBI Regulations (if securities/investment related)
4. Employment Laws (if employment contract)
5. FDI Policy (if foreign investment involved)
6. Intellectual Property Laws
7. Consumer Protection Act
8. Data Protection considerations

For each regulation:
- Identify if it applies to this document
- Check for compliance issues
- Note missing required clauses
- Assess compliance risk level

Provide specific recommendations for ensuring compliance.`, text)

	case AnalysisPrecedents:
		return fmt.Sprintf(`Find relevant Indian legal precedents for the matters covered by the following document.

Document Content:
%s

Provide information about:
1. Relevant Supreme Court cases
2. High Court decisions
3. Legal principles established
4. How these precedents apply to the document
5. Citation format for each case

Focus on cases that are:
- From Indian courts (Supreme Court, High Courts)
- Relevant to the legal issues in the document
- Recent and still valid precedents
- Widely cited and authoritative

Format each precedent with proper legal citation.`, text)

	default:
		return fmt.Sprintf(`Assess the compliance and legal risks in the following document for Indian jurisdiction. Identify potential regulatory violations, missing required clauses, and provide risk ratings.

Document Content:
%s`, text)
	}
}

// cleanAnalysisResponse strips markdown emphasis the model tends to emit so
// parsers see plain text.
func cleanAnalysisResponse(response string) string {
	return strings.TrimSpace(strings.ReplaceAll(response, "*", ""))
}
