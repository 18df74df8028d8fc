package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/legaldoc/engine/internal/utils"
)

// clauseFamilies are the clause types the clause analysis reports on, with
// the keywords that flag them in document text.
var clauseFamilies = map[string][]string{
	"termination":           {"termination", "terminate", "end", "expiry", "expire"},
	"indemnity":             {"indemnity", "indemnification", "liable", "liability", "damages"},
	"jurisdiction":          {"jurisdiction", "governing law", "court", "dispute resolution"},
	"force_majeure":         {"force majeure", "act of god", "unforeseeable", "extraordinary"},
	"confidentiality":       {"confidential", "non-disclosure", "proprietary", "secret"},
	"payment":               {"payment", "fee", "compensation", "remuneration", "salary"},
	"intellectual_property": {"intellectual property", "copyright", "trademark", "patent"},
	"non_compete":           {"non-compete", "non-competition", "restraint of trade"},
	"arbitration":           {"arbitration", "arbitrator", "alternative dispute resolution"},
}

// criticalClauses must be present for a contract to be considered complete.
var criticalClauses = map[string]bool{
	"termination":  true,
	"jurisdiction": true,
	"indemnity":    true,
}

var indianRegulations = []string{
	"Companies Act, 2013",
	"SEBI Regulations",
	"Foreign Direct Investment Policy",
	"Employment Laws (Shops and Establishments Act, etc.)",
	"Indian Contract Act, 1872",
	"Intellectual Property Laws",
	"Personal Data Protection Act (Proposed)",
}

var (
	caseNamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`([A-Z][a-zA-Z\s&]+)\s+v\.?\s+([A-Z][a-zA-Z\s&]+)`),
		regexp.MustCompile(`([A-Z][a-zA-Z\s&]+)\s+vs\.?\s+([A-Z][a-zA-Z\s&]+)`),
	}
	yearPattern      = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	citationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\(\d{4}\)\s+\d+\s+SCC\s+\d+`),
		regexp.MustCompile(`AIR\s+\d{4}\s+SC\s+\d+`),
		regexp.MustCompile(`\d{4}\s+\(\d+\)\s+SCC\s+\d+`),
	}
	referencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\(\d{4}\)\s+\d+\s+SCC\s+\d+`),
		regexp.MustCompile(`(?i)AIR\s+\d{4}\s+SC\s+\d+`),
		regexp.MustCompile(`(?i)Section\s+\d+`),
		regexp.MustCompile(`(?i)Article\s+\d+`),
		regexp.MustCompile(`(?i)Rule\s+\d+`),
	}
)

// Clause extraction

func parseClauseReport(response, documentText string) *ClauseReport {
	// Iterate families in a fixed order so reports are deterministic.
	families := make([]string, 0, len(clauseFamilies))
	for family := range clauseFamilies {
		families = append(families, family)
	}
	sort.Strings(families)

	responseLower := strings.ToLower(response)
	clauses := make([]ClauseFinding, 0, len(families))
	for _, family := range families {
		finding := ClauseFinding{Type: family, RiskLevel: "Unknown"}
		if strings.Contains(responseLower, strings.ReplaceAll(family, "_", " ")) {
			finding.Found = true
			finding.RiskLevel = clauseRiskLevel(response, family)
			finding.Explanation = clauseExplanation(response, family)
		}
		clauses = append(clauses, finding)
	}

	return &ClauseReport{
		Clauses:          clauses,
		ConfidenceScores: clauseConfidenceScores(clauses),
		RiskAssessment:   rollUpRisks(clauses),
		Recommendations:  clauseRecommendations(clauses, documentText),
	}
}

// clauseContext returns the response lines around the first mention of a
// clause family.
func clauseContext(response, family string) string {
	lines := strings.Split(response, "\n")
	spaced := strings.ReplaceAll(family, "_", " ")
	title := titleCase(spaced)

	for i, line := range lines {
		if strings.Contains(line, title) || strings.Contains(strings.ToLower(line), family) || strings.Contains(strings.ToLower(line), spaced) {
			end := i + 5
			if end > len(lines) {
				end = len(lines)
			}
			return strings.Join(lines[i:end], " ")
		}
	}
	return ""
}

func clauseRiskLevel(response, family string) string {
	context := strings.ToLower(clauseContext(response, family))
	if containsAny(context, "high risk", "problematic", "concerning", "missing") {
		return "High"
	}
	if containsAny(context, "medium risk", "moderate", "review") {
		return "Medium"
	}
	return "Low"
}

func clauseExplanation(response, family string) string {
	context := clauseContext(response, family)
	spaced := strings.ReplaceAll(family, "_", " ")

	var relevant []string
	for _, sentence := range strings.Split(context, ". ") {
		if strings.Contains(strings.ToLower(sentence), spaced) {
			relevant = append(relevant, sentence)
			if len(relevant) == 2 {
				break
			}
		}
	}
	if len(relevant) == 0 {
		return "No specific explanation found."
	}
	return strings.Join(relevant, ". ")
}

func clauseConfidenceScores(clauses []ClauseFinding) map[string]float64 {
	scores := make(map[string]float64, len(clauses))
	for _, c := range clauses {
		switch {
		case c.Found && c.Explanation != "" && c.Explanation != "No specific explanation found.":
			scores[c.Type] = 0.8
		case c.Found:
			scores[c.Type] = 0.6
		default:
			scores[c.Type] = 0.3
		}
	}
	return scores
}

func rollUpRisks(clauses []ClauseFinding) RiskRollup {
	var high, medium int
	var missing []string
	for _, c := range clauses {
		switch c.RiskLevel {
		case "High":
			high++
		case "Medium":
			medium++
		}
		if !c.Found {
			missing = append(missing, c.Type)
		}
	}

	var overall string
	switch {
	case high > 2:
		overall = "High - Multiple high-risk clauses identified"
	case high > 0 || medium > 3:
		overall = "Medium - Some concerning clauses found"
	default:
		overall = "Low - Most clauses appear standard"
	}

	return RiskRollup{
		OverallRisk:     overall,
		HighRiskCount:   high,
		MediumRiskCount: medium,
		MissingClauses:  missing,
	}
}

func clauseRecommendations(clauses []ClauseFinding, documentText string) []string {
	var recommendations []string

	var missingCritical []string
	var hasHighRisk bool
	for _, c := range clauses {
		if !c.Found && criticalClauses[c.Type] {
			missingCritical = append(missingCritical, c.Type)
		}
		if c.RiskLevel == "High" {
			hasHighRisk = true
		}
	}
	if len(missingCritical) > 0 {
		recommendations = append(recommendations,
			fmt.Sprintf("Add missing critical clauses: %s", strings.Join(missingCritical, ", ")))
	}
	if hasHighRisk {
		recommendations = append(recommendations, "Review and revise high-risk clauses identified above")
	}
	if len(documentText) < 1000 {
		recommendations = append(recommendations, "Document appears brief - consider adding more detailed terms and conditions")
	}

	return append(recommendations,
		"Have the document reviewed by a qualified legal professional",
		"Ensure compliance with applicable Indian laws and regulations",
		"Consider adding dispute resolution mechanisms if not present")
}

// Compliance checking

func parseComplianceReport(response string) *ComplianceReport {
	return &ComplianceReport{
		Status:          complianceStatus(response),
		MissingClauses:  complianceMissingClauses(response),
		Recommendations: complianceRecommendations(response),
		ConfidenceScore: complianceConfidence(response),
	}
}

func complianceStatus(response string) string {
	lower := strings.ToLower(response)
	switch {
	case containsAny(lower, "non-compliant", "violations", "serious issues"):
		return "Non-Compliant"
	case containsAny(lower, "partially compliant", "some issues", "minor violations"):
		return "Partially Compliant"
	case containsAny(lower, "compliant", "meets requirements", "satisfactory"):
		return "Compliant"
	default:
		return "Requires Review"
	}
}

func complianceMissingClauses(response string) []string {
	var missing []string
	for _, line := range strings.Split(response, "\n") {
		lower := strings.ToLower(line)
		if containsAny(lower, "missing", "add", "required") && containsAny(lower, "clause", "provision", "term") {
			missing = append(missing, strings.TrimSpace(line))
			if len(missing) == 5 {
				break
			}
		}
	}
	return missing
}

func complianceRecommendations(response string) []string {
	var recommendations []string
	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) <= 10 {
			continue
		}
		if containsAny(strings.ToLower(trimmed), "recommend", "should", "must", "ensure", "consider") {
			recommendations = append(recommendations, trimmed)
		}
	}

	recommendations = append(recommendations,
		"Consult with a legal expert familiar with Indian regulations",
		"Regular compliance reviews should be conducted",
		"Stay updated with regulatory changes")

	if len(recommendations) > 8 {
		recommendations = recommendations[:8]
	}
	return recommendations
}

func complianceConfidence(response string) float64 {
	score := 0.5
	if len(response) > 500 {
		score += 0.2
	}

	lower := strings.ToLower(response)
	mentions := 0
	for _, reg := range indianRegulations {
		if strings.Contains(lower, strings.ToLower(reg)) {
			mentions++
		}
	}
	score += min(float64(mentions)*0.1, 0.2)

	if strings.Contains(lower, "compliant") {
		score += 0.1
	}
	return min(score, 0.9)
}

// Precedent search

func parsePrecedentReport(response, documentText string) *PrecedentReport {
	var precedents []Precedent
	for _, section := range strings.Split(response, "\n\n") {
		if !containsAny(section, "v.", "vs.", "Supreme Court", "High Court", "AIR", "SCC") {
			continue
		}
		p := Precedent{
			CaseName:       extractCaseName(section),
			Court:          extractCourt(section),
			Year:           yearPattern.FindString(section),
			Citation:       extractCitation(section),
			LegalPrinciple: firstSentenceWith(section, "held", "established", "principle", "law", "rule"),
			Relevance:      firstSentenceWith(section, "relevant", "applies", "similar", "applicable"),
			Summary:        summarize(section, 200),
		}
		if p.CaseName == "" {
			continue
		}
		precedents = append(precedents, p)
		if len(precedents) == 5 {
			break
		}
	}

	return &PrecedentReport{
		Precedents:      precedents,
		RelevanceScores: precedentRelevanceScores(precedents, documentText),
		Citations:       formatCitations(precedents),
	}
}

func extractCaseName(text string) string {
	for _, pattern := range caseNamePatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return fmt.Sprintf("%s v. %s", strings.TrimSpace(m[1]), strings.TrimSpace(m[2]))
		}
	}
	return ""
}

func extractCourt(text string) string {
	if strings.Contains(text, "Supreme Court") {
		return "Supreme Court of India"
	}
	if strings.Contains(text, "High Court") {
		for _, state := range []string{"Delhi", "Bombay", "Madras", "Calcutta", "Karnataka", "Punjab"} {
			if strings.Contains(text, state+" High Court") {
				return state + " High Court"
			}
		}
		return "High Court"
	}
	return "Unknown"
}

func extractCitation(text string) string {
	for _, pattern := range citationPatterns {
		if m := pattern.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

func firstSentenceWith(text string, indicators ...string) string {
	for _, sentence := range strings.Split(text, ". ") {
		lower := strings.ToLower(sentence)
		for _, indicator := range indicators {
			if strings.Contains(lower, indicator) {
				return strings.TrimSpace(sentence)
			}
		}
	}
	return ""
}

func summarize(text string, limit int) string {
	truncated := utils.TruncateRunes(text, limit)
	if truncated != text {
		return truncated + "..."
	}
	return text
}

func precedentRelevanceScores(precedents []Precedent, query string) []float64 {
	queryWords := wordSet(query)
	scores := make([]float64, 0, len(precedents))
	for _, p := range precedents {
		score := 0.5
		if len(queryWords) > 0 {
			precedentWords := wordSet(p.Summary + " " + p.LegalPrinciple + " " + p.CaseName)
			overlap := 0
			for w := range queryWords {
				if precedentWords[w] {
					overlap++
				}
			}
			score = min(float64(overlap)/float64(len(queryWords)), 1.0)
		}
		if strings.Contains(p.Court, "Supreme Court") {
			score = min(score+0.2, 1.0)
		}
		scores = append(scores, score)
	}
	return scores
}

func formatCitations(precedents []Precedent) []string {
	citations := make([]string, 0, len(precedents))
	for _, p := range precedents {
		var parts []string
		if p.CaseName != "" {
			parts = append(parts, p.CaseName)
		}
		switch {
		case p.Citation != "":
			parts = append(parts, p.Citation)
		case p.Year != "" && p.Court != "":
			parts = append(parts, p.Year+" "+p.Court)
		}
		if len(parts) == 0 {
			citations = append(citations, "Citation not available")
			continue
		}
		citations = append(citations, strings.Join(parts, ", "))
	}
	return citations
}

// Risk assessment

var legalTerms = []string{
	"section", "clause", "act", "regulation", "court",
	"precedent", "case law", "statute", "provision",
}

var uncertaintyPhrases = []string{
	"i don't know", "not sure", "uncertain", "unclear",
	"might be", "possibly", "perhaps",
}

func parseRiskReport(response, documentText string) *RiskReport {
	return &RiskReport{
		Narrative:       response,
		ConfidenceScore: riskConfidence(response, documentText),
		Citations:       extractReferences(response),
	}
}

func riskConfidence(response, context string) float64 {
	score := 0.5
	if context != "" {
		score += 0.2
	}
	if len(response) > 200 {
		score += 0.1
	}

	lower := strings.ToLower(response)
	terms := 0
	for _, term := range legalTerms {
		if strings.Contains(lower, term) {
			terms++
		}
	}
	score += min(float64(terms)*0.05, 0.2)

	uncertainty := 0
	for _, phrase := range uncertaintyPhrases {
		if strings.Contains(lower, phrase) {
			uncertainty++
		}
	}
	score -= min(float64(uncertainty)*0.1, 0.3)

	return max(0.0, min(1.0, score))
}

// extractReferences pulls statutory and case citations out of free text,
// deduplicated but in first-seen order.
func extractReferences(response string) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, pattern := range referencePatterns {
		for _, m := range pattern.FindAllString(response, -1) {
			if !seen[m] {
				seen[m] = true
				refs = append(refs, m)
			}
		}
	}
	return refs
}

// helpers

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
