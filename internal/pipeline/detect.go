package pipeline

import (
	"sort"
	"strings"

	"finstat/internal/util"
)

// detectPageLimit bounds how much of a document the validator reads.
const detectPageLimit = 10

type DetectResult struct {
	IsFinancial bool                `json:"is_financial"`
	Score       float64             `json:"score"`
	Reason      string              `json:"reason"`
	Found       map[string][]string `json:"found"`
}

var detectIndicators = map[string][]string{
	"balance_sheet": {
		"balance sheet", "statement of financial position", "total assets",
		"total liabilities", "shareholders equity", "equity attributable",
	},
	"income_statement": {
		"income statement", "profit and loss", "net income", "net profit",
		"operating income", "operating expenses", "profit after tax",
	},
	"cash_flow": {
		"cash flow statement", "statement of cash flows", "operating activities",
		"investing activities", "financing activities",
	},
	"banking_metrics": {
		"net interest income", "net interest margin", "cost to income ratio",
		"return on equity", "return on assets", "cet1", "capital adequacy",
		"loan loss provision", "customer deposits", "loans and advances",
	},
	"regulatory": {
		"audited", "consolidated", "financial statements", "annual report",
		"interim report", "regulatory capital", "independent auditor",
	},
}

// DetectFinancialDocument scores how much the first pages read like a
// financial report. The score is the share of indicator categories with at
// least one phrase present.
func DetectFinancialDocument(pages []string, threshold float64) DetectResult {
	limit := len(pages)
	if limit > detectPageLimit {
		limit = detectPageLimit
	}
	text := " " + util.FoldString(strings.Join(pages[:limit], "\n")) + " "

	found := map[string][]string{}
	for category, phrases := range detectIndicators {
		for _, phrase := range phrases {
			if strings.Contains(text, " "+util.FoldString(phrase)+" ") {
				found[category] = append(found[category], phrase)
			}
		}
	}

	score := float64(len(found)) / float64(len(detectIndicators))
	isFinancial := len(pages) > 0 && score >= threshold
	reason := "rules_negative"
	if isFinancial {
		reason = "rules_positive"
	}

	for category := range found {
		sort.Strings(found[category])
	}
	return DetectResult{IsFinancial: isFinancial, Score: score, Reason: reason, Found: found}
}
