package schema

import "finstat/internal"

// Default is the built-in registry of bank annual-report metrics. Labels are
// listed in priority order.
func Default() []internal.MetricDefinition {
	return []internal.MetricDefinition{
		{
			StandardName:    "net_interest_income",
			CandidateLabels: []string{"net interest income", "interest income, net", "interest income net"},
			ValueKind:       internal.KindAmount,
		},
		{
			StandardName:    "net_profit_after_tax",
			CandidateLabels: []string{"statutory net profit after tax", "net profit after tax", "profit after tax", "net income after tax", "profit for the year"},
			ValueKind:       internal.KindAmount,
		},
		{
			StandardName:    "total_assets",
			CandidateLabels: []string{"total assets", "assets total"},
			ValueKind:       internal.KindAmount,
		},
		{
			StandardName:    "total_liabilities",
			CandidateLabels: []string{"total liabilities", "liabilities total"},
			ValueKind:       internal.KindAmount,
		},
		{
			StandardName:    "total_equity",
			CandidateLabels: []string{"total equity", "total shareholders equity", "shareholders equity", "equity total"},
			ValueKind:       internal.KindAmount,
		},
		{
			StandardName:    "customer_deposits",
			CandidateLabels: []string{"customer deposits", "deposits from customers", "deposits and other borrowings"},
			ValueKind:       internal.KindAmount,
		},
		{
			StandardName:    "loans_and_advances",
			CandidateLabels: []string{"loans and advances to customers", "loans and advances", "net loans and advances"},
			ValueKind:       internal.KindAmount,
		},
		{
			StandardName:    "total_loans",
			CandidateLabels: []string{"total loans", "gross loans"},
			ValueKind:       internal.KindAmount,
		},
		{
			StandardName:    "cost_to_income_ratio",
			CandidateLabels: []string{"cost to income ratio", "cost/income ratio", "cost income ratio"},
			ValueKind:       internal.KindRatio,
		},
		{
			StandardName:    "return_on_equity",
			CandidateLabels: []string{"return on equity", "roe"},
			ValueKind:       internal.KindRatio,
		},
		{
			StandardName:    "return_on_assets",
			CandidateLabels: []string{"return on assets", "roa"},
			ValueKind:       internal.KindRatio,
		},
		{
			StandardName:    "cet1_ratio",
			CandidateLabels: []string{"common equity tier 1 ratio", "cet1 ratio", "cet1 capital ratio"},
			ValueKind:       internal.KindRatio,
		},
		{
			StandardName:    "net_interest_margin",
			CandidateLabels: []string{"net interest margin", "nim"},
			ValueKind:       internal.KindRatio,
		},
		{
			StandardName:    "employees",
			CandidateLabels: []string{"full-time equivalent employees", "number of employees", "total employees"},
			ValueKind:       internal.KindCount,
		},
	}
}
