package devserver

import "github.com/h0rv/finsight/internal/domain"

// DefaultDocuments returns canned markdown analyses, pre-split into the
// fragments the stream emits.
func DefaultDocuments() map[domain.InsightKind][]string {
	return map[domain.InsightKind][]string{
		domain.InsightOverview: {
			"# Portfolio Overview\n\n",
			"The portfolio holds **14 active projects** with a combined budget of ",
			"**$48.2M**. Spend to date is 61% of budget against 58% of schedule elapsed.\n\n",
			"## Highlights\n\n",
			"- Infrastructure projects are tracking *under* budget by 4%.\n",
			"- Two residential developments exceed their contingency reserves.\n",
			"- Cash flow remains positive for the next three quarters.\n",
		},
		domain.InsightPipeline: {
			"# Pipeline Analysis\n\n",
			"Nine opportunities are in the pipeline, weighted value **$22.7M**.\n\n",
			"1. Three bids are in final negotiation.\n",
			"2. Win rate over the last four quarters is 37%.\n",
			"3. Average time from proposal to contract is 74 days.\n\n",
			"Consider prioritising the municipal transit bid, which has the ",
			"highest expected margin.\n",
		},
		domain.InsightProjects: {
			"# Project Health\n\n",
			"| Project | Status | Variance |\n",
			"|---|---|---|\n",
			"| Harbor Bridge | On track | -2% |\n",
			"| Elm Street Housing | At risk | +9% |\n",
			"| Data Center Phase 2 | On track | +1% |\n\n",
			"`Elm Street Housing` needs a revised forecast before the next board review.\n",
		},
	}
}
