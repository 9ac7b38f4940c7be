package retrieval

import (
	"testing"

	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// TestAssembler_BudgetNeverExceeded property-checks the budget guarantee
// across random candidate lists, budgets, and diversity caps. The only
// allowed budget interaction is the flagged single-candidate truncation,
// which by construction still fits the budget.
func TestAssembler_BudgetNeverExceeded(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		budget := rapid.IntRange(1, 200).Draw(t, "budget")
		capPerDoc := rapid.IntRange(0, 4).Draw(t, "diversityCap")
		n := rapid.IntRange(0, 30).Draw(t, "candidates")

		candidates := make([]Candidate, n)
		for i := 0; i < n; i++ {
			textLen := rapid.IntRange(1, 80).Draw(t, "textLen")
			text := rapid.StringOfN(rapid.RuneFrom([]rune("abcdefgh ")), textLen, textLen, -1).Draw(t, "text")
			candidates[i] = Candidate{
				ID:         rapid.StringMatching(`c[0-9]{1,4}`).Draw(t, "id"),
				DocumentID: rapid.SampledFrom([]string{"d1", "d2", "d3", ""}).Draw(t, "doc"),
				Text:       text,
			}
		}

		a := NewAssembler(AssemblerConfig{DiversityCap: capPerDoc, DedupRadius: 2}, runeTokenizer{}, zap.NewNop(), nil)
		out := a.Assemble(candidates, budget)

		total := 0
		for _, c := range out.Candidates {
			total += len([]rune(c.Text))
		}
		if total > budget {
			t.Fatalf("assembled %d tokens over budget %d", total, budget)
		}
		if out.TotalTokens != total {
			t.Fatalf("reported total %d != actual %d", out.TotalTokens, total)
		}
		if out.Truncated && len(out.Candidates) != 1 {
			t.Fatalf("truncation flagged with %d candidates", len(out.Candidates))
		}
	})
}
