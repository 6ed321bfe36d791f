package generation

import (
	"fmt"
	"strings"

	"github.com/talentdex/talentdex/internal/domain"
)

const maxPromptKeywords = 5

// systemPrompt instructs the backend to answer strictly from the supplied
// candidate context, citing document ids.
func systemPrompt(rankingAvailable bool) string {
	rankingNote := "No ranking information is available."
	if rankingAvailable {
		rankingNote = "Ranking information against the job description is available."
	}
	return "You are a recruitment assistant answering questions about job candidates based on their documents.\n" +
		rankingNote + "\n" +
		"Answer ONLY from the provided candidate information and always cite the source document id when referencing a candidate.\n" +
		"Be concise, accurate, and helpful."
}

// userPrompt renders the question together with the retrieved candidate
// context.
func userPrompt(question string, candidates []domain.Candidate) string {
	if len(candidates) == 0 {
		return question
	}

	var b strings.Builder
	b.WriteString("Candidates:\n")
	for i, c := range candidates {
		rank := "unranked"
		if c.HasRanking {
			rank = fmt.Sprintf("%d", c.Rank)
		}
		kw := c.Keywords
		if len(kw) > maxPromptKeywords {
			kw = kw[:maxPromptKeywords]
		}
		fmt.Fprintf(&b, "Candidate %d:\n- Document: %s\n- Rank: %s\n- Score: %.4f\n- Keywords: %s\n- Excerpt: %s\n\n",
			i+1, c.DocumentID, rank, c.FusedScore, strings.Join(kw, ", "), c.Excerpt)
	}
	fmt.Fprintf(&b, "Question: %s\nAnswer based on the candidates above:", question)
	return b.String()
}
