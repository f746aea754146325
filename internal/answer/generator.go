package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// SufficientScoreThreshold is the top-result score above which the
// retrieved context is considered sufficient to answer from.
const SufficientScoreThreshold = 0.7

const (
	maxSnippetLen = 150
	maxSources    = 3
)

// QueryType classifies what kind of question is being asked.
type QueryType struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// SourceReference points at the document text supporting an answer.
type SourceReference struct {
	PageNumber  int     `json:"page_number"`
	TextSnippet string  `json:"text_snippet"`
	Relevance   float64 `json:"relevance"`
}

// Response is a structured answer with its classification and sources.
type Response struct {
	Answer               string            `json:"answer"`
	QueryType            QueryType         `json:"query_type"`
	Sources              []SourceReference `json:"sources"`
	Confidence           float64           `json:"confidence"`
	HasSufficientContext bool              `json:"has_sufficient_context"`
	GeneratedAt          time.Time         `json:"generated_at"`
	FormattedAnswer      string            `json:"formatted_answer"`
}

const classifySystemPrompt = `You are a query classifier that categorizes questions into different types:
- factual: Questions seeking factual information or data
- explanation: Questions seeking explanations of concepts or processes
- summary: Questions asking for summaries of content
- analysis: Questions requiring analysis or interpretation
- other: Questions that don't fit into the above categories

Your response should be in JSON format with these fields:
{
    "type": "one of [factual, explanation, summary, analysis, other]",
    "confidence": "a float between 0 and 1",
    "reasoning": "brief explanation for the classification"
}`

var answerSystemPrompts = map[string]string{
	"factual": `You are a research assistant that provides factual information from documents.
Answer the question based ONLY on the provided context. Cite specific facts with numbers.
If the context doesn't contain the information needed, acknowledge the limitations.`,
	"explanation": `You are a research assistant that explains concepts found in documents.
Give clear, structured explanations based ONLY on the provided context.
Use analogies when helpful for complex concepts.`,
	"summary": `You are a research assistant that summarizes information from documents.
Provide concise summaries based ONLY on the provided context.
Structure your summary with bullet points for key points.`,
	"analysis": `You are a research assistant that analyzes information from documents.
Provide thoughtful analysis based ONLY on the provided context.
Consider different perspectives and implications in your analysis.`,
	"other": `You are a research assistant that answers questions about documents.
Answer based ONLY on the provided context.
Be helpful and informative in your response.`,
}

// Generator produces structured answers over an LLM.
type Generator struct {
	llm    LLM
	logger *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator creates an answer generator over the LLM.
func NewGenerator(llm LLM, opts ...Option) *Generator {
	g := &Generator{llm: llm, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// classifyQuery asks the model what kind of question this is. On any
// failure it falls back to "other" with middling confidence so answer
// generation can proceed.
func (g *Generator) classifyQuery(ctx context.Context, query string) QueryType {
	raw, err := g.llm.Complete(ctx, CompletionRequest{
		System:      classifySystemPrompt,
		User:        fmt.Sprintf("Classify the following query: %q", query),
		Temperature: 0.3,
		JSONOnly:    true,
	})
	if err != nil {
		g.logger.Error("query classification failed", zap.Error(err))
		return QueryType{Type: "other", Confidence: 0.5, Reasoning: "Failed to classify due to an error"}
	}

	var qt QueryType
	if err := json.Unmarshal([]byte(raw), &qt); err != nil {
		g.logger.Error("query classification returned invalid JSON", zap.Error(err))
		return QueryType{Type: "other", Confidence: 0.5, Reasoning: "Failed to classify due to an error"}
	}
	if qt.Type == "" {
		qt.Type = "other"
	}
	if qt.Confidence == 0 {
		qt.Confidence = 0.5
	}
	if qt.Reasoning == "" {
		qt.Reasoning = "No reasoning provided"
	}
	return qt
}

// extractSources builds up to three source references from the search
// results, most relevant first, with snippets capped at 150 characters.
func extractSources(results []models.QueryResult) []SourceReference {
	sources := make([]SourceReference, 0, len(results))
	for _, res := range results {
		snippet := res.Text
		if len(snippet) > maxSnippetLen {
			snippet = utils.Truncate(snippet, maxSnippetLen-3)
		}
		sources = append(sources, SourceReference{
			PageNumber:  res.Page,
			TextSnippet: snippet,
			Relevance:   res.Score,
		})
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Relevance > sources[j].Relevance
	})
	if len(sources) > maxSources {
		sources = sources[:maxSources]
	}
	return sources
}

// Generate produces a structured answer to the query from the assembled
// context and its underlying search results.
func (g *Generator) Generate(ctx context.Context, query, contextText string, results []models.QueryResult) *Response {
	queryType := g.classifyQuery(ctx, query)
	sources := extractSources(results)
	sufficient := len(results) > 0 && results[0].Score > SufficientScoreThreshold

	systemPrompt, ok := answerSystemPrompts[queryType.Type]
	if !ok {
		systemPrompt = answerSystemPrompts["other"]
	}
	userPrompt := fmt.Sprintf("Question: %s\n\nContext from document:\n%s\n\nPlease answer the question based solely on the provided context.", query, contextText)

	text, err := g.llm.Complete(ctx, CompletionRequest{
		System:      systemPrompt,
		User:        userPrompt,
		Temperature: 0.2,
		MaxTokens:   800,
	})
	if err != nil {
		g.logger.Error("answer generation failed", zap.Error(err))
		if len(sources) == 0 {
			sources = []SourceReference{{PageNumber: 0, TextSnippet: "Error retrieving sources", Relevance: 0}}
		}
		resp := &Response{
			Answer:               fmt.Sprintf("I apologize, but I encountered an error while generating a response: %v. Please try again with a different question.", err),
			QueryType:            queryType,
			Sources:              sources,
			Confidence:           0,
			HasSufficientContext: false,
			GeneratedAt:          time.Now().UTC(),
		}
		resp.FormattedAnswer = resp.FormatWithCitations()
		return resp
	}

	var confidence float64
	switch {
	case !sufficient:
		confidence = 0.3
	case queryType.Confidence < 0.7:
		confidence = 0.5
	case len(sources) > 0:
		for _, s := range sources {
			confidence += s.Relevance
		}
		confidence /= float64(len(sources))
	default:
		confidence = 0.5
	}

	resp := &Response{
		Answer:               text,
		QueryType:            queryType,
		Sources:              sources,
		Confidence:           confidence,
		HasSufficientContext: sufficient,
		GeneratedAt:          time.Now().UTC(),
	}
	resp.FormattedAnswer = resp.FormatWithCitations()
	return resp
}

// Fallback produces the response used when retrieval found nothing
// relevant to answer from.
func (g *Generator) Fallback(ctx context.Context, query string) *Response {
	queryType := g.classifyQuery(ctx, query)
	resp := &Response{
		Answer: fmt.Sprintf("I don't have enough information in the document to answer the question: '%s'. "+
			"Please try a different question related to the content of the document, "+
			"or upload a document that contains this information.", query),
		QueryType: queryType,
		Sources: []SourceReference{{
			PageNumber:  0,
			TextSnippet: "No relevant information found in the document",
			Relevance:   0,
		}},
		Confidence:           0,
		HasSufficientContext: false,
		GeneratedAt:          time.Now().UTC(),
	}
	resp.FormattedAnswer = resp.FormatWithCitations()
	return resp
}

// FormatWithCitations renders the answer with numbered citations, a
// sources footnote block, and the confidence score.
func (r *Response) FormatWithCitations() string {
	withCitations := r.Answer

	footnotes := make([]string, 0, len(r.Sources))
	for i, source := range r.Sources {
		n := i + 1
		footnotes = append(footnotes, fmt.Sprintf("[%d] Page %d: %q", n, source.PageNumber, source.TextSnippet))

		marker := fmt.Sprintf("[%d]", n)
		if strings.Contains(withCitations, marker) {
			continue
		}
		for _, word := range strings.Fields(source.TextSnippet) {
			if len(word) > 4 {
				if pos := strings.Index(withCitations, word); pos >= 0 {
					at := pos + len(word)
					withCitations = withCitations[:at] + " " + marker + withCitations[at:]
					break
				}
			}
		}
	}

	if len(footnotes) > 0 {
		withCitations += "\n\n**Sources:**\n" + strings.Join(footnotes, "\n")
	}
	withCitations += fmt.Sprintf("\n\nConfidence: %.2f", r.Confidence)
	return withCitations
}
