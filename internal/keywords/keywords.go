// Package keywords extracts domain keywords from free text by matching a
// curated vocabulary over normalized input.
package keywords

import (
	"regexp"
	"sort"
	"strings"
)

// aliases maps punctuated keyword forms to stable canonical tokens so that
// normalization does not split them apart.
var aliases = [][2]string{
	{"c++", "cpp"},
	{"c#", "csharp"},
	{"node.js", "nodejs"},
	{"ci/cd", "cicd"},
}

// Curated vocabulary, canonical forms only.
var defaultVocabulary = []string{
	"python", "java", "javascript", "typescript", "cpp", "csharp", "ruby", "go", "rust", "php",
	"sql", "nosql", "mysql", "postgresql", "mongodb", "redis", "elasticsearch",
	"django", "flask", "fastapi", "spring", "react", "angular", "vue", "nodejs", "express",
	"docker", "kubernetes", "aws", "azure", "gcp", "terraform", "ansible",
	"git", "cicd", "jenkins", "github actions", "gitlab",
	"machine learning", "deep learning", "nlp", "computer vision", "tensorflow", "pytorch",
	"agile", "scrum", "jira", "api", "rest", "graphql", "microservices",
	"html", "css", "sass", "webpack", "babel",
	"linux", "bash", "shell scripting", "nginx", "apache",
}

// DefaultVocabulary returns a copy of the built-in keyword vocabulary.
func DefaultVocabulary() []string {
	out := make([]string, len(defaultVocabulary))
	copy(out, defaultVocabulary)
	return out
}

var (
	punctRe = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Extractor matches a fixed vocabulary against normalized text.
// Single-token keywords match on word boundaries, multi-word keywords on
// normalized substrings.
type Extractor struct {
	vocab    []string
	patterns map[string]*regexp.Regexp // single-token keywords only
}

// NewExtractor creates an extractor over the given vocabulary. A nil or
// empty vocabulary falls back to the built-in one.
func NewExtractor(vocab []string) *Extractor {
	if len(vocab) == 0 {
		vocab = DefaultVocabulary()
	}
	e := &Extractor{
		vocab:    make([]string, 0, len(vocab)),
		patterns: make(map[string]*regexp.Regexp, len(vocab)),
	}
	for _, kw := range vocab {
		canon := Normalize(kw)
		if canon == "" {
			continue
		}
		e.vocab = append(e.vocab, canon)
		if !strings.Contains(canon, " ") {
			e.patterns[canon] = regexp.MustCompile(`\b` + regexp.QuoteMeta(canon) + `\b`)
		}
	}
	return e
}

// Normalize lowercases text, applies keyword aliases, and collapses
// punctuation and whitespace to single spaces.
func Normalize(text string) string {
	t := strings.ToLower(text)
	for _, a := range aliases {
		t = strings.ReplaceAll(t, a[0], a[1])
	}
	t = punctRe.ReplaceAllString(t, " ")
	t = spaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// Extract returns the sorted set of vocabulary keywords present in text.
func (e *Extractor) Extract(text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}
	matched := make(map[string]struct{})
	for _, kw := range e.vocab {
		if strings.Contains(kw, " ") {
			if strings.Contains(normalized, kw) {
				matched[kw] = struct{}{}
			}
			continue
		}
		if e.patterns[kw].MatchString(normalized) {
			matched[kw] = struct{}{}
		}
	}
	out := make([]string, 0, len(matched))
	for kw := range matched {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

// Overlap returns |query ∩ doc| / |query|, or 0 when query is empty.
func Overlap(query, doc []string) float64 {
	if len(query) == 0 {
		return 0
	}
	docSet := make(map[string]struct{}, len(doc))
	for _, k := range doc {
		docSet[k] = struct{}{}
	}
	matched := 0
	for _, k := range query {
		if _, ok := docSet[k]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

// Partition splits query keywords into those present in doc and those
// missing, both sorted.
func Partition(query, doc []string) (matched, missing []string) {
	docSet := make(map[string]struct{}, len(doc))
	for _, k := range doc {
		docSet[k] = struct{}{}
	}
	for _, k := range query {
		if _, ok := docSet[k]; ok {
			matched = append(matched, k)
		} else {
			missing = append(missing, k)
		}
	}
	sort.Strings(matched)
	sort.Strings(missing)
	return matched, missing
}
