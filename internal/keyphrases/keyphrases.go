// Package keyphrases derives candidate keyphrases from page text using
// simple frequency counting over unigrams and bigrams.
package keyphrases

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

var wordPattern = regexp.MustCompile(`[a-z][a-z'-]+`)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"a", "an", "and", "are", "as", "at", "be", "been", "but", "by", "can",
		"do", "for", "from", "get", "had", "has", "have", "how", "if", "in",
		"is", "it", "its", "more", "my", "no", "not", "of", "on", "or", "our",
		"out", "so", "than", "that", "the", "their", "them", "then", "there",
		"these", "they", "this", "to", "up", "was", "we", "were", "what",
		"when", "where", "which", "who", "why", "will", "with", "you", "your",
		"about", "all", "also", "any", "here", "just", "like", "over", "us",
	} {
		stopwords[w] = struct{}{}
	}
}

// Extractor ranks unigrams and bigrams by frequency, preferring bigrams as
// they carry more topical signal.
type Extractor struct{}

// New constructs an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Keyphrases returns up to topN phrases ordered by score. The context is
// accepted for interface symmetry with remote extractors and is not used.
func (e *Extractor) Keyphrases(_ context.Context, text string, topN int) ([]string, error) {
	if topN <= 0 || text == "" {
		return nil, nil
	}

	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return nil, nil
	}

	type scored struct {
		phrase string
		score  int
	}

	counts := map[string]int{}
	for i, w := range words {
		if _, stop := stopwords[w]; stop || len(w) < 3 {
			continue
		}
		counts[w]++
		if i+1 < len(words) {
			next := words[i+1]
			if _, stop := stopwords[next]; !stop && len(next) >= 3 {
				// Bigrams count double so multi-word phrases outrank their
				// component words at equal frequency.
				counts[w+" "+next] += 2
			}
		}
	}

	ranked := make([]scored, 0, len(counts))
	for phrase, score := range counts {
		if score < 2 {
			continue
		}
		ranked = append(ranked, scored{phrase, score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].phrase < ranked[j].phrase
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.phrase
	}
	return out, nil
}
