package pipeline

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/signals"
)

// excludedDomains are directories, marketplaces, social networks and
// reference sites that show up in results but never compete.
var excludedDomains = []string{
	"google.com", "bing.com", "yahoo.com", "duckduckgo.com",
	"facebook.com", "instagram.com", "linkedin.com", "twitter.com", "x.com",
	"youtube.com", "tiktok.com", "pinterest.com", "reddit.com", "quora.com",
	"wikipedia.org", "yelp.com", "bbb.org", "yellowpages.com", "mapquest.com",
	"nextdoor.com", "angi.com", "angieslist.com", "homeadvisor.com", "thumbtack.com",
	"houzz.com", "tripadvisor.com", "trustpilot.com", "glassdoor.com", "indeed.com",
	"crunchbase.com", "bloomberg.com", "zoominfo.com", "manta.com", "chamberofcommerce.com",
	"amazon.com", "ebay.com", "etsy.com", "apple.com", "medium.com",
}

// isExcluded reports whether domain is, or is under, an excluded domain.
func isExcluded(domain string) bool {
	for _, d := range excludedDomains {
		if sameSite(domain, d) {
			return true
		}
	}
	return false
}

// sameSite reports whether a equals b or one is a subdomain of the other.
func sameSite(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a)
}

type candidateAcc struct {
	score   model.CandidateScore
	hits    int
	invSum  float64
	queries []string
	seenQ   map[string]bool
}

// ScoreCandidates ranks every domain found in results, except own and the
// excluded domains, by a weighted sum of:
//   - frequency: hits divided by the highest hit count of any candidate
//   - inverse rank: mean of 1/position over its hits
//   - keyword coverage: share of distinct queries it appeared in
//   - snippet: whether any hit carried descriptive text
//
// The sum is divided by the total weight so scores stay in [0,1]. The result
// is sorted by score, highest first; ties keep first-seen order.
func ScoreCandidates(results []model.SearchResponse, own string, w config.CompetitorWeights) []model.CandidateScore {
	totalW := w.Frequency + w.InverseRank + w.Coverage + w.Snippet
	if totalW <= 0 {
		w = config.DefaultScoring().Competitor
		totalW = w.Frequency + w.InverseRank + w.Coverage + w.Snippet
	}

	accs := make(map[string]*candidateAcc)
	var order []string
	queries := make(map[string]bool)

	for qi, resp := range results {
		query := strings.TrimSpace(resp.Query)
		if query == "" {
			query = "#" + strconv.Itoa(qi)
		}
		if len(resp.Organic) > 0 {
			queries[query] = true
		}
		for i, r := range resp.Organic {
			domain := signals.Domain(r.Link)
			if domain == "" || sameSite(domain, own) || isExcluded(domain) {
				continue
			}

			acc, ok := accs[domain]
			if !ok {
				acc = &candidateAcc{
					score: model.CandidateScore{Domain: domain, Title: strings.TrimSpace(r.Title), URL: r.Link},
					seenQ: make(map[string]bool),
				}
				accs[domain] = acc
				order = append(order, domain)
			}
			pos := r.Position
			if pos <= 0 {
				pos = i + 1
			}
			acc.hits++
			acc.invSum += 1 / float64(pos)
			if !acc.seenQ[query] {
				acc.seenQ[query] = true
				acc.queries = append(acc.queries, query)
			}
			if snip := strings.TrimSpace(r.Snippet); snip != "" && !acc.score.HasSnippet {
				acc.score.HasSnippet = true
				acc.score.Snippet = snip
			}
		}
	}

	maxHits := 0
	for _, acc := range accs {
		maxHits = max(maxHits, acc.hits)
	}

	out := make([]model.CandidateScore, 0, len(order))
	for _, d := range order {
		acc := accs[d]
		cs := acc.score
		cs.Frequency = float64(acc.hits) / float64(maxHits)
		cs.InvRank = acc.invSum / float64(acc.hits)
		cs.Coverage = float64(len(acc.queries)) / float64(len(queries))
		cs.Keywords = acc.queries
		snippet := 0.0
		if cs.HasSnippet {
			snippet = 1
		}
		cs.Score = round4((w.Frequency*cs.Frequency + w.InverseRank*cs.InvRank + w.Coverage*cs.Coverage + w.Snippet*snippet) / totalW)
		out = append(out, cs)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
