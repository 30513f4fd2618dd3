package model

// OrganicResult is one organic web-search hit.
type OrganicResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

// KnowledgeGraph is the optional entity box a search engine returns.
type KnowledgeGraph struct {
	Title       string            `json:"title"`
	Type        string            `json:"type,omitempty"`
	Website     string            `json:"website,omitempty"`
	Description string            `json:"description,omitempty"`
	Rating      float64           `json:"rating,omitempty"`
	RatingCount int               `json:"ratingCount,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// SearchResponse is the result set for one query.
type SearchResponse struct {
	Query          string          `json:"query"`
	Organic        []OrganicResult `json:"organic"`
	KnowledgeGraph *KnowledgeGraph `json:"knowledgeGraph,omitempty"`
}

// Empty reports whether the response carries neither organic hits nor a knowledge graph.
func (r *SearchResponse) Empty() bool {
	return r == nil || (len(r.Organic) == 0 && r.KnowledgeGraph == nil)
}

// CountResults returns the number of organic hits plus knowledge graphs across rs.
func CountResults(rs []SearchResponse) int {
	n := 0
	for i := range rs {
		n += len(rs[i].Organic)
		if rs[i].KnowledgeGraph != nil {
			n++
		}
	}
	return n
}
