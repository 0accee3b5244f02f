// Package endpoint holds the fixed catalog of callable discovery endpoints
// and ranks them against a constraint tree.
package endpoint

import (
	"regexp"
	"sort"
	"strings"

	"github.com/reelquery/reelquery/internal/constraint"
	"github.com/reelquery/reelquery/internal/entity"
)

// Kind classifies an endpoint by how it scopes results.
type Kind string

// Endpoint kinds.
const (
	KindDiscovery Kind = "discovery"
	KindSearch    Kind = "search"
	KindCredits   Kind = "credits"
	KindTrending  Kind = "trending"
)

// rank orders kinds for deterministic tie handling.
func (k Kind) rank() int {
	switch k {
	case KindDiscovery:
		return 0
	case KindCredits:
		return 1
	case KindSearch:
		return 2
	default:
		return 3
	}
}

// Spec describes one catalog entry.
type Spec struct {
	Path        string
	Kind        Kind
	Media       entity.Media // empty for mixed movie/TV listings
	Params      []string     // canonical constraint keys the endpoint can express
	SingleValue []string     // keys the endpoint expresses for one value only
	Prior       float64
	Description string
}

// Supports reports whether the endpoint can express key.
func (s Spec) Supports(key string) bool {
	for _, p := range s.Params {
		if p == key {
			return true
		}
	}
	return false
}

var creditsPattern = regexp.MustCompile(`^/person/(\{person_id\}|\d+)/(movie|tv|combined)_credits$`)

// IsCredits reports whether path is a single-person credits endpoint.
func IsCredits(path string) bool {
	return creditsPattern.MatchString(path)
}

// Catalog is the fixed set of endpoints the planner may call.
type Catalog struct {
	specs  []Spec
	byPath map[string]Spec
}

// NewCatalog creates a catalog from specs. A repeated path replaces the
// earlier entry in place.
func NewCatalog(specs []Spec) *Catalog {
	c := &Catalog{byPath: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if _, dup := c.byPath[s.Path]; !dup {
			c.specs = append(c.specs, s)
		} else {
			for i := range c.specs {
				if c.specs[i].Path == s.Path {
					c.specs[i] = s
				}
			}
		}
		c.byPath[s.Path] = s
	}
	return c
}

var discoverMovieParams = []string{
	constraint.KeyPeople, constraint.KeyGenres, constraint.KeyCompanies, constraint.KeyKeywords,
	constraint.KeyYear, constraint.KeyReleaseDate, constraint.KeyRating, constraint.KeyRuntime,
	constraint.KeyLanguage,
}

var discoverTVParams = []string{
	constraint.KeyGenres, constraint.KeyCompanies, constraint.KeyNetworks, constraint.KeyKeywords,
	constraint.KeyYear, constraint.KeyReleaseDate, constraint.KeyRating, constraint.KeyRuntime,
	constraint.KeyLanguage,
}

// DefaultCatalog returns the built-in endpoint catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Spec{
		{
			Path: "/discover/movie", Kind: KindDiscovery, Media: entity.MediaMovie,
			Params: discoverMovieParams, Prior: 0.9,
			Description: "Discover movies filtered by cast, crew, genre, production company, keyword, release year or date range, rating, runtime and language, sorted by popularity, rating, release date or revenue.",
		},
		{
			Path: "/discover/tv", Kind: KindDiscovery, Media: entity.MediaTV,
			Params: discoverTVParams, Prior: 0.9,
			Description: "Discover TV shows and series filtered by genre, network, production company, keyword, first air year or date range, rating, episode runtime and language.",
		},
		{
			Path: "/search/movie", Kind: KindSearch, Media: entity.MediaMovie,
			Params: []string{constraint.KeyYear}, Prior: 0.7,
			Description: "Search movies by title text, optionally narrowed to a release year.",
		},
		{
			Path: "/search/tv", Kind: KindSearch, Media: entity.MediaTV,
			Params: []string{constraint.KeyYear}, Prior: 0.7,
			Description: "Search TV shows by name text, optionally narrowed to a first air year.",
		},
		{
			Path: "/person/{person_id}/movie_credits", Kind: KindCredits, Media: entity.MediaMovie,
			Params: []string{constraint.KeyPeople}, SingleValue: []string{constraint.KeyPeople}, Prior: 0.95,
			Description: "Movie filmography of one person: every film they acted in, directed, wrote or produced.",
		},
		{
			Path: "/person/{person_id}/tv_credits", Kind: KindCredits, Media: entity.MediaTV,
			Params: []string{constraint.KeyPeople}, SingleValue: []string{constraint.KeyPeople}, Prior: 0.95,
			Description: "TV filmography of one person: every show or series they appeared in or worked on.",
		},
		{
			Path: "/person/{person_id}/combined_credits", Kind: KindCredits,
			Params: []string{constraint.KeyPeople}, SingleValue: []string{constraint.KeyPeople}, Prior: 0.9,
			Description: "Complete career of one person across movies and TV, cast and crew credits combined.",
		},
		{
			Path: "/trending/movie/week", Kind: KindTrending, Media: entity.MediaMovie,
			Prior: 0.6,
			Description: "Movies trending this week, what is popular right now.",
		},
		{
			Path: "/trending/tv/week", Kind: KindTrending, Media: entity.MediaTV,
			Prior: 0.6,
			Description: "TV shows trending this week, what people are watching now.",
		},
	})
}

// Lookup returns the spec for path.
func (c *Catalog) Lookup(path string) (Spec, bool) {
	s, ok := c.byPath[path]
	return s, ok
}

// All returns the specs in catalog order.
func (c *Catalog) All() []Spec {
	out := make([]Spec, len(c.specs))
	copy(out, c.specs)
	return out
}

// Discovery returns the discovery endpoint for media.
func (c *Catalog) Discovery(m entity.Media) (Spec, bool) {
	for _, s := range c.specs {
		if s.Kind == KindDiscovery && s.Media == m {
			return s, true
		}
	}
	return Spec{}, false
}

// Match is one result of semantic retrieval: a catalog path and its
// similarity to the query.
type Match struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// Candidate is an endpoint joined with its retrieval score.
type Candidate struct {
	Path             string       `json:"path"`
	SemanticScore    float64      `json:"semantic_score"`
	SupportedParams  []string     `json:"supported_params"`
	PerformancePrior float64      `json:"performance_prior"`
	Kind             Kind         `json:"kind"`
	Media            entity.Media `json:"media,omitempty"`

	// SingleValued lists supported keys that take one value only.
	SingleValued []string `json:"single_valued,omitempty"`
}

// Expresses returns how many of n leaves with key the candidate can carry.
func (c Candidate) Expresses(key string, n int) int {
	supported := false
	for _, p := range c.SupportedParams {
		if p == key {
			supported = true
			break
		}
	}
	if !supported {
		return 0
	}
	for _, p := range c.SingleValued {
		if p == key && n > 1 {
			return 1
		}
	}
	return n
}

// Candidates joins retrieval matches with the catalog. Unknown paths are
// dropped; catalog entries the retriever did not return join with score 0
// so that every endpoint stays reachable. The result is ordered by
// semantic score, then path.
func (c *Catalog) Candidates(matches []Match) []Candidate {
	scores := make(map[string]float64, len(matches))
	for _, m := range matches {
		if _, ok := c.byPath[m.Path]; !ok {
			continue
		}
		if cur, seen := scores[m.Path]; !seen || m.Score > cur {
			scores[m.Path] = m.Score
		}
	}

	out := make([]Candidate, 0, len(c.specs))
	for _, s := range c.specs {
		out = append(out, Candidate{
			Path:             s.Path,
			SemanticScore:    scores[s.Path],
			SupportedParams:  append([]string(nil), s.Params...),
			PerformancePrior: s.Prior,
			Kind:             s.Kind,
			Media:            s.Media,
			SingleValued:     append([]string(nil), s.SingleValue...),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SemanticScore != out[j].SemanticScore {
			return out[i].SemanticScore > out[j].SemanticScore
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Keywords returns the lowercase words of a spec description and path,
// used by keyword retrieval.
func (s Spec) Keywords() []string {
	text := strings.ToLower(s.Description + " " + strings.NewReplacer("/", " ", "_", " ", "{", " ", "}", " ").Replace(s.Path))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
