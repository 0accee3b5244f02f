package tmdb

import (
	"strconv"

	"github.com/reelquery/reelquery/internal/entity"
)

// Item is one movie or TV show as returned by list, credits and detail
// calls. Fields a call does not carry stay zero.
type Item struct {
	ID               int     `json:"id"`
	Title            string  `json:"title,omitempty"`
	Name             string  `json:"name,omitempty"`
	MediaType        string  `json:"media_type,omitempty"`
	ReleaseDate      string  `json:"release_date,omitempty"`
	FirstAirDate     string  `json:"first_air_date,omitempty"`
	GenreIDs         []int   `json:"genre_ids,omitempty"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	OriginalLanguage string  `json:"original_language,omitempty"`
	Overview         string  `json:"overview,omitempty"`

	// Detail-only fields.
	Revenue     int64 `json:"revenue,omitempty"`
	Runtime     int   `json:"runtime,omitempty"`
	CompanyIDs  []int `json:"company_ids,omitempty"`
	NetworkIDs  []int `json:"network_ids,omitempty"`
	KeywordIDs  []int `json:"keyword_ids,omitempty"`
	HasDetail   bool  `json:"-"`

	// Credits-only fields.
	Character  string `json:"character,omitempty"`
	Job        string `json:"job,omitempty"`
	Department string `json:"department,omitempty"`
}

// Page is one page of a listing.
type Page struct {
	Page         int    `json:"page"`
	Results      []Item `json:"results"`
	TotalPages   int    `json:"total_pages"`
	TotalResults int    `json:"total_results"`
}

// DisplayTitle returns the movie title or show name.
func (it Item) DisplayTitle() string {
	if it.Title != "" {
		return it.Title
	}
	return it.Name
}

// Date returns the release or first-air date as YYYY-MM-DD, or "".
func (it Item) Date() string {
	if it.ReleaseDate != "" {
		return it.ReleaseDate
	}
	return it.FirstAirDate
}

// Year returns the release year, or 0 when unknown.
func (it Item) Year() int {
	d := it.Date()
	if len(d) < 4 {
		return 0
	}
	y, err := strconv.Atoi(d[:4])
	if err != nil {
		return 0
	}
	return y
}

// Media returns the item's media type. Listings scoped to one media type
// omit it, so def is used then.
func (it Item) Media(def entity.Media) entity.Media {
	switch it.MediaType {
	case "movie":
		return entity.MediaMovie
	case "tv":
		return entity.MediaTV
	}
	if def != "" {
		return def
	}
	if it.FirstAirDate != "" && it.ReleaseDate == "" {
		return entity.MediaTV
	}
	return entity.MediaMovie
}

// Named is a search hit used for name to id resolution.
type Named struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Popularity float64 `json:"popularity"`
}

type listResponse struct {
	Page         int    `json:"page"`
	Results      []Item `json:"results"`
	TotalPages   int    `json:"total_pages"`
	TotalResults int    `json:"total_results"`
}

type creditsResponse struct {
	Cast []Item `json:"cast"`
	Crew []Item `json:"crew"`
}

type idName struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type detailResponse struct {
	Item
	Genres              []idName `json:"genres"`
	ProductionCompanies []idName `json:"production_companies"`
	Networks            []idName `json:"networks"`
	EpisodeRunTime      []int    `json:"episode_run_time"`
	Keywords            *struct {
		Keywords []idName `json:"keywords"`
		Results  []idName `json:"results"`
	} `json:"keywords"`
}

func (d detailResponse) item(media entity.Media) Item {
	it := d.Item
	it.HasDetail = true
	if it.MediaType == "" {
		it.MediaType = string(media)
	}
	if len(it.GenreIDs) == 0 {
		it.GenreIDs = ids(d.Genres)
	}
	it.CompanyIDs = ids(d.ProductionCompanies)
	it.NetworkIDs = ids(d.Networks)
	if it.Runtime == 0 && len(d.EpisodeRunTime) > 0 {
		it.Runtime = d.EpisodeRunTime[0]
	}
	if d.Keywords != nil {
		// movies nest keywords under "keywords", shows under "results"
		it.KeywordIDs = append(ids(d.Keywords.Keywords), ids(d.Keywords.Results)...)
	}
	return it
}

func ids(xs []idName) []int {
	if len(xs) == 0 {
		return nil
	}
	out := make([]int, len(xs))
	for i, x := range xs {
		out[i] = x.ID
	}
	return out
}

type searchResponse struct {
	Results []Named `json:"results"`
}

type genreListResponse struct {
	Genres []idName `json:"genres"`
}

// APIError is the error body of the discovery API.
type APIError struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

func (e *APIError) Error() string {
	return strconv.Itoa(e.StatusCode) + ": " + e.StatusMessage
}
