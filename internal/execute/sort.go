package execute

import (
	"sort"

	"github.com/reelquery/reelquery/internal/entity"
	"github.com/reelquery/reelquery/internal/query"
	"github.com/reelquery/reelquery/internal/tmdb"
)

// Entry is one answer item handed to the caller.
type Entry struct {
	ID          int          `json:"id"`
	Title       string       `json:"title"`
	Media       entity.Media `json:"media_type"`
	Date        string       `json:"date,omitempty"`
	Year        int          `json:"year,omitempty"`
	VoteAverage float64      `json:"vote_average"`
	VoteCount   int          `json:"vote_count"`
	Popularity  float64      `json:"popularity"`
	Revenue     int64        `json:"revenue,omitempty"`
	Runtime     int          `json:"runtime,omitempty"`
	GenreIDs    []int        `json:"genre_ids,omitempty"`
	Language    string       `json:"original_language,omitempty"`
	Character   string       `json:"character,omitempty"`
	Job         string       `json:"job,omitempty"`
	Overview    string       `json:"overview,omitempty"`
}

func toEntry(it tmdb.Item) Entry {
	return Entry{
		ID:          it.ID,
		Title:       it.DisplayTitle(),
		Media:       it.Media(""),
		Date:        it.Date(),
		Year:        it.Year(),
		VoteAverage: it.VoteAverage,
		VoteCount:   it.VoteCount,
		Popularity:  it.Popularity,
		Revenue:     it.Revenue,
		Runtime:     it.Runtime,
		GenreIDs:    it.GenreIDs,
		Language:    it.OriginalLanguage,
		Character:   it.Character,
		Job:         it.Job,
		Overview:    it.Overview,
	}
}

// SortItems orders items by a canonical sort value, breaking ties by id so
// the order never depends on fetch completion. Undated items sort after
// dated ones in both date directions. An empty or unknown sortBy keeps the
// listing order, which is already deterministic.
func SortItems(items []tmdb.Item, sortBy string) {
	var less func(a, b tmdb.Item) (bool, bool)

	switch sortBy {
	case query.SortPopularityDesc:
		less = func(a, b tmdb.Item) (bool, bool) { return a.Popularity > b.Popularity, a.Popularity != b.Popularity }
	case query.SortRatingDesc:
		less = func(a, b tmdb.Item) (bool, bool) { return a.VoteAverage > b.VoteAverage, a.VoteAverage != b.VoteAverage }
	case query.SortRatingAsc:
		less = func(a, b tmdb.Item) (bool, bool) { return a.VoteAverage < b.VoteAverage, a.VoteAverage != b.VoteAverage }
	case query.SortRevenueDesc:
		less = func(a, b tmdb.Item) (bool, bool) { return a.Revenue > b.Revenue, a.Revenue != b.Revenue }
	case query.SortReleaseAsc, query.SortReleaseDesc:
		desc := sortBy == query.SortReleaseDesc
		less = func(a, b tmdb.Item) (bool, bool) {
			da, db := a.Date(), b.Date()
			switch {
			case da == db:
				return false, false
			case da == "":
				return false, true
			case db == "":
				return true, true
			case desc:
				return da > db, true
			default:
				return da < db, true
			}
		}
	default:
		return
	}

	sort.SliceStable(items, func(i, j int) bool {
		if l, decided := less(items[i], items[j]); decided {
			return l
		}
		if items[i].ID != items[j].ID {
			return items[i].ID < items[j].ID
		}
		return items[i].MediaType < items[j].MediaType
	})
}
