package execute

import (
	"time"

	"github.com/reelquery/reelquery/internal/constraint"
	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/entity"
	"github.com/reelquery/reelquery/internal/inject"
	"github.com/reelquery/reelquery/internal/tmdb"
)

// ShouldBypass reports whether generic validation is skipped: the tree
// holds exactly one constraint, it is a person, and the endpoint is that
// person's credits listing. Such results are already scoped to the
// person, and re-filtering them would drop valid credits.
func ShouldBypass(tree *constraint.Tree, path string) bool {
	flat := tree.Flatten()
	return len(flat) == 1 && flat[0].Key == constraint.KeyPeople && endpoint.IsCredits(path)
}

// validator checks items against the tree. A leaf whose field the item
// does not carry is trusted only when the matching parameter was sent, so
// the API already applied it. On a credits path only the path person is
// satisfied; listings carry no other people, so any other person fails.
type validator struct {
	tree   *constraint.Tree
	sent   map[string]bool
	person int
}

func newValidator(tree *constraint.Tree, req inject.Request) *validator {
	v := &validator{tree: tree, sent: make(map[string]bool, len(req.Sent)), person: req.Person}
	for _, key := range req.Sent {
		v.sent[inject.BaseKey(key)] = true
	}
	return v
}

func (v *validator) accept(it tmdb.Item) bool {
	return v.tree.Evaluate(func(n constraint.Node) bool {
		return v.leaf(n, it)
	})
}

func (v *validator) leaf(n constraint.Node, it tmdb.Item) bool {
	switch c := n.Value.(type) {
	case entity.Person:
		if v.person != 0 {
			return c.ID == v.person
		}
		return v.sent[constraint.KeyPeople]
	case entity.Genre:
		if len(it.GenreIDs) == 0 {
			return v.sent[n.Key]
		}
		return containsID(it.GenreIDs, c.ID)
	case entity.Company:
		if !it.HasDetail {
			return v.sent[n.Key]
		}
		return containsID(it.CompanyIDs, c.ID)
	case entity.Network:
		if !it.HasDetail {
			return v.sent[n.Key]
		}
		return containsID(it.NetworkIDs, c.ID)
	case entity.Keyword:
		if !it.HasDetail {
			return v.sent[n.Key]
		}
		return containsID(it.KeywordIDs, c.ID)
	case entity.Year:
		if it.Year() == 0 {
			return false
		}
		return it.Year() == c.Year
	case entity.DateRange:
		return inRange(it.Date(), c)
	case entity.Rating:
		if it.VoteCount == 0 && it.VoteAverage == 0 {
			return v.sent[n.Key]
		}
		return c.Op.Compare(it.VoteAverage, c.Score)
	case entity.Revenue:
		// checked after enrichment against the step's revenue filters
		return true
	case entity.Runtime:
		if it.Runtime == 0 {
			return v.sent[n.Key]
		}
		return c.Op.Compare(float64(it.Runtime), float64(c.Minutes))
	case entity.Language:
		if it.OriginalLanguage == "" {
			return v.sent[n.Key]
		}
		return it.OriginalLanguage == c.Code
	case entity.MediaType:
		return true
	default:
		return false
	}
}

func containsID(ids []int, id int) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func inRange(date string, r entity.DateRange) bool {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return false
	}
	if !r.From.IsZero() && d.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To) {
		return false
	}
	return true
}
