package inject

import (
	"sort"
	"strconv"
	"strings"

	"github.com/reelquery/reelquery/internal/constraint"
	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/entity"
	apperrors "github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/query"
)

// Request is a step rendered in one endpoint's own parameter spelling.
type Request struct {
	Path   string
	Params map[string]string

	// Sent lists the step keys the call expresses, in step spelling and
	// sorted. Person keys are never listed for a credits path; Person
	// names the one person such a path is scoped to.
	Sent []string

	// Person is the id in a credits path, zero otherwise.
	Person int
}

// generalParams are the non-constraint parameters each endpoint kind
// accepts.
var generalParams = map[endpoint.Kind][]string{
	endpoint.KindDiscovery: {ParamSortBy, ParamPage, ParamLanguage, ParamIncludeAdult, ParamMinVoteCount},
	endpoint.KindSearch:    {ParamQuery, ParamPage, ParamLanguage, ParamIncludeAdult},
	endpoint.KindCredits:   {ParamLanguage},
	endpoint.KindTrending:  {ParamPage, ParamLanguage},
}

// Translate renders the step for spec. Constraint parameters the endpoint
// cannot express are dropped; the executor validates those locally.
func Translate(step *Step, spec endpoint.Spec) (Request, error) {
	req := Request{Path: spec.Path, Params: make(map[string]string)}

	if spec.Kind == endpoint.KindCredits {
		id := PersonID(step)
		if id == "" {
			return Request{}, apperrors.ValidationError("credits endpoint needs a resolved person").
				WithDetail("endpoint", spec.Path)
		}
		req.Path = strings.Replace(spec.Path, "{person_id}", id, 1)
		req.Person, _ = strconv.Atoi(id)
	}

	allowed := make(map[string]bool)
	for _, p := range generalParams[spec.Kind] {
		allowed[p] = true
	}

	for key, value := range step.Parameters {
		if spec.Kind == endpoint.KindCredits && BaseKey(key) == constraint.KeyPeople {
			// only the path person is expressed; others are checked locally
			continue
		}
		if !allowed[key] {
			base := BaseKey(key)
			if !isConstraintKey(base) || !spec.Supports(base) {
				continue
			}
		}
		req.Params[rename(key, spec)] = renameValue(key, value, spec)
		req.Sent = append(req.Sent, key)
	}
	sort.Strings(req.Sent)
	return req, nil
}

// PersonID returns the first person id of the step, preferring the
// unscoped key.
func PersonID(step *Step) string {
	for _, key := range []string{constraint.KeyPeople, ParamCastKey, ParamCrewKey} {
		ids := strings.FieldsFunc(step.Parameters[key], func(r rune) bool { return r == ',' || r == '|' })
		if len(ids) > 0 {
			return ids[0]
		}
	}
	return ""
}

// BaseKey maps a parameter to the constraint key it expresses:
// "release_date.gte" to "release_date", "with_cast" to "with_people".
func BaseKey(param string) string {
	switch param {
	case ParamCastKey, ParamCrewKey:
		return constraint.KeyPeople
	}
	if i := strings.IndexByte(param, '.'); i > 0 {
		return param[:i]
	}
	return param
}

func isConstraintKey(key string) bool {
	switch key {
	case constraint.KeyPeople, constraint.KeyGenres, constraint.KeyCompanies, constraint.KeyNetworks,
		constraint.KeyKeywords, constraint.KeyYear, constraint.KeyReleaseDate, constraint.KeyRating,
		constraint.KeyRevenue, constraint.KeyRuntime, constraint.KeyLanguage:
		return true
	default:
		return false
	}
}

func rename(key string, spec endpoint.Spec) string {
	switch spec.Media {
	case entity.MediaMovie:
		if strings.HasPrefix(key, constraint.KeyReleaseDate+".") {
			return "primary_" + key
		}
	case entity.MediaTV:
		switch {
		case key == constraint.KeyYear:
			return "first_air_date_year"
		case strings.HasPrefix(key, constraint.KeyReleaseDate+"."):
			return "first_air_date" + strings.TrimPrefix(key, constraint.KeyReleaseDate)
		}
	}
	return key
}

func renameValue(key, value string, spec endpoint.Spec) string {
	if key != ParamSortBy {
		return value
	}
	switch spec.Media {
	case entity.MediaMovie:
		if strings.HasPrefix(value, "release_date.") {
			return "primary_" + value
		}
	case entity.MediaTV:
		if strings.HasPrefix(value, "release_date.") {
			return "first_air_date" + strings.TrimPrefix(value, "release_date")
		}
		if value == query.SortRevenueDesc {
			return query.SortPopularityDesc
		}
	}
	return value
}
