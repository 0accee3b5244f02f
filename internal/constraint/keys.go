package constraint

import (
	"fmt"

	"github.com/reelquery/reelquery/internal/entity"
)

// Canonical parameter keys. Endpoint-specific spellings (for example the
// TV first-air-date variants) are produced at dispatch.
const (
	KeyPeople      = "with_people"
	KeyGenres      = "with_genres"
	KeyCompanies   = "with_companies"
	KeyNetworks    = "with_networks"
	KeyKeywords    = "with_keywords"
	KeyYear        = "primary_release_year"
	KeyReleaseDate = "release_date"
	KeyRating      = "vote_average"
	KeyRevenue     = "revenue"
	KeyRuntime     = "with_runtime"
	KeyLanguage    = "with_original_language"
)

// Tier is the relaxation priority of a constraint. Lower tiers are kept
// longer.
type Tier int

// Constraint tiers.
const (
	Primary Tier = iota
	Secondary
	Tertiary
)

func (t Tier) String() string {
	switch t {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	case Tertiary:
		return "tertiary"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// KeyOf returns the canonical constraint key for a value. Media hints have
// no key.
func KeyOf(v entity.Value) string {
	switch v.(type) {
	case entity.Person:
		return KeyPeople
	case entity.Genre:
		return KeyGenres
	case entity.Company:
		return KeyCompanies
	case entity.Network:
		return KeyNetworks
	case entity.Keyword:
		return KeyKeywords
	case entity.Year:
		return KeyYear
	case entity.DateRange:
		return KeyReleaseDate
	case entity.Rating:
		return KeyRating
	case entity.Revenue:
		return KeyRevenue
	case entity.Runtime:
		return KeyRuntime
	case entity.Language:
		return KeyLanguage
	case entity.MediaType:
		return ""
	default:
		panic(fmt.Sprintf("constraint: unhandled value %T", v))
	}
}

// TierOf assigns a tier from the value type alone. Identity values are
// primary, temporal/quality/financial values secondary and stylistic
// preferences tertiary.
func TierOf(v entity.Value) Tier {
	switch v.(type) {
	case entity.Person, entity.Genre, entity.Company, entity.Network:
		return Primary
	case entity.Year, entity.DateRange, entity.Rating, entity.Revenue:
		return Secondary
	case entity.Keyword, entity.Runtime, entity.Language, entity.MediaType:
		return Tertiary
	default:
		panic(fmt.Sprintf("constraint: unhandled value %T", v))
	}
}

// combinesWithOr reports whether several values of the same type are
// alternatives. People are always required together, and numeric bounds
// intersect.
func combinesWithOr(v entity.Value) bool {
	switch v.(type) {
	case entity.Genre, entity.Company, entity.Network, entity.Keyword, entity.Year, entity.Language, entity.DateRange:
		return true
	case entity.Person, entity.Rating, entity.Revenue, entity.Runtime, entity.MediaType:
		return false
	default:
		panic(fmt.Sprintf("constraint: unhandled value %T", v))
	}
}

// IsConstraint reports whether a value becomes a tree leaf.
func IsConstraint(v entity.Value) bool {
	return v != nil && KeyOf(v) != ""
}
