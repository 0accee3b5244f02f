// Package entity defines the extracted-entity envelope produced by the NLU
// step and the closed set of typed values the planner works with.
package entity

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the wire name of an entity type.
type Kind string

// Entity kinds accepted from the NLU step.
const (
	KindPerson    Kind = "person"
	KindGenre     Kind = "genre"
	KindCompany   Kind = "company"
	KindNetwork   Kind = "network"
	KindKeyword   Kind = "keyword"
	KindYear      Kind = "year"
	KindDateRange Kind = "date_range"
	KindRating    Kind = "rating"
	KindRevenue   Kind = "revenue"
	KindRuntime   Kind = "runtime"
	KindLanguage  Kind = "language"
	KindMediaType Kind = "media_type"
)

// Operator is a comparison carried by numeric entities.
type Operator string

// Comparison operators.
const (
	LessThan         Operator = "less_than"
	LessThanEqual    Operator = "less_than_equal"
	GreaterThan      Operator = "greater_than"
	GreaterThanEqual Operator = "greater_than_equal"
)

// Compare reports whether actual satisfies "actual op threshold".
func (o Operator) Compare(actual, threshold float64) bool {
	switch o {
	case LessThan:
		return actual < threshold
	case LessThanEqual:
		return actual <= threshold
	case GreaterThan:
		return actual > threshold
	case GreaterThanEqual:
		return actual >= threshold
	default:
		return false
	}
}

// IsUpper reports whether the operator bounds a value from above.
func (o Operator) IsUpper() bool {
	return o == LessThan || o == LessThanEqual
}

// ParseOperator validates a wire operator. An empty string yields def.
func ParseOperator(s string, def Operator) (Operator, error) {
	switch Operator(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def, nil
	case LessThan, "lt", "<":
		return LessThan, nil
	case LessThanEqual, "lte", "<=":
		return LessThanEqual, nil
	case GreaterThan, "gt", ">":
		return GreaterThan, nil
	case GreaterThanEqual, "gte", ">=":
		return GreaterThanEqual, nil
	default:
		return "", fmt.Errorf("unknown operator %q", s)
	}
}

// Role narrows a person to how they took part in a work.
type Role string

// Person roles.
const (
	RoleAny  Role = ""
	RoleCast Role = "cast"
	RoleCrew Role = "crew"
)

// ParseRole maps free-form NLU roles onto cast or crew.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "actor", "actress", "cast", "star", "starring":
		return RoleCast
	case "director", "writer", "producer", "composer", "crew", "screenplay", "creator":
		return RoleCrew
	default:
		return RoleAny
	}
}

// Media is a top-level media type.
type Media string

// Media types.
const (
	MediaMovie Media = "movie"
	MediaTV    Media = "tv"
)

// ExtractedEntity is the wire envelope produced once per query by the NLU
// step. It is treated as immutable; resolution writes IDs onto copies.
type ExtractedEntity struct {
	Type       string  `json:"type" validate:"required"`
	Value      string  `json:"value" validate:"required"`
	Operator   string  `json:"operator,omitempty"`
	Role       string  `json:"role,omitempty"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`

	// ID is the resolved external identifier. NLU may supply it directly.
	ID int `json:"id,omitempty" validate:"gte=0"`
}

// Value is the closed set of typed entity values. Only types in this
// package implement it.
type Value interface {
	Kind() Kind
	// Label is a human readable rendering used in provenance entries.
	Label() string
	sealed()
}

// Person is a cast or crew member.
type Person struct {
	Name string
	ID   int
	Role Role
}

// Genre is a genre by name and resolved id.
type Genre struct {
	Name string
	ID   int
}

// Company is a production company.
type Company struct {
	Name string
	ID   int
}

// Network is a TV network.
type Network struct {
	Name string
	ID   int
}

// Keyword is a stylistic tag.
type Keyword struct {
	Name string
	ID   int
}

// Year is a single release year.
type Year struct {
	Year int
}

// DateRange is an inclusive release date window. Either bound may be zero.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Rating is a bound on the average vote.
type Rating struct {
	Score float64
	Op    Operator
}

// Revenue is a box office threshold.
type Revenue struct {
	Threshold int64
	Op        Operator
}

// Runtime is a bound on running time in minutes.
type Runtime struct {
	Minutes int
	Op      Operator
}

// Language is an original-language ISO 639-1 code.
type Language struct {
	Code string
}

// MediaType is a media hint. It never becomes a constraint.
type MediaType struct {
	Media Media
}

func (Person) Kind() Kind    { return KindPerson }
func (Genre) Kind() Kind     { return KindGenre }
func (Company) Kind() Kind   { return KindCompany }
func (Network) Kind() Kind   { return KindNetwork }
func (Keyword) Kind() Kind   { return KindKeyword }
func (Year) Kind() Kind      { return KindYear }
func (DateRange) Kind() Kind { return KindDateRange }
func (Rating) Kind() Kind    { return KindRating }
func (Revenue) Kind() Kind   { return KindRevenue }
func (Runtime) Kind() Kind   { return KindRuntime }
func (Language) Kind() Kind  { return KindLanguage }
func (MediaType) Kind() Kind { return KindMediaType }

func (Person) sealed()    {}
func (Genre) sealed()     {}
func (Company) sealed()   {}
func (Network) sealed()   {}
func (Keyword) sealed()   {}
func (Year) sealed()      {}
func (DateRange) sealed() {}
func (Rating) sealed()    {}
func (Revenue) sealed()   {}
func (Runtime) sealed()   {}
func (Language) sealed()  {}
func (MediaType) sealed() {}

func (v Person) Label() string {
	if v.Role != RoleAny {
		return fmt.Sprintf("%s (%s)", v.Name, v.Role)
	}
	return v.Name
}
func (v Genre) Label() string   { return v.Name }
func (v Company) Label() string { return v.Name }
func (v Network) Label() string { return v.Name }
func (v Keyword) Label() string { return v.Name }
func (v Year) Label() string    { return strconv.Itoa(v.Year) }
func (v DateRange) Label() string {
	return fmt.Sprintf("%s..%s", FormatDate(v.From), FormatDate(v.To))
}
func (v Rating) Label() string  { return fmt.Sprintf("%s %g", v.Op, v.Score) }
func (v Revenue) Label() string { return fmt.Sprintf("%s %d", v.Op, v.Threshold) }
func (v Runtime) Label() string { return fmt.Sprintf("%s %dmin", v.Op, v.Minutes) }
func (v Language) Label() string {
	return v.Code
}
func (v MediaType) Label() string { return string(v.Media) }

// ResolvedID returns the external id of identity values, or 0.
func ResolvedID(v Value) int {
	switch t := v.(type) {
	case Person:
		return t.ID
	case Genre:
		return t.ID
	case Company:
		return t.ID
	case Network:
		return t.ID
	case Keyword:
		return t.ID
	default:
		return 0
	}
}

// FormatDate renders t as YYYY-MM-DD, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// WithID returns a copy of an identity value carrying id. Other values are
// returned unchanged.
func WithID(v Value, id int) Value {
	switch t := v.(type) {
	case Person:
		t.ID = id
		return t
	case Genre:
		t.ID = id
		return t
	case Company:
		t.ID = id
		return t
	case Network:
		t.ID = id
		return t
	case Keyword:
		t.ID = id
		return t
	default:
		return v
	}
}

// Name returns the name of an identity value, or "".
func Name(v Value) string {
	switch t := v.(type) {
	case Person:
		return t.Name
	case Genre:
		return t.Name
	case Company:
		return t.Name
	case Network:
		return t.Name
	case Keyword:
		return t.Name
	default:
		return ""
	}
}
