package entity

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/reelquery/reelquery/internal/pkg/errors"
)

var validate = validator.New()

var (
	decadePattern    = regexp.MustCompile(`^(\d{3})0'?s$`)
	yearSpanPattern  = regexp.MustCompile(`^(\d{4})\s*(?:-|to)\s*(\d{4})$`)
	amountPattern    = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*(k|m|b|mm|bn|thousand|million|billion)?$`)
	minutesPattern   = regexp.MustCompile(`^(\d+)\s*(?:m|min|mins|minutes)?$`)
	hoursPattern     = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(?:h|hr|hrs|hours?)$`)
	languageCodeLike = regexp.MustCompile(`^[a-z]{2}$`)
)

var languageNames = map[string]string{
	"english":    "en",
	"french":     "fr",
	"spanish":    "es",
	"german":     "de",
	"italian":    "it",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"mandarin":   "zh",
	"cantonese":  "cn",
	"hindi":      "hi",
	"portuguese": "pt",
	"russian":    "ru",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"turkish":    "tr",
}

// ParseAll validates every envelope and converts it to a typed value. The
// returned slice is index aligned with entities. The first malformed entity
// aborts the whole batch with an extraction error.
func ParseAll(entities []ExtractedEntity) ([]Value, error) {
	values := make([]Value, len(entities))
	for i, e := range entities {
		v, err := Parse(e)
		if err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				return nil, appErr.WithDetail("index", strconv.Itoa(i))
			}
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// Parse validates a single envelope and converts it to a typed value.
// It never guesses: a missing or unknown type is an extraction error.
func Parse(e ExtractedEntity) (Value, error) {
	if err := validate.Struct(e); err != nil {
		return nil, envelopeError(err)
	}

	value := strings.TrimSpace(e.Value)
	if value == "" {
		return nil, apperrors.ExtractionError("entity value is blank").WithDetail("type", e.Type)
	}

	kind := Kind(strings.ToLower(strings.TrimSpace(e.Type)))
	switch kind {
	case KindPerson:
		return Person{Name: value, ID: e.ID, Role: ParseRole(e.Role)}, nil
	case KindGenre:
		return Genre{Name: value, ID: e.ID}, nil
	case KindCompany:
		return Company{Name: value, ID: e.ID}, nil
	case KindNetwork:
		return Network{Name: value, ID: e.ID}, nil
	case KindKeyword:
		return Keyword{Name: value, ID: e.ID}, nil
	case KindYear:
		y, err := parseYear(value)
		if err != nil {
			return nil, malformed(e, err)
		}
		return Year{Year: y}, nil
	case KindDateRange:
		r, err := parseDateRange(value)
		if err != nil {
			return nil, malformed(e, err)
		}
		return r, nil
	case KindRating:
		return parseRating(e, value)
	case KindRevenue:
		return parseRevenue(e, value)
	case KindRuntime:
		return parseRuntime(e, value)
	case KindLanguage:
		code, err := parseLanguage(value)
		if err != nil {
			return nil, malformed(e, err)
		}
		return Language{Code: code}, nil
	case KindMediaType:
		m, ok := ParseMedia(value)
		if !ok {
			return nil, malformed(e, fmt.Errorf("unknown media type %q", value))
		}
		return MediaType{Media: m}, nil
	default:
		return nil, apperrors.ExtractionError("unknown entity type").WithDetail("type", e.Type)
	}
}

// ParseMedia maps free-form media words onto a media type.
func ParseMedia(s string) (Media, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies", "film", "films":
		return MediaMovie, true
	case "tv", "show", "shows", "series", "tv show", "tv shows", "tv series":
		return MediaTV, true
	default:
		return "", false
	}
}

func envelopeError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperrors.ExtractionError("malformed entity envelope").
			WithDetail("field", strings.ToLower(fe.Field())).
			WithDetail("rule", fe.Tag())
	}
	return apperrors.Wrap(apperrors.CodeExtraction, "malformed entity envelope", err)
}

func malformed(e ExtractedEntity, err error) error {
	return apperrors.Wrap(apperrors.CodeExtraction, "malformed entity value", err).
		WithDetail("type", e.Type).
		WithDetail("value", e.Value)
}

func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	if y < 1870 || y > 2100 {
		return 0, fmt.Errorf("year %d out of range", y)
	}
	return y, nil
}

// parseDateRange accepts "2010-01-01..2015-06-30", "2010..2015", "..1999",
// "2010-2015", "2010 to 2015" and decades such as "1990s".
func parseDateRange(s string) (DateRange, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if m := decadePattern.FindStringSubmatch(s); m != nil {
		start, _ := strconv.Atoi(m[1] + "0")
		return DateRange{From: yearStart(start), To: yearEnd(start + 9)}, nil
	}
	if m := yearSpanPattern.FindStringSubmatch(s); m != nil {
		from, _ := strconv.Atoi(m[1])
		to, _ := strconv.Atoi(m[2])
		return orderedRange(yearStart(from), yearEnd(to))
	}

	lo, hi, ok := strings.Cut(s, "..")
	if !ok {
		return DateRange{}, fmt.Errorf("invalid date range %q", s)
	}
	from, err := parseBound(lo, false)
	if err != nil {
		return DateRange{}, err
	}
	to, err := parseBound(hi, true)
	if err != nil {
		return DateRange{}, err
	}
	if from.IsZero() && to.IsZero() {
		return DateRange{}, fmt.Errorf("date range %q has no bounds", s)
	}
	return orderedRange(from, to)
}

func orderedRange(from, to time.Time) (DateRange, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return DateRange{}, fmt.Errorf("date range ends before it starts")
	}
	return DateRange{From: from, To: to}, nil
}

func parseBound(s string, upper bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if len(s) == 4 {
		y, err := parseYear(s)
		if err != nil {
			return time.Time{}, err
		}
		if upper {
			return yearEnd(y), nil
		}
		return yearStart(y), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

func yearStart(y int) time.Time { return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC) }
func yearEnd(y int) time.Time   { return time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC) }

func parseRating(e ExtractedEntity, s string) (Value, error) {
	op, err := ParseOperator(e.Operator, GreaterThanEqual)
	if err != nil {
		return nil, malformed(e, err)
	}
	score, err := strconv.ParseFloat(strings.TrimSuffix(s, "/10"), 64)
	if err != nil || score < 0 || score > 10 {
		return nil, malformed(e, fmt.Errorf("rating %q must be between 0 and 10", s))
	}
	return Rating{Score: score, Op: op}, nil
}

// parseRevenue accepts plain and abbreviated amounts: "25000000",
// "$25,000,000", "25M", "1.2 billion". A missing operator means "at least".
func parseRevenue(e ExtractedEntity, s string) (Value, error) {
	op, err := ParseOperator(e.Operator, GreaterThanEqual)
	if err != nil {
		return nil, malformed(e, err)
	}
	amount, err := parseAmount(s)
	if err != nil {
		return nil, malformed(e, err)
	}
	return Revenue{Threshold: amount, Op: op}, nil
}

func parseAmount(s string) (int64, error) {
	clean := strings.ToLower(strings.TrimSpace(s))
	clean = strings.NewReplacer("$", "", ",", "", "_", "", "usd", "").Replace(clean)
	clean = strings.TrimSpace(clean)

	m := amountPattern.FindStringSubmatch(clean)
	if m == nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	switch m[2] {
	case "k", "thousand":
		n *= 1e3
	case "m", "mm", "million":
		n *= 1e6
	case "b", "bn", "billion":
		n *= 1e9
	}
	if n <= 0 {
		return 0, fmt.Errorf("amount %q must be positive", s)
	}
	return int64(math.Round(n)), nil
}

func parseRuntime(e ExtractedEntity, s string) (Value, error) {
	op, err := ParseOperator(e.Operator, GreaterThanEqual)
	if err != nil {
		return nil, malformed(e, err)
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if m := hoursPattern.FindStringSubmatch(s); m != nil {
		h, _ := strconv.ParseFloat(m[1], 64)
		return Runtime{Minutes: int(h * 60), Op: op}, nil
	}
	if m := minutesPattern.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n > 0 {
			return Runtime{Minutes: n, Op: op}, nil
		}
	}
	return nil, malformed(e, fmt.Errorf("invalid runtime %q", s))
}

func parseLanguage(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if code, ok := languageNames[s]; ok {
		return code, nil
	}
	if languageCodeLike.MatchString(s) {
		return s, nil
	}
	return "", fmt.Errorf("unknown language %q", s)
}
