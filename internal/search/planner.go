// Package search parses asset and people queries into typed plans and runs
// them against the store.
package search

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/kozaktomas/photo-people/internal/constants"
	"github.com/kozaktomas/photo-people/internal/database"
)

// Strategy selects how matching assets are ranked.
type Strategy int

const (
	StrategyLexical Strategy = iota
	StrategyEmbedding
)

func (s Strategy) String() string {
	if s == StrategyEmbedding {
		return "embedding"
	}
	return "lexical"
}

// Order is the final ordering of the matched set.
type Order int

const (
	OrderRelevance Order = iota
	OrderRecency
)

func (o Order) String() string {
	if o == OrderRecency {
		return "recency"
	}
	return "relevance"
}

// Plan is a validated asset search.
type Plan struct {
	TextTerm string
	Strategy Strategy
	Filters  database.AssetFilter
	Order    Order
	Limit    int
	Offset   int
}

// PeoplePlan is a validated people-by-name search.
type PeoplePlan struct {
	Name       string
	WithHidden bool
}

// searchParams holds coerced query values before schema validation.
type searchParams struct {
	Text   string `query:"q"`
	Clip   bool   `query:"clip"`
	Type   string `query:"type" validate:"omitempty,oneof=IMAGE VIDEO AUDIO OTHER"`
	Recent bool   `query:"recent"`
	Motion bool   `query:"motion"`
	Take   int    `query:"take" validate:"min=1"` // upper bound is constants.MaxPageSize
	Skip   int    `query:"skip" validate:"min=0"`
}

type peopleParams struct {
	Name       string `query:"name" validate:"required"`
	WithHidden bool   `query:"withHidden"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("query")
	})
	return v
}

// ParseBool accepts true/false, 1/0, yes/no and on/off in any case.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	}
	return false, false
}

// coercer collects the first coercion failure so every field can be read in sequence.
type coercer struct {
	op   string
	vals url.Values
	err  error
}

func (c *coercer) boolean(key string) bool {
	if c.err != nil || !c.vals.Has(key) {
		return false
	}
	b, ok := ParseBool(c.vals.Get(key))
	if !ok {
		c.err = apperr.Invalid(c.op, key+" must be a boolean", key)
	}
	return b
}

func (c *coercer) integer(key string, def int) int {
	if c.err != nil || !c.vals.Has(key) {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(c.vals.Get(key)))
	if err != nil {
		c.err = apperr.Invalid(c.op, key+" must be an integer", key)
		return def
	}
	return n
}

// text returns the first present key among keys. A present but blank value is invalid.
func (c *coercer) text(keys ...string) string {
	for _, key := range keys {
		if c.err != nil || !c.vals.Has(key) {
			continue
		}
		s := strings.TrimSpace(c.vals.Get(key))
		if s == "" {
			c.err = apperr.Invalid(c.op, key+" must not be blank", key)
		}
		return s
	}
	return ""
}

// validationError converts the first validator failure into an InvalidArgument.
func validationError(op string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.InvalidArgument, op, err)
	}
	fe := verrs[0]
	msg := fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	if fe.Param() != "" {
		msg += "=" + fe.Param()
	}
	return apperr.Invalid(op, msg, fe.Field())
}

// ParseSearch coerces and validates asset search options. q wins over query.
func ParseSearch(vals url.Values) (Plan, error) {
	const op = "search.ParseSearch"
	c := coercer{op: op, vals: vals}
	p := searchParams{
		Text:   c.text("q", "query"),
		Clip:   c.boolean("clip"),
		Type:   strings.ToUpper(strings.TrimSpace(vals.Get("type"))),
		Recent: c.boolean("recent"),
		Motion: c.boolean("motion"),
		Take:   c.integer("take", constants.DefaultPageSize),
		Skip:   c.integer("skip", 0),
	}
	if c.err != nil {
		return Plan{}, c.err
	}
	if err := validate.Struct(p); err != nil {
		return Plan{}, validationError(op, err)
	}
	if p.Take > constants.MaxPageSize {
		return Plan{}, apperr.Invalid(op, fmt.Sprintf("take must be at most %d", constants.MaxPageSize), "take")
	}
	if p.Clip && p.Text == "" {
		return Plan{}, apperr.Invalid(op, "clip search requires q or query", "clip")
	}

	plan := Plan{
		TextTerm: p.Text,
		Strategy: StrategyLexical,
		Filters:  database.AssetFilter{Type: database.AssetType(p.Type), MotionOnly: p.Motion},
		Order:    OrderRelevance,
		Limit:    p.Take,
		Offset:   p.Skip,
	}
	if p.Clip {
		plan.Strategy = StrategyEmbedding
	}
	if p.Recent || p.Text == "" {
		plan.Order = OrderRecency
	}
	return plan, nil
}

// ParsePeopleSearch validates a people-by-name search.
func ParsePeopleSearch(vals url.Values) (PeoplePlan, error) {
	const op = "search.ParsePeopleSearch"
	c := coercer{op: op, vals: vals}
	p := peopleParams{
		Name:       strings.TrimSpace(vals.Get("name")),
		WithHidden: c.boolean("withHidden"),
	}
	if c.err != nil {
		return PeoplePlan{}, c.err
	}
	if err := validate.Struct(p); err != nil {
		return PeoplePlan{}, validationError(op, err)
	}
	return PeoplePlan(p), nil
}
