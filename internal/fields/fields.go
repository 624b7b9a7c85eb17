// Package fields is the dictionary of session fields: the closed set of
// semantic field names the wizard may read or write, each mapped to its
// database column and to the wire parameter name the search provider expects.
// The dictionary is compiled in and immutable, so concurrent reads from any
// number of participant workers need no synchronization.
package fields

import (
	"fmt"
	"sort"
	"time"
)

// Field is a semantic session field name. Only the constants below are valid;
// anything else is rejected by WireName/Column, which closes off the
// build-a-column-name-from-user-input path entirely.
type Field string

const (
	SortOrder     Field = "sort_order"
	Query         Field = "query"
	CityID        Field = "city_id"
	Locale        Field = "locale"
	Currency      Field = "currency"
	PageNumber    Field = "page_number"
	NumberHotels  Field = "number_hotels"
	NumberPersons Field = "number_persons"
	CheckIn       Field = "check_in"
	CheckOut      Field = "check_out"
	HotelID       Field = "hotel_id"
	HotelPics     Field = "hotel_pics"
	PriceStart    Field = "price_start"
	PriceStop     Field = "price_stop"
	Distance      Field = "distance"
	DatetimeQuery Field = "datetime_query"
	RootUserQuery Field = "root_user_query"
)

// Kind describes how a stored column value is interpreted on read.
type Kind int

const (
	KindString Kind = iota
	KindDate
	KindFloat
)

// DateLayout is the storage layout for date-kind fields.
const DateLayout = "2006-01-02"

// TimestampLayout is the layout for the datetime_query label. It doubles as
// the artifact directory name, so it contains no path separators.
const TimestampLayout = "02-01-06 15-04-05"

type entry struct {
	wire   string // provider wire parameter name ("" if never sent)
	column string // gorm column on models.SearchSession
	kind   Kind
}

var dictionary = map[Field]entry{
	SortOrder:     {wire: "sortOrder", column: "sort_order", kind: KindString},
	Query:         {wire: "query", column: "query", kind: KindString},
	CityID:        {wire: "destinationId", column: "city_id", kind: KindString},
	Locale:        {wire: "locale", column: "locale", kind: KindString},
	Currency:      {wire: "currency", column: "currency", kind: KindString},
	PageNumber:    {wire: "pageNumber", column: "page_number", kind: KindString},
	NumberHotels:  {wire: "pageSize", column: "number_hotels", kind: KindString},
	NumberPersons: {wire: "adults1", column: "number_persons", kind: KindString},
	CheckIn:       {wire: "checkIn", column: "check_in", kind: KindDate},
	CheckOut:      {wire: "checkOut", column: "check_out", kind: KindDate},
	HotelID:       {wire: "id", column: "hotel_id", kind: KindString},
	HotelPics:     {wire: "", column: "hotel_pics", kind: KindString},
	PriceStart:    {wire: "priceMin", column: "price_start", kind: KindFloat},
	PriceStop:     {wire: "priceMax", column: "price_stop", kind: KindFloat},
	Distance:      {wire: "distance", column: "distance", kind: KindFloat},
	DatetimeQuery: {wire: "", column: "datetime_query", kind: KindString},
	RootUserQuery: {wire: "", column: "root_user_query", kind: KindString},
}

// Known reports whether f is a member of the dictionary.
func Known(f Field) bool {
	_, ok := dictionary[f]
	return ok
}

// WireName returns the provider wire parameter name for f. Fields that are
// never sent to the provider (bookkeeping columns) return an error.
func WireName(f Field) (string, error) {
	e, ok := dictionary[f]
	if !ok {
		return "", fmt.Errorf("fields: unknown field %q", f)
	}
	if e.wire == "" {
		return "", fmt.Errorf("fields: %q has no wire name", f)
	}
	return e.wire, nil
}

// Column returns the database column name for f.
func Column(f Field) (string, error) {
	e, ok := dictionary[f]
	if !ok {
		return "", fmt.Errorf("fields: unknown field %q", f)
	}
	return e.column, nil
}

// KindOf returns the value kind for f, or KindString for unknown fields.
func KindOf(f Field) Kind {
	return dictionary[f].kind
}

// FormatDate renders t for storage in a date-kind field.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a stored date-kind value. Blank means "not collected".
func ParseDate(v string) (time.Time, bool, error) {
	if v == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("fields: parse date %q: %w", v, err)
	}
	return t, true, nil
}

// All returns every field in the dictionary in a stable order.
func All() []Field {
	out := make([]Field, 0, len(dictionary))
	for f := range dictionary {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
