package compliance

import (
	"sort"
	"strings"
	"time"

	"github.com/ukydev/fleet-registry/internal/models"
)

// Direction is the order of a sort.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection maps user input to a Direction, defaulting to ascending.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Descending)) {
		return Descending
	}
	return Ascending
}

// SortSpec names the column to order by. An empty or unknown column keeps input order.
type SortSpec struct {
	Column    string    `toml:"column" json:"sort,omitempty"`
	Direction Direction `toml:"direction" json:"order,omitempty"`
}

type keyKind int

const (
	textKey keyKind = iota
	numberKey
	dateKey
)

// sortKey is one vehicle's value for the sort column. present is false for
// absent values, which order before every present value.
type sortKey struct {
	present bool
	text    string
	number  float64
	date    time.Time
}

type column struct {
	kind keyKind
	get  func(models.Vehicle) sortKey
}

func text(s string) sortKey {
	return sortKey{present: s != "", text: s}
}

func date(t *time.Time) sortKey {
	if t == nil || t.IsZero() {
		return sortKey{}
	}
	return sortKey{present: true, date: *t}
}

var columns = map[string]column{
	"plate":          {textKey, func(v models.Vehicle) sortKey { return text(v.Plate) }},
	"brand":          {textKey, func(v models.Vehicle) sortKey { return text(v.Brand) }},
	"line":           {textKey, func(v models.Vehicle) sortKey { return text(v.Line) }},
	"color":          {textKey, func(v models.Vehicle) sortKey { return text(v.Color) }},
	"class":          {textKey, func(v models.Vehicle) sortKey { return text(v.Class) }},
	"body_type":      {textKey, func(v models.Vehicle) sortKey { return text(v.BodyType) }},
	"fuel_type":      {textKey, func(v models.Vehicle) sortKey { return text(v.FuelType) }},
	"status":         {textKey, func(v models.Vehicle) sortKey { return text(string(v.Status)) }},
	"owner_name":     {textKey, func(v models.Vehicle) sortKey { return text(v.OwnerName) }},
	"owner_id":       {textKey, func(v models.Vehicle) sortKey { return text(v.OwnerID) }},
	"vin":            {textKey, func(v models.Vehicle) sortKey { return text(v.VIN) }},
	"engine_number":  {textKey, func(v models.Vehicle) sortKey { return text(v.EngineNumber) }},
	"chassis_number": {textKey, func(v models.Vehicle) sortKey { return text(v.ChassisNumber) }},
	"model": {numberKey, func(v models.Vehicle) sortKey {
		return sortKey{present: v.Model != 0, number: float64(v.Model)}
	}},
	"odometer": {numberKey, func(v models.Vehicle) sortKey {
		if v.Odometer == nil {
			return sortKey{}
		}
		return sortKey{present: true, number: *v.Odometer}
	}},
	"registration_date": {dateKey, func(v models.Vehicle) sortKey { return date(v.RegistrationDate) }},
	"created_at":        {dateKey, func(v models.Vehicle) sortKey { return date(&v.CreatedAt) }},
	"updated_at":        {dateKey, func(v models.Vehicle) sortKey { return date(&v.UpdatedAt) }},
	"next_expiry":       {dateKey, func(v models.Vehicle) sortKey { return date(nextExpiry(v)) }},
}

// SortColumns lists the column names accepted by Sort.
func SortColumns() []string {
	out := make([]string, 0, len(columns))
	for name := range columns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// nextExpiry is the earliest expiry among the vehicle's watched documents.
func nextExpiry(v models.Vehicle) *time.Time {
	var next *time.Time
	for _, d := range v.Documents {
		if d.ExpiryDate == nil || !contains(WatchedCategories, d.Category) {
			continue
		}
		if next == nil || d.ExpiryDate.Before(*next) {
			next = d.ExpiryDate
		}
	}
	return next
}

func compareKeys(kind keyKind, a, b sortKey) int {
	switch {
	case !a.present && !b.present:
		return 0
	case !a.present:
		return -1
	case !b.present:
		return 1
	}
	switch kind {
	case numberKey:
		switch {
		case a.number < b.number:
			return -1
		case a.number > b.number:
			return 1
		}
		return 0
	case dateKey:
		return a.date.Compare(b.date)
	default:
		return strings.Compare(a.text, b.text)
	}
}

// Sort returns a stably sorted copy of vehicles. Absent values are treated as
// the smallest, so they lead in ascending order and trail in descending order.
func Sort(vehicles []models.Vehicle, s SortSpec) []models.Vehicle {
	out := make([]models.Vehicle, len(vehicles))
	copy(out, vehicles)
	sortInPlace(out, s)
	return out
}

func sortInPlace(vehicles []models.Vehicle, s SortSpec) {
	col, ok := columns[s.Column]
	if !ok || len(vehicles) < 2 {
		return
	}
	keys := make([]sortKey, len(vehicles))
	for i, v := range vehicles {
		keys[i] = col.get(v)
	}
	idx := make([]int, len(vehicles))
	for i := range idx {
		idx[i] = i
	}
	desc := s.Direction == Descending
	sort.SliceStable(idx, func(i, j int) bool {
		c := compareKeys(col.kind, keys[idx[i]], keys[idx[j]])
		if desc {
			c = -c
		}
		return c < 0
	})

	sorted := make([]models.Vehicle, len(vehicles))
	for i, k := range idx {
		sorted[i] = vehicles[k]
	}
	copy(vehicles, sorted)
}
