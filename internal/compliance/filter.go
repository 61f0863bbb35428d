package compliance

import (
	"strconv"
	"strings"
	"time"

	"github.com/ukydev/fleet-registry/internal/models"
)

// Criteria is the set of roster filters chosen in a session.
// An empty field places no constraint on its axis.
type Criteria struct {
	Search             string                    `toml:"search" json:"search,omitempty"`
	Statuses           []models.VehicleStatus    `toml:"estado" json:"estado,omitempty"`
	Classes            []string                  `toml:"clase" json:"clase,omitempty"`
	DocumentCategories []models.DocumentCategory `toml:"categorias_documentos" json:"categoriasDocumentos,omitempty"`
	DocumentStatuses   []Status                  `toml:"estados_documentos" json:"estadosDocumentos,omitempty"`
	ExpiryFrom         *time.Time                `toml:"fecha_vencimiento_desde" json:"fechaVencimientoDesde,omitempty"`
	ExpiryTo           *time.Time                `toml:"fecha_vencimiento_hasta" json:"fechaVencimientoHasta,omitempty"`
	AlertDays          int                       `toml:"dias_alerta" json:"diasAlerta,omitempty"`
}

// Normalize trims the search term and removes duplicate set entries.
func (c Criteria) Normalize() Criteria {
	c.Search = strings.TrimSpace(c.Search)
	c.Statuses = dedupe(c.Statuses)
	c.Classes = dedupe(c.Classes)
	c.DocumentCategories = dedupe(c.DocumentCategories)
	c.DocumentStatuses = dedupe(c.DocumentStatuses)
	return c
}

// IsEmpty reports whether no axis is constrained.
func (c Criteria) IsEmpty() bool {
	return strings.TrimSpace(c.Search) == "" &&
		len(c.Statuses) == 0 && len(c.Classes) == 0 &&
		len(c.DocumentCategories) == 0 && len(c.DocumentStatuses) == 0 &&
		c.ExpiryFrom == nil && c.ExpiryTo == nil
}

func dedupe[T comparable](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Apply returns the vehicles that satisfy every axis of c, ordered by s.
// The input slice is never modified.
func Apply(vehicles []models.Vehicle, c Criteria, s SortSpec, now time.Time) []models.Vehicle {
	c = c.Normalize()
	classifier := NewClassifier(c.AlertDays)

	out := make([]models.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if c.matches(v, now, classifier) {
			out = append(out, v)
		}
	}
	sortInPlace(out, s)
	return out
}

func (c Criteria) matches(v models.Vehicle, now time.Time, classifier Classifier) bool {
	if c.Search != "" && !matchesSearch(v, c.Search) {
		return false
	}
	if len(c.Statuses) > 0 && !contains(c.Statuses, v.Status) {
		return false
	}
	if len(c.Classes) > 0 && !contains(c.Classes, v.Class) {
		return false
	}
	if len(c.DocumentCategories) > 0 && !hasCategory(v.Documents, c.DocumentCategories) {
		return false
	}
	if len(c.DocumentStatuses) > 0 && !c.matchesDocumentStatus(v, now, classifier) {
		return false
	}
	if (c.ExpiryFrom != nil || c.ExpiryTo != nil) && !c.matchesExpiryRange(v) {
		return false
	}
	return true
}

func matchesSearch(v models.Vehicle, term string) bool {
	needle := strings.ToLower(term)
	fields := []string{
		v.Plate, v.Brand, v.Line, v.Color, v.Class, v.OwnerName,
		v.EngineNumber, v.ChassisNumber, v.VIN,
	}
	if v.Model != 0 {
		fields = append(fields, strconv.Itoa(v.Model))
	}
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func hasCategory(docs []models.Document, cats []models.DocumentCategory) bool {
	for _, d := range docs {
		if contains(cats, d.Category) {
			return true
		}
	}
	return false
}

// matchesDocumentStatus classifies the categories in scope with the session's
// alert window. The scope is the selected categories, or the watched ones.
func (c Criteria) matchesDocumentStatus(v models.Vehicle, now time.Time, classifier Classifier) bool {
	scope := WatchedCategories
	if len(c.DocumentCategories) > 0 {
		scope = c.DocumentCategories
	}
	for _, st := range Aggregate(v.Documents, scope, now, classifier).All() {
		if contains(c.DocumentStatuses, st.Status) {
			return true
		}
	}
	return false
}

// matchesExpiryRange passes when any dated document in scope expires within
// [ExpiryFrom, ExpiryTo]. Undated documents never satisfy this axis.
func (c Criteria) matchesExpiryRange(v models.Vehicle) bool {
	for _, d := range v.Documents {
		if d.ExpiryDate == nil || d.ExpiryDate.IsZero() {
			continue
		}
		if len(c.DocumentCategories) > 0 && !contains(c.DocumentCategories, d.Category) {
			continue
		}
		if c.ExpiryFrom != nil && d.ExpiryDate.Before(*c.ExpiryFrom) {
			continue
		}
		if c.ExpiryTo != nil && d.ExpiryDate.After(*c.ExpiryTo) {
			continue
		}
		return true
	}
	return false
}

// DefaultPageSize is used when a page size is not given.
const DefaultPageSize = 10

// MaxPageSize is the largest page the vehicles endpoint serves.
const MaxPageSize = 100

// Paginate slices an already filtered roster into a page. Pages start at 1.
func Paginate(vehicles []models.Vehicle, page, size int) models.VehiclePage {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	data := []models.Vehicle{}
	// compare page counts first so (page-1)*size cannot overflow
	pages := len(vehicles) / size
	if len(vehicles)%size != 0 {
		pages++
	}
	if page-1 < pages {
		start := (page - 1) * size
		end := len(vehicles)
		if size < end-start {
			end = start + size
		}
		data = vehicles[start:end]
	}
	return models.VehiclePage{Data: data, Count: len(vehicles), CurrentPage: page}
}
