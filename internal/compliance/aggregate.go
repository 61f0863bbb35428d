package compliance

import (
	"sort"
	"time"

	"github.com/ukydev/fleet-registry/internal/models"
)

// WatchedCategories are the expiring documents every vehicle is expected to carry.
var WatchedCategories = []models.DocumentCategory{
	models.CategorySOAT,
	models.CategoryRoadworthiness,
	models.CategoryOperationCard,
	models.CategoryContractualPolicy,
	models.CategoryLiabilityPolicy,
	models.CategoryComprehensivePolicy,
}

// DocumentState is a watched category paired with its document and status.
// Document is nil when the vehicle has no document of that category.
type DocumentState struct {
	Category   models.DocumentCategory `json:"category"`
	Document   *models.Document        `json:"document,omitempty"`
	ExpiryDate *time.Time              `json:"expiry_date,omitempty"`
	Status     Status                  `json:"status"`
}

// Summary is the per-vehicle compliance picture.
type Summary struct {
	Expired      []DocumentState `json:"expired"`
	ExpiringSoon []DocumentState `json:"expiring_soon"`
	Valid        []DocumentState `json:"valid"`
	NoDate       []DocumentState `json:"no_date"`
	Priority     *DocumentState  `json:"priority,omitempty"`
}

// All returns every state in priority order: no date, expired, expiring soon, valid.
func (s Summary) All() []DocumentState {
	out := make([]DocumentState, 0, len(s.NoDate)+len(s.Expired)+len(s.ExpiringSoon)+len(s.Valid))
	out = append(out, s.NoDate...)
	out = append(out, s.Expired...)
	out = append(out, s.ExpiringSoon...)
	return append(out, s.Valid...)
}

// Aggregate classifies the watched categories of a vehicle's documents.
// When several documents share a category the most recently uploaded one counts.
func Aggregate(docs []models.Document, categories []models.DocumentCategory, now time.Time, c Classifier) Summary {
	latest := latestByCategory(docs)

	var s Summary
	for _, cat := range categories {
		st := DocumentState{Category: cat}
		if d, ok := latest[cat]; ok {
			doc := d.Clone()
			st.Document = &doc
			st.ExpiryDate = doc.ExpiryDate
		}
		st.Status = c.Classify(st.ExpiryDate, now)

		switch st.Status {
		case StatusExpired:
			s.Expired = append(s.Expired, st)
		case StatusExpiringSoon:
			s.ExpiringSoon = append(s.ExpiringSoon, st)
		case StatusValid:
			s.Valid = append(s.Valid, st)
		default:
			s.NoDate = append(s.NoDate, st)
		}
	}

	sortByExpiry(s.Expired)
	sortByExpiry(s.ExpiringSoon)
	sortByExpiry(s.Valid)

	for _, bucket := range [][]DocumentState{s.NoDate, s.Expired, s.ExpiringSoon, s.Valid} {
		if len(bucket) > 0 {
			p := bucket[0]
			s.Priority = &p
			break
		}
	}
	return s
}

// SummarizeVehicle aggregates v against WatchedCategories.
func SummarizeVehicle(v models.Vehicle, now time.Time, c Classifier) Summary {
	return Aggregate(v.Documents, WatchedCategories, now, c)
}

// PriorityStatus returns the one-line badge status for a vehicle.
func PriorityStatus(v models.Vehicle, now time.Time, c Classifier) Status {
	s := SummarizeVehicle(v, now, c)
	if s.Priority == nil {
		return StatusValid
	}
	return s.Priority.Status
}

func latestByCategory(docs []models.Document) map[models.DocumentCategory]models.Document {
	out := make(map[models.DocumentCategory]models.Document, len(docs))
	for _, d := range docs {
		cur, ok := out[d.Category]
		if !ok || d.UploadedAt.After(cur.UploadedAt) {
			out[d.Category] = d
		}
	}
	return out
}

func sortByExpiry(states []DocumentState) {
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].ExpiryDate.Before(*states[j].ExpiryDate)
	})
}

// CategoryGroup holds the documents of one category for the detail view.
type CategoryGroup struct {
	Category  models.DocumentCategory `json:"category"`
	Documents []models.Document       `json:"documents"`
}

// GroupByCategory groups documents by category in display priority order.
// Unknown categories come last, in the order they first appear.
func GroupByCategory(docs []models.Document) []CategoryGroup {
	index := make(map[models.DocumentCategory]int)
	var groups []CategoryGroup
	for _, d := range docs {
		i, ok := index[d.Category]
		if !ok {
			i = len(groups)
			index[d.Category] = i
			groups = append(groups, CategoryGroup{Category: d.Category})
		}
		groups[i].Documents = append(groups[i].Documents, d.Clone())
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return categoryRank(groups[i].Category) < categoryRank(groups[j].Category)
	})
	return groups
}

func categoryRank(c models.DocumentCategory) int {
	for i, known := range models.Categories {
		if c == known {
			return i
		}
	}
	return len(models.Categories)
}

// DocumentsView is the detail picture of one vehicle's documents.
type DocumentsView struct {
	Summary Summary         `json:"summary"`
	Groups  []CategoryGroup `json:"groups"`
}

// ViewVehicle builds the documents view of v.
func ViewVehicle(v models.Vehicle, now time.Time, c Classifier) DocumentsView {
	return DocumentsView{
		Summary: SummarizeVehicle(v, now, c),
		Groups:  GroupByCategory(v.Documents),
	}
}
