package client

import (
	"net/url"
	"strconv"
	"time"

	"github.com/ukydev/fleet-registry/internal/compliance"
)

// Query selects one page of the vehicle roster.
type Query struct {
	Criteria compliance.Criteria
	Sort     compliance.SortSpec
	Page     int
	Limit    int
}

// Values encodes q with the parameter names of the vehicles endpoint.
func (q Query) Values() url.Values {
	v := url.Values{}
	c := q.Criteria.Normalize()
	if c.Search != "" {
		v.Set("search", c.Search)
	}
	for _, s := range c.Statuses {
		v.Add("estado[]", string(s))
	}
	for _, s := range c.Classes {
		v.Add("clase[]", s)
	}
	for _, s := range c.DocumentCategories {
		v.Add("categoriasDocumentos[]", string(s))
	}
	for _, s := range c.DocumentStatuses {
		v.Add("estadosDocumentos[]", string(s))
	}
	if c.ExpiryFrom != nil {
		v.Set("fechaVencimientoDesde", c.ExpiryFrom.UTC().Format(time.RFC3339))
	}
	if c.ExpiryTo != nil {
		v.Set("fechaVencimientoHasta", c.ExpiryTo.UTC().Format(time.RFC3339))
	}
	if c.AlertDays > 0 {
		v.Set("diasAlerta", strconv.Itoa(c.AlertDays))
	}
	if q.Sort.Column != "" {
		v.Set("sort", q.Sort.Column)
		v.Set("order", string(compliance.ParseDirection(string(q.Sort.Direction))))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}
