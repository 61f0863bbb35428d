package handlers

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ukydev/fleet-registry/internal/compliance"
	"github.com/ukydev/fleet-registry/internal/models"
)

// listQuery is a parsed GET /api/vehicles request.
type listQuery struct {
	Criteria compliance.Criteria
	Sort     compliance.SortSpec
	Page     int
	Limit    int
}

// multi returns the values of a set parameter. Both "name[]" and "name" are
// accepted, and each value may hold a comma separated list.
func multi(q url.Values, name string) []string {
	var out []string
	for _, key := range []string{name + "[]", name} {
		for _, raw := range q[key] {
			for _, part := range strings.Split(raw, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
	}
	return out
}

// parseListQuery reads paging, sorting and filter parameters. Malformed
// values are reported per parameter.
func parseListQuery(q url.Values, alertDays int) (listQuery, error) {
	bad := map[string]string{}
	lq := listQuery{Page: 1, Limit: compliance.DefaultPageSize}

	intParam := func(name string, least int, dst *int) {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			return
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < least {
			bad[name] = "must be an integer of at least " + strconv.Itoa(least)
			return
		}
		*dst = n
	}
	intParam("page", 1, &lq.Page)
	intParam("limit", 1, &lq.Limit)
	if lq.Limit > compliance.MaxPageSize {
		bad["limit"] = "must be at most " + strconv.Itoa(compliance.MaxPageSize)
	}

	c := compliance.Criteria{Search: q.Get("search"), AlertDays: alertDays}
	intParam("diasAlerta", 1, &c.AlertDays)

	for _, s := range multi(q, "estado") {
		st := models.VehicleStatus(s)
		if !models.IsValidVehicleStatus(st) {
			bad["estado"] = "has an unsupported value"
			continue
		}
		c.Statuses = append(c.Statuses, st)
	}
	c.Classes = multi(q, "clase")
	for _, s := range multi(q, "categoriasDocumentos") {
		cat := models.DocumentCategory(strings.ToUpper(s))
		if !models.IsValidCategory(cat) {
			bad["categoriasDocumentos"] = "has an unsupported value"
			continue
		}
		c.DocumentCategories = append(c.DocumentCategories, cat)
	}
	for _, s := range multi(q, "estadosDocumentos") {
		st := compliance.Status(s)
		if !compliance.IsValidStatus(st) {
			bad["estadosDocumentos"] = "has an unsupported value"
			continue
		}
		c.DocumentStatuses = append(c.DocumentStatuses, st)
	}
	for _, bound := range []struct {
		name  string
		dst   **time.Time
		parse func(string) (time.Time, bool)
	}{
		{"fechaVencimientoDesde", &c.ExpiryFrom, compliance.ParseDate},
		{"fechaVencimientoHasta", &c.ExpiryTo, compliance.ParseRangeEnd},
	} {
		name, dst := bound.name, bound.dst
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, ok := bound.parse(raw)
		if !ok {
			bad[name] = "must be a date"
			continue
		}
		*dst = &t
	}

	lq.Criteria = c.Normalize()
	lq.Sort = compliance.SortSpec{
		Column:    q.Get("sort"),
		Direction: compliance.ParseDirection(q.Get("order")),
	}

	if len(bad) > 0 {
		return listQuery{}, &models.ValidationError{Fields: bad}
	}
	return lq, nil
}
