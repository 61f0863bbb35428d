package handlers

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-registry/internal/compliance"
	"github.com/ukydev/fleet-registry/internal/models"
)

func TestParseListQuery_Defaults(t *testing.T) {
	q, err := parseListQuery(url.Values{}, 45)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, compliance.DefaultPageSize, q.Limit)
	assert.Equal(t, 45, q.Criteria.AlertDays)
	assert.True(t, q.Criteria.IsEmpty())
	assert.Equal(t, compliance.Ascending, q.Sort.Direction)
}

func TestParseListQuery_AllAxes(t *testing.T) {
	values, err := url.ParseQuery("search=+abc+&estado[]=available&estado=maintenance,available" +
		"&clase[]=BUS&categoriasDocumentos[]=soat&estadosDocumentos[]=expired" +
		"&fechaVencimientoDesde=2024-01-01&fechaVencimientoHasta=2024-12-31T23:59:59Z" +
		"&diasAlerta=15&sort=plate&order=DESC&page=3&limit=25")
	require.NoError(t, err)

	q, err := parseListQuery(values, 30)
	require.NoError(t, err)

	c := q.Criteria
	assert.Equal(t, "abc", c.Search)
	assert.Equal(t, []models.VehicleStatus{models.VehicleAvailable, models.VehicleMaintenance}, c.Statuses)
	assert.Equal(t, []string{"BUS"}, c.Classes)
	assert.Equal(t, []models.DocumentCategory{models.CategorySOAT}, c.DocumentCategories)
	assert.Equal(t, []compliance.Status{compliance.StatusExpired}, c.DocumentStatuses)
	require.NotNil(t, c.ExpiryFrom)
	require.NotNil(t, c.ExpiryTo)
	assert.Equal(t, "2024-01-01", c.ExpiryFrom.Format("2006-01-02"))
	assert.Equal(t, "2024-12-31T23:59:59Z", c.ExpiryTo.Format(time.RFC3339))
	assert.Equal(t, 15, c.AlertDays)
	assert.Equal(t, compliance.SortSpec{Column: "plate", Direction: compliance.Descending}, q.Sort)
	assert.Equal(t, 3, q.Page)
	assert.Equal(t, 25, q.Limit)
}

func TestParseListQuery_DateOnlyUpperBoundIsEndOfDay(t *testing.T) {
	q, err := parseListQuery(url.Values{"fechaVencimientoHasta": {"2024-06-01"}}, 30)
	require.NoError(t, err)
	require.NotNil(t, q.Criteria.ExpiryTo)
	assert.True(t, time.Date(2024, 6, 1, 23, 59, 59, 999999999, time.UTC).Equal(*q.Criteria.ExpiryTo))
}

func TestParseListQuery_LimitIsCapped(t *testing.T) {
	q, err := parseListQuery(url.Values{"limit": {strconv.Itoa(compliance.MaxPageSize)}}, 30)
	require.NoError(t, err)
	assert.Equal(t, compliance.MaxPageSize, q.Limit)

	_, err = parseListQuery(url.Values{"page": {"3"}, "limit": {"4611686018427387904"}}, 30)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields["limit"], "at most")
}

func TestParseListQuery_ReportsEachBadParam(t *testing.T) {
	values := url.Values{
		"limit":                  {"zero"},
		"diasAlerta":             {"-1"},
		"categoriasDocumentos[]": {"LICENCIA"},
		"estadosDocumentos[]":    {"overdue"},
		"fechaVencimientoDesde":  {"yesterday"},
	}
	_, err := parseListQuery(values, 30)

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 5)
}
