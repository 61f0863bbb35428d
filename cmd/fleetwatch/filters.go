package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/ukydev/fleet-registry/internal/compliance"
	"github.com/ukydev/fleet-registry/internal/config"
	"github.com/ukydev/fleet-registry/internal/models"
)

func addFilterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("preset", "", "start from a saved filter preset")
	f.StringP("search", "s", "", "free text search")
	f.StringSlice("estado", nil, "vehicle statuses (in_service, available, maintenance, decommissioned)")
	f.StringSlice("clase", nil, "vehicle classes")
	f.StringSlice("categoria", nil, "document categories, e.g. SOAT,TECNOMECANICA")
	f.StringSlice("estado-doc", nil, "document statuses (no_date, expired, expiring_soon, valid)")
	f.String("desde", "", "earliest expiry date (YYYY-MM-DD)")
	f.String("hasta", "", "latest expiry date (YYYY-MM-DD)")
	f.Int("dias", 0, "alert threshold in days (default from config)")
	f.String("sort", "", "sort column, one of: "+strings.Join(compliance.SortColumns(), ", "))
	f.String("order", "asc", "sort direction (asc or desc)")
}

// filtersFromFlags builds criteria and sort from a preset, then overrides
// each axis given on the command line.
func filtersFromFlags(cmd *cobra.Command, cfg *config.ClientConfig) (compliance.Criteria, compliance.SortSpec, error) {
	f := cmd.Flags()
	var preset config.Preset
	if name, _ := f.GetString("preset"); name != "" {
		p, ok := cfg.Preset(name)
		if !ok {
			return compliance.Criteria{}, compliance.SortSpec{}, fmt.Errorf("unknown preset %q", name)
		}
		preset = p
	}
	c, s := preset.Criteria, preset.Sort

	if f.Changed("search") {
		c.Search, _ = f.GetString("search")
	}
	if f.Changed("estado") {
		values, _ := f.GetStringSlice("estado")
		c.Statuses = nil
		for _, v := range values {
			st := models.VehicleStatus(strings.TrimSpace(v))
			if !models.IsValidVehicleStatus(st) {
				return c, s, fmt.Errorf("unknown vehicle status %q", v)
			}
			c.Statuses = append(c.Statuses, st)
		}
	}
	if f.Changed("clase") {
		c.Classes, _ = f.GetStringSlice("clase")
	}
	if f.Changed("categoria") {
		values, _ := f.GetStringSlice("categoria")
		c.DocumentCategories = nil
		for _, v := range values {
			cat := models.DocumentCategory(strings.ToUpper(strings.TrimSpace(v)))
			if !models.IsValidCategory(cat) {
				return c, s, fmt.Errorf("unknown document category %q", v)
			}
			c.DocumentCategories = append(c.DocumentCategories, cat)
		}
	}
	if f.Changed("estado-doc") {
		values, _ := f.GetStringSlice("estado-doc")
		c.DocumentStatuses = nil
		for _, v := range values {
			st := compliance.Status(strings.TrimSpace(v))
			if !compliance.IsValidStatus(st) {
				return c, s, fmt.Errorf("unknown document status %q", v)
			}
			c.DocumentStatuses = append(c.DocumentStatuses, st)
		}
	}
	var err error
	if c.ExpiryFrom, err = dateFlag(cmd, "desde", c.ExpiryFrom, compliance.ParseDate); err != nil {
		return c, s, err
	}
	if c.ExpiryTo, err = dateFlag(cmd, "hasta", c.ExpiryTo, compliance.ParseRangeEnd); err != nil {
		return c, s, err
	}
	if f.Changed("dias") {
		c.AlertDays, _ = f.GetInt("dias")
	}
	if c.AlertDays <= 0 {
		c.AlertDays = cfg.AlertDays
	}
	if f.Changed("sort") {
		s.Column, _ = f.GetString("sort")
	}
	if f.Changed("order") || s.Direction == "" {
		order, _ := f.GetString("order")
		s.Direction = compliance.ParseDirection(order)
	}
	return c.Normalize(), s, nil
}

// dateFlag parses a date flag if it was set, else returns current.
func dateFlag(cmd *cobra.Command, name string, current *time.Time, parse func(string) (time.Time, bool)) (*time.Time, error) {
	if !cmd.Flags().Changed(name) {
		return current, nil
	}
	raw, _ := cmd.Flags().GetString(name)
	t, ok := parse(raw)
	if !ok {
		return nil, fmt.Errorf("--%s: %q is not a date", name, raw)
	}
	return &t, nil
}
