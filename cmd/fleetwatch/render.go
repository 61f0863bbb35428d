package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ukydev/fleet-registry/internal/compliance"
	"github.com/ukydev/fleet-registry/internal/live"
	"github.com/ukydev/fleet-registry/internal/models"
)

const dateLayout = "2006-01-02"

var badges = map[compliance.Status]string{
	compliance.StatusNoDate:       "MISSING",
	compliance.StatusExpired:      "EXPIRED",
	compliance.StatusExpiringSoon: "EXPIRING",
	compliance.StatusValid:        "OK",
}

func badge(s compliance.Status) string {
	if b, ok := badges[s]; ok {
		return b
	}
	return strings.ToUpper(string(s))
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(dateLayout)
}

// highlightMark is the leading column of a live roster row.
func highlightMark(h live.Highlight, ok bool) string {
	switch {
	case !ok:
		return ""
	case h.IsNew:
		return "NEW"
	case h.IsUpdated:
		return "UPD"
	default:
		return ""
	}
}

// renderRoster writes one row per vehicle. highlights may be nil.
func renderRoster(w io.Writer, vehicles []models.Vehicle, highlights map[string]live.Highlight, now time.Time, c compliance.Classifier) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tPLATE\tVEHICLE\tCLASS\tSTATUS\tDOCUMENTS\tATTENTION\tEXPIRES")
	for _, v := range vehicles {
		h, ok := highlights[v.Key()]
		summary := compliance.SummarizeVehicle(v, now, c)

		status, attention, expires := compliance.StatusValid, "-", "-"
		if p := summary.Priority; p != nil {
			status = p.Status
			attention = string(p.Category)
			expires = formatDate(p.ExpiryDate)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			highlightMark(h, ok), v.Plate, strings.TrimSpace(v.Brand+" "+v.Line),
			v.Class, v.Status, badge(status), attention, expires)
	}
	return tw.Flush()
}

// renderPageFooter summarises a paged listing.
func renderPageFooter(w io.Writer, page models.VehiclePage, limit int) {
	pages := 1
	if limit > 0 && page.Count > 0 {
		pages = (page.Count + limit - 1) / limit
	}
	fmt.Fprintf(w, "\n%d vehicles, page %d of %d\n", page.Count, page.CurrentPage, pages)
}

// renderDocuments writes the compliance summary and the per-category file list.
func renderDocuments(w io.Writer, view compliance.DocumentsView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tSTATUS\tEXPIRES")
	for _, st := range view.Summary.All() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Category, badge(st.Status), formatDate(st.ExpiryDate))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(view.Groups) == 0 {
		fmt.Fprintln(w, "\nNo documents uploaded.")
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tFILE\tUPLOADED\tEXPIRES")
	for _, g := range view.Groups {
		for _, d := range g.Documents {
			file := d.FileName
			if d.ObjectKey == "" {
				file = "(no file)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				d.ID.Hex(), g.Category, file, d.UploadedAt.UTC().Format(dateLayout), formatDate(d.ExpiryDate))
		}
	}
	return tw.Flush()
}
