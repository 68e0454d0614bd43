package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

func printJobs(w io.Writer, jobs []model.Job) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tQUERY\tLOCATION\tPROGRESS\tUPDATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			j.ID, j.Status, j.Query, j.Location,
			j.Processed, j.Total,
			j.UpdatedAt.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}

func printBusinesses(w io.Writer, recs []model.BusinessRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No businesses.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPHONE\tWEBSITE\tEMAIL\tCONF")
	for _, r := range recs {
		email, conf := "", ""
		if len(r.Emails) > 0 {
			best := r.Emails[0]
			for _, e := range r.Emails[1:] {
				if e.Confidence > best.Confidence {
					best = e
				}
			}
			email = best.Address
			conf = fmt.Sprintf("%.2f", best.Confidence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Phone, r.Website, email, conf)
	}
	_ = tw.Flush()
}
