package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/pysugar/command-center/internal/aggregate"
	"github.com/pysugar/command-center/internal/google"
	"github.com/pysugar/command-center/internal/google/drive"
)

// DriveFilesHandler aggregates recent Drive files of every session
// account, most recently modified first. ?q= is a raw Drive query.
func DriveFilesHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accts, ok := d.fanoutAccounts(w, r, demoFiles)
		if !ok {
			return
		}
		q := r.URL.Query().Get("q")
		max := intParam(r, "max", d.MaxResults)
		res := d.files(r.Context(), accts, func(ctx context.Context, acct google.Account) ([]drive.File, error) {
			return d.Drive.List(ctx, acct, q, max)
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"files":    res.Items,
			"failures": res.Failures,
		})
	}
}

func (d *Deps) files(ctx context.Context, accts []google.Account, fetch aggregate.Fetch[drive.File]) aggregate.Result[drive.File] {
	return aggregate.Run(ctx, accts, fetch, aggregate.Options[drive.File]{
		Limit: d.Concurrency,
		Label: "drive",
		Tag:   func(f *drive.File, acct google.Account) { f.Account = acct.Email },
		Less:  aggregate.ByTimeDesc(func(f drive.File) time.Time { return f.ModifiedTime }),
	})
}
