package jobs

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/microcosm-cc/bluemonday"

	"github.com/animanga/mangapipe/internal/store"
)

// refreshBatchSize caps how many stale series one refresh run touches
// so a large catalog doesn't hammer the origin in a single pass.
const refreshBatchSize = 50

// RegisterAll registers the cache maintenance jobs with the manager.
// All of them can also be triggered on demand from the admin API.
func RegisterAll(jm *JobManager) {
	jm.Register("search-cache-sweep", "Search Cache Sweep", runSearchCacheSweep)
	jm.Register("metadata-refresh", "Metadata Refresh", runMetadataRefresh)
	jm.Register("quota-monthly-reset", "Quota Monthly Reset", runQuotaMonthlyReset)
}

// StartJobs starts the background job scheduler.
func StartJobs(app JobContext) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	interval := app.Config().Cache.SweepIntervalHours
	if interval == 0 {
		log.Println("Cache sweep interval is 0, scheduled maintenance is disabled.")
		return
	}

	for _, jobID := range []string{"search-cache-sweep", "metadata-refresh"} {
		jobID := jobID
		log.Printf("Scheduling job: '%s' to run every %d hours.", jobID, interval)
		_, err := s.Every(interval).Hours().Do(func() {
			log.Println("Scheduler is triggering job:", jobID)
			if err := app.JobManager().RunJob(jobID, app); err != nil {
				log.Printf("Scheduled job '%s' could not start: %v", jobID, err)
			}
		})
		if err != nil {
			log.Printf("Error scheduling '%s' job: %v", jobID, err)
		}
	}

	log.Println("Starting background job scheduler...")
	s.StartAsync()
}

// runSearchCacheSweep deletes expired search cache rows.
func runSearchCacheSweep(ctx JobContext) {
	st := store.New(ctx.DB())
	n, err := st.DeleteExpiredSearchCache()
	if err != nil {
		log.Printf("Search cache sweep failed: %v", err)
		return
	}
	log.Printf("Search cache sweep removed %d expired entries", n)
}

// runMetadataRefresh re-syncs the oldest stale series from the origin.
// Series the origin no longer knows keep their stale rows; the next
// run will retry them.
func runMetadataRefresh(ctx JobContext) {
	st := store.New(ctx.DB())
	maxAge := time.Duration(ctx.Config().Cache.MetadataMaxAgeHours) * time.Hour

	ids, err := st.ListStaleSeries(maxAge, refreshBatchSize)
	if err != nil {
		log.Printf("Could not list stale series: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	sanitizer := bluemonday.StrictPolicy()
	refreshed := 0
	for _, id := range ids {
		m, err := ctx.Catalog().GetSeries(context.Background(), id)
		if err != nil {
			log.Printf("Metadata refresh stopped at series %d: %v", id, err)
			break
		}
		if m == nil {
			log.Printf("Series %d no longer exists at the origin, keeping stale entry", id)
			continue
		}
		m.Description = sanitizer.Sanitize(m.Description)
		if err := st.UpsertSeries(m); err != nil {
			log.Printf("Could not update series %d: %v", id, err)
			continue
		}
		refreshed++
	}
	log.Printf("Metadata refresh updated %d of %d stale series", refreshed, len(ids))
}

// runQuotaMonthlyReset zeroes every user's monthly counter. It is not
// scheduled; an operator triggers it at the start of a billing month.
func runQuotaMonthlyReset(ctx JobContext) {
	st := store.New(ctx.DB())
	if err := st.ResetMonthlyCounters(); err != nil {
		log.Printf("Monthly quota reset failed: %v", err)
		return
	}
	log.Println("Monthly quota counters reset")
}
