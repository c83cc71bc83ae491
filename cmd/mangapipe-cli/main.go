// Maintenance commands for operators: cache sweeps, metadata refresh,
// quota administration and cache statistics, without a running server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/animanga/mangapipe/internal/core"
	"github.com/animanga/mangapipe/internal/models"
	"github.com/animanga/mangapipe/internal/service"
	"github.com/animanga/mangapipe/internal/util"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	app, err := core.New()
	if err != nil {
		log.Fatalf("Failed to set up application: %v", err)
	}
	defer app.Close()

	switch os.Args[1] {
	case "search":
		if len(os.Args) != 3 {
			usage()
			os.Exit(2)
		}
		result, err := app.Service().Search(context.Background(), os.Args[2], nil, 1)
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		for _, m := range result.Series {
			title := m.TitleEnglish
			if title == "" {
				title = m.Title
			}
			fmt.Printf("%8d  %-40s  %s %s\n", m.ID, title, m.Kind, m.Status)
		}
		if result.Cached {
			fmt.Println("(served from cache)")
		}

	case "fetch":
		runFetch(app)

	case "sweep":
		n, err := app.Store().DeleteExpiredSearchCache()
		if err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		fmt.Printf("Removed %d expired search cache entries.\n", n)

	case "refresh":
		runRefresh(app)

	case "reset-monthly":
		if err := app.Store().ResetMonthlyCounters(); err != nil {
			log.Fatalf("Monthly reset failed: %v", err)
		}
		fmt.Println("Monthly quota counters reset.")

	case "set-tier":
		if len(os.Args) != 4 {
			usage()
			os.Exit(2)
		}
		userID, err := strconv.ParseInt(os.Args[2], 10, 64)
		if err != nil {
			log.Fatalf("Invalid user ID %q", os.Args[2])
		}
		tier := models.Tier(os.Args[3])
		if tier != models.TierStandard && tier != models.TierPremium {
			log.Fatalf("Unknown tier %q", os.Args[3])
		}
		if err := app.Quotas().SetTier(userID, tier); err != nil {
			log.Fatalf("Could not update tier: %v", err)
		}
		fmt.Printf("User %d moved to tier %s.\n", userID, tier)

	case "stats":
		stats, err := app.Store().GetCacheStats()
		if err != nil {
			log.Fatalf("Could not read cache stats: %v", err)
		}
		fmt.Printf("Series cached:        %d\n", stats.SeriesCount)
		fmt.Printf("Artifacts cached:     %d\n", stats.ArtifactCount)
		fmt.Printf("Search cache entries: %d\n", stats.SearchCacheEntries)
		fmt.Printf("Search cache hits:    %d\n", stats.SearchCacheHits)

	default:
		usage()
		os.Exit(2)
	}
}

func runFetch(app *core.App) {
	// fetch <userID> <seriesID> <chapterID> <chapter>
	if len(os.Args) != 6 {
		usage()
		os.Exit(2)
	}
	userID, err := strconv.ParseInt(os.Args[2], 10, 64)
	if err != nil {
		log.Fatalf("Invalid user ID %q", os.Args[2])
	}
	seriesID, err := strconv.ParseInt(os.Args[3], 10, 64)
	if err != nil {
		log.Fatalf("Invalid series ID %q", os.Args[3])
	}
	chapter, err := util.ParseChapterNumber(os.Args[5])
	if err != nil {
		log.Fatalf("Invalid chapter number %q: %v", os.Args[5], err)
	}

	delivery, err := app.Service().GetChapterArtifact(context.Background(), service.ChapterRequest{
		UserID:    userID,
		Tier:      models.TierStandard,
		SeriesID:  seriesID,
		ChapterID: os.Args[4],
		Chapter:   chapter,
		Format:    models.FormatDocument,
	})
	if err != nil {
		log.Fatalf("Fetch failed: %v", err)
	}

	if delivery.Reference == "" && len(delivery.Data) > 0 {
		filename := fmt.Sprintf("series_%d_chapter_%s.cbz", seriesID, util.FormatChapter(chapter))
		if err := os.WriteFile(filename, delivery.Data, 0o644); err != nil {
			log.Fatalf("Could not write %s: %v", filename, err)
		}
		fmt.Printf("Chapter saved to %s (storage unavailable, not cached).\n", filename)
		return
	}
	fmt.Printf("Chapter stored: %s (%d pages", delivery.Reference, delivery.PageCount)
	if delivery.Cached {
		fmt.Print(", cached")
	}
	fmt.Println(")")
}

func runRefresh(app *core.App) {
	maxAge := durationHours(app.Config().Cache.MetadataMaxAgeHours, 24)
	ids, err := app.Store().ListStaleSeries(maxAge, 100)
	if err != nil {
		log.Fatalf("Could not list stale series: %v", err)
	}
	refreshed := 0
	for _, id := range ids {
		m, err := app.Catalog().GetSeries(context.Background(), id)
		if err != nil {
			log.Fatalf("Refresh stopped at series %d: %v", id, err)
		}
		if m == nil {
			continue
		}
		if err := app.Store().UpsertSeries(m); err != nil {
			log.Fatalf("Could not update series %d: %v", id, err)
		}
		refreshed++
	}
	fmt.Printf("Refreshed %d of %d stale series.\n", refreshed, len(ids))
}

func durationHours(hours, fallback int) time.Duration {
	if hours == 0 {
		hours = fallback
	}
	return time.Duration(hours) * time.Hour
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: mangapipe-cli <command>

Commands:
  search <query>             search the catalog (first page)
  fetch <userID> <seriesID> <chapterID> <chapter>
                             acquire one chapter as a document
  sweep                      remove expired search cache entries
  refresh                    re-sync stale series metadata from the origin
  reset-monthly              zero all monthly quota counters
  set-tier <userID> <tier>   move a user to "standard" or "premium"
  stats                      print cache statistics`)
}
