package pipeline

import (
	"context"
	"fmt"

	scrapeerrors "github.com/motorscan/motorscan/internal/errors"
	"github.com/motorscan/motorscan/internal/fetch"
	"github.com/motorscan/motorscan/internal/logger"
	"github.com/motorscan/motorscan/internal/registry"
	"github.com/motorscan/motorscan/internal/state"
	"github.com/motorscan/motorscan/internal/store"
)

// fragmentsPerPage sizes the per-run dedup filter. Result pages carry
// around forty listings each.
const fragmentsPerPage = 40

// execute drives a single run from admission to a terminal status. It
// runs on its own goroutine; every exit path leaves the run terminal
// and the fetch session released.
func (p *Pipeline) execute(run *registry.Run) {
	defer p.wg.Done()

	log := p.log.WithRun(run.ID())

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("run panicked: %v", r)
			run.Fail(fmt.Errorf("internal error: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.config.RunTimeout)
	defer cancel()
	p.setActiveCancel(cancel)
	defer p.setActiveCancel(nil)

	p.metrics.SetActiveRuns(1)
	defer p.metrics.SetActiveRuns(0)

	fetcher, err := p.newFetcher()
	if err != nil {
		log.WithError(err).Error("failed to acquire fetch session")
		run.Fail(err)
		return
	}
	defer func() {
		p.metrics.SetBrowserSessions(0)
		if err := fetcher.Close(); err != nil {
			log.WithError(err).Warn("failed to release fetch session")
		}
	}()
	p.metrics.SetBrowserSessions(1)

	run.MarkRunning()
	maxPages := run.MaxPages()
	log.WithField("max_pages", maxPages).Info("run started")

	seen := state.NewSeenTracker(maxPages * fragmentsPerPage)
	var tally registry.RunResult
	pagesDone := 0

	for page := 1; page <= maxPages; page++ {
		if run.Cancelled() {
			run.MarkCancelled()
			log.WithPage(page).Info("run cancelled at page boundary")
			return
		}
		if ctx.Err() != nil {
			run.Fail(scrapeerrors.NewTimeoutError(p.config.Fetch.BaseURL, "run_deadline", ctx.Err()))
			log.WithPage(page).Warn("run exceeded its wall-clock ceiling")
			return
		}

		pg, err := fetcher.FetchPage(ctx, page)
		if err != nil {
			if run.Cancelled() {
				run.MarkCancelled()
				log.WithPage(page).Info("run cancelled")
				return
			}
			if scrapeerrors.IsParseError(err) {
				// A page that will not parse is skipped; the run
				// moves on to the next one.
				tally.Errors++
				pagesDone = page
				run.Progress(pagesDone, tally)
				log.WithPage(page).WithError(err).Warn("page skipped after parse failure")
				continue
			}
			run.Fail(err)
			log.WithPage(page).WithError(err).Error("run aborted")
			return
		}

		if err := p.processPage(ctx, pg, seen, &tally, log); err != nil {
			run.Fail(err)
			log.WithPage(page).WithError(err).Error("run aborted on storage failure")
			return
		}

		pagesDone = page
		run.Progress(pagesDone, tally)
		log.WithPage(page).WithFields(map[string]interface{}{
			"fragments": len(pg.Fragments),
			"created":   tally.Created,
			"updated":   tally.Updated,
			"errors":    tally.Errors,
		}).Info("page processed")

		if !pg.HasNext {
			log.WithPage(page).Info("reached last result page")
			break
		}
	}

	run.Complete(fmt.Sprintf("scraped %d of %d pages", pagesDone, maxPages))
	log.WithField("total", tally.Total).Info("run completed")
}

// processPage normalizes and persists every fragment of a fetched page
// in document order. Fragment-level failures are counted and skipped;
// only storage and resolver infrastructure errors propagate.
func (p *Pipeline) processPage(ctx context.Context, pg *fetch.Page, seen *state.SeenTracker, tally *registry.RunResult, log *logger.Logger) error {
	for _, frag := range pg.Fragments {
		if frag.SourceID != "" && seen.HasSeen(frag.SourceID) {
			p.metrics.RecordListingSkipped()
			continue
		}
		p.metrics.RecordListingSeen()

		listing, err := p.normalizer.Normalize(frag)
		if err != nil {
			tally.Errors++
			p.metrics.RecordListingSkipped()
			log.WithField("source_id", frag.SourceID).WithError(err).Debug("fragment rejected")
			continue
		}

		brandID, modelID, err := p.resolver.Resolve(ctx, listing.Brand, listing.Model)
		if err != nil {
			if scrapeerrors.IsValidation(err) {
				tally.Errors++
				p.metrics.RecordListingSkipped()
				log.WithField("source_id", listing.SourceID).WithError(err).Debug("identity rejected")
				continue
			}
			return fmt.Errorf("failed to resolve %q %q: %w", listing.Brand, listing.Model, err)
		}

		outcome, err := p.store.UpsertListing(ctx, listing, brandID, modelID)
		if err != nil {
			return fmt.Errorf("failed to upsert listing %s: %w", listing.SourceID, err)
		}

		seen.Add(listing.SourceID)
		tally.Total++
		switch outcome {
		case store.OutcomeCreated:
			tally.Created++
		case store.OutcomeUpdated:
			tally.Updated++
		default:
			tally.Unchanged++
		}
		p.metrics.RecordUpsert(string(outcome))
		log.UpsertEvent(string(outcome), listing.SourceID)
		if p.onListing != nil {
			p.onListing(outcome, listing)
		}
	}
	return nil
}
