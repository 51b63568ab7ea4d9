package main

import (
	"context"
	"log"
	"time"

	"freedesk/services/support/internal/hub"
	"freedesk/services/support/internal/store"
)

func startMaintenanceLoops(
	ctx context.Context,
	ticketStore store.Store,
	eventHub *hub.Hub,
	autoCloseInterval time.Duration,
	idleDays int,
) {
	if autoCloseInterval > 0 && idleDays > 0 {
		go runAutoCloseLoop(ctx, ticketStore, eventHub, autoCloseInterval, idleDays)
	}
}

func runAutoCloseLoop(
	ctx context.Context,
	ticketStore store.Store,
	eventHub *hub.Hub,
	interval time.Duration,
	idleDays int,
) {
	runAutoCloseCycle(ctx, ticketStore, eventHub, idleDays)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runAutoCloseCycle(ctx, ticketStore, eventHub, idleDays)
		}
	}
}

// runAutoCloseCycle closes tickets nobody has touched for idleDays so
// the open queue reflects reality.
func runAutoCloseCycle(ctx context.Context, ticketStore store.Store, eventHub *hub.Hub, idleDays int) {
	cycleCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-time.Duration(idleDays) * 24 * time.Hour)

	closed := 0
	failures := 0
	for _, status := range []string{store.StatusNew, store.StatusInProgress} {
		tickets, err := ticketStore.List(cycleCtx, store.Filter{Status: status})
		if err != nil {
			log.Printf("auto-close failed listing status=%q err=%v", status, err)
			failures++
			continue
		}

		for _, ticket := range tickets {
			if ticket.UpdatedAt.After(cutoff) {
				continue
			}

			closedAt := time.Now().UTC()
			if _, err := ticketStore.UpdateStatus(cycleCtx, ticket.ID, store.StatusClosed, &closedAt); err != nil {
				log.Printf("auto-close failed ticket=%s err=%v", ticket.ID, err)
				failures++
				continue
			}

			eventHub.Broadcast(cycleCtx, ticket.ID, hub.StatusUpdatedEvent(store.StatusClosed))
			closed++
		}
	}

	log.Printf("auto-close completed closed=%d failures=%d idleDays=%d", closed, failures, idleDays)
}
