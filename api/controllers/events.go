package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zaavg/storefront/api/responses"
	"github.com/zaavg/storefront/internal/events"
	pkgerrors "github.com/zaavg/storefront/pkg/errors"
	"github.com/zaavg/storefront/pkg/logger"
)

const (
	cartUpdatedEvent  = "cartUpdated"
	eventStreamBuffer = 16
	keepAliveInterval = 25 * time.Second
)

type eventSubscriber interface {
	Subscribe(l events.Listener) (unsubscribe func())
}

// CartEvents streams cartUpdated notifications for one cart as server-sent
// events until the client disconnects.
func CartEvents(bus eventSubscriber, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := cartIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		// Listeners run on the notifying goroutine: never block it. Every
		// event means "reload", so a full buffer already covers a drop.
		pending := make(chan events.Event, eventStreamBuffer)
		unsubscribe := bus.Subscribe(func(_ context.Context, evt events.Event) {
			if evt.CartID != cartID {
				return
			}
			select {
			case pending <- evt:
			default:
			}
		})
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case evt := <-pending:
				data, err := json.Marshal(evt)
				if err != nil {
					logg.Error(logg.WithCartID(ctx, cartID), "encode cart event", err)
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", cartUpdatedEvent, data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
