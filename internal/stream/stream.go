package stream

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/r3labs/sse/v2"

	"github.com/swipswaps/paddle-ocr/internal/models"
	"github.com/swipswaps/paddle-ocr/pkg/logger"
)

// Subscriber attaches to the backend's long-lived push log channel.
// Each Subscribe call opens an independent SSE connection; transport
// errors never tear a subscription down (the client reconnects on its
// own), only the returned cancel func or server-side stream end do.
type Subscriber struct {
	url string
	log logger.Logger
}

func NewSubscriber(backendURL, streamPath string, log logger.Logger) *Subscriber {
	if log == nil {
		log = logger.Nop()
	}
	return &Subscriber{
		url: strings.TrimRight(backendURL, "/") + streamPath,
		log: log,
	}
}

// Subscribe starts delivering normalized entries to onEntry until the
// returned cancel func is called. Entries arrive on a dedicated
// goroutine in connection order. Cancel is idempotent and releases the
// connection on every path; repeated subscribe/cancel cycles leak
// nothing. Cancel does not wait for the delivery goroutine: an entry
// already inside the handler may reach onEntry just after cancel
// returns.
func (s *Subscriber) Subscribe(onEntry func(models.LogEntry)) func() {
	client := sse.NewClient(s.url)
	client.Connection = &http.Client{} // no client-side timeout on a long-lived stream

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			if len(msg.Data) == 0 {
				return // heartbeat or comment frame
			}
			if entry, ok := Normalize(msg.Data, time.Now()); ok {
				onEntry(entry)
			}
		})
		if err != nil && ctx.Err() == nil {
			s.log.Warn("log stream closed by server", logger.Error(err))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}
}
