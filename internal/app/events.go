/**
 * @description
 * Event fan-out: the bridge between the ledger's synchronous event emission
 * and the outbound channels (RabbitMQ exchange and archive journal). The
 * ledger emits under its runtime lock, so the fan-out only enqueues; a
 * background worker performs the journal write and the publish.
 */

package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/openclearing/settlement-service/internal/domain"
	"github.com/openclearing/settlement-service/internal/store"
	"github.com/openclearing/settlement-service/pkg/rabbitmq"
)

const fanoutBuffer = 1024

type fanoutItem struct {
	bank  domain.Address
	event domain.Event
}

// EventFanout implements ledger.EventSink. Events are dropped with a warning
// when the buffer is saturated rather than stalling settlement.
type EventFanout struct {
	repo     store.Repository
	producer rabbitmq.Publisher
	ch       chan fanoutItem
	done     chan struct{}
}

// NewEventFanout starts the fan-out worker. Either destination may be nil.
func NewEventFanout(repo store.Repository, producer rabbitmq.Publisher) *EventFanout {
	f := &EventFanout{
		repo:     repo,
		producer: producer,
		ch:       make(chan fanoutItem, fanoutBuffer),
		done:     make(chan struct{}),
	}
	go f.run()
	return f
}

// Emit enqueues an event for delivery. Called by the ledger with its runtime
// lock held; must never block on I/O.
func (f *EventFanout) Emit(bank domain.Address, event domain.Event) {
	select {
	case f.ch <- fanoutItem{bank: bank, event: event}:
	default:
		log.Printf("level=warn component=event_fanout msg=\"buffer full, event dropped\" bank=%s event=%s", bank, event.Name())
	}
}

func (f *EventFanout) run() {
	defer close(f.done)
	for item := range f.ch {
		f.deliver(item)
	}
}

func (f *EventFanout) deliver(item fanoutItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if f.repo != nil {
		payload, err := json.Marshal(item.event)
		if err == nil {
			err = f.repo.AppendEvent(ctx, item.bank, item.event.Name(), payload)
		}
		if err != nil {
			log.Printf("level=error component=event_fanout msg=\"journal append failed\" bank=%s event=%s err=%v", item.bank, item.event.Name(), err)
		}
	}
	if f.producer != nil {
		if err := f.producer.PublishLedgerEvent(ctx, item.bank, item.event); err != nil {
			log.Printf("level=error component=event_fanout msg=\"publish failed\" bank=%s event=%s err=%v", item.bank, item.event.Name(), err)
		}
	}
}

// Close drains the queue and stops the worker.
func (f *EventFanout) Close() {
	close(f.ch)
	<-f.done
}
