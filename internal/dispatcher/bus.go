package dispatcher

import "github.com/asaskevich/EventBus"

// Bus is the process-wide notification bus for dispatcher completions,
// mirroring the teacher package's global-bus convention. It is
// publish-after-the-fact only: by the time a topic fires, the handler
// chain for that event has already run to completion, so subscribers
// (a live status feed, a Slack notifier) never race the dispatch order.
var Bus = EventBus.New()

const (
	TopicSnapshotApplied = "Dispatcher.SnapshotApplied"
	TopicTimerProcessed  = "Dispatcher.TimerProcessed"
	TopicOrderProcessed  = "Dispatcher.OrderProcessed"
	TopicTradeProcessed  = "Dispatcher.TradeProcessed"
)
