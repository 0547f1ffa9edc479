package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregatePost OutboxAggregateType = "post"
)

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventPostPublishCompleted OutboxEventType = "post_publish_completed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPostPublishCompleted,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}
