package repository

// TopicCreditsApplied carries model.CreditAppliedEvent payloads from the
// reconciler to the audit worker.
const TopicCreditsApplied = "credits.applied"

// MessageBus decouples the repository from the concrete transport. A nil
// bus is legal: publishing is skipped.
type MessageBus interface {
	Publish(topic string, data []byte) error
}
