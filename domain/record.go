package domain

// Record is a message as read back from the durable log: the envelope bytes
// plus the position the log assigned to them. Offset is monotonically
// increasing per partition; committing a record advances the consumer
// group's cursor past it.
type Record struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
}
