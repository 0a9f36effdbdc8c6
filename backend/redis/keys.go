package redis

import (
	"fmt"

	"github.com/cschleiden/go-tasks/core"
)

type keys struct {
	prefix string
}

func newKeys(prefix string) *keys {
	return &keys{prefix: prefix}
}

// historyKey returns the key of the stream holding the events of the given aggregate
func (k *keys) historyKey(id core.TaskAggregateID) string {
	return fmt.Sprintf("%vhistory:%v", k.prefix, id.TaskID)
}

// aggregatesByCreation returns the key for the ZSET of all aggregates. The score is a sequence number
// assigned on creation.
func (k *keys) aggregatesByCreation() string {
	return k.prefix + "aggregates-by-creation"
}

// aggregatesFinished returns the key for the ZSET of finished aggregates. The score is the finish time in
// unix milliseconds.
func (k *keys) aggregatesFinished() string {
	return k.prefix + "aggregates-finished"
}

func (k *keys) aggregateSequence() string {
	return k.prefix + "aggregate-sequence"
}

// historyID maps an event id to a stream entry id. Streams do not accept 0-0.
func historyID(eventID core.EventID) string {
	return fmt.Sprintf("%v-0", int64(eventID)+1)
}
