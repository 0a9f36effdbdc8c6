package core

// EventID is the position of an event within the stream of one aggregate.
type EventID int64

// FirstEventID is the id of the first event of every stream.
const FirstEventID EventID = 0

func (id EventID) Next() EventID {
	return id + 1
}
