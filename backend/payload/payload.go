package payload

import "encoding/json"

// Payload is the serialized form of a task or of a progress snapshot.
type Payload = json.RawMessage
