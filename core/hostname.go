package core

import "os"

// Hostname identifies the node that performed a lifecycle transition. It is informational only.
type Hostname string

// LocalHostname returns the hostname of the current node.
func LocalHostname() Hostname {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return Hostname("localhost")
	}

	return Hostname(h)
}

func (h Hostname) String() string {
	return string(h)
}
