package converter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJSONConverter_RoundTrip(t *testing.T) {
	type info struct {
		Processed int       `json:"processed"`
		At        time.Time `json:"at"`
	}

	i := info{Processed: 3, At: time.Date(2018, 11, 13, 12, 0, 55, 0, time.UTC)}
	p, err := DefaultConverter.To(i)
	require.NoError(t, err)

	var r info
	require.NoError(t, DefaultConverter.From(p, &r))
	require.Equal(t, i, r)
}

func TestJSONConverter_EmptyPayload(t *testing.T) {
	r := 42
	require.NoError(t, DefaultConverter.From(nil, &r))
	require.Equal(t, 42, r)
}
