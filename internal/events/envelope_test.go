package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(`{"user_id":" u1 ","sale_id":"s9","before":{"amount":10},"after":{"amount":"12.5","note":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, env.Version)
	assert.Equal(t, "u1", env.UserID)
	assert.Equal(t, 10.0, env.Before.Amount())
	assert.Equal(t, 12.5, env.After.Amount())

	_, err = Decode([]byte(`{"version":3,"user_id":"u1"}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Decode([]byte(`{"user_id":""}`))
	assert.ErrorIs(t, err, ErrMissingUserID)

	_, err = Decode([]byte(`[]`))
	assert.Error(t, err)
}

func TestDecode_NullSnapshotsAreEmpty(t *testing.T) {
	env, err := Decode([]byte(`{"user_id":"u1","before":null}`))
	require.NoError(t, err)
	assert.Nil(t, env.Before)
	assert.Equal(t, 0.0, env.Before.Amount())
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]string{
		"created":      KindCreated,
		"UPDATED":      KindUpdated,
		"sale.deleted": KindDeleted,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseKind("refunded")
	assert.ErrorIs(t, err, ErrUnknownEvent)
}
