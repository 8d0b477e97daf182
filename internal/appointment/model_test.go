package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServiceType(t *testing.T) {
	st, err := ParseServiceType("basic")
	require.NoError(t, err)
	assert.Equal(t, ServiceBasic, st)

	st, err = ParseServiceType(" FULL ")
	require.NoError(t, err)
	assert.Equal(t, ServiceFull, st)

	_, err = ParseServiceType("spa")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseServiceType("")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestServiceTypeDuration(t *testing.T) {
	assert.Equal(t, 60*time.Minute, ServiceBasic.Duration())
	assert.Equal(t, 120*time.Minute, ServiceFull.Duration())
	assert.Zero(t, ServiceType("spa").Duration())
}

func TestAppointmentOccupies(t *testing.T) {
	assert.True(t, Appointment{Status: StatusConfirmed}.Occupies())
	assert.False(t, Appointment{Status: StatusCancelled}.Occupies())
	assert.False(t, Appointment{Status: StatusCompleted}.Occupies())
}
