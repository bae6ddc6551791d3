package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinicq/clinicq/internal/platform/apperr"
)

func TestAssertValidTransition_Table(t *testing.T) {
	allowed := map[Status]map[Status]bool{
		StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
		StatusConfirmed: {StatusCompleted: true, StatusCancelled: true, StatusNoShow: true},
	}

	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			err := AssertValidTransition(from, to)
			if allowed[from][to] {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			assert.True(t, apperr.HasCode(err, apperr.CodeInvalidTransition), "%s -> %s should be rejected", from, to)
		}
	}
}

func TestAssertValidTransition_UnknownValues(t *testing.T) {
	assert.Error(t, AssertValidTransition(StatusPending, Status("archived")))
	assert.Error(t, AssertValidTransition(Status("archived"), StatusConfirmed))
	assert.Error(t, AssertValidTransition("", StatusConfirmed))
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("archived").Valid())

	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusNoShow.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, Status("archived").Terminal())

	assert.True(t, StatusPending.Active())
	assert.True(t, StatusConfirmed.Active())
	assert.False(t, StatusNoShow.Active())

	assert.ElementsMatch(t, []Status{StatusCompleted, StatusCancelled, StatusNoShow}, StatusConfirmed.Allowed())
}
