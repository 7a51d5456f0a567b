package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicatesMatchConstructors(t *testing.T) {
	assert.True(t, IsNotFound(NotFoundf("widget %s", "w1")))
	assert.True(t, IsInvalidState(InvalidStatef("already closed")))
	assert.True(t, IsValidation(Validationf("name required")))
	assert.True(t, IsConflict(Conflictf("code taken")))

	assert.False(t, IsNotFound(InvalidStatef("nope")))
	assert.False(t, IsConflict(nil))
}

func TestMessagesCarryContext(t *testing.T) {
	err := NotFoundf("workflow instance %s", "abc")
	assert.Contains(t, err.Error(), "workflow instance abc")
}

func TestWrappedErrorsStillMatch(t *testing.T) {
	err := fmt.Errorf("outer: %w", Validationf("inner"))
	assert.True(t, IsValidation(err))
}
