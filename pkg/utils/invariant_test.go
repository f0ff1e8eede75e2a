package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRaiseInvariantIncrementsMetric(t *testing.T) {
	invariantsMetric.Reset() // Start from a clean counter state.
	RaiseInvariant("utils", "test_violation", "This is a test invariant violation.", "key", "value")
	RaiseInvariant("utils", "test_violation", "This is a test invariant violation.")

	assert.Equal(t, 2, GetMetricValue("utils", "test_violation"))
	assert.Equal(t, 0, GetMetricValue("utils", "never_raised"))
}
