package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuccessWithPagination(t *testing.T) {
	res := SuccessWithPagination(200, []int{1, 2}, 2, 20, 41)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, &Meta{Page: 2, Limit: 20, Total: 41, TotalPages: 3}, res.Meta)

	empty := SuccessWithPagination(200, []int{}, 1, 20, 0)
	assert.Equal(t, int64(0), empty.Meta.TotalPages)
}

func TestError(t *testing.T) {
	res := Error(409, "conflict")
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, 409, res.StatusCode)
	assert.Nil(t, res.Meta)
}
