package pgdb

import (
	"errors"
	"net"
	"testing"

	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	down := classify("ProductRepo.FindBySku", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
	assert.True(t, e.IsFatal(down))
	assert.ErrorIs(t, down, e.ErrStorageUnavailable)

	other := classify("ProductRepo.FindBySku", errors.New("syntax error"))
	assert.False(t, e.IsFatal(other))
	assert.Contains(t, other.Error(), "ProductRepo.FindBySku")
}
