package compute_pool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForEachVisitsEveryIndexOnce(t *testing.T) {
	for _, p := range []ComputePool{NewComputePool(4), Serial(), Or(nil)} {
		for _, n := range []int{0, 1, 7, 1000} {
			hits := make([]int32, n)
			p.ForEach(n, func(i int) {
				atomic.AddInt32(&hits[i], 1)
			})
			for i, h := range hits {
				assert.Equal(t, int32(1), h, "index %d of %d", i, n)
			}
		}
	}
}

func TestForEachIsReusable(t *testing.T) {
	p := NewComputePool(3)
	var total atomic.Int64
	for round := 0; round < 20; round++ {
		p.ForEach(50, func(i int) { total.Add(int64(i)) })
	}
	assert.Equal(t, int64(20*49*50/2), total.Load())
	assert.Equal(t, 3, p.Workers())
}
