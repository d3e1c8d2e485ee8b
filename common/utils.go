package common

// RoundUp rounds v up to the next multiple of align. align must be positive.
func RoundUp(v, align int) int {
	return align * ((v + align - 1) / align)
}
