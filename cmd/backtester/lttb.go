package main

import "math"

// lttbIndices runs Largest-Triangle-Three-Buckets downsampling on a
// single Y series (X implied as 0..N-1) and returns the selected
// indices. threshold includes the first and last point; if N <=
// threshold the identity index set is returned. Transcribed from the
// original backtest CLI's chart-data downsample.
func lttbIndices(y []float64, threshold int) []int {
	n := len(y)
	if threshold >= n || threshold < 3 || n == 0 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	out := make([]int, 0, threshold)
	out = append(out, 0)

	bucketSize := float64(n-2) / float64(threshold-2)
	a := 0

	for i := 0; i < threshold-2; i++ {
		bucketStart := 1.0 + float64(i)*bucketSize
		bucketEnd := bucketStart + bucketSize

		start := int(math.Floor(bucketStart))
		end := int(math.Floor(bucketEnd))
		if end > n-1 {
			end = n - 1
		}

		nextStart := int(math.Floor(bucketEnd))
		nextEnd := int(math.Floor(bucketEnd + bucketSize))
		if nextEnd > n-1 {
			nextEnd = n - 1
		}

		avgX, avgY := 0.0, 0.0
		count := 0
		for j := nextStart; j < nextEnd; j++ {
			avgX += float64(j)
			avgY += y[j]
			count++
		}
		if count == 0 {
			avgX = float64(a)
			avgY = y[a]
		} else {
			avgX /= float64(count)
			avgY /= float64(count)
		}

		ax := float64(a)
		ay := y[a]

		maxArea := -1.0
		selected := start
		for j := start; j < end; j++ {
			bx := float64(j)
			by := y[j]
			area := math.Abs((ax-avgX)*(by-ay) - (ax-bx)*(avgY-ay))
			if area > maxArea {
				maxArea = area
				selected = j
			}
		}

		out = append(out, selected)
		a = selected
	}

	out = append(out, n-1)
	return out
}

// lttbSelect applies indices to y, preserving order.
func lttbSelect(y []float64, indices []int) []float64 {
	out := make([]float64, len(indices))
	for i, idx := range indices {
		out[i] = y[idx]
	}
	return out
}
