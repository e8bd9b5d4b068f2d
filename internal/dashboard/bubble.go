package dashboard

// BubbleOffset is the horizontal pixel position of the year label so it
// stays centred over the slider thumb. The thumb travels over the track
// width minus its own size.
func BubbleOffset(value, min, max int, sliderWidth, thumbSize float64) float64 {
	pct := 0.0
	if max > min {
		pct = float64(value-min) / float64(max-min)
	}
	return pct*(sliderWidth-thumbSize) + thumbSize/2
}

// Ticks returns one slider label per year in [min, max].
func Ticks(min, max int) []int {
	if max < min {
		return nil
	}
	out := make([]int, 0, max-min+1)
	for y := min; y <= max; y++ {
		out = append(out, y)
	}
	return out
}
