package engine

// PageCount returns how many listing pages cover sampleSize listings at
// pageSize listings per page, ceil(sampleSize / pageSize).
func PageCount(sampleSize, pageSize int) int {
	if sampleSize <= 0 || pageSize <= 0 {
		return 0
	}
	pages := sampleSize / pageSize
	if sampleSize%pageSize != 0 {
		pages++
	}
	return pages
}
