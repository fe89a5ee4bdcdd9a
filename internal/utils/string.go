package utils

// UniqueStringSlice drops duplicate entries, preserving first-seen order.
func UniqueStringSlice(slice []string) []string {
	uniqueSlice := make([]string, 0, len(slice))
	seen := make(map[string]struct{}, len(slice))
	for _, s := range slice {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			uniqueSlice = append(uniqueSlice, s)
		}
	}
	return uniqueSlice
}

// StringSlice2Map turns slice into a membership set.
func StringSlice2Map(slice []string) map[string]struct{} {
	set := make(map[string]struct{}, len(slice))
	for _, s := range slice {
		set[s] = struct{}{}
	}
	return set
}
