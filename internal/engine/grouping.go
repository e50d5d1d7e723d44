package engine

import "github.com/miradorstack/mirador-causality/internal/models"

// CauseGroup holds the raw causes sharing one source type and description.
type CauseGroup struct {
	SourceType  models.SourceType
	Description string
	Causes      []models.RawCause
}

// GroupCauses partitions causes by source type and then by description. Descriptions are
// only unique within a type, hence the two levels. Groups come back in order of first appearance.
func GroupCauses(causes []models.RawCause) []CauseGroup {
	type descKey struct {
		sourceType  models.SourceType
		description string
	}

	byType := make(map[models.SourceType][]descKey)
	var typeOrder []models.SourceType
	index := make(map[descKey]int)
	groups := make([]CauseGroup, 0)

	for _, cause := range causes {
		key := descKey{sourceType: cause.SourceType, description: cause.Description}
		pos, ok := index[key]
		if !ok {
			if _, seen := byType[cause.SourceType]; !seen {
				typeOrder = append(typeOrder, cause.SourceType)
			}
			byType[cause.SourceType] = append(byType[cause.SourceType], key)
			pos = len(groups)
			index[key] = pos
			groups = append(groups, CauseGroup{SourceType: cause.SourceType, Description: cause.Description})
		}
		groups[pos].Causes = append(groups[pos].Causes, cause)
	}

	// Emit type by type so every description of a type stays adjacent.
	ordered := make([]CauseGroup, 0, len(groups))
	for _, sourceType := range typeOrder {
		for _, key := range byType[sourceType] {
			ordered = append(ordered, groups[index[key]])
		}
	}
	return ordered
}
