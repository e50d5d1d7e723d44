package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-causality/internal/models"
)

func TestGroupCausesPartitionsByTypeAndDescription(t *testing.T) {
	causes := []models.RawCause{
		notification(1, "link down", "r1", t0),
		series(systemUDP, 2, 7, "InErrors", 5),
		notification(3, "link up", "r1", t0),
		notification(4, "link down", "r2", t0),
		series(interfaceTCP, 5, 8, "InErrors", 5),
		series(systemUDP, 6, 7, "InErrors", 9),
	}

	groups := GroupCauses(causes)
	require.Len(t, groups, 4)

	type key struct {
		typ  string
		desc string
		n    int
	}
	got := make([]key, 0, len(groups))
	total := 0
	for _, g := range groups {
		got = append(got, key{g.SourceType.Name, g.Description, len(g.Causes)})
		total += len(g.Causes)
		for _, c := range g.Causes {
			assert.Equal(t, g.SourceType, c.SourceType)
			assert.Equal(t, g.Description, c.Description)
		}
	}
	assert.Equal(t, len(causes), total, "every cause lands in exactly one group")
	assert.Equal(t, []key{
		{"p2pslog", "link down", 2},
		{"p2pslog", "link up", 1},
		{"system_udp", "InErrors", 2},
		{"interface_tcp", "InErrors", 1},
	}, got)
}

func TestGroupCausesSameDescriptionDifferentCategory(t *testing.T) {
	logType := models.SourceType{Name: "system_udp", Category: models.CategoryNotification}
	groups := GroupCauses([]models.RawCause{
		series(systemUDP, 1, 7, "InErrors", 5),
		{SourceType: logType, Description: "InErrors"},
	})
	assert.Len(t, groups, 2)
}

func TestGroupCausesEmpty(t *testing.T) {
	assert.Empty(t, GroupCauses(nil))
}
