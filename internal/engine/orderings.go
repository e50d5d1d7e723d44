package engine

import (
	"cmp"

	"github.com/miradorstack/mirador-causality/internal/models"
)

// MagnitudeOrder sorts the entrance record (the one matching evidenceID) first,
// then the remaining records by decreasing magnitude.
func MagnitudeOrder(evidenceID int) func(a, b models.CauseRecord) int {
	return func(a, b models.CauseRecord) int {
		aEntrance := a.EvidenceID == evidenceID
		bEntrance := b.EvidenceID == evidenceID
		switch {
		case aEntrance && !bEntrance:
			return -1
		case bEntrance && !aEntrance:
			return 1
		case aEntrance && bEntrance:
			return 0
		}
		return cmp.Compare(b.Magnitude, a.Magnitude)
	}
}

// TimeOrder sorts causes earliest first.
func TimeOrder(a, b models.RawCause) int {
	return a.Time.Compare(b.Time)
}

// PeakValueOrder sorts aggregates by decreasing scaled peak of their leading record,
// i.e. the height each series reaches on the shared chart axis.
func PeakValueOrder(a, b models.AggregateGroup) int {
	return cmp.Compare(b.ChartPeak(), a.ChartPeak())
}
