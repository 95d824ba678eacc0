package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func record(name, serial string) ProductRecord {
	r := ProductRecord{Name: name, Form: "-", Serial: serial, ExpiryDate: NoExpirySentinel}
	r.Fingerprint = RecordFingerprint(r)
	return r
}

func TestDiffDisjointOutcomes(t *testing.T) {
	fresh := map[string]ProductRecord{}
	for _, r := range []ProductRecord{record("A", "1"), record("B", "2")} {
		fresh[r.Fingerprint] = r
	}

	kept := record("A", "1")
	goneID := uuid.New()
	existing := map[string]ExistingEntry{
		kept.Fingerprint:             {UUID: uuid.New()},
		record("C", "3").Fingerprint: {UUID: goneID},
	}

	diff := Diff(fresh, existing)
	require.Len(t, diff.ToAdd, 1)
	require.Equal(t, "B", diff.ToAdd[0].Name)
	require.Len(t, diff.ToUpdate, 1)
	require.False(t, diff.ToUpdate[0].Restore)
	require.Equal(t, []uuid.UUID{goneID}, diff.ToRemove)
	require.False(t, diff.Empty())
}

func TestDiffSkipsAlreadyRemoved(t *testing.T) {
	removed := record("Gone", "9")
	existing := map[string]ExistingEntry{
		removed.Fingerprint: {UUID: uuid.New(), Removed: true},
	}

	diff := Diff(map[string]ProductRecord{}, existing)
	require.True(t, diff.Empty(), "soft-deleted rows must not be removed again")
}

func TestDiffRestoresReappearingRemoved(t *testing.T) {
	r := record("Back", "5")
	id := uuid.New()
	existing := map[string]ExistingEntry{
		r.Fingerprint: {UUID: id, Removed: true},
	}

	diff := Diff(map[string]ProductRecord{r.Fingerprint: r}, existing)
	require.Empty(t, diff.ToAdd, "reappearing fingerprint must reuse the persisted row")
	require.Len(t, diff.ToUpdate, 1)
	require.Equal(t, id, diff.ToUpdate[0].UUID)
	require.True(t, diff.ToUpdate[0].Restore)
}

func TestDiffIdenticalSetsIsEmptyRemoveOnly(t *testing.T) {
	r := record("Same", "7")
	fresh := map[string]ProductRecord{r.Fingerprint: r}
	existing := map[string]ExistingEntry{r.Fingerprint: {UUID: uuid.New()}}

	diff := Diff(fresh, existing)
	require.Empty(t, diff.ToAdd)
	require.Empty(t, diff.ToRemove)
	require.Len(t, diff.ToUpdate, 1, "matched rows still refresh mutable fields")
}
