package catalog

import "sort"

// Diff compares the freshly parsed fingerprint map against the persisted
// one for a pharmacy and produces the minimal mutation sets.
//
// The existing map must include soft-deleted rows: a fingerprint that is
// absent from the upload but already flagged removed is left alone, and a
// reappearing removed fingerprint becomes a restore rather than an insert.
func Diff(fresh map[string]ProductRecord, existing map[string]ExistingEntry) DiffResult {
	var result DiffResult

	for fp, record := range fresh {
		entry, ok := existing[fp]
		if !ok {
			result.ToAdd = append(result.ToAdd, record)
			continue
		}
		result.ToUpdate = append(result.ToUpdate, UpdateEntry{
			UUID:    entry.UUID,
			Record:  record,
			Restore: entry.Removed,
		})
	}

	for fp, entry := range existing {
		if _, ok := fresh[fp]; ok {
			continue
		}
		if entry.Removed {
			continue
		}
		result.ToRemove = append(result.ToRemove, entry.UUID)
	}

	// Map iteration order is random; keep output deterministic for
	// chunked statements and tests.
	sort.Slice(result.ToAdd, func(i, j int) bool {
		return result.ToAdd[i].Fingerprint < result.ToAdd[j].Fingerprint
	})
	sort.Slice(result.ToUpdate, func(i, j int) bool {
		return result.ToUpdate[i].Record.Fingerprint < result.ToUpdate[j].Record.Fingerprint
	})
	sort.Slice(result.ToRemove, func(i, j int) bool {
		return result.ToRemove[i].String() < result.ToRemove[j].String()
	})
	return result
}
