package snapshot

// Index maps identifying keys to the fingerprint of the record carrying them.
type Index map[string]Fingerprint

// BuildIndex reads a baseline snapshot file and fingerprints every record.
//
// When the same key appears more than once, the last occurrence wins.
// The first malformed record aborts the build.
func BuildIndex(path, entityType, idField string) (Index, error) {
	idx, _, err := buildIndex(path, entityType, idField, nil)
	return idx, err
}

// buildIndex indexes path. If onMalformed is non-nil it decides what to do
// with a malformed record: return nil to skip it, or an error to abort.
// The number of lines indexed (skipped ones excluded) is returned.
func buildIndex(path, entityType, idField string, onMalformed func(*MalformedRecordError) error) (Index, int, error) {
	idx := make(Index)
	count := 0
	err := readLines(path, func(l snapshotLine) error {
		key, err := ExtractKey(l.body, idField)
		if err != nil {
			mre := &MalformedRecordError{
				EntityType: entityType,
				Path:       path,
				Line:       l.num,
				Reason:     "baseline record",
				Err:        err,
			}
			if onMalformed == nil {
				return mre
			}
			return onMalformed(mre)
		}
		idx[key] = FingerprintOf(l.body)
		count++
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return idx, count, nil
}

// Classify compares a record against the index.
func (idx Index) Classify(key string, record []byte) Class {
	fp, ok := idx[key]
	if !ok {
		return ClassNew
	}
	if fp != FingerprintOf(record) {
		return ClassModified
	}
	return ClassUnchanged
}
