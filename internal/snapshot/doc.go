// Package snapshot computes incremental updates between two exported
// snapshots of the EBMS database.
//
// A snapshot is a directory holding one file per entity type, named
// <type>.json, with one JSON record per line. Comparing a "baseline"
// snapshot with a freshly "exported" one yields a "deltas" directory:
//
//	deltas/
//	     ├── new/<type>.json   records whose key is absent from the baseline
//	     └── mod/<type>.json   records whose key matches but whose bytes differ
//
// Records are matched on an identifying field (see IDKeys) and compared
// by a SHA-1 fingerprint of their serialized line. Re-serializing a record
// with a different field order or spacing therefore marks it modified.
//
// Deletions are not detected: a record present in the baseline but absent
// from the exported snapshot produces no output at all.
//
// Usage:
//
//	result, err := snapshot.ComputeDeltas(ctx, snapshot.Options{
//	    BaselineDir: "baseline",
//	    ExportedDir: "exported",
//	    OutputDir:   "deltas",
//	    IDKeys:      snapshot.DefaultIDKeys(),
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("new=%d modified=%d\n", result.TotalNew(), result.TotalModified())
package snapshot
