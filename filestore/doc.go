// Package filestore owns the managed root directory where MATLAB source and
// test files live.
//
// Every file name is checked against MATLAB's identifier rules before it is
// mapped to a path, so nothing can be written outside the root or under a
// name the engine would refuse to load. A Watcher built on fsnotify flags
// the store as changed whenever files move underneath the engine.
//
// Usage:
//
//	store, err := filestore.New(logger, "src", ".m")
//	path, err := store.ResolvePath("solver", "")
//	err = store.Write(path, "x = 1;")
package filestore
