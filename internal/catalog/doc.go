// Package catalog defines the resource kinds the monitor knows about.
//
// A Descriptor carries the access reviews a kind must pass, an optional
// WatchSpec used to build its informer, and an optional predicate deciding
// whether a cached object is "active". Catalogs are immutable and are passed
// to the contexts manager explicitly.
package catalog
