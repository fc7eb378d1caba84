// Package store is a content-addressable blob store with durable,
// multi-digest metadata.
//
// Every blob is identified by several cryptographic digests computed
// over its bytes in a single pass; callers read and write blobs by
// digest (an RFC6920 "ni:" URI). The store retains a record of every
// object that has ever been in the store, distinguishing live objects,
// tombstones (blob erased, record retained), and cache entries
// (time-expiring records).
//
// This package holds the domain model shared by the rest of the
// module: digests, objects, errors, and configuration. It defines the
// Driver interface a concrete backend must satisfy, and the Store type
// that composes a Driver into the add/get/remove/forget/stats/list/
// sweep operations described by the spec this module implements. It
// does not itself know how to open a store; see package backend for
// that, and package blob and package meta for the two halves of a
// Driver.
package store
