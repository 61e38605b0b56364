// Package uploader provides upload helpers layered on objectstore.ObjectStore.
//
// BatchUploader coalesces small writes into per-prefix batches and flushes
// a batch when it reaches its size limit or when its oldest entry has
// waited too long. Items within a batch are written sequentially in
// insertion order.
//
// ParallelUploader fans independent uploads out across a bounded number of
// goroutines and reports one result per item, in input order, regardless
// of individual failures.
package uploader
