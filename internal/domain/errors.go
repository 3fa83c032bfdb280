package domain

import "errors"

var (
	// ErrSegmentation is returned when text cannot be split into sentences.
	ErrSegmentation = errors.New("segmentation failed")
	// ErrEmbedding is returned when the embedder fails or returns a batch of the wrong size.
	ErrEmbedding = errors.New("embedding failed")
	// ErrInsertion is returned when records are inconsistent and were not written.
	ErrInsertion = errors.New("insertion rejected")
	// ErrCollectionNotFound is returned by stores for unknown collections.
	ErrCollectionNotFound = errors.New("collection not found")
)
