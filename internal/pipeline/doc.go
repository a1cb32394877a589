// Package pipeline streams sequence records through a Vectorizer on a bounded worker
// pool and hands the resulting profiles to a Sink in input order.
//
// The contracts to implement are Vectorizer and Sink. This keeps the pipeline
// swappable and testable.
package pipeline
