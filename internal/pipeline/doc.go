// Package pipeline assembles the ingestion path: a YAML pipeline file
// naming the validation checks per atom kind and the metadata merge
// policy, a reader for downloader output, and an Ingestor that validates
// candidate atoms before inserting them.
package pipeline
