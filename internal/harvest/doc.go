// Package harvest defines the data model shared by the fetcher, extractor,
// source adapters and orchestrator: discovery keys, detail targets, raw
// documents and the phase contracts adapters implement.
package harvest
