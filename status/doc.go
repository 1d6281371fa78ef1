// Package status serves a small HTTP API about a framepipe process.
//
//	GET /health           component health, 503 when any component is unhealthy
//	GET /info             build information
//	GET /stats            live progress of the current pipeline run
//	GET /runs             recent runs from the ledger
//	GET /runs/:id         one run
//	GET /runs/:id/frames  frames recorded for a run
//	GET /events           Server-Sent Events for every run, or ?run=<id> for one
//
// The ledger and event routes answer 503 when nothing is attached.
package status
