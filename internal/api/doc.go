// Package api hosts the status server that runs alongside a harvest.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/checkpoint for the current checkpoint document.
//   - GET /v1/runs for reports of runs finished by this process.
package api
