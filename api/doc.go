// Package api provides the HTTP surface of the RetrievalFlow service.
//
// # API Overview
//
// RetrievalFlow exposes a small RESTful API:
//   - Hybrid retrieval with token-budgeted context assembly
//   - Corpus index refresh
//   - Cache statistics
//   - Health monitoring and Prometheus metrics
//
// # Endpoints
//
//	POST /v1/retrieve   run a hybrid retrieval query
//	POST /v1/refresh    rebuild lexical indexes after corpus changes
//	GET  /v1/stats      embedding cache statistics
//	GET  /healthz       liveness/readiness probe
//	GET  /metrics       Prometheus exposition
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// Responses share a common envelope with success flag, data payload and
// structured error information; see the handlers package.
package api
