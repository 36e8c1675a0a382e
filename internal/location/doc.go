// Package location resolves a best-effort, last-known position.
//
// Resolver asks its providers in priority order (network first, satellite
// second) for a cached fix and returns the first one found. It never waits for
// a fresh fix, so the escalation countdown stays deterministic.
package location
