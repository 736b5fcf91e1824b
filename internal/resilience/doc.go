// Package resilience executes remote calls under a single ordered policy
// chain: rate-limit check, circuit-breaker gate, attempt, classification,
// retry-or-propagate. The breaker and the rate tracker are constructed
// once per process and injected wherever remote calls are made, because
// the upstream quota is tracked per credential and host rather than per
// repository. Rate-limit waits are honored preferentially and never
// consume a retry attempt.
package resilience
