// Package health provides probes and the /-/healthy and /-/ready handlers
// served on the ops port.
//
// Probes compose with [All], [Any] and [Fixed]. [Cached] and [WithTimeout]
// wrap remote checks such as the RPC node and redis so a burst of readiness
// scrapes costs one round trip.
//
// [ShutdownGate] fails readiness as soon as draining starts, before the
// public listener stops accepting requests.
package health
