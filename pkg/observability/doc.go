/*
Package observability turns engine lifecycle hooks into telemetry.

Metrics registers prometheus collectors and exposes them as a
domain.LifecycleHooks value; Tracer does the same with OpenTelemetry spans,
one span per visited node and per lead-tracking call. Combine both with
domain.CombineHooks and pass the result to flowchat.WithLifecycleHooks.
*/
package observability
