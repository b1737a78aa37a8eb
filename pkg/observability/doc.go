/*
Package observability turns engine lifecycle hooks into metrics and logs.

Metrics records node visits, node and tool latencies, tool errors and
checkpoint writes on a Prometheus registry. LogHooks writes the same events
as structured slog records. Both return domain.LifecycleHooks and can be
combined with LifecycleHooks.Merge.
*/
package observability
