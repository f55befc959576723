// Package output shapes cached Kubernetes objects before they are returned by
// the resources_list MCP tool.
//
// Listing one kind across every monitored context can easily produce more
// data than an LLM context window holds. The [Processor] deep-copies the
// cached objects and then:
//
//   - masks Secret data and sensitive ConfigMap values with [RedactedValue]
//   - removes verbose fields such as managedFields ("slim" output)
//   - sorts by namespace and name and truncates to a per-context limit
//   - caps the number of contexts in one response
//
// For very large result sets [Summarize] returns counts by status and
// namespace instead of objects.
//
// Cached objects are never mutated.
package output
