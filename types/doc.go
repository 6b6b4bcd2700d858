// Package types contains the shared data types of the flowgate engine:
// structured errors, workflow IO value types and coercion rules, chat
// history content blocks, and per-node usage entries.
package types
