// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): embedding providers, chunk stores and
// document loaders.
package driven
