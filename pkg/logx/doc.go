// Package logx is orderbot's logging layer: a value-type Logger over zerolog,
// typed fields for the dispatch domain (orders, bots, classes), and a Service
// whose sinks can be swapped at runtime on config reload or when the TUI takes
// over the terminal.
package logx
