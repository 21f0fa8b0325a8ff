// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing messages, states and seeded memory stores.
// They are not intended for production usage.
package testutil
