// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing descriptors, catalogs and clocks.
// They are not intended for production usage.
package testutil
