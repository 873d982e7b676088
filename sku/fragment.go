package sku

import "github.com/oklog/ulid/v2"

// ulidFragment returns a new ULID. ULIDs are upper-case Crockford base32
// and sort by creation time.
func ulidFragment() string {
	return ulid.Make().String()
}
