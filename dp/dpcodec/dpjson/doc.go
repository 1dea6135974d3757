// Package dpjson contains types satisfying the [dpcodec] interfaces
// that serialize to and deserialize from JSON.
//
// JSON is simple to work with and easy to read in a database shell
// or in the query server's responses.
// Map keys are emitted in sorted order,
// so equal rounds always serialize to equal bytes.
package dpjson
