// Package schema decodes the binary delta stream that keeps a client-side
// replica of a room's state in sync with the server.
//
// A connection starts with a handshake that yields a Schema: a table of
// numbered types, each with indexed fields, plus the id of the root type.
// State then arrives as a stream of operations against a flat Arena of
// numbered refs (structures, maps and arrays). Ref 0 is always the root
// structure. A 0xFF byte followed by a var-int switches the current ref;
// every other byte starts an operation on the current ref.
//
// Decoding is best effort. An operation that does not match the schema is
// counted and the decoder resynchronizes at the next switch marker instead
// of failing the stream.
package schema
