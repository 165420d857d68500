// Package errors provides coded, actionable errors for the roomsync CLI.
//
// Every failure the CLI reports to a user maps to a code (e.g. "E102")
// registered in this package. The registry supplies the category, a short
// message and a longer explanation; call sites add the offending input and
// a suggestion:
//
//	err := errors.New("E103").
//	    WithSource("roomsync.yaml").
//	    WithDetail(`server.url "ftp://host" must use ws, wss, http or https`).
//	    WithSuggestion("Set server.url to the game server, e.g. wss://game.example.com")
//
//	errors.PrintError(os.Stderr, err)
//	// Output:
//	// ERROR E103: Invalid server URL
//	//
//	//   roomsync.yaml
//	//
//	//   server.url "ftp://host" must use ws, wss, http or https
//	//
//	//   Hint: Set server.url to the game server, e.g. wss://game.example.com
//
// # Categories
//
//   - config: the configuration file or environment is invalid
//   - cli: a command was invoked with bad arguments or unreadable input
//   - matchmaking: the seat reservation request failed
//   - connection: the room connection failed or the join was refused
//   - decode: a handshake or state capture could not be decoded
package errors
