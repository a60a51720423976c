// Command wavesrv runs the terminal state-sync server.
//
// Subcommands:
//
//	wavesrv serve [--config file] [--port 1619] [--dev]
//	wavesrv linediff make <old> <new> [-o diff]
//	wavesrv linediff apply <old> <diff> [-o out]
//	wavesrv version
//
// serve needs an auth key (WAVESRV_AUTH_KEY or WAVESRV_AUTH_KEY_FILE);
// clients present it in their first watchscreen frame and REST callers in
// the X-AuthKey header.
package main
