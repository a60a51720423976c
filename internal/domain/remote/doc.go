/*
Package remote manages remotes: addressable shells whose terminal output and
runtime state are published to clients on the model update bus.

The only remote type is the local PTY remote. Its shell runs under a pseudo
terminal; every chunk of output is broadcast as a ptydata update scoped to the
remote's screen, carrying the absolute offset of the chunk in the output
stream so clients can detect gaps.

Input arrives from clients as feinput frames (serialized per remote by the
caller) or remoteinput frames. Writes to the terminal go through a per-remote
circuit breaker so a wedged terminal fails fast.

Shell state reported for a remote, either full or as a diff against a stored
base, is resolved through the statestore and broadcast as a complete remote
runtime-state snapshot.
*/
package remote
