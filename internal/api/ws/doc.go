// Package ws serves the /ws endpoint: one Session per browser connection.
//
// A connection must identify itself with a clientid query parameter (a
// UUID). The server answers with a hello frame, then accepts frames only
// after a watchscreen frame carrying the server's auth key.
//
// Frames (client to server):
//   - watchscreen: authenticate and subscribe to a session/screen
//   - feinput: terminal input, signals and resizes for a remote
//   - remoteinput: raw input for a remote
//   - cmdinputtext: draft command-line text for a screen
//   - userinputresp: answer to a userinputrequest
//
// Everything the server sends after hello is a model update or an error
// frame.
package ws
