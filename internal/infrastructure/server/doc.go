// Package server assembles the gin router: the /ws endpoint, health and
// metrics routes, and the X-AuthKey protected /api group.
package server
