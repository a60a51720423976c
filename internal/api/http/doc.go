// Package http provides the REST handlers mounted next to the /ws endpoint:
// health and metrics, remote lifecycle, shell state uploads and user input
// requests. Every /api route requires the X-AuthKey header.
package http
