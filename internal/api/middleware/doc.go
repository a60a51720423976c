// Package middleware holds the gin middleware shared by the HTTP routes:
// origin-checked CORS, the X-AuthKey gate and rate limiting.
package middleware
