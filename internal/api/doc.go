// Package api handles incoming HTTP requests, request validation and response
// formatting. It adapts HTTP to the account and bulk-upload services; error
// mapping in errors.go keeps internal error text out of responses.
package api
