// Package coldfront provides access to allocation metadata from the
// coldfront-plugin-api, either over HTTP with Keycloak client credentials or
// from a local JSON dump in the same format.
package coldfront
