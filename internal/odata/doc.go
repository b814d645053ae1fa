// Package odata is the client for the Dynamics 365 Finance & Operations
// OData endpoint.
//
// Client performs the raw HTTP calls (catalog enumeration, record CRUD and
// bound actions) using a bearer token injected by an oauth2 transport.
// Resolver sits on top of the catalog enumeration and turns an approximate,
// human-supplied entity name into the exact entity locator via fuzzy string
// matching over a lazily-built, process-lifetime index.
package odata
