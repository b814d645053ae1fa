// Package entra acquires and caches service-to-service bearer tokens from
// Microsoft Entra ID (Azure AD) using the OAuth2 client credentials grant.
//
// A single Provider holds at most one cached token per process. The token is
// refreshed lazily when a caller asks for it and the cached one is absent or
// inside the expiry buffer; concurrent refreshes are collapsed into a single
// upstream exchange.
package entra
