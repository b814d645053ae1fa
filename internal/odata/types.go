package odata

import "fmt"

// EntityDefinition is one addressable entity set exposed by the Dynamics 365
// data catalog.
type EntityDefinition struct {
	// Name is the public entity set name, e.g. "CustomersV3".
	Name string `json:"name"`

	// URL is the canonical locator of the entity set relative to the service
	// root, e.g. "/data/CustomersV3".
	URL string `json:"url"`
}

// QueryOptions carries the OData system query options supported by the
// record query operations. Zero values are omitted from the request.
type QueryOptions struct {
	// Filter is an OData $filter expression.
	Filter string

	// Select lists the fields for $select.
	Select []string

	// OrderBy is an OData $orderby expression.
	OrderBy string

	// Expand is an OData $expand expression.
	Expand string

	// Top limits the number of returned records ($top).
	Top int

	// CrossCompany requests records across all legal entities.
	CrossCompany bool
}

// CallError indicates a non-success response from the Dynamics 365 API.
type CallError struct {
	// StatusCode is the HTTP status returned by the API.
	StatusCode int

	// Body is the raw response body text, kept for diagnosability.
	Body string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("Dynamics 365 call failed with status %d: %s", e.StatusCode, e.Body)
}
