package domain

// Document is a single extracted candidate document in a collection.
// Documents are produced by the (external) extraction stage and are
// read-only to this service.
type Document struct {
	ID   string
	Text string
}
