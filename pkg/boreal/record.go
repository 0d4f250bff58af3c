package boreal

// Record is one row of a query result.
type Record struct {
	// Keys are the field names, shared by every record of one result.
	Keys []string

	// Values are the field values, positionally matching Keys.
	Values []interface{}
}

// Get returns the value of the named field and whether the field exists.
func (r *Record) Get(key string) (interface{}, bool) {
	for i, k := range r.Keys {
		if k == key {
			return r.Values[i], true
		}
	}
	return nil, false
}

// ResultSummary is the metadata delivered once a result stream completes.
type ResultSummary struct {
	// Query is the command that produced the result.
	Query Command

	// Bookmark is the causal-ordering token issued by the server, empty when
	// the operation produced none (e.g. reads inside an explicit transaction).
	Bookmark string

	// Server is the address of the server that executed the query.
	Server string

	// Metadata carries the remaining summary entries as sent by the server.
	Metadata map[string]interface{}
}
