package tickstats

// SymbolAdmittedEvent indicates a symbol was ingested for the first time and assigned a pre-allocated series.
type SymbolAdmittedEvent struct {
	Symbol string
}

// IngestEvent indicates an Ingest call completed.
type IngestEvent struct {
	Symbol string
	// The number of values in the batch, whether or not they were appended
	Values int
	// The ingest error, else nil
	Error error
}

// QueryEvent indicates a Query call completed.
type QueryEvent struct {
	Symbol string
	K      int
	// The query result, else the zero value
	Stats Stats
	// The query error, else nil
	Error error
}
