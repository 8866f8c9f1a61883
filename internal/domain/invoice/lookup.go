package invoice

// LookupKind selects which identifier a Lookup carries.
type LookupKind int

const (
	ByID LookupKind = iota
	ByInvoiceID
)

func (k LookupKind) String() string {
	if k == ByInvoiceID {
		return "invoiceId"
	}
	return "id"
}

// Lookup addresses a single invoice either by its store id or by its
// business invoice id.
type Lookup struct {
	Kind  LookupKind
	Value string
}

func LookupID(id string) Lookup {
	return Lookup{Kind: ByID, Value: id}
}

func LookupInvoiceID(invoiceID string) Lookup {
	return Lookup{Kind: ByInvoiceID, Value: invoiceID}
}

func (l Lookup) Matches(inv Invoice) bool {
	if l.Kind == ByInvoiceID {
		return inv.InvoiceID == l.Value
	}
	return inv.ID == l.Value
}
