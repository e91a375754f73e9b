package domain

// Principal is an opaque, equality-comparable identity handle.
// Organisation principals are configured names; account principals are
// generated keys.
type Principal string

// String returns the principal as a plain string.
func (p Principal) String() string {
	return string(p)
}

// Account is a named logical owner of holdings.
// Corresponds to accounts table in PostgreSQL.
type Account struct {
	ID        string    // uuid
	Name      string    // unique, human-readable
	Principal Principal // account key
	Host      Principal // organisation that created and hosts the account
	CreatedAt int64     // record creation timestamp (ms)
}

// Share records that a counterparty may observe and address an account.
type Share struct {
	AccountName  string
	Counterparty Principal
	SharedAt     int64 // ms
}

// Caller identifies who invokes an engine operation.
type Caller struct {
	Principal Principal // organisation principal of the caller
	Account   string    // caller's home account, credited by IssueToken
}
