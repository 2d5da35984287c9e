package extract

// Candidate is the structured view of one raw record, ready for
// classification and matching. Fields the extractor could not fill stay
// zero-valued; a candidate with no usable signal is still returned so the
// classifier can mark it garbage.
type Candidate struct {
	RawName   string
	FirstName string
	LastName  string
	OwnerName string

	EmailNorm  string
	PhoneNorm  string
	AddressRaw string

	CatName      string
	CoatColor    string
	FosterParent string
	TrapperAlias string
	AltContact   string
	ShelterCode  string
	ShelterID    string

	RoleHint       string
	IsOrganization bool
	IsFoster       bool

	// NamePattern records which master-list pattern claimed the name field,
	// for audit display. Empty when the name needed no special parsing.
	NamePattern string
}

// HasContactSignal reports whether the candidate carries at least one durable
// identifier worth deduplicating on.
func (c Candidate) HasContactSignal() bool {
	return c.EmailNorm != "" || c.PhoneNorm != ""
}

// DisplayName returns the best available human-readable name.
func (c Candidate) DisplayName() string {
	if c.OwnerName != "" {
		return c.OwnerName
	}
	if c.FirstName != "" || c.LastName != "" {
		name := c.FirstName
		if c.LastName != "" {
			if name != "" {
				name += " "
			}
			name += c.LastName
		}
		return name
	}
	return c.RawName
}
