package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trapper/internal/ingest"
)

func record(payload map[string]string) ingest.RawRecord {
	return ingest.RawRecord{SourceSystem: "master_list", Payload: payload}
}

func TestExtractStructuredColumns(t *testing.T) {
	c := Extract(record(map[string]string{
		ingest.FieldFirstName: "Maria",
		ingest.FieldLastName:  "Alvarez",
		ingest.FieldEmail:     "  Maria.Alvarez@Example.COM ",
		ingest.FieldPhone:     "(707) 555-0142",
		ingest.FieldAddress:   "123 Sebastopol Rd",
	}))

	assert.Equal(t, "maria.alvarez@example.com", c.EmailNorm)
	assert.Equal(t, "7075550142", c.PhoneNorm)
	assert.Equal(t, "Maria Alvarez", c.DisplayName())
	assert.Equal(t, "123 Sebastopol Rd", c.AddressRaw)
}

func TestExtractIsTotal(t *testing.T) {
	// Zero usable signal still yields a candidate for the classifier.
	c := Extract(record(map[string]string{}))
	assert.False(t, c.HasContactSignal())
	assert.Empty(t, c.DisplayName())

	c = Extract(record(map[string]string{ingest.FieldPhone: "555-01"}))
	assert.Empty(t, c.PhoneNorm, "short digit runs are not identifiers")
}

func TestFosterPatternWinsAndStops(t *testing.T) {
	c := Extract(record(map[string]string{ingest.FieldName: "Foster 'Mittens' (Alvarez)"}))

	assert.True(t, c.IsFoster)
	assert.Equal(t, "Mittens", c.CatName)
	assert.Equal(t, "Alvarez", c.FosterParent)
	assert.Equal(t, "foster", c.NamePattern)
	// Must not fall through: the organization/address/fallback patterns would
	// have attributed this row differently.
	assert.False(t, c.IsOrganization)
	assert.Empty(t, c.AddressRaw)
	assert.Equal(t, "Alvarez", c.OwnerName)
}

func TestShelterIntakePattern(t *testing.T) {
	c := Extract(record(map[string]string{ingest.FieldName: "SCAS A439019 'Pumpkin'"}))

	assert.Equal(t, "shelter_intake", c.NamePattern)
	assert.Equal(t, "SCAS", c.ShelterCode)
	assert.Equal(t, "A439019", c.ShelterID)
	assert.Equal(t, "Pumpkin", c.CatName)
}

func TestOrgPhonePattern(t *testing.T) {
	c := Extract(record(map[string]string{ingest.FieldName: "Forgotten Felines 'Smokey' - call (707) 555-0142"}))

	require.Equal(t, "org_phone", c.NamePattern)
	assert.True(t, c.IsOrganization)
	assert.Equal(t, "Forgotten Felines", c.OwnerName)
	assert.Equal(t, "Smokey", c.CatName)
	assert.Equal(t, "7075550142", c.PhoneNorm)
}

func TestOrgPatternRejectsLeadingDigit(t *testing.T) {
	// A house number in front means this is an address, not an org.
	c := Extract(record(map[string]string{ingest.FieldName: "450 Main St 'Smokey' - call 707 555 0142"}))
	assert.NotEqual(t, "org_phone", c.NamePattern)
	assert.False(t, c.IsOrganization)
}

func TestAddressColorPattern(t *testing.T) {
	c := Extract(record(map[string]string{ingest.FieldName: "123 Sebastopol Rd gray -"}))

	assert.Equal(t, "address_color", c.NamePattern)
	assert.Equal(t, "123 Sebastopol Rd", c.AddressRaw)
	assert.Equal(t, "gray", c.CoatColor)
	assert.Empty(t, c.OwnerName)
}

func TestAltContactPattern(t *testing.T) {
	c := Extract(record(map[string]string{ingest.FieldName: "Jane Smith - call Bob 7075550142"}))

	assert.Equal(t, "alt_contact", c.NamePattern)
	assert.Equal(t, "Jane Smith", c.OwnerName)
	assert.Equal(t, "Bob", c.AltContact)
	assert.Equal(t, "7075550142", c.PhoneNorm)
}

func TestFallbackExtractsIndependentSignals(t *testing.T) {
	c := Extract(record(map[string]string{
		ingest.FieldName: "Maria Alvarez 'Tigger' (leave msg) 707-555-0142 - Trp Joe",
	}))

	assert.Equal(t, "fallback", c.NamePattern)
	assert.Equal(t, "Maria Alvarez", c.OwnerName)
	assert.Equal(t, "Tigger", c.CatName)
	assert.Equal(t, "7075550142", c.PhoneNorm)
	assert.Equal(t, "Joe", c.TrapperAlias)
}

func TestStructuredColumnsWinOverNameParse(t *testing.T) {
	c := Extract(record(map[string]string{
		ingest.FieldName:  "Jane Smith - call Bob 7075550199",
		ingest.FieldPhone: "707 555 0142",
	}))
	assert.Equal(t, "7075550142", c.PhoneNorm, "structured phone column outranks parsed phone")
	assert.Equal(t, "Jane Smith", c.OwnerName)
}

func TestNamelessRecordDerivesNameFromEmail(t *testing.T) {
	c := Extract(record(map[string]string{ingest.FieldEmail: "jane.doe@example.com"}))

	assert.Equal(t, "Jane", c.FirstName)
	assert.Equal(t, "Doe", c.LastName)
	assert.Equal(t, "Jane Doe", c.DisplayName())
}
