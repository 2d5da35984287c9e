package extract

import (
	"regexp"
	"strings"

	"trapper/internal/normalize"
)

// The master-list "client name" column encodes several mutually exclusive
// shapes. Each shape is a pure pattern function returning a partial candidate
// and whether it claimed the string. Patterns are tried in fixed priority
// order and the first match wins; the fallback runs only when none claimed
// the string. Reordering this list changes which signal a row is attributed
// to, so the order is part of the contract.

type patternFunc func(name string) (Candidate, bool)

type namePattern struct {
	name  string
	apply patternFunc
}

var namePatterns = []namePattern{
	{name: "foster", apply: matchFoster},
	{name: "shelter_intake", apply: matchShelterIntake},
	{name: "org_phone", apply: matchOrgPhone},
	{name: "address_color", apply: matchAddressColor},
	{name: "alt_contact", apply: matchAltContact},
}

var (
	fosterRE  = regexp.MustCompile(`^\s*Foster\s+'([^']+)'\s*\(([^)]+)\)`)
	shelterRE = regexp.MustCompile(`\b(SCAS|FFSC|SPCA|ACS)\s*#?\s*([A-Za-z]?\d{5,})\b`)
	quotedRE  = regexp.MustCompile(`'([^']+)'`)
	orgRE     = regexp.MustCompile(`^\s*([^']+?)\s*'([^']+)'\s*-\s*call\s+(.+)$`)
	colorRE   = regexp.MustCompile(`(?i)^\s*(\d+\s+[^'-]*?)\s+(black|white|orange|gray|grey|tabby|calico|tortie|torbie|tuxedo|brown|buff|siamese)\s*-`)
	altRE     = regexp.MustCompile(`^\s*(.+?)\s*-\s*call\s+(.+?)\s*(\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4})\s*$`)
	trapperRE = regexp.MustCompile(`\s*-\s*Trp\.?\s+([A-Za-z][A-Za-z .'-]*)\s*$`)
	phoneRE   = regexp.MustCompile(`\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)
	parensRE  = regexp.MustCompile(`\([^)]*\)`)
	digitRE   = regexp.MustCompile(`^\d`)
)

// matchFoster handles rows shaped like: Foster 'Mittens' (Alvarez).
func matchFoster(name string) (Candidate, bool) {
	m := fosterRE.FindStringSubmatch(name)
	if m == nil {
		return Candidate{}, false
	}
	return Candidate{
		IsFoster:     true,
		CatName:      strings.TrimSpace(m[1]),
		FosterParent: strings.TrimSpace(m[2]),
		OwnerName:    strings.TrimSpace(m[2]),
		RoleHint:     "foster",
	}, true
}

// matchShelterIntake handles rows carrying a shelter code and intake id,
// e.g. "SCAS A439019 'Pumpkin'". The cat name comes from any quoted
// substring.
func matchShelterIntake(name string) (Candidate, bool) {
	m := shelterRE.FindStringSubmatch(name)
	if m == nil {
		return Candidate{}, false
	}
	c := Candidate{
		ShelterCode: m[1],
		ShelterID:   strings.ToUpper(m[2]),
		RoleHint:    "shelter",
	}
	if q := quotedRE.FindStringSubmatch(name); q != nil {
		c.CatName = strings.TrimSpace(q[1])
	}
	return c, true
}

// matchOrgPhone handles rows shaped like: Forgotten Felines 'Smokey' - call
// 7075550142. The org segment must not start with a digit; that shape is an
// address and belongs to the next pattern.
func matchOrgPhone(name string) (Candidate, bool) {
	m := orgRE.FindStringSubmatch(name)
	if m == nil {
		return Candidate{}, false
	}
	org := strings.TrimSpace(m[1])
	if org == "" || digitRE.MatchString(org) {
		return Candidate{}, false
	}
	phone := normalize.Phone(m[3])
	if len(phone) != 10 {
		return Candidate{}, false
	}
	return Candidate{
		OwnerName:      org,
		IsOrganization: true,
		CatName:        strings.TrimSpace(m[2]),
		PhoneNorm:      phone,
		RoleHint:       "organization",
	}, true
}

// matchAddressColor handles rows shaped like: 123 Sebastopol Rd gray -.
// The color vocabulary is fixed; anything else is not treated as a cat row.
func matchAddressColor(name string) (Candidate, bool) {
	m := colorRE.FindStringSubmatch(name)
	if m == nil {
		return Candidate{}, false
	}
	return Candidate{
		AddressRaw: strings.TrimSpace(m[1]),
		CoatColor:  strings.ToLower(m[2]),
	}, true
}

// matchAltContact handles rows shaped like: Jane Smith - call Bob 7075550142.
// Rejected when the name segment itself looks like a foster, shelter, or
// address row, which would otherwise double-match here.
func matchAltContact(name string) (Candidate, bool) {
	m := altRE.FindStringSubmatch(name)
	if m == nil {
		return Candidate{}, false
	}
	owner := strings.TrimSpace(m[1])
	if fosterRE.MatchString(owner) || shelterRE.MatchString(owner) || colorRE.MatchString(owner) {
		return Candidate{}, false
	}
	return Candidate{
		OwnerName:  owner,
		AltContact: strings.TrimSpace(m[2]),
		PhoneNorm:  normalize.Phone(m[3]),
	}, true
}

// fallbackExtract pulls phone, quoted cat name, and trapper alias
// independently; these signals can coexist with an unclassified owner name.
// The owner name is whatever remains after stripping the trapper suffix,
// quoted segments, parenthetical asides, and the phone run.
func fallbackExtract(name string) Candidate {
	c := Candidate{}
	remainder := name

	if m := trapperRE.FindStringSubmatch(remainder); m != nil {
		c.TrapperAlias = strings.TrimSpace(m[1])
		remainder = trapperRE.ReplaceAllString(remainder, "")
	}
	if m := quotedRE.FindStringSubmatch(remainder); m != nil {
		c.CatName = strings.TrimSpace(m[1])
		remainder = quotedRE.ReplaceAllString(remainder, " ")
	}
	if m := phoneRE.FindString(remainder); m != "" {
		c.PhoneNorm = normalize.Phone(m)
		remainder = strings.Replace(remainder, m, " ", 1)
	}
	remainder = parensRE.ReplaceAllString(remainder, " ")
	remainder = strings.Trim(strings.TrimSpace(remainder), "-– ,")
	c.OwnerName = strings.TrimSpace(remainder)
	return c
}
