// Package extract turns raw source rows into structured candidates. The
// extractor is total: unparseable fields degrade to empty values, they never
// fail the record.
package extract

import (
	"strings"

	"trapper/internal/ingest"
	"trapper/internal/normalize"
	"trapper/pkg/email"
)

// Extract builds a Candidate from a raw record's payload. Structured columns
// (first/last name, email, phone, address) are taken as-is; the free-text
// name column goes through the master-list pattern chain.
func Extract(raw ingest.RawRecord) Candidate {
	p := raw.Payload

	c := Candidate{
		RawName:    strings.TrimSpace(p[ingest.FieldName]),
		FirstName:  strings.TrimSpace(p[ingest.FieldFirstName]),
		LastName:   strings.TrimSpace(p[ingest.FieldLastName]),
		EmailNorm:  normalize.Email(p[ingest.FieldEmail]),
		PhoneNorm:  normalize.Phone(p[ingest.FieldPhone]),
		AddressRaw: strings.TrimSpace(p[ingest.FieldAddress]),
		RoleHint:   strings.ToLower(strings.TrimSpace(p[ingest.FieldRole])),
	}
	if len(c.PhoneNorm) < 10 {
		// Partial digit runs are noise, not identifiers.
		c.PhoneNorm = ""
	}

	if c.RawName != "" {
		parsed := parseName(c.RawName)
		mergeCandidate(&c, parsed)
	}
	if c.OwnerName == "" && (c.FirstName != "" || c.LastName != "") {
		c.OwnerName = c.DisplayName()
	}
	if c.DisplayName() == "" && c.EmailNorm != "" {
		// Nameless rows with an email still need something readable in the
		// review queue; guess from the local part.
		c.FirstName, c.LastName = email.DeriveName(c.EmailNorm)
	}
	return c
}

// parseName runs the fixed-priority pattern chain over the free-text name.
// The first pattern to claim the string wins and no later pattern mutates the
// result; the independent fallback runs only when nothing claimed it.
func parseName(name string) Candidate {
	for _, pat := range namePatterns {
		if c, ok := pat.apply(name); ok {
			c.NamePattern = pat.name
			return c
		}
	}
	c := fallbackExtract(name)
	c.NamePattern = "fallback"
	return c
}

// mergeCandidate folds name-parse results into the structured candidate.
// Structured columns win; the parse only fills gaps.
func mergeCandidate(dst *Candidate, src Candidate) {
	if dst.OwnerName == "" {
		dst.OwnerName = src.OwnerName
	}
	if dst.PhoneNorm == "" {
		dst.PhoneNorm = src.PhoneNorm
	}
	if dst.AddressRaw == "" {
		dst.AddressRaw = src.AddressRaw
	}
	if dst.RoleHint == "" {
		dst.RoleHint = src.RoleHint
	}
	dst.CatName = src.CatName
	dst.CoatColor = src.CoatColor
	dst.FosterParent = src.FosterParent
	dst.TrapperAlias = src.TrapperAlias
	dst.AltContact = src.AltContact
	dst.ShelterCode = src.ShelterCode
	dst.ShelterID = src.ShelterID
	dst.IsOrganization = src.IsOrganization
	dst.IsFoster = src.IsFoster
	dst.NamePattern = src.NamePattern
}
