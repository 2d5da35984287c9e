// Package classify decides what kind of thing a candidate's name denotes and
// whether the candidate deserves its own person entity. Classification is a
// pure function over the candidate plus read-only vocabulary.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"trapper/internal/extract"
)

// Category tags what the owner-name text denotes.
type Category string

const (
	CategoryPerson       Category = "person"
	CategoryOrganization Category = "organization"
	CategorySiteName     Category = "site_name"
	CategoryAddress      Category = "address"
	CategoryGarbage      Category = "garbage"
)

// Result is the classifier's verdict. Reason names the exact condition that
// fired so the review UI can display why a record was handled the way it was.
type Result struct {
	Category           Category
	ShouldCreatePerson bool
	Reason             string
}

// minNameLength mirrors the master list's shortest legitimate names; anything
// shorter is noise.
const minNameLength = 2

// rule is one named predicate in the classification chain. Rules run in
// order; the first to claim the candidate tags it.
type rule struct {
	name  string
	apply func(c extract.Candidate, name string) (Category, bool)
}

// Garbage runs last: a candidate whose name parse already proved it is an
// address (empty owner name, address pattern) must not be tagged garbage.
var rules = []rule{
	{name: "organization", apply: organizationRule},
	{name: "site_name", apply: siteNameRule},
	{name: "address", apply: addressRule},
	{name: "empty_or_garbage", apply: garbageRule},
}

var orgSuffixes = []string{
	"rescue", "shelter", "humane", "society", "spca", "felines", "feline",
	"sanctuary", "clinic", "veterinary", "vet hospital", "animal services",
	"inc", "llc", "foundation", "church", "school",
}

var siteNames = []string{
	"petco", "petsmart", "tractor supply", "feed store", "fairgrounds",
	"mobile home park", "trailer park", "apartments", "winery", "dairy", "ranch",
}

var (
	letterRE        = regexp.MustCompile(`[A-Za-z]`)
	streetAddressRE = regexp.MustCompile(`(?i)^\d+\s+\w+.*\b(st|street|rd|road|ave|avenue|blvd|dr|drive|ln|lane|ct|court|way|hwy|highway|pl|circle|cir)\b`)
)

func garbageRule(c extract.Candidate, name string) (Category, bool) {
	if len(name) < minNameLength || !letterRE.MatchString(name) {
		return CategoryGarbage, true
	}
	return "", false
}

func organizationRule(c extract.Candidate, name string) (Category, bool) {
	if c.IsOrganization {
		return CategoryOrganization, true
	}
	lower := strings.ToLower(name)
	for _, suffix := range orgSuffixes {
		if containsWord(lower, suffix) {
			return CategoryOrganization, true
		}
	}
	return "", false
}

func siteNameRule(_ extract.Candidate, name string) (Category, bool) {
	lower := strings.ToLower(name)
	for _, site := range siteNames {
		if strings.Contains(lower, site) {
			return CategorySiteName, true
		}
	}
	return "", false
}

func addressRule(c extract.Candidate, name string) (Category, bool) {
	if c.NamePattern == "address_color" {
		return CategoryAddress, true
	}
	if streetAddressRE.MatchString(name) {
		return CategoryAddress, true
	}
	return "", false
}

// containsWord reports whether s contains w bounded by non-letters, so "inc"
// does not fire inside "Vincent".
func containsWord(s, w string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], w)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(w)
		leftOK := start == 0 || !isLetter(s[start-1])
		rightOK := end == len(s) || !isLetter(s[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Classify tags the candidate and decides person-creation eligibility.
// A person entity is only created for person-category candidates carrying at
// least one durable identifier (email or phone); everything else becomes a
// pseudo-profile downstream.
func Classify(c extract.Candidate) Result {
	name := strings.TrimSpace(c.DisplayName())

	category := CategoryPerson
	matchedRule := ""
	for _, r := range rules {
		if cat, ok := r.apply(c, name); ok {
			category = cat
			matchedRule = r.name
			break
		}
	}

	if category != CategoryPerson {
		return Result{
			Category:           category,
			ShouldCreatePerson: false,
			Reason:             fmt.Sprintf("name classified as %s by rule %s", category, matchedRule),
		}
	}
	if !c.HasContactSignal() {
		return Result{
			Category:           CategoryPerson,
			ShouldCreatePerson: false,
			Reason:             "no durable identifier: both email and phone are absent",
		}
	}
	return Result{
		Category:           CategoryPerson,
		ShouldCreatePerson: true,
		Reason:             "person name with contact signal",
	}
}
