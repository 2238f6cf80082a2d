// Package family holds the household-composition vocabulary of the ENIGH
// integration: relationship codes, head sex and the seven family-structure labels.
package family

import (
	"math"
	"strconv"
	"strings"
)

// Relationship codes as published in the ENIGH poblacion table.
const (
	CodeHead    = 101
	CodePartner = 201
	CodeChild   = 301
	// Codes at or above CodeOtherMin denote other relatives and non-relatives.
	CodeOtherMin = 400

	AdultAge = 18
)

// Sex codes of the sexo column.
const (
	SexMale   = 1
	SexFemale = 2
)

// Structure is a family-structure label.
type Structure string

const (
	FemaleSolo     Structure = "FA"
	FemalePartner  Structure = "FP"
	FemaleChildren Structure = "FC"
	FemaleExtended Structure = "FAD"
	MaleSolo       Structure = "MA"
	MalePartner    Structure = "MP"
	MaleExtended   Structure = "MAD"
)

// Structures lists every label in reporting order.
var Structures = []Structure{
	FemaleSolo, FemalePartner, FemaleChildren, FemaleExtended,
	MaleSolo, MalePartner, MaleExtended,
}

var descriptions = map[Structure]string{
	FemaleSolo:     "Femenino unipersonal",
	FemalePartner:  "Femenino con pareja",
	FemaleChildren: "Femenino con hijos",
	FemaleExtended: "Femenino ampliado",
	MaleSolo:       "Masculino unipersonal",
	MalePartner:    "Masculino con pareja",
	MaleExtended:   "Masculino ampliado",
}

// Description returns the Spanish label shown to operators.
func (s Structure) Description() string {
	if d, ok := descriptions[s]; ok {
		return d
	}
	return string(s)
}

// Profile is the input of Classify.
type Profile struct {
	HeadSex     float64 // NaN when the group has no head
	HasPartner  bool
	HasChildren bool
}

// FemaleHead reports whether the head is coded female. A missing sex is not female.
func (p Profile) FemaleHead() bool {
	return p.HeadSex == SexFemale
}

// Classify assigns the family-structure label. The branch order is part of the
// contract: for male heads the partner test precedes the children test, and for
// female heads the last branch can never be reached.
func Classify(p Profile) Structure {
	if p.FemaleHead() {
		if !p.HasPartner && !p.HasChildren {
			return FemaleSolo
		} else if p.HasPartner && !p.HasChildren {
			return FemalePartner
		} else if p.HasChildren {
			return FemaleChildren
		}
		return FemaleExtended
	}

	if !p.HasPartner && !p.HasChildren {
		return MaleSolo
	} else if p.HasPartner {
		return MalePartner
	}
	return MaleExtended
}

// Composition summarises the members of one (folioviv, foliohog) group.
type Composition struct {
	Partner     bool
	Children    bool
	OtherAdults bool
}

// Member is one person as seen by the composition rules.
type Member struct {
	Relationship float64
	Age          float64
}

// Observe folds one member into the composition.
func (c *Composition) Observe(m Member) {
	switch {
	case m.Relationship == CodePartner:
		c.Partner = true
	case m.Relationship == CodeChild:
		c.Children = true
	}
	if m.Relationship >= CodeOtherMin && m.Age >= AdultAge {
		c.OtherAdults = true
	}
}

// IsHead reports whether a relationship code marks the household head.
func IsHead(relationship float64) bool {
	return relationship == CodeHead
}

// ParseCode parses a numeric survey cell. Empty or non-numeric cells yield NaN,
// which fails every comparison above.
func ParseCode(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Flag renders a boolean as the 0/1 integer used in the output files.
func Flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
