// Package search builds MongoDB patient queries from typed search criteria.
package search

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Clause is one node of a patient filter tree
type Clause interface {
	BSON() bson.M
}

// KeywordTerm matches a patient whose name or external messaging id contains the term
type KeywordTerm struct {
	Term string
}

func (k KeywordTerm) BSON() bson.M {
	re := ContainsPattern(k.Term)
	return bson.M{"$or": bson.A{
		bson.M{"name": re},
		bson.M{"lineUserId": re},
	}}
}

// TermSet matches a patient with any history record carrying one of the terms in Field
type TermSet struct {
	Field string
	Terms []string
}

func (s TermSet) BSON() bson.M {
	patterns := make(bson.A, 0, len(s.Terms))
	for _, t := range s.Terms {
		patterns = append(patterns, ContainsPattern(t))
	}
	return bson.M{s.Field: bson.M{"$in": patterns}}
}

// And requires every child clause to match
type And []Clause

func (a And) BSON() bson.M {
	switch len(a) {
	case 0:
		return bson.M{}
	case 1:
		return a[0].BSON()
	}
	parts := make(bson.A, 0, len(a))
	for _, c := range a {
		parts = append(parts, c.BSON())
	}
	return bson.M{"$and": parts}
}

// Criteria are the optional, independently combinable search inputs
type Criteria struct {
	Keyword   string
	Symptoms  string
	Syndromes string
}

// Build turns criteria into a filter tree. Empty criteria produce an empty And,
// which matches every patient.
func (c Criteria) Build() And {
	var tree And

	for _, term := range strings.Fields(c.Keyword) {
		tree = append(tree, KeywordTerm{Term: term})
	}
	if terms := splitList(c.Symptoms); len(terms) > 0 {
		tree = append(tree, TermSet{Field: "historyRecords.symptoms", Terms: terms})
	}
	if terms := splitList(c.Syndromes); len(terms) > 0 {
		tree = append(tree, TermSet{Field: "historyRecords.syndromes", Terms: terms})
	}
	return tree
}

// Filter is shorthand for Build().BSON()
func (c Criteria) Filter() bson.M {
	return c.Build().BSON()
}

func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '，' || r == '、' || r == ' ' || r == '\t'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ContainsPattern builds a case-insensitive substring regex with user input escaped
func ContainsPattern(term string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
}
