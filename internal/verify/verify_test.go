package verify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
)

func TestFooterTotal(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
		ok       bool
	}{
		{"registos label", "Fim da listagem\nNº Registos: 42", 42, true},
		{"total de registos", "Total de registos - 17", 17, true},
		{"trailing word", "TOTAL: 120 registos", 120, true},
		{"most frequent wins", "Nº registos: 30\nTotal registos: 30\nlinhas: 31", 30, true},
		{"tie goes to smallest", "Nº registos: 30\nlinhas: 25", 25, true},
		{"out of range", "Nº registos: 1", 0, false},
		{"none", "Página 1 de 3", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FooterTotal(tt.text)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("FooterTotal: got (%d, %v), want (%d, %v)", got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestEdges(t *testing.T) {
	docs := []models.Document{
		{Name: "a.pdf", Pages: []models.Page{{Number: 1, Text: "first"}, {Number: 2, Text: "middle"}, {Number: 3, Text: "last"}}},
		{Name: "b.pdf", Pages: []models.Page{{Number: 1, Text: "only"}}},
		{Name: "empty.pdf"},
	}
	got := Edges(docs)
	assert.Contains(t, got, "first")
	assert.Contains(t, got, "last")
	assert.Contains(t, got, "only")
	assert.NotContains(t, got, "middle")
	assert.Equal(t, 1, strings.Count(got, "only"))
}

type replyGenerator struct {
	reply string
	err   error
	calls int
}

func (g *replyGenerator) Generate(context.Context, string) (string, error) {
	g.calls++
	return g.reply, g.err
}

func TestChecker_ExpectedTotal(t *testing.T) {
	ctx := context.Background()
	footer := []models.Document{{Name: "a.pdf", Pages: []models.Page{{Number: 1, Text: "Nº Registos: 42"}}}}
	bare := []models.Document{{Name: "a.pdf", Pages: []models.Page{{Number: 1, Text: "sem rodapé"}}}}

	gen := &replyGenerator{reply: "17"}
	c := &Checker{Generator: gen}

	n, src := c.ExpectedTotal(ctx, footer)
	assert.Equal(t, 42, n)
	assert.Equal(t, SourceFooter, src)
	assert.Zero(t, gen.calls)

	n, src = c.ExpectedTotal(ctx, bare)
	assert.Equal(t, 17, n)
	assert.Equal(t, SourceOracle, src)

	gen.reply = "null"
	_, src = c.ExpectedTotal(ctx, bare)
	assert.Equal(t, SourceNone, src)

	gen.err = errors.New("offline")
	_, src = c.ExpectedTotal(ctx, bare)
	assert.Equal(t, SourceNone, src)

	_, src = (&Checker{}).ExpectedTotal(ctx, bare)
	assert.Equal(t, SourceNone, src)
}

func TestCompare(t *testing.T) {
	assert.Equal(t, StatusUnknown, Compare(10, 0))
	assert.Equal(t, StatusMatch, Compare(10, 10))
	assert.Equal(t, StatusSurplus, Compare(11, 10))
	assert.Equal(t, StatusDeficit, Compare(9, 10))
}

func TestFindMissing(t *testing.T) {
	accepted := []models.Record{{ProcessID: "123456"}, {ProcessID: "HCIS/777"}}
	universe := []models.Record{
		{ProcessID: "777", Name: "RUI"},
		{ProcessID: "888", Name: "ANA"},
		{ProcessID: "CCO/888", Name: "ANA DUPLICADA"},
		{ProcessID: "", Name: "SEM ID"},
		{ProcessID: "999", Name: "JOSE"},
	}

	missing := FindMissing(accepted, universe)
	if assert.Len(t, missing, 2) {
		assert.Equal(t, "ANA", missing[0].Name)
		assert.Equal(t, "JOSE", missing[1].Name)
	}
}
