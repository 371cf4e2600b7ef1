package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionJSON(t *testing.T) {
	var single Selection
	require.NoError(t, json.Unmarshal([]byte(`"A"`), &single))
	assert.Equal(t, Single("A"), single)

	var multi Selection
	require.NoError(t, json.Unmarshal([]byte(`["A","C"]`), &multi))
	assert.Equal(t, Multiple("A", "C"), multi)

	var bad Selection
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))

	out, err := json.Marshal(Multiple("A", "B"))
	require.NoError(t, err)
	assert.JSONEq(t, `["A","B"]`, string(out))

	out, err = json.Marshal(Single("B"))
	require.NoError(t, err)
	assert.JSONEq(t, `"B"`, string(out))
}

func TestSelectionRender(t *testing.T) {
	assert.Equal(t, "A", Single("A").Render())
	assert.Equal(t, "A, B, C", Multiple("A", "B", "C").Render())
}

func TestSchemaConforms(t *testing.T) {
	builder := SelectionSchema{Kind: BuilderChoice, Options: []string{"A", "B"}}
	product := SelectionSchema{Kind: ProductChoice, Options: []string{"X", "Y", "Z"}}

	tests := []struct {
		name   string
		schema SelectionSchema
		sel    Selection
		want   bool
	}{
		{"builder single known", builder, Single("A"), true},
		{"builder single unknown", builder, Single("C"), false},
		{"builder given a set", builder, Multiple("A"), false},
		{"builder empty", builder, Selection{}, false},
		{"product subset", product, Multiple("X", "Z"), true},
		{"product all", product, Multiple("X", "Y", "Z"), true},
		{"product empty set", product, Multiple(), false},
		{"product unknown member", product, Multiple("X", "Q"), false},
		{"product duplicate member", product, Multiple("X", "X"), false},
		{"product given a string", product, Single("X"), false},
		{"unknown kind", SelectionSchema{Kind: "other", Options: []string{"A"}}, Single("A"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.schema.Conforms(tt.sel))
		})
	}
}
