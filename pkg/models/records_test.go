package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsonpool "github.com/Cornelius-Cellier/capstone-llm/pkg/json"
)

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ID
		wantErr bool
	}{
		{name: "number", input: `10`, want: "10"},
		{name: "large number", input: `79348123456789012`, want: "79348123456789012"},
		{name: "string", input: `"10"`, want: "10"},
		{name: "null", input: `null`, wantErr: true},
		{name: "empty string", input: `""`, wantErr: true},
		{name: "fraction", input: `1.5`, wantErr: true},
		{name: "object", input: `{}`, wantErr: true},
		{name: "path separator", input: `"../python-polars/5"`, wantErr: true},
		{name: "backslash", input: `"a\\b"`, wantErr: true},
		{name: "dot", input: `"."`, wantErr: true},
		{name: "dot dot", input: `".."`, wantErr: true},
		{name: "dots inside", input: `"1.2"`, want: "1.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			err := jsonpool.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestJoinedRecord_WireFormat(t *testing.T) {
	rec := NewJoinedRecord(
		Question{QuestionID: "1", Title: "t", Body: "b"},
		Answer{AnswerID: "10", QuestionID: "1", Body: "a"},
	)

	out, err := jsonpool.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"id":"10","question":{"question_id":"1","title":"t","body":"b"},"answer":{"answer_id":"10","question_id":"1","body":"a"}}`,
		string(out))
	assert.Equal(t, "python-polars/10.json", rec.ExportKey("python-polars"))
}
