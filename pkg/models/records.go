// Package models defines the records flowing through the cleaning job: the raw nested
// collections read from storage, the flattened questions and answers, and the joined
// record that is exported.
package models

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	jsonpool "github.com/Cornelius-Cellier/capstone-llm/pkg/json"
)

// RawCollection is a nested source document shaped {"items": [...]}.
// Items stay undecoded until flattening so missing fields can be reported precisely.
type RawCollection struct {
	Items []jsonpool.RawMessage `json:"items"`
}

// ID is a record identifier. Sources carry ids as JSON numbers or strings;
// both decode to the same decimal string.
type ID string

// UnmarshalJSON accepts a JSON string or an integral JSON number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("id is null")
	}

	if data[0] == '"' {
		var s string
		if err := jsonpool.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return fmt.Errorf("id is empty")
		}
		// ids become object key segments
		if s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
			return fmt.Errorf("id %q is not a valid key segment", s)
		}
		*id = ID(s)
		return nil
	}

	var n jsonpool.Number
	if err := jsonpool.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id %s is not an integer", n.String())
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a plain string
func (id ID) String() string {
	return string(id)
}

// Question is a flattened question row
type Question struct {
	QuestionID ID     `json:"question_id" yaml:"question_id"`
	Title      string `json:"title" yaml:"title"`
	Body       string `json:"body" yaml:"body"`
}

// Answer is a flattened answer row
type Answer struct {
	AnswerID   ID     `json:"answer_id" yaml:"answer_id"`
	QuestionID ID     `json:"question_id" yaml:"question_id"`
	Body       string `json:"body" yaml:"body"`
}

// JoinedRecord pairs an answer with the question it answers. ID is derived from the
// answer id, so re-running the job overwrites the same exported objects.
type JoinedRecord struct {
	ID       ID       `json:"id" yaml:"id"`
	Question Question `json:"question" yaml:"question"`
	Answer   Answer   `json:"answer" yaml:"answer"`
}

// NewJoinedRecord builds the joined record for an answer and its question
func NewJoinedRecord(q Question, a Answer) *JoinedRecord {
	return &JoinedRecord{
		ID:       a.AnswerID,
		Question: q,
		Answer:   a,
	}
}

// ExportKey returns the object key "{tag}/{id}.json" for the record
func (r *JoinedRecord) ExportKey(tag string) string {
	return ExportKey(tag, r.ID)
}

// ExportKey returns the object key "{tag}/{id}.json"
func ExportKey(tag string, id ID) string {
	return tag + "/" + string(id) + ".json"
}
