package pipeline

import (
	"bytes"

	jsonpool "github.com/Cornelius-Cellier/capstone-llm/pkg/json"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/models"
)

const (
	questionsCollection = "questions"
	answersCollection   = "answers"
)

// Join flattens both collections and inner-joins answers to questions on
// question_id. Unmatched rows on either side are dropped. Records follow the
// order of answers. Any malformed item fails the whole join with a schema error.
func Join(questions, answers *models.RawCollection) ([]*models.JoinedRecord, error) {
	qs, err := FlattenQuestions(questions)
	if err != nil {
		return nil, err
	}
	as, err := FlattenAnswers(answers)
	if err != nil {
		return nil, err
	}
	return JoinFlat(qs, as), nil
}

// JoinFlat inner-joins already flattened rows
func JoinFlat(questions []models.Question, answers []models.Answer) []*models.JoinedRecord {
	byID := make(map[models.ID]models.Question, len(questions))
	for _, q := range questions {
		byID[q.QuestionID] = q
	}

	records := make([]*models.JoinedRecord, 0, min(len(questions), len(answers)))
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		records = append(records, models.NewJoinedRecord(q, a))
	}
	return records
}

// FlattenQuestions projects every item onto question_id, title and body.
// Duplicate question ids are rejected.
func FlattenQuestions(c *models.RawCollection) ([]models.Question, error) {
	if c == nil {
		return nil, jobserrors.New(jobserrors.ErrorTypeSchema, "missing collection").
			WithDetail("collection", questionsCollection)
	}

	out := make([]models.Question, 0, len(c.Items))
	seen := make(map[models.ID]int, len(c.Items))
	for i, raw := range c.Items {
		fields, err := itemFields(questionsCollection, i, raw)
		if err != nil {
			return nil, err
		}

		var q models.Question
		if err := decodeField(fields, questionsCollection, i, "question_id", &q.QuestionID); err != nil {
			return nil, err
		}
		if err := decodeField(fields, questionsCollection, i, "title", &q.Title); err != nil {
			return nil, err
		}
		if err := decodeField(fields, questionsCollection, i, "body", &q.Body); err != nil {
			return nil, err
		}

		if first, dup := seen[q.QuestionID]; dup {
			return nil, jobserrors.New(jobserrors.ErrorTypeSchema, "duplicate question_id").
				WithDetail("collection", questionsCollection).
				WithDetail("question_id", q.QuestionID.String()).
				WithDetail("index", i).
				WithDetail("first_index", first)
		}
		seen[q.QuestionID] = i
		out = append(out, q)
	}
	return out, nil
}

// FlattenAnswers projects every item onto answer_id, question_id and body.
// Duplicate answer ids are rejected because they would collide on export.
func FlattenAnswers(c *models.RawCollection) ([]models.Answer, error) {
	if c == nil {
		return nil, jobserrors.New(jobserrors.ErrorTypeSchema, "missing collection").
			WithDetail("collection", answersCollection)
	}

	out := make([]models.Answer, 0, len(c.Items))
	seen := make(map[models.ID]int, len(c.Items))
	for i, raw := range c.Items {
		fields, err := itemFields(answersCollection, i, raw)
		if err != nil {
			return nil, err
		}

		var a models.Answer
		if err := decodeField(fields, answersCollection, i, "answer_id", &a.AnswerID); err != nil {
			return nil, err
		}
		if err := decodeField(fields, answersCollection, i, "question_id", &a.QuestionID); err != nil {
			return nil, err
		}
		if err := decodeField(fields, answersCollection, i, "body", &a.Body); err != nil {
			return nil, err
		}

		if first, dup := seen[a.AnswerID]; dup {
			return nil, jobserrors.New(jobserrors.ErrorTypeSchema, "duplicate answer_id").
				WithDetail("collection", answersCollection).
				WithDetail("answer_id", a.AnswerID.String()).
				WithDetail("index", i).
				WithDetail("first_index", first)
		}
		seen[a.AnswerID] = i
		out = append(out, a)
	}
	return out, nil
}

// itemFields decodes one raw item into its top-level fields
func itemFields(collection string, index int, raw jsonpool.RawMessage) (map[string]jsonpool.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, jobserrors.New(jobserrors.ErrorTypeSchema, "item is not a JSON object").
			WithDetail("collection", collection).
			WithDetail("index", index)
	}

	var fields map[string]jsonpool.RawMessage
	if err := jsonpool.Unmarshal(trimmed, &fields); err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeSchema, "failed to decode item").
			WithDetail("collection", collection).
			WithDetail("index", index)
	}
	return fields, nil
}

// decodeField decodes a required, non-null field into dst
func decodeField(fields map[string]jsonpool.RawMessage, collection string, index int, name string, dst interface{}) error {
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return jobserrors.New(jobserrors.ErrorTypeSchema, "missing required field").
			WithDetail("collection", collection).
			WithDetail("index", index).
			WithDetail("field", name)
	}
	if err := jsonpool.Unmarshal(raw, dst); err != nil {
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSchema, "invalid field value").
			WithDetail("collection", collection).
			WithDetail("index", index).
			WithDetail("field", name)
	}
	return nil
}
