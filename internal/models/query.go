package models

import (
	"fmt"

	"github.com/hyperjump/menurag/pkg/utils"
)

// QueryRequest is the body of a restaurant question.
type QueryRequest struct {
	Question string `json:"question"`
}

// Validate normalizes whitespace in the question and rejects it when empty.
func (q *QueryRequest) Validate() error {
	q.Question = utils.CollapseSpace(q.Question)
	if q.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	return nil
}

// QueryResponse carries the generated answer and the top matches rendered as text.
type QueryResponse struct {
	Answer         string   `json:"answer"`
	TopRestaurants []string `json:"top_restaurants"`
	TopMenuItems   []string `json:"top_menu_items"`
}
