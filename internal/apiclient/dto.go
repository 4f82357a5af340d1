package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"expensedash/internal/core"
)

// flexString accepts a JSON string or number, so numeric IDs survive decoding.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

type expenseDTO struct {
	ID       flexString      `json:"id"`
	MongoID  flexString      `json:"_id"`
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Date     string          `json:"date"`
}

func (d expenseDTO) toCore() core.Expense {
	id := string(d.ID)
	if id == "" {
		id = string(d.MongoID)
	}
	return core.Expense{
		ID:       id,
		Title:    d.Title,
		Amount:   d.Amount,
		Category: d.Category,
		Date:     d.Date,
	}
}

type userDTO struct {
	ID      flexString `json:"id"`
	MongoID flexString `json:"_id"`
	Name    string     `json:"name"`
	Email   string     `json:"email"`
}

func (u userDTO) toCore() core.User {
	id := string(u.ID)
	if id == "" {
		id = string(u.MongoID)
	}
	return core.User{ID: id, Name: u.Name, Email: u.Email}
}

type credentialsRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string   `json:"token"`
	User  *userDTO `json:"user"`
}

// AuthResult is what a successful login or registration yields.
type AuthResult struct {
	Token string
	User  core.User
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// decodeExpenseList accepts a bare array or an object wrapping it under
// "expenses" or "data".
func decodeExpenseList(raw []byte) ([]core.Expense, error) {
	raw = bytes.TrimSpace(raw)
	var dtos []expenseDTO
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")):
		return []core.Expense{}, nil
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &dtos); err != nil {
			return nil, err
		}
	default:
		var wrapped struct {
			Expenses []expenseDTO `json:"expenses"`
			Data     []expenseDTO `json:"data"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, err
		}
		dtos = wrapped.Expenses
		if dtos == nil {
			dtos = wrapped.Data
		}
	}
	out := make([]core.Expense, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toCore())
	}
	return out, nil
}

// decodeUser accepts a bare user object or one wrapped under "user".
func decodeUser(raw []byte) (core.User, error) {
	var wrapped struct {
		User *userDTO `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return core.User{}, err
	}
	if wrapped.User != nil {
		return wrapped.User.toCore(), nil
	}
	var u userDTO
	if err := json.Unmarshal(raw, &u); err != nil {
		return core.User{}, err
	}
	return u.toCore(), nil
}
