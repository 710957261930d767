package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid deposit request", func(t *testing.T) {
		valid := CreateDepositRequest{
			LocationID:    "loc-1",
			BorrowerName:  "Dina Katz",
			BorrowerEmail: "dina@example.com",
			DepositAmount: 2000,
		}

		err := vh.ValidateStruct(&valid)
		assert.NoError(t, err)
	})

	t.Run("missing required fields", func(t *testing.T) {
		invalid := CreateDepositRequest{
			BorrowerName: "D", // Too short
			// LocationID missing
		}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 2) // LocationID, BorrowerName
	})

	t.Run("invalid email format", func(t *testing.T) {
		invalid := CreateDepositRequest{
			LocationID:    "loc-1",
			BorrowerName:  "Dina Katz",
			BorrowerEmail: "not-an-email",
		}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 1)
		assert.Equal(t, "BorrowerEmail", validationErrors[0].Field())
		assert.Equal(t, "email", validationErrors[0].Tag())
	})

	t.Run("item condition restricted to known values", func(t *testing.T) {
		err := vh.ValidateStruct(&ReturnRequest{
			TransactionID: "tx-1",
			ItemCondition: "pristine",
		})
		assert.Error(t, err)

		err = vh.ValidateStruct(&ReturnRequest{
			TransactionID: "tx-1",
			ItemCondition: "damaged",
		})
		assert.NoError(t, err)
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("validation errors are broken out per field", func(t *testing.T) {
		vh := NewValidationHelper()
		invalid := CreateDepositRequest{
			BorrowerName:  "D",
			BorrowerEmail: "not-an-email",
		}

		validationErr := vh.ValidateStruct(&invalid)
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Validation failed", response.Error)
		assert.NotNil(t, response.Details)
		assert.Contains(t, response.Details, "LocationID")
		assert.Contains(t, response.Details, "BorrowerName")
		assert.Contains(t, response.Details, "BorrowerEmail")
	})

	t.Run("forbidden error", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "operators may only act on transactions at their assigned location", http.StatusForbidden, nil)

		assert.Equal(t, http.StatusForbidden, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Contains(t, response.Error, "assigned location")
	})
}
