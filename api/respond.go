package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tcriess/bingo-chat/globals"
	"github.com/tcriess/bingo-chat/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names in validation errors
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		globals.AppLogger.Error("could not marshal response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		globals.AppLogger.Debug("could not write response", "error", err)
	}
}

// statusFor maps an error kind to its HTTP status. Forbidden is reported as 401, which is what clients expect.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidRequest):
		return http.StatusBadRequest

	case errors.Is(err, types.ErrUnauthorized), errors.Is(err, types.ErrForbidden):
		return http.StatusUnauthorized

	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		globals.AppLogger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondJSON(w, code, errorResponse{Message: types.ClientMessage(err)})
}

// decodeBody decodes the JSON request body into dst and validates it.
func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return types.InvalidRequest("request body is empty")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return types.InvalidRequest("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return types.InvalidRequest("%s param not sent with request", verrs[0].Field())
		}
		return types.InvalidRequest("invalid request body")
	}
	return nil
}

func notFound(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusNotFound, errorResponse{Message: fmt.Sprintf("not found - %s", r.URL.Path)})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Message: fmt.Sprintf("method %s not allowed", r.Method)})
}
