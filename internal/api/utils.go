package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, apiError{Error: message})
}

func writeValidationError(w http.ResponseWriter, err error) {
	errs := map[string]string{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range verrs {
			field := e.Field()
			switch e.Tag() {
			case "required":
				errs[field] = "is required"
			case "min", "max":
				errs[field] = "out of allowed range"
			case "oneof":
				errs[field] = "invalid value"
			default:
				errs[field] = "invalid value"
			}
		}
	} else {
		errs["error"] = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, errs)
}
