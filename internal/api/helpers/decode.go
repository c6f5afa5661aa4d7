package helpers

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// DecodeJSON decodes a request body with strict validation: unknown fields
// are rejected so clients cannot smuggle extra payload past the contract.
//
// Usage:
//
//	var req LoginRequest
//	if err := helpers.DecodeJSON(r, &req); err != nil {
//	    helpers.RespondError(w, http.StatusBadRequest, err.Error())
//	    return
//	}
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
