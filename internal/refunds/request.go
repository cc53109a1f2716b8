package refunds

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/riplimit/backend/internal/models"
)

//go:embed request.schema.json
var requestSchemaJSON string

var ifscPattern = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)

// Request is a decoded refund request body.
type Request struct {
	Amount      int64               `json:"amount"`
	Method      models.RefundMethod `json:"method"`
	BankDetails *BankDetailsInput   `json:"bankDetails,omitempty"`
}

type BankDetailsInput struct {
	AccountNumber     string `json:"accountNumber"`
	IFSCCode          string `json:"ifscCode"`
	AccountHolderName string `json:"accountHolderName"`
}

func compileRequestSchema() (*jsonschema.Schema, error) {
	s, err := jsonschema.CompileString("https://riplimit.dev/schemas/refund-request.json", requestSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile refund request schema: %w", err)
	}
	return s, nil
}

// Decode validates body against the request schema and unmarshals it. Any shape problem
// is reported as ErrValidation.
func (p *Processor) Decode(body []byte) (Request, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Request{}, fmt.Errorf("%w: malformed JSON: %v", ErrValidation, err)
	}
	if err := p.schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return Request{}, fmt.Errorf("%w: %s", ErrValidation, leafMessage(verr))
		}
		return Request{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return req, nil
}

// leafMessage returns the most specific cause, e.g. "/amount: expected integer".
func leafMessage(v *jsonschema.ValidationError) string {
	for len(v.Causes) > 0 {
		v = v.Causes[0]
	}
	loc := v.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + v.Message
}

// validate applies the rules that do not need the store.
func (p *Processor) validate(req Request) error {
	if req.Amount < p.cfg.MinAmount {
		return fmt.Errorf("%w: minimum refund is %d", ErrBelowMinimum, p.cfg.MinAmount)
	}
	if !req.Method.Valid() {
		return fmt.Errorf("%w: unknown refund method %q", ErrValidation, req.Method)
	}
	if req.Method != models.RefundMethodBank {
		return nil
	}
	bd := req.BankDetails
	if bd == nil || strings.TrimSpace(bd.AccountNumber) == "" || strings.TrimSpace(bd.IFSCCode) == "" || strings.TrimSpace(bd.AccountHolderName) == "" {
		return fmt.Errorf("%w: bank refunds require account number, IFSC code and account holder name", ErrValidation)
	}
	if !ifscPattern.MatchString(bd.IFSCCode) {
		return fmt.Errorf("%w: invalid IFSC code %q", ErrValidation, bd.IFSCCode)
	}
	return nil
}
