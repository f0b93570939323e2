package holidays

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"chronosync/internal/model"
)

// DateInfo is the provider's nested date object.
type DateInfo struct {
	ISO string `json:"iso"`
}

// Holiday is one entry of the holidays endpoint, as sent on the wire.
// Date is a pointer so a missing date can be told apart from an empty one.
type Holiday struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Date        *DateInfo `json:"date"`
	DateStart   *DateInfo `json:"date_start,omitempty"`
	DateEnd     *DateInfo `json:"date_end,omitempty"`
	Type        []string  `json:"type"`
}

type envelope struct {
	Meta struct {
		Code        int    `json:"code"`
		ErrorType   string `json:"error_type"`
		ErrorDetail string `json:"error_detail"`
	} `json:"meta"`
	Response json.RawMessage `json:"response"`
}

func decodeEnvelope(body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Meta.Code != 0 && env.Meta.Code != 200 {
		return nil, fmt.Errorf("provider error %d: %s", env.Meta.Code, env.Meta.ErrorDetail)
	}
	// The provider answers "response": [] when it has nothing to say.
	trimmed := bytes.TrimSpace(env.Response)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil
	}
	return trimmed, nil
}

func decodeHolidays(body []byte) ([]Holiday, error) {
	raw, err := decodeEnvelope(body)
	if err != nil || raw == nil {
		return nil, err
	}
	var resp struct {
		Holidays []Holiday `json:"holidays"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode holidays: %w", err)
	}
	return resp.Holidays, nil
}

func decodeCountries(body []byte) ([]model.Country, error) {
	raw, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("empty countries response")
	}
	var resp struct {
		Countries []model.Country `json:"countries"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode countries: %w", err)
	}
	return resp.Countries, nil
}
