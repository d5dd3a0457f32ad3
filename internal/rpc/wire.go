package rpc

import (
	"encoding/json"
)

// Request is one call on the wire.
type Request struct {
	RequestID string          `json:"request_id"`
	Caller    string          `json:"caller"`
	Partition string          `json:"partition"`
	Module    string          `json:"module"`
	Function  string          `json:"function"`
	Secret    string          `json:"secret,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Outcome is the kind of a Response. These three are the entire contract.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeNetworkError Outcome = "network_error"
)

// Response is the callee's answer to a Request.
type Response struct {
	Outcome Outcome         `json:"outcome"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Set when Outcome is OutcomeUnauthorized.
	Partition string `json:"partition,omitempty"`
	Module    string `json:"module,omitempty"`
	Function  string `json:"function,omitempty"`
	Principal string `json:"principal,omitempty"`

	// Set when Outcome is OutcomeNetworkError. Code is the callee's own
	// error code, when its handler failed with one.
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

func okResponse(payload json.RawMessage) *Response {
	return &Response{Outcome: OutcomeOK, Payload: payload}
}

func unauthorizedResponse(partition string, req *Request) *Response {
	return &Response{
		Outcome:   OutcomeUnauthorized,
		Partition: partition,
		Module:    req.Module,
		Function:  req.Function,
		Principal: req.Caller,
	}
}

func networkErrorResponse(message string) *Response {
	return &Response{Outcome: OutcomeNetworkError, Message: message}
}

// decodeResponse maps resp to reply or to the CrossCellError it carries.
func decodeResponse(resp *Response, reply any) error {
	switch resp.Outcome {
	case OutcomeOK:
		if reply == nil || len(resp.Payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Payload, reply); err != nil {
			return decodeError("decode response payload", err)
		}
		return nil
	case OutcomeUnauthorized:
		return Unauthorized(resp.Partition, resp.Module, resp.Function, resp.Principal)
	case OutcomeNetworkError:
		e := NetworkError(resp.Message, nil)
		e.Code = resp.Code
		return e
	default:
		return decodeError("unknown response outcome "+string(resp.Outcome), nil)
	}
}
